//go:build !windows

package proc

import "os/exec"

func hideConsoleWindow(_ *exec.Cmd) {}
