// Package proc spawns the external dump/restore executables and relays
// their combined output.
package proc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
)

// Line buffer limit for subprocess output.
const maxLineLen = 1024 * 1024

// ProgressSink receives one subprocess output line at a time, in order.
type ProgressSink func(line string)

// CommandSpec is an immutable description of one subprocess invocation,
// constructed once and passed down. Env entries are injected into the
// child's environment only — the parent environment is never mutated,
// so concurrent runs cannot leak secrets into each other.
type CommandSpec struct {
	Program string
	Args    []string
	Env     map[string]string
}

// Service defines the interface for running external processes.
type Service interface {
	RunStreamed(ctx context.Context, spec CommandSpec, sink ProgressSink) error
	RunCaptured(ctx context.Context, spec CommandSpec) (string, error)
}

// Impl implements the proc Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new proc service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, extra[k]))
	}
	return env
}

// RunStreamed spawns the command, merges stdout and stderr into one
// ordered stream and forwards each line to sink as it arrives. It fails
// with a ProcessError carrying the exit code and the captured output
// when the process exits non-zero.
func (s *Impl) RunStreamed(ctx context.Context, spec CommandSpec, sink ProgressSink) error {
	s.logger.Debug().Str("program", spec.Program).Strs("args", spec.Args).Msg("spawning process")

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Env = buildEnv(spec.Env)
	hideConsoleWindow(cmd)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return &errdefs.ProcessError{Program: spec.Program, ExitCode: -1, Err: err}
	}

	var output strings.Builder
	g := new(errgroup.Group)
	g.Go(func() error {
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), maxLineLen)
		for scanner.Scan() {
			line := scanner.Text()
			output.WriteString(line)
			output.WriteByte('\n')
			if sink != nil {
				sink(line)
			}
		}
		return scanner.Err()
	})

	waitErr := cmd.Wait()
	pw.Close()
	readErr := g.Wait()

	if waitErr != nil {
		return &errdefs.ProcessError{
			Program:  spec.Program,
			ExitCode: exitCode(waitErr),
			Output:   output.String(),
			Err:      waitErr,
		}
	}
	if readErr != nil {
		return &errdefs.ProcessError{Program: spec.Program, ExitCode: -1, Err: readErr}
	}
	return nil
}

// RunCaptured is RunStreamed without the streaming: it returns the
// combined output on success.
func (s *Impl) RunCaptured(ctx context.Context, spec CommandSpec) (string, error) {
	s.logger.Debug().Str("program", spec.Program).Strs("args", spec.Args).Msg("spawning process")

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	cmd.Env = buildEnv(spec.Env)
	hideConsoleWindow(cmd)

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &errdefs.ProcessError{
			Program:  spec.Program,
			ExitCode: exitCode(err),
			Output:   string(out),
			Err:      err,
		}
	}
	return string(out), nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
