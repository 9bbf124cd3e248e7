// Package models contains the data structures used throughout bbfbackup.
package models

// Config holds the complete configuration for a bbfbackup invocation.
type Config struct {
	Connection ConnConfig
	Tools      ToolsConfig
}

// ConnConfig describes a server connection. It is cloned into each
// pipeline run and never mutated afterwards.
type ConnConfig struct {
	Hostname         string
	Port             int
	Username         string
	Password         string
	EnableTLS        bool
	AcceptInvalidTLS bool
	UsePasswordFile  bool   // read the password from ~/.pgpass instead of Password
	Database         string // default database to connect to, e.g. "wilton"
}

// ToolsConfig holds the paths of the external dump/restore executables.
type ToolsConfig struct {
	PgDump    string
	PgRestore string
}
