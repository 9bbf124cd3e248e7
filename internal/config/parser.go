// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/wiltondb-tools/bbfbackup/internal/models"
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{}

	cfg.Connection = models.ConnConfig{
		Hostname:         p.v.GetString("connection.host"),
		Port:             p.v.GetInt("connection.port"),
		Username:         p.v.GetString("connection.username"),
		Password:         p.expandEnv(p.v.GetString("connection.password")),
		EnableTLS:        p.v.GetBool("connection.enable_tls"),
		AcceptInvalidTLS: p.v.GetBool("connection.accept_invalid_tls"),
		UsePasswordFile:  p.v.GetBool("connection.use_password_file"),
		Database:         p.v.GetString("connection.database"),
	}

	// Set defaults.
	if cfg.Connection.Hostname == "" {
		cfg.Connection.Hostname = "localhost"
	}
	if cfg.Connection.Port == 0 {
		cfg.Connection.Port = 5432
	}
	if cfg.Connection.Database == "" {
		cfg.Connection.Database = "wilton"
	}

	if cfg.Connection.Username == "" {
		return nil, fmt.Errorf("connection.username is required")
	}
	if cfg.Connection.Password == "" && !cfg.Connection.UsePasswordFile {
		return nil, fmt.Errorf("connection.password is required unless connection.use_password_file is set")
	}

	cfg.Tools = models.ToolsConfig{
		PgDump:    p.expandEnv(p.v.GetString("tools.pg_dump")),
		PgRestore: p.expandEnv(p.v.GetString("tools.pg_restore")),
	}
	if cfg.Tools.PgDump == "" {
		cfg.Tools.PgDump = "pg_dump"
	}
	if cfg.Tools.PgRestore == "" {
		cfg.Tools.PgRestore = "pg_restore"
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Connection.Username == "" {
		return fmt.Errorf("connection.username is required")
	}

	if cfg.Connection.Password == "" && !cfg.Connection.UsePasswordFile {
		return fmt.Errorf("connection.password is required unless connection.use_password_file is set")
	}

	return nil
}
