package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wiltondb-tools/bbfbackup/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without connecting to the server.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		log.Error().Str("file", configFile).Msg("config file not found")
		return fmt.Errorf("config file not found: %s", configFile)
	}

	// Load configuration
	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Connection:")
	fmt.Printf("  Host: %s\n", cfg.Connection.Hostname)
	fmt.Printf("  Port: %d\n", cfg.Connection.Port)
	fmt.Printf("  Username: %s\n", cfg.Connection.Username)
	fmt.Printf("  Database: %s\n", cfg.Connection.Database)
	fmt.Printf("  TLS: %v\n", cfg.Connection.EnableTLS)
	if cfg.Connection.EnableTLS {
		fmt.Printf("  Accept invalid TLS: %v\n", cfg.Connection.AcceptInvalidTLS)
	}
	if cfg.Connection.UsePasswordFile {
		fmt.Printf("  Password: (from password file)\n")
	} else {
		fmt.Printf("  Password: (configured)\n")
	}
	fmt.Println()
	fmt.Println("Tools:")
	fmt.Printf("  pg_dump: %s\n", cfg.Tools.PgDump)
	fmt.Printf("  pg_restore: %s\n", cfg.Tools.PgRestore)

	return nil
}
