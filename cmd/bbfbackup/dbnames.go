package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wiltondb-tools/bbfbackup/internal/services/pgconn"
)

var dbnamesCmd = &cobra.Command{
	Use:   "dbnames",
	Short: "List the logical databases on the server",
	RunE:  runDbnames,
}

func runDbnames(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := pgconn.Connect(ctx, cfg.Connection, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("connection failed")
		return err
	}
	defer db.Close(ctx)

	names, err := pgconn.ListDatabases(ctx, db)
	if err != nil {
		log.Error().Err(err).Msg("failed to list databases")
		return err
	}

	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}
