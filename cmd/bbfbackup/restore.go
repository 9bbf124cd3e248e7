package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wiltondb-tools/bbfbackup/internal/models"
	"github.com/wiltondb-tools/bbfbackup/internal/services/progress"
	"github.com/wiltondb-tools/bbfbackup/internal/services/restore"
)

var (
	restoreArchive string
	restoreDBName  string
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore an archive under a new database name",
	Long: `Restore a backup archive as a new logical database:
1. Check that the destination name is not already taken
2. Unpack the archive into a sibling temp directory
3. Rewrite the dump's TOC and catalog exports to the new name
4. Provision the ownership roles (db_owner, dbo, guest)
5. Run pg_restore in a single transaction

If pg_restore fails, the roles created in step 4 are dropped again.`,
	RunE: runRestore,
}

func init() {
	restoreCmd.Flags().StringVarP(&restoreArchive, "file", "f", "", "backup archive to restore (required)")
	restoreCmd.Flags().StringVarP(&restoreDBName, "dbname", "d", "", "database name to restore under (required)")
	_ = restoreCmd.MarkFlagRequired("file")
	_ = restoreCmd.MarkFlagRequired("dbname")
}

func runRestore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	archive, err := filepath.Abs(restoreArchive)
	if err != nil {
		log.Error().Err(err).Str("file", restoreArchive).Msg("invalid archive path")
		return err
	}
	settings := models.RestoreSettings{
		ZipPath:    archive,
		DestDBName: restoreDBName,
	}

	svc := restore.New(log.Logger)
	handle := progress.Run(progress.DefaultMinDuration, consoleBatcher(),
		func(sink func(line string)) models.PipelineResult {
			return svc.Run(cmd.Context(), cfg.Connection, cfg.Tools, settings, sink)
		})

	result := handle.Join()
	reportWarnings(result)
	if !result.Success {
		log.Error().Msg(result.Error)
		return fmt.Errorf("restore failed")
	}

	log.Info().Msg("restore completed successfully")
	return nil
}
