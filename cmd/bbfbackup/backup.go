package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/wiltondb-tools/bbfbackup/internal/config"
	"github.com/wiltondb-tools/bbfbackup/internal/models"
	"github.com/wiltondb-tools/bbfbackup/internal/services/backup"
	"github.com/wiltondb-tools/bbfbackup/internal/services/progress"
)

var (
	backupDBName string
	backupDest   string
	backupJobs   int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Dump a logical database into a zip archive",
	Long: `Dump a logical database with pg_dump in directory format and
package the result into a store-only zip archive:
1. Prepare a unique temp directory next to the destination file
2. Run pg_dump into it, streaming the tool's output
3. Zip the directory to the destination filename and remove the temp directory`,
	RunE: runBackup,
}

func init() {
	backupCmd.Flags().StringVarP(&backupDBName, "dbname", "d", "", "logical database to dump (required)")
	backupCmd.Flags().StringVarP(&backupDest, "file", "f", "", "destination archive path (required)")
	backupCmd.Flags().IntVarP(&backupJobs, "jobs", "j", 0, "pg_dump parallel jobs")
	_ = backupCmd.MarkFlagRequired("dbname")
	_ = backupCmd.MarkFlagRequired("file")
}

func runBackup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dest, err := filepath.Abs(backupDest)
	if err != nil {
		log.Error().Err(err).Str("file", backupDest).Msg("invalid destination path")
		return err
	}
	settings := models.BackupSettings{
		DBName:       backupDBName,
		DestDir:      filepath.Dir(dest),
		DestFilename: filepath.Base(dest),
		Jobs:         backupJobs,
	}

	svc := backup.New(log.Logger)
	handle := progress.Run(progress.DefaultMinDuration, consoleBatcher(),
		func(sink func(line string)) models.PipelineResult {
			return svc.Run(cmd.Context(), cfg.Connection, cfg.Tools, settings, sink)
		})

	result := handle.Join()
	reportWarnings(result)
	if !result.Success {
		log.Error().Msg(result.Error)
		return fmt.Errorf("backup failed")
	}

	log.Info().Msg("backup completed successfully")
	return nil
}

func loadConfig() (*models.Config, error) {
	if configFile == "" {
		return nil, fmt.Errorf("config file is required")
	}

	parser := config.NewParser()
	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to load config")
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return nil, err
	}
	return cfg, nil
}

// consoleBatcher prints coalesced progress batches as plain lines,
// keeping them apart from the structured log stream.
func consoleBatcher() *progress.Batcher {
	return progress.NewBatcher(progress.DefaultInterval, func(batch []string) {
		for _, line := range batch {
			fmt.Println(line)
		}
	})
}

func reportWarnings(result models.PipelineResult) {
	for _, warning := range result.Warnings {
		log.Warn().Msg(warning)
	}
}
