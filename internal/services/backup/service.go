// Package backup orchestrates the dump-and-package pipeline: prepare a
// temp directory, run pg_dump into it, zip the result and remove the
// temp directory.
package backup

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
	"github.com/wiltondb-tools/bbfbackup/internal/models"
	"github.com/wiltondb-tools/bbfbackup/internal/services/proc"
	"github.com/wiltondb-tools/bbfbackup/internal/services/zipdir"
)

const defaultJobs = 4

// Service defines the interface for the backup pipeline.
type Service interface {
	Run(ctx context.Context, conn models.ConnConfig, tools models.ToolsConfig,
		settings models.BackupSettings, sink func(line string)) models.PipelineResult
}

// Impl implements the backup Service interface.
type Impl struct {
	procSvc proc.Service
	zipSvc  zipdir.Service
	logger  zerolog.Logger
}

// New creates a new backup service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		procSvc: proc.New(logger),
		zipSvc:  zipdir.New(logger),
		logger:  logger,
	}
}

// NewWithServices creates a new backup service with custom services (for testing).
func NewWithServices(logger zerolog.Logger, procSvc proc.Service, zipSvc zipdir.Service) *Impl {
	return &Impl{procSvc: procSvc, zipSvc: zipSvc, logger: logger}
}

// Run executes the backup pipeline. The result carries a success flag;
// diagnostics go through sink.
func (s *Impl) Run(ctx context.Context, conn models.ConnConfig, tools models.ToolsConfig,
	settings models.BackupSettings, sink func(line string)) models.PipelineResult {
	sink("Running backup ...")

	tempDir, filename, err := prepareDestDir(settings.DestDir, settings.DestFilename)
	if err != nil {
		return models.Failure(err.Error())
	}
	destFile := filepath.Join(settings.DestDir, filename)
	sink("Backup file: " + destFile)

	s.logger.Info().
		Str("database", settings.DBName).
		Str("archive", destFile).
		Msg("starting backup")

	sink("Running pg_dump ...")
	if err := s.runDump(ctx, conn, tools, settings, tempDir, sink); err != nil {
		s.logger.Error().Err(err).Msg("dump failed")
		return models.Failure(fmt.Sprintf("Dump failed: %v", err))
	}

	sink("Packaging destination directory ...")
	if err := s.packageDir(tempDir, destFile, sink); err != nil {
		s.logger.Error().Err(err).Msg("packaging failed")
		return models.Failure(fmt.Sprintf("Packaging failed, path: %s, error: %v", tempDir, err))
	}

	s.logger.Info().Str("archive", destFile).Msg("backup completed")
	sink("Backup complete")
	return models.Successful()
}

func (s *Impl) runDump(ctx context.Context, conn models.ConnConfig, tools models.ToolsConfig,
	settings models.BackupSettings, tempDir string, sink func(line string)) error {
	jobs := settings.Jobs
	if jobs <= 0 {
		jobs = defaultJobs
	}
	spec := proc.CommandSpec{
		Program: tools.PgDump,
		Args: []string{
			"-v",
			"-h", conn.Hostname,
			"-p", strconv.Itoa(conn.Port),
			"-U", conn.Username,
			"--bbf-database-name", settings.DBName,
			"-F", "d",
			"-Z", "6",
			"-j", strconv.Itoa(jobs),
			"-f", tempDir,
		},
		Env: pgEnv(conn),
	}
	return s.procSvc.RunStreamed(ctx, spec, proc.ProgressSink(sink))
}

func (s *Impl) packageDir(tempDir, destFile string, sink func(line string)) error {
	if err := s.zipSvc.Pack(tempDir, destFile, 0, zipdir.ProgressSink(sink)); err != nil {
		return err
	}
	if err := os.RemoveAll(tempDir); err != nil {
		return &errdefs.IOError{Path: tempDir, Err: err}
	}
	return nil
}

// prepareDestDir derives the dump temp directory from the requested
// archive filename: extension stripped (".zip" appended when missing)
// plus a fresh random suffix, so concurrent or leftover runs cannot
// collide. Any pre-existing directory of that name is removed first.
func prepareDestDir(destParent, destFilename string) (string, string, error) {
	ext := filepath.Ext(destFilename)
	filename := destFilename
	if ext == "" {
		ext = ".zip"
		filename += ext
	}
	dirname := fmt.Sprintf("%s-%s", strings.TrimSuffix(filename, ext), randomSuffix())
	tempDir := filepath.Join(destParent, dirname)

	os.RemoveAll(tempDir)
	if _, err := os.Stat(tempDir); err == nil {
		return "", "", &errdefs.IOError{Path: tempDir, Err: fmt.Errorf("could not remove directory")}
	}
	return tempDir, filename, nil
}

func randomSuffix() string {
	var buf [4]byte
	rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

func pgEnv(conn models.ConnConfig) map[string]string {
	env := make(map[string]string)
	if !conn.UsePasswordFile && conn.Password != "" {
		env["PGPASSWORD"] = conn.Password
	}
	if conn.EnableTLS {
		if conn.AcceptInvalidTLS {
			env["PGSSLMODE"] = "require"
		} else {
			env["PGSSLMODE"] = "verify-full"
		}
	}
	return env
}
