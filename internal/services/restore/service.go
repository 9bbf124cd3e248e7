// Package restore orchestrates the restore pipeline: check that the
// destination name is free, unpack the archive, retarget the TOC to the
// new name, provision ownership roles and run pg_restore — rolling back
// the roles this run created when the restore itself fails.
package restore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
	"github.com/wiltondb-tools/bbfbackup/internal/models"
	"github.com/wiltondb-tools/bbfbackup/internal/services/pgconn"
	"github.com/wiltondb-tools/bbfbackup/internal/services/proc"
	"github.com/wiltondb-tools/bbfbackup/internal/services/roles"
	"github.com/wiltondb-tools/bbfbackup/internal/services/zipdir"
	"github.com/wiltondb-tools/bbfbackup/internal/toc"
)

// ConnectFunc opens the provisioning connection; swapped out in tests.
type ConnectFunc func(ctx context.Context, cc models.ConnConfig) (pgconn.Client, error)

// Service defines the interface for the restore pipeline.
type Service interface {
	Run(ctx context.Context, conn models.ConnConfig, tools models.ToolsConfig,
		settings models.RestoreSettings, sink func(line string)) models.PipelineResult
}

// Impl implements the restore Service interface.
type Impl struct {
	procSvc  proc.Service
	zipSvc   zipdir.Service
	rolesSvc roles.Service
	connect  ConnectFunc
	logger   zerolog.Logger
}

// New creates a new restore service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		procSvc:  proc.New(logger),
		zipSvc:   zipdir.New(logger),
		rolesSvc: roles.New(logger),
		connect: func(ctx context.Context, cc models.ConnConfig) (pgconn.Client, error) {
			return pgconn.Connect(ctx, cc, logger)
		},
		logger: logger,
	}
}

// NewWithServices creates a new restore service with custom services (for testing).
func NewWithServices(logger zerolog.Logger, procSvc proc.Service, zipSvc zipdir.Service,
	rolesSvc roles.Service, connect ConnectFunc) *Impl {
	return &Impl{procSvc: procSvc, zipSvc: zipSvc, rolesSvc: rolesSvc, connect: connect, logger: logger}
}

// Run executes the restore pipeline. The temp directory is removed on
// success and failure alike; a cleanup failure after a successful
// restore is reported as a warning, not a failure.
func (s *Impl) Run(ctx context.Context, conn models.ConnConfig, tools models.ToolsConfig,
	settings models.RestoreSettings, sink func(line string)) models.PipelineResult {
	sink("Running restore ...")

	s.logger.Info().
		Str("archive", settings.ZipPath).
		Str("database", settings.DestDBName).
		Msg("starting restore")

	db, err := s.connect(ctx, conn)
	if err != nil {
		return models.Failure(err.Error())
	}
	defer db.Close(ctx)

	// The existence check runs before anything is extracted or
	// created, so a duplicate name cannot corrupt an earlier restore.
	sink("Checking destination database name ...")
	if err := s.checkDestFree(ctx, db, settings.DestDBName); err != nil {
		return models.Failure(err.Error())
	}

	sink("Unpacking archive ...")
	parentDir := filepath.Dir(settings.ZipPath)
	topDir, err := s.zipSvc.Unpack(settings.ZipPath, parentDir, zipdir.ProgressSink(sink))
	if err != nil {
		s.logger.Error().Err(err).Msg("unpack failed")
		return models.Failure(fmt.Sprintf("Unzip error, file: %s, message: %v", settings.ZipPath, err))
	}
	tempDir := filepath.Join(parentDir, topDir)

	result := s.restoreUnpacked(ctx, db, conn, tools, settings, tempDir, sink)

	sink("Cleaning up ...")
	if err := os.RemoveAll(tempDir); err != nil {
		warning := fmt.Sprintf("cleanup failed, path: %s, error: %v", tempDir, err)
		s.logger.Warn().Err(err).Str("path", tempDir).Msg("cleanup failed")
		result.Warnings = append(result.Warnings, warning)
		sink(warning)
	}

	if result.Success {
		s.logger.Info().Str("database", settings.DestDBName).Msg("restore completed")
		sink("Restore complete")
	}
	return result
}

func (s *Impl) checkDestFree(ctx context.Context, db pgconn.Client, dbName string) error {
	names, err := pgconn.ListDatabases(ctx, db)
	if err != nil {
		return err
	}
	if slices.Contains(names, dbName) {
		return &errdefs.ValidationError{Msg: fmt.Sprintf("database already exists: %s", dbName)}
	}
	return nil
}

func (s *Impl) restoreUnpacked(ctx context.Context, db pgconn.Client, conn models.ConnConfig,
	tools models.ToolsConfig, settings models.RestoreSettings, tempDir string,
	sink func(line string)) models.PipelineResult {
	sink("Rewriting TOC ...")
	if err := toc.Rewrite(tempDir, settings.DestDBName, toc.ProgressSink(sink)); err != nil {
		s.logger.Error().Err(err).Msg("toc rewrite failed")
		return models.Failure(err.Error())
	}

	sink("Provisioning ownership roles ...")
	created, err := s.rolesSvc.Provision(ctx, db, settings.DestDBName)
	if err != nil {
		s.logger.Error().Err(err).Msg("role provisioning failed")
		return s.failWithRollback(ctx, db, created, err, sink)
	}

	sink("Running pg_restore ...")
	output, err := s.procSvc.RunCaptured(ctx, s.restoreSpec(conn, tools, tempDir))
	if err != nil {
		s.logger.Error().Err(err).Msg("restore failed")
		return s.failWithRollback(ctx, db, created, err, sink)
	}
	if output != "" {
		sink(output)
	}
	return models.Successful()
}

func (s *Impl) restoreSpec(conn models.ConnConfig, tools models.ToolsConfig, tempDir string) proc.CommandSpec {
	return proc.CommandSpec{
		Program: tools.PgRestore,
		Args: []string{
			"-v",
			"-h", conn.Hostname,
			"-p", strconv.Itoa(conn.Port),
			"-U", conn.Username,
			"-d", conn.Database,
			"--single-transaction",
			"-Fd",
			tempDir,
		},
		Env: pgEnv(conn),
	}
}

// failWithRollback drops the roles this run created and reports the
// original failure; rollback problems are appended as warnings, never
// substituted for the primary error.
func (s *Impl) failWithRollback(ctx context.Context, db pgconn.Client, created []string,
	cause error, sink func(line string)) models.PipelineResult {
	result := models.Failure(cause.Error())
	if len(created) == 0 {
		return result
	}
	sink("Rolling back created roles ...")
	if err := s.rolesSvc.Rollback(ctx, db, created); err != nil {
		warning := "role rollback incomplete: " + err.Error()
		result.Warnings = append(result.Warnings, warning)
		sink(warning)
	}
	return result
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
