// Package roles provisions the three per-database ownership roles a
// restored database expects, and rolls back exactly the roles it
// created when the restore fails afterwards.
package roles

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wiltondb-tools/bbfbackup/internal/services/pgconn"
)

// Suffixes of the ownership roles, in provisioning order.
var Suffixes = []string{"db_owner", "dbo", "guest"}

// Fixed non-superuser attribute set applied to every created role.
const roleAttrs = "NOSUPERUSER INHERIT NOCREATEROLE NOCREATEDB NOLOGIN NOREPLICATION NOBYPASSRLS"

// Service defines the interface for ownership-role provisioning.
type Service interface {
	Provision(ctx context.Context, db pgconn.Client, dbName string) ([]string, error)
	Rollback(ctx context.Context, db pgconn.Client, created []string) error
}

// Impl implements the roles Service interface.
type Impl struct {
	logger zerolog.Logger
}

// New creates a new roles service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{logger: logger}
}

// EnsureRole creates the role "{dbName}_{suffix}" unless it already
// exists. It returns the role name only when this call created it, so
// a later rollback can target precisely the roles this run added.
func (s *Impl) EnsureRole(ctx context.Context, db pgconn.Client, dbName, suffix string) (string, error) {
	role := fmt.Sprintf("%s_%s", dbName, suffix)
	exists, err := db.SelectExists(ctx,
		"select exists(select 1 from pg_catalog.pg_roles where rolname = $1)", role)
	if err != nil {
		return "", err
	}
	if exists {
		s.logger.Debug().Str("role", role).Msg("role already exists")
		return "", nil
	}
	if err := db.Exec(ctx, "CREATE ROLE "+role); err != nil {
		return "", err
	}
	if err := db.Exec(ctx, fmt.Sprintf("ALTER ROLE %s WITH %s", role, roleAttrs)); err != nil {
		return "", err
	}
	s.logger.Info().Str("role", role).Msg("role created")
	return role, nil
}

// Provision ensures the three ownership roles exist and wires the fixed
// grants between them and sysadmin. The returned slice holds the roles
// actually created by this call — also on error, so the caller can roll
// back a partial provisioning.
func (s *Impl) Provision(ctx context.Context, db pgconn.Client, dbName string) ([]string, error) {
	created := make([]string, 0, len(Suffixes))
	for _, suffix := range Suffixes {
		role, err := s.EnsureRole(ctx, db, dbName, suffix)
		if err != nil {
			return created, err
		}
		if role != "" {
			created = append(created, role)
		}
	}

	grants := []string{
		fmt.Sprintf("GRANT %s_db_owner TO %s_dbo GRANTED BY sysadmin", dbName, dbName),
		fmt.Sprintf("GRANT %s_dbo TO sysadmin GRANTED BY sysadmin", dbName),
		fmt.Sprintf("GRANT %s_guest TO sysadmin GRANTED BY sysadmin", dbName),
		fmt.Sprintf("GRANT %s_guest TO %s_db_owner GRANTED BY sysadmin", dbName, dbName),
	}
	for _, grant := range grants {
		if err := db.Exec(ctx, grant); err != nil {
			return created, err
		}
	}
	return created, nil
}

// Rollback drops the given roles best-effort: a failure on one role
// does not stop the others from being dropped, and the aggregate error
// is returned for reporting without masking whatever failure triggered
// the rollback.
func (s *Impl) Rollback(ctx context.Context, db pgconn.Client, created []string) error {
	var errs []error
	for _, role := range created {
		if err := db.Exec(ctx, "DROP ROLE "+role); err != nil {
			s.logger.Warn().Err(err).Str("role", role).Msg("role rollback failed")
			errs = append(errs, fmt.Errorf("drop role %s: %w", role, err))
			continue
		}
		s.logger.Info().Str("role", role).Msg("role dropped")
	}
	return errors.Join(errs...)
}
