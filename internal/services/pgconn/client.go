// Package pgconn wraps the server connection used for role provisioning
// and database-name enumeration.
package pgconn

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/wiltondb-tools/bbfbackup/internal/errdefs"
	"github.com/wiltondb-tools/bbfbackup/internal/models"
)

// Client is the narrow database surface the pipelines consume: role
// existence checks, role and grant DDL, and database-name enumeration.
type Client interface {
	Exec(ctx context.Context, sql string, args ...any) error
	SelectExists(ctx context.Context, sql string, args ...any) (bool, error)
	SelectStrings(ctx context.Context, sql string) ([]string, error)
	Close(ctx context.Context) error
}

// Connect opens the connection described by cc.
func Connect(ctx context.Context, cc models.ConnConfig, logger zerolog.Logger) (Client, error) {
	cfg, err := pgx.ParseConfig(connString(cc))
	if err != nil {
		return nil, &errdefs.DBError{Op: "configure", Err: err}
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, &errdefs.DBError{Op: "connect", Err: err}
	}
	logger.Debug().Str("host", cc.Hostname).Int("port", cc.Port).Str("database", cc.Database).Msg("connected")
	return &pgxClient{conn: conn}, nil
}

func connString(cc models.ConnConfig) string {
	// libpq semantics: "require" encrypts without verifying the server
	// certificate, which is what the accept-invalid flag asks for.
	sslmode := "disable"
	if cc.EnableTLS {
		if cc.AcceptInvalidTLS {
			sslmode = "require"
		} else {
			sslmode = "verify-full"
		}
	}
	parts := []string{
		"host=" + kvQuote(cc.Hostname),
		fmt.Sprintf("port=%d", cc.Port),
		"user=" + kvQuote(cc.Username),
		"dbname=" + kvQuote(cc.Database),
		"sslmode=" + sslmode,
	}
	if !cc.UsePasswordFile && cc.Password != "" {
		parts = append(parts, "password="+kvQuote(cc.Password))
	}
	return strings.Join(parts, " ")
}

func kvQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

type pgxClient struct {
	conn *pgx.Conn
}

func (c *pgxClient) Exec(ctx context.Context, sql string, args ...any) error {
	if _, err := c.conn.Exec(ctx, sql, args...); err != nil {
		return &errdefs.DBError{Op: "execute", Err: err}
	}
	return nil
}

func (c *pgxClient) SelectExists(ctx context.Context, sql string, args ...any) (bool, error) {
	var exists bool
	if err := c.conn.QueryRow(ctx, sql, args...).Scan(&exists); err != nil {
		return false, &errdefs.DBError{Op: "query", Err: err}
	}
	return exists, nil
}

func (c *pgxClient) SelectStrings(ctx context.Context, sql string) ([]string, error) {
	rows, err := c.conn.Query(ctx, sql)
	if err != nil {
		return nil, &errdefs.DBError{Op: "query", Err: err}
	}
	defer rows.Close()

	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, &errdefs.DBError{Op: "scan", Err: err}
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &errdefs.DBError{Op: "query", Err: err}
	}
	return res, nil
}

func (c *pgxClient) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// ListDatabases returns the logical database names registered on the
// server.
func ListDatabases(ctx context.Context, c Client) ([]string, error) {
	return c.SelectStrings(ctx, "select name from sys.babelfish_sysdatabases")
}
