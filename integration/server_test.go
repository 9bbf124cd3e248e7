//go:build integration

package integration

import (
	"context"
	"io"
	"os"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wiltondb-tools/bbfbackup/internal/models"
	"github.com/wiltondb-tools/bbfbackup/internal/services/pgconn"
	"github.com/wiltondb-tools/bbfbackup/internal/services/roles"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// getConnConfig reads the test server coordinates from TEST_WILTON_*
// environment variables, skipping when no server is configured.
func getConnConfig(t *testing.T) models.ConnConfig {
	t.Helper()

	host := os.Getenv("TEST_WILTON_HOST")
	if host == "" {
		t.Skip("TEST_WILTON_HOST not set")
	}

	portStr := os.Getenv("TEST_WILTON_PORT")
	if portStr == "" {
		portStr = "5432"
	}
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	user := os.Getenv("TEST_WILTON_USER")
	if user == "" {
		user = "wilton"
	}

	database := os.Getenv("TEST_WILTON_DB")
	if database == "" {
		database = "wilton"
	}

	return models.ConnConfig{
		Hostname: host,
		Port:     port,
		Username: user,
		Password: os.Getenv("TEST_WILTON_PASSWORD"),
		Database: database,
	}
}

func TestConnectAndListDatabases_Integration(t *testing.T) {
	cfg := getConnConfig(t)
	ctx := context.Background()

	db, err := pgconn.Connect(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer db.Close(ctx)

	names, err := pgconn.ListDatabases(ctx, db)
	require.NoError(t, err)

	// A Babelfish server always carries its built-in databases.
	assert.Contains(t, names, "master")
}

func TestProvisionAndRollback_Integration(t *testing.T) {
	cfg := getConnConfig(t)
	ctx := context.Background()

	db, err := pgconn.Connect(ctx, cfg, testLogger())
	require.NoError(t, err)
	defer db.Close(ctx)

	svc := roles.New(testLogger())
	dbName := "bbfbackup_inttest"

	created, err := svc.Provision(ctx, db, dbName)
	if err != nil {
		_ = svc.Rollback(ctx, db, created)
		t.Fatalf("provision failed: %v", err)
	}
	assert.Len(t, created, len(roles.Suffixes))

	for _, suffix := range roles.Suffixes {
		exists, err := db.SelectExists(ctx,
			"select exists(select 1 from pg_catalog.pg_roles where rolname = $1)",
			dbName+"_"+suffix)
		require.NoError(t, err)
		assert.True(t, exists, suffix)
	}

	// A second provisioning run creates nothing new.
	again, err := svc.Provision(ctx, db, dbName)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, svc.Rollback(ctx, db, created))
	for _, suffix := range roles.Suffixes {
		exists, err := db.SelectExists(ctx,
			"select exists(select 1 from pg_catalog.pg_roles where rolname = $1)",
			dbName+"_"+suffix)
		require.NoError(t, err)
		assert.False(t, exists, suffix)
	}
}

func TestConnect_InvalidHost_Integration(t *testing.T) {
	if os.Getenv("TEST_WILTON_HOST") == "" {
		t.Skip("TEST_WILTON_HOST not set")
	}

	cfg := models.ConnConfig{
		Hostname: "invalid-host-that-does-not-exist",
		Port:     5432,
		Username: "wilton",
		Database: "wilton",
	}
	_, err := pgconn.Connect(context.Background(), cfg, testLogger())
	assert.Error(t, err)
}
