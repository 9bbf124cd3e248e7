package pgconn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wiltondb-tools/bbfbackup/internal/models"
)

func baseConn() models.ConnConfig {
	return models.ConnConfig{
		Hostname: "localhost",
		Port:     5432,
		Username: "wilton",
		Password: "secret",
		Database: "wilton",
	}
}

func TestConnString(t *testing.T) {
	got := connString(baseConn())
	assert.Equal(t, "host='localhost' port=5432 user='wilton' dbname='wilton' sslmode=disable password='secret'", got)
}

func TestConnStringSSLModes(t *testing.T) {
	cc := baseConn()

	cc.EnableTLS = true
	assert.Contains(t, connString(cc), "sslmode=verify-full")

	cc.AcceptInvalidTLS = true
	assert.Contains(t, connString(cc), "sslmode=require")

	cc.EnableTLS = false
	assert.Contains(t, connString(cc), "sslmode=disable")
}

func TestConnStringPasswordFile(t *testing.T) {
	cc := baseConn()
	cc.UsePasswordFile = true

	// With the password file in play the password never reaches the
	// connection string; libpq reads ~/.pgpass itself.
	assert.NotContains(t, connString(cc), "password=")
}

func TestKvQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, kvQuote("plain"))
	assert.Equal(t, `'pa\'ss'`, kvQuote("pa'ss"))
	assert.Equal(t, `'pa\\ss'`, kvQuote(`pa\ss`))
}
