//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/pgrekey/pgrekey/internal/config"
)

// The suite needs two databases on the same server, e.g.:
//
//	createdb pgrekey_src && createdb pgrekey_tgt
//	PGREKEY_TEST_PG_HOST=localhost go test -tags integration ./test/integration/

func sourceEndpoint(t *testing.T) config.Endpoint {
	t.Helper()
	return endpoint(t, envOrDefault("PGREKEY_TEST_PG_SOURCE_DB", "pgrekey_src"))
}

func targetEndpoint(t *testing.T) config.Endpoint {
	t.Helper()
	return endpoint(t, envOrDefault("PGREKEY_TEST_PG_TARGET_DB", "pgrekey_tgt"))
}

func endpoint(t *testing.T, database string) config.Endpoint {
	t.Helper()
	var port int
	fmt.Sscanf(envOrDefault("PGREKEY_TEST_PG_PORT", "5432"), "%d", &port)
	return config.Endpoint{
		Host:     envOrDefault("PGREKEY_TEST_PG_HOST", "localhost"),
		Port:     port,
		Database: database,
		Username: envOrDefault("PGREKEY_TEST_PG_USER", "postgres"),
		Password: envOrDefault("PGREKEY_TEST_PG_PASSWORD", "postgres"),
	}
}

func skipIfNoPostgres(t *testing.T) {
	t.Helper()
	if os.Getenv("PGREKEY_TEST_PG_HOST") == "" && os.Getenv("PGREKEY_TEST_PG_PORT") == "" {
		t.Skip("skipping: PGREKEY_TEST_PG_HOST/PORT not set")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// adminConn opens a direct connection for fixture setup and assertions,
// closed via t.Cleanup.
func adminConn(t *testing.T, ep config.Endpoint) *pgx.Conn {
	t.Helper()
	conn, err := pgx.Connect(context.Background(), ep.DSN())
	if err != nil {
		t.Fatalf("connecting to %s: %v", ep.Database, err)
	}
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}

func mustExec(t *testing.T, conn *pgx.Conn, sql string, args ...any) {
	t.Helper()
	if _, err := conn.Exec(context.Background(), sql, args...); err != nil {
		t.Fatalf("exec %q: %v", sql, err)
	}
}

func countRows(t *testing.T, conn *pgx.Conn, table string) int64 {
	t.Helper()
	var n int64
	if err := conn.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		t.Fatalf("counting %s: %v", table, err)
	}
	return n
}

// resetFixtures drops the suite's tables on one side, child first.
func resetFixtures(t *testing.T, conn *pgx.Conn) {
	t.Helper()
	for _, stmt := range []string{
		"DROP TABLE IF EXISTS addresses",
		"DROP TABLE IF EXISTS users",
		"DROP TABLE IF EXISTS tags",
	} {
		mustExec(t, conn, stmt)
	}
}
