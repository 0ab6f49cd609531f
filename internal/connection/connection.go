// Package connection turns database and Redis URLs into open clients and
// picks the dialect that speaks to the database.
package connection

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"

	"github.com/lockplane/changeplane/database"
	"github.com/lockplane/changeplane/database/postgres"
	"github.com/lockplane/changeplane/database/sqlite"
)

// SQL driver names registered by the imports above
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverSQLite   = "sqlite"
	DriverLibSQL   = "libsql"
)

const pingTimeout = 5 * time.Second

// Target is a resolved connection: the SQL driver, the DSN handed to it and
// the dialect of the database behind it
type Target struct {
	Driver  string
	DSN     string
	Dialect database.Dialect
}

// DetectDialect infers the dialect name from a connection string
func DetectDialect(connStr string) string {
	lower := strings.ToLower(strings.TrimSpace(connStr))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"), strings.HasPrefix(lower, "pgx://"):
		return database.DialectPostgres
	case strings.HasPrefix(lower, "libsql://"):
		return database.DialectLibSQL
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"), lower == ":memory:",
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return database.DialectSQLite
	default:
		return ""
	}
}

// DialectByName returns the dialect for a name such as "postgres" or "sqlite3"
func DialectByName(name string) (database.Dialect, error) {
	switch database.NormalizeDialectName(name) {
	case database.DialectPostgres:
		return postgres.NewDialect(), nil
	case database.DialectSQLite:
		return sqlite.NewDialect(), nil
	case database.DialectLibSQL:
		return sqlite.NewLibSQLDialect(), nil
	default:
		return nil, fmt.Errorf("unsupported dialect %q", name)
	}
}

// Resolve maps a connection string to a driver, DSN and dialect. dialect
// overrides detection; driver picks "pgx" over lib/pq for PostgreSQL.
func Resolve(connStr, dialect, driver string) (Target, error) {
	if strings.TrimSpace(connStr) == "" {
		return Target{}, fmt.Errorf("no database URL configured")
	}
	name := database.NormalizeDialectName(dialect)
	if name == "" {
		name = DetectDialect(connStr)
	}

	switch name {
	case database.DialectPostgres:
		target := Target{Driver: DriverPostgres, DSN: connStr, Dialect: postgres.NewDialect()}
		if rest, ok := cutPrefixFold(connStr, "pgx://"); ok {
			target.Driver = DriverPgx
			target.DSN = "postgres://" + rest
		}
		switch strings.ToLower(driver) {
		case "", DriverPostgres, "pq":
		case DriverPgx:
			target.Driver = DriverPgx
		default:
			return Target{}, fmt.Errorf("unsupported postgres driver %q", driver)
		}
		return target, nil
	case database.DialectLibSQL:
		return Target{Driver: DriverLibSQL, DSN: connStr, Dialect: sqlite.NewLibSQLDialect()}, nil
	case database.DialectSQLite:
		dsn := connStr
		if rest, ok := cutPrefixFold(connStr, "sqlite://"); ok {
			dsn = rest
		}
		return Target{Driver: DriverSQLite, DSN: dsn, Dialect: sqlite.NewDialect()}, nil
	default:
		return Target{}, fmt.Errorf("cannot determine the database type of %q; set dialect in %s", Redact(connStr), "changeplane.toml")
	}
}

// Open resolves connStr, opens the database and runs a ping to test it
func Open(ctx context.Context, connStr, dialect, driver string) (*sql.DB, database.Dialect, error) {
	target, err := Resolve(connStr, dialect, driver)
	if err != nil {
		return nil, nil, err
	}
	db, err := sql.Open(target.Driver, target.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open connection: %w", err)
	}
	if target.Driver == DriverSQLite {
		// one writer; introspection and the lock share the connection
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, target.Dialect, nil
}

// OpenRedis connects to the Redis server at url ("redis://host:port/db")
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

// Redact hides the password and query string of a URL for display
func Redact(connStr string) string {
	out := connStr
	if i := strings.Index(out, "?"); i >= 0 {
		out = out[:i]
	}
	scheme := strings.Index(out, "://")
	at := strings.LastIndex(out, "@")
	if scheme < 0 || at < scheme {
		return out
	}
	userinfo := out[scheme+3 : at]
	if user, _, ok := strings.Cut(userinfo, ":"); ok {
		return out[:scheme+3] + user + ":***" + out[at:]
	}
	return out
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
