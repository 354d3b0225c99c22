package sqlstore

import "time"

// Dialect selects the SQL flavour and driver
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config holds SQL connection settings
type Config struct {
	Dialect Dialect

	// DSN is a file path for sqlite or a connection URL for postgres
	DSN string

	// Pool settings. SQLite always runs with a single connection so writers are serialized.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible defaults for the SQL store
func DefaultConfig() Config {
	return Config{
		Dialect:         DialectSQLite,
		DSN:             "lounge.db",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}
