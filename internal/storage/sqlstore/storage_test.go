package sqlstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage/storagetest"
)

func openSQLite(t *testing.T) *Storage {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "lounge.db")
	st, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	return st
}

func TestSQLiteStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		NewStorage: func() storage.Storage { return openSQLite(t) },
	})
}

// Runs against a real server when LOUNGE_TEST_POSTGRES_DSN points at a disposable database
func TestPostgresStorageSuite(t *testing.T) {
	dsn := os.Getenv("LOUNGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("LOUNGE_TEST_POSTGRES_DSN not set")
	}
	suite.Run(t, &storagetest.Suite{
		NewStorage: func() storage.Storage {
			cfg := DefaultConfig()
			cfg.Dialect = DialectPostgres
			cfg.DSN = dsn
			st, err := Open(context.Background(), cfg)
			require.NoError(t, err)
			for _, table := range []string{"mentions", "messages", "room_members", "rooms", "bans", "knocks", "spawns", "credentials", "users"} {
				_, err := st.db.Exec("DELETE FROM " + table)
				require.NoError(t, err)
			}
			return st
		},
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "lounge.db")

	first, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer second.Close()

	var count int
	require.NoError(t, second.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	require.Equal(t, 1, count)
}

func TestRebind(t *testing.T) {
	pg := &Storage{dialect: DialectPostgres}
	require.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Storage{dialect: DialectSQLite}
	require.Equal(t, "SELECT a FROM t WHERE x = ?", lite.rebind("SELECT a FROM t WHERE x = ?"))
}

func TestOpenRejectsUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Config{Dialect: "oracle", DSN: "x"})
	require.Error(t, err)
}

func TestClosedDatabaseIsUnavailable(t *testing.T) {
	st := openSQLite(t)
	require.NoError(t, st.Close())

	_, err := st.GetRoom(context.Background(), "r1")
	require.ErrorIs(t, err, storage.ErrUnavailable)
}
