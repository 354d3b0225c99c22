package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/lib/pq"

	"github.com/kevinwklawrence/drrr-like-chat-new-sub003/internal/storage"
)

func (d Dialect) driverName() (string, error) {
	switch d {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "postgres", nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", d)
	}
}

func (s *Storage) bind(pos int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", pos)
	}
	return "?"
}

// rebind rewrites ? placeholders for the active dialect
func (s *Storage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	pos := 0
	for _, r := range query {
		if r == '?' {
			pos++
			b.WriteString(s.bind(pos))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row-lock suffix for SELECTs inside a read-modify-write transaction.
// SQLite has no row locks; its single connection already serializes transactions.
func (s *Storage) forUpdate() string {
	if s.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func (s *Storage) forShare() string {
	if s.dialect == DialectPostgres {
		return " FOR SHARE"
	}
	return ""
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// wrap annotates a database error, marking connectivity failures as unavailable
func wrap(op string, err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", storage.ErrUnavailable, op, err)
	}
	if strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %s: %w", storage.ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
