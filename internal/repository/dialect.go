package repository

import (
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrLedgerLocked reports that another writer holds the student's ledger row.
var ErrLedgerLocked = errors.New("ledger row locked by another writer")

const (
	pqLockNotAvailable     = "55P03"
	pqSerializationFailure = "40001"
)

// rowLock returns the row locking suffix for SELECTs inside a write
// transaction. SQLite serialises writers on the database file instead.
func rowLock(db *sqlx.DB) string {
	if db.DriverName() == "postgres" {
		return " FOR UPDATE NOWAIT"
	}
	return ""
}

// isLockConflict reports driver errors caused by a concurrent writer.
func isLockConflict(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		return code == pqLockNotAvailable || code == pqSerializationFailure
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
	}
	return strings.Contains(err.Error(), "database is locked")
}

func pageBounds(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return size, (page - 1) * size
}
