package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	d, err := dialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, goose.DialectPostgres, d)

	d, err = dialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, goose.DialectSQLite3, d)

	_, err = dialectFor("mysql")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestMigrateRejectsUnknownDriver(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(raw, "mysql")
	defer db.Close()

	require.Error(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	db, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	provider, err := newProvider(db)
	require.NoError(t, err)
	sources := provider.ListSources()
	require.NotEmpty(t, sources)
	assert.Equal(t, int64(1), sources[0].Version)
}

func TestNewSQLiteInMemoryMigrates(t *testing.T) {
	db, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	version, err := SchemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	var tables int
	require.NoError(t, db.Get(&tables, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('classes', 'students', 'score_ledgers', 'ledger_entries')`))
	assert.Equal(t, 4, tables)
}
