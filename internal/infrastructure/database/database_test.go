package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_CreatesNestedDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "provisioner.db")

	db, err := Open(context.Background(), Config{Path: dbPath, WALMode: true, BusyTimeout: 5})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // test cleanup

	_, err = os.Stat(filepath.Dir(dbPath))
	assert.NoError(t, err)
	assert.Equal(t, dbPath, db.Path())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.Error(t, err)
}

func TestOpen_Memory(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, Config{Path: MemoryPath, WALMode: true})
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck // test cleanup

	_, err = db.ExecContext(ctx, "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO kv (k, v) VALUES ('a', 'b')")
	require.NoError(t, err)

	var v string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT v FROM kv WHERE k = 'a'").Scan(&v))
	assert.Equal(t, "b", v)
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)
	assert.NoError(t, db.HealthCheck(context.Background()))

	require.NoError(t, db.Close())
	assert.Error(t, db.HealthCheck(context.Background()))
}

func TestClose_NilDB(t *testing.T) {
	db := &DB{}
	assert.NoError(t, db.Close())
}

func TestExecContext_InvalidSQL(t *testing.T) {
	db := openTestDB(t)
	_, err := db.ExecContext(context.Background(), "NOT VALID SQL")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "executing query")
}

func TestBeginTx(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, "CREATE TABLE tx_test (value TEXT)")
	require.NoError(t, err)

	t.Run("commit persists", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES ('committed')")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		var count int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_test WHERE value = 'committed'").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("rollback discards", func(t *testing.T) {
		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = tx.ExecContext(ctx, "INSERT INTO tx_test (value) VALUES ('rolled_back')")
		require.NoError(t, err)
		require.NoError(t, tx.Rollback())

		var count int
		require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tx_test WHERE value = 'rolled_back'").Scan(&count))
		assert.Zero(t, count)
	})
}

func TestStats_SingleConnection(t *testing.T) {
	db := openTestDB(t)
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}
