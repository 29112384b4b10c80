package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS kv_value ON kv (value);
`

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")

	db, err := Config{File: path}.Open(testSchema)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO kv (key, value) VALUES ('a', '1')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// reopening applies the schema again without clobbering data
	db, err = Config{File: path}.Open(testSchema)
	require.NoError(t, err)
	defer db.Close()

	var value string
	require.NoError(t, db.QueryRow(`SELECT value FROM kv WHERE key = 'a'`).Scan(&value))
	require.Equal(t, "1", value)

	var mode string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&mode))
	require.Equal(t, "wal", mode)
}

func TestOpenWithoutTarget(t *testing.T) {
	_, err := Config{}.Open(testSchema)
	require.Error(t, err)
}
