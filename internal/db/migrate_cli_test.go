package db

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrateCommand_UpDownStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"status"}, path, &out))
	assert.Contains(t, out.String(), "Current version: 0")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"up"}, path, &out))
	assert.Contains(t, out.String(), "All migrations applied")
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand([]string{"down"}, path, &out))
	assert.Contains(t, out.String(), "Rolled back one migration")
	assert.Contains(t, out.String(), "Current version: 0")

	// the ledger still opens and migrates afterwards
	db, err := NewDB(path)
	require.NoError(t, err)
	defer db.Close()
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestRunMigrateCommand_Errors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	var out bytes.Buffer
	err := RunMigrateCommand(nil, path, &out)
	assert.ErrorIs(t, err, ErrUnknownMigrateAction)
	assert.Contains(t, out.String(), "Usage:")

	err = RunMigrateCommand([]string{"sideways"}, path, &out)
	assert.ErrorIs(t, err, ErrUnknownMigrateAction)

	err = RunMigrateCommand([]string{"up"}, "", &out)
	assert.Error(t, err)
}

func TestRunMigrateCommand_Help(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand([]string{"help"}, "", &out))
	assert.Contains(t, out.String(), "down")
}

func TestOpenDB_LeavesSchemaAlone(t *testing.T) {
	db, err := OpenDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer db.Close()

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='captures'`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
