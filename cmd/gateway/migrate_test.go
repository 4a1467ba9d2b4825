package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateCmdCreatesSchema(t *testing.T) {
	dir := t.TempDir()

	cmd := newMigrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--db-basedir", dir})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "schema up to date")

	_, err := os.Stat(filepath.Join(dir, "db", "database.db"))
	require.NoError(t, err)
}
