package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathiser/inference-server-dicom-node/internal/catalog"
)

func TestVerifyDBCmdReportsOKOnHealthyDatabase(t *testing.T) {
	store, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	dbPath := store.DBPath()
	require.NoError(t, store.Close())

	cmd := newVerifyDBCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{dbPath})

	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "ok")
}

func TestVerifyDBCmdRejectsInvalidMode(t *testing.T) {
	cmd := newVerifyDBCmd()
	cmd.SetArgs([]string{"--mode", "bogus", filepath.Join(t.TempDir(), "database.db")})

	err := cmd.Execute()
	require.Error(t, err)
}
