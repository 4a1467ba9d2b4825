package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathiser/inference-server-dicom-node/internal/catalog"
)

const sampleYAML = `
fingerprints:
  - human_readable_id: ct-classifier
    inference_server_url: https://inference.example/ct
    version: v1
    description: chest CT classifier
    delete_locally: true
    delete_remotely: true
    triggers:
      - study_description_pattern: "chest"
        sop_class_uid_exact: "1.2.840.10008.5.1.4.1.1.2"
    destinations:
      - host: 127.0.0.1
        port: 11112
        ae_title: DEST
`

func TestApplySeedsFingerprintTriggersAndDestinations(t *testing.T) {
	ctx := context.Background()
	st, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	require.NoError(t, Apply(ctx, st, path))

	fps, err := st.ListFingerprints(ctx)
	require.NoError(t, err)
	require.Len(t, fps, 1)
	require.Equal(t, "ct-classifier", fps[0].HumanReadableID)
	require.Len(t, fps[0].Triggers, 1)
	require.Equal(t, "chest", fps[0].Triggers[0].StudyDescriptionPattern)
	require.Len(t, fps[0].Destinations, 1)
	require.Equal(t, "DEST", fps[0].Destinations[0].AETitle)
}

func TestApplyErrorsOnMissingFile(t *testing.T) {
	ctx := context.Background()
	st, err := catalog.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	err = Apply(ctx, st, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
