package scp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/caio-sobreiro/dicomnet/dicom"
	"github.com/caio-sobreiro/dicomnet/interfaces"
	"github.com/caio-sobreiro/dicomnet/types"
	"github.com/stretchr/testify/require"
)

func newTestReceiver(t *testing.T) *Receiver {
	t.Helper()
	return NewReceiver(t.TempDir(), NewHandoff(4))
}

func sampleDataset() *dicom.Dataset {
	ds := dicom.NewDataset()
	ds.AddElement(studyInstanceUIDTag, dicom.VR_UI, "1.2.3.4.1")
	ds.AddElement(seriesInstanceUIDTag, dicom.VR_UI, "1.2.3.4.1.1")
	ds.AddElement(sopClassUIDTag, dicom.VR_UI, string(types.CTImageStorage))
	ds.AddElement(sopInstanceUIDTag, dicom.VR_UI, "1.2.3.4.1.1.1")
	ds.AddElement(studyDescriptionTag, dicom.VR_LO, "Chest CT")
	ds.AddElement(seriesDescriptionTag, dicom.VR_LO, "Axial")
	return ds
}

func cStoreRequest(ds *dicom.Dataset) (*types.Message, interfaces.MessageContext) {
	msg := &types.Message{
		CommandField:        types.CStoreRQ,
		MessageID:           1,
		AffectedSOPClassUID: string(types.CTImageStorage),
		CommandDataSetType:  0x0001,
	}
	meta := interfaces.MessageContext{
		AssociationID:     "assoc-1",
		TransferSyntaxUID: dicom.TransferSyntaxExplicitVRLittleEndian,
		Dataset:           ds,
	}
	return msg, meta
}

func TestHandleDIMSECStorePersistsInstanceAndGroupsBySeries(t *testing.T) {
	r := newTestReceiver(t)
	msg, meta := cStoreRequest(sampleDataset())

	resp, _, err := r.HandleDIMSE(context.Background(), msg, nil, meta)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, resp.Status)

	r.mu.Lock()
	group, ok := r.active["assoc-1"]
	r.mu.Unlock()
	require.True(t, ok)
	require.Len(t, group.Series, 1)

	series, ok := group.Series["1.2.3.4.1.1"]
	require.True(t, ok)
	require.Equal(t, "Chest CT", series.StudyDescription)
	require.Equal(t, "Axial", series.SeriesDescription)

	entries, err := os.ReadDir(series.Path)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "1.2.3.4.1.1.1.dcm", entries[0].Name())
}

func TestHandleDIMSECStoreDefaultsAbsentTagsToNone(t *testing.T) {
	r := newTestReceiver(t)
	ds := dicom.NewDataset()
	ds.AddElement(sopClassUIDTag, dicom.VR_UI, string(types.CTImageStorage))
	ds.AddElement(sopInstanceUIDTag, dicom.VR_UI, "1.2.3.4.2.1")
	// SeriesInstanceUID, StudyDescription, SeriesDescription intentionally absent.

	msg, meta := cStoreRequest(ds)
	resp, _, err := r.HandleDIMSE(context.Background(), msg, nil, meta)
	require.NoError(t, err)
	require.Equal(t, types.StatusSuccess, resp.Status)

	r.mu.Lock()
	group := r.active["assoc-1"]
	r.mu.Unlock()

	series, ok := group.Series[absentTag]
	require.True(t, ok)
	require.Equal(t, absentTag, series.StudyDescription)
	require.Equal(t, absentTag, series.SeriesDescription)
}

func TestHandleDIMSECEchoRespondsSuccess(t *testing.T) {
	r := newTestReceiver(t)
	msg := &types.Message{
		CommandField:        types.CEchoRQ,
		MessageID:           1,
		AffectedSOPClassUID: "1.2.840.10008.1.1",
	}
	resp, ds, err := r.HandleDIMSE(context.Background(), msg, nil, interfaces.MessageContext{})
	require.NoError(t, err)
	require.Nil(t, ds)
	require.Equal(t, types.StatusSuccess, resp.Status)
	require.Equal(t, types.CEchoRSP, resp.CommandField)
}

func TestHandleAssociationReleasedPublishesGroupAndClearsState(t *testing.T) {
	r := newTestReceiver(t)
	msg, meta := cStoreRequest(sampleDataset())
	_, _, err := r.HandleDIMSE(context.Background(), msg, nil, meta)
	require.NoError(t, err)

	r.HandleAssociationReleased(context.Background(), "assoc-1")

	r.mu.Lock()
	_, stillActive := r.active["assoc-1"]
	r.mu.Unlock()
	require.False(t, stillActive)

	groups := r.handoff.Receive(context.Background(), 1)
	require.Len(t, groups, 1)
	require.Equal(t, "assoc-1", groups[0].AssociationID)
	require.Len(t, groups[0].Series, 1)
}

func TestHandleAssociationReleasedIgnoresUnknownAssociation(t *testing.T) {
	r := newTestReceiver(t)
	r.HandleAssociationReleased(context.Background(), "never-seen")

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	groups := r.handoff.Receive(ctx, 1)
	require.Empty(t, groups)
}

func TestSeriesDirsReflectsAllPersistedSeries(t *testing.T) {
	root := t.TempDir()
	group := &StudyGroup{
		AssociationID: "a",
		Root:          root,
		Series: map[string]*SeriesInstance{
			"s1": {Path: filepath.Join(root, "s1")},
			"s2": {Path: filepath.Join(root, "s2")},
		},
	}
	dirs := group.SeriesDirs()
	require.Len(t, dirs, 2)
	require.Contains(t, dirs, filepath.Join(root, "s1"))
	require.Contains(t, dirs, filepath.Join(root, "s2"))
}
