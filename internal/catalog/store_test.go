package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	st, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestAddTaskAllocatesFolderAndPendingStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	fp, err := st.AddFingerprint(ctx, "ct-classifier", "https://inference.example/ct", "v1", "", true, true)
	require.NoError(t, err)

	task, err := st.AddTask(ctx, fp.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)
	require.NotEmpty(t, task.InputArchivePath)
	require.NotEmpty(t, task.OutputArchivePath)
	require.NotEqual(t, task.InputArchivePath, task.OutputArchivePath)

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.InputArchivePath, got.InputArchivePath)
}

func TestUpdateTaskInferenceServerUIDAtMostOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	fp, err := st.AddFingerprint(ctx, "ct-classifier", "https://inference.example/ct", "", "", true, true)
	require.NoError(t, err)
	task, err := st.AddTask(ctx, fp.ID)
	require.NoError(t, err)

	uid1 := "uid-1"
	require.NoError(t, st.UpdateTask(ctx, task.ID, TaskUpdate{InferenceServerUID: &uid1}))

	got, err := st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, uid1, got.InferenceServerUID)

	uid2 := "uid-2"
	require.NoError(t, st.UpdateTask(ctx, task.ID, TaskUpdate{InferenceServerUID: &uid2}))

	got, err = st.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, uid1, got.InferenceServerUID, "inference_server_uid must never be rewritten once set")
}

func TestListTasksByStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	fp, err := st.AddFingerprint(ctx, "ct-classifier", "https://inference.example/ct", "", "", true, true)
	require.NoError(t, err)

	task, err := st.AddTask(ctx, fp.ID)
	require.NoError(t, err)

	pending, err := st.ListTasksByStatus(ctx, StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, task.ID, pending[0].ID)

	posted := StatusPosted
	require.NoError(t, st.UpdateTask(ctx, task.ID, TaskUpdate{Status: &posted}))

	pending, err = st.ListTasksByStatus(ctx, StatusPending)
	require.NoError(t, err)
	require.Empty(t, pending)

	postedTasks, err := st.ListTasksByStatus(ctx, StatusPosted)
	require.NoError(t, err)
	require.Len(t, postedTasks, 1)
}

func TestDeleteFingerprintCascadesTriggersAndJoinRows(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	fp, err := st.AddFingerprint(ctx, "ct-classifier", "https://inference.example/ct", "", "", true, true)
	require.NoError(t, err)
	_, err = st.AddTrigger(ctx, fp.ID, "", "", "1.2.840.10008.5.1.4.1.1.2", "")
	require.NoError(t, err)
	_, err = st.AddDestination(ctx, "127.0.0.1", 11111, "DEST", fp.ID)
	require.NoError(t, err)

	require.NoError(t, st.DeleteFingerprint(ctx, fp.ID))

	_, err = st.GetFingerprint(ctx, fp.ID)
	require.ErrorIs(t, err, ErrNotFound)

	triggers, err := st.triggersFor(ctx, fp.ID)
	require.NoError(t, err)
	require.Empty(t, triggers)
}

func TestDeleteFingerprintRefusedWithOpenTasks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	fp, err := st.AddFingerprint(ctx, "ct-classifier", "https://inference.example/ct", "", "", true, true)
	require.NoError(t, err)
	_, err = st.AddTask(ctx, fp.ID)
	require.NoError(t, err)

	err = st.DeleteFingerprint(ctx, fp.ID)
	require.ErrorIs(t, err, ErrFingerprintInUse)
}

func TestListFingerprintsPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	first, err := st.AddFingerprint(ctx, "a", "https://a", "", "", true, true)
	require.NoError(t, err)
	second, err := st.AddFingerprint(ctx, "b", "https://b", "", "", true, true)
	require.NoError(t, err)

	fps, err := st.ListFingerprints(ctx)
	require.NoError(t, err)
	require.Len(t, fps, 2)
	require.Equal(t, first.ID, fps[0].ID)
	require.Equal(t, second.ID, fps[1].ID)
}
