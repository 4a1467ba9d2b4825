package catalog

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mathiser/inference-server-dicom-node/internal/metrics"
	"github.com/mathiser/inference-server-dicom-node/internal/persistence/sqlite"
)

// Store is the transactional catalog backed by SQLite (spec.md §4.2).
// All writes execute inside a transaction that fully commits or fully rolls
// back; readers observe committed state only. Store is safe for concurrent
// use from multiple goroutines.
type Store struct {
	db      *sql.DB
	baseDir string
}

// Open opens (creating if necessary) the catalog database at
// <baseDir>/db/database.db, per spec.md §6's persistent state layout, and
// applies the schema.
func Open(baseDir string) (*Store, error) {
	dbDir := filepath.Join(baseDir, "db")
	if err := ensureDir(dbDir); err != nil {
		return nil, fmt.Errorf("catalog: create db dir: %w", err)
	}
	dbPath := filepath.Join(dbDir, "database.db")

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return &Store{db: db, baseDir: baseDir}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DBPath returns the path of the catalog's SQLite file, for integrity-check
// tooling (sqlite.VerifyIntegrity) without widening the Store's own API surface.
func (s *Store) DBPath() string {
	return filepath.Join(s.baseDir, "db", "database.db")
}

func newID() string {
	return uuid.New().String()
}

// newTaskToken generates the cryptographically random 8-byte folder name
// mandated by spec.md §4.2's add_task contract.
func newTaskToken() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("catalog: generate task token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AddFingerprint creates a Fingerprint row. The schema defaults
// delete_locally/delete_remotely to true, but AddFingerprint always writes
// the deleteLocally/deleteRemotely values it is given; it applies no default.
func (s *Store) AddFingerprint(ctx context.Context, humanReadableID, inferenceServerURL, version, description string, deleteLocally, deleteRemotely bool) (Fingerprint, error) {
	fp := Fingerprint{
		ID:                 newID(),
		HumanReadableID:    humanReadableID,
		InferenceServerURL: inferenceServerURL,
		Version:            version,
		Description:        description,
		DeleteLocally:      deleteLocally,
		DeleteRemotely:     deleteRemotely,
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fingerprints (id, human_readable_id, inference_server_url, version, description, delete_locally, delete_remotely)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fp.ID, fp.HumanReadableID, fp.InferenceServerURL, fp.Version, fp.Description, boolToInt(fp.DeleteLocally), boolToInt(fp.DeleteRemotely))
		return err
	})
	if err != nil {
		metrics.CatalogErrorsTotal.WithLabelValues("add_fingerprint").Inc()
		return Fingerprint{}, fmt.Errorf("catalog: add fingerprint: %w", err)
	}
	return fp, nil
}

// AddTrigger creates a Trigger row belonging to fingerprintID (spec.md §4.2).
// Absent pattern fields are passed as empty strings; the Matcher treats an
// empty pattern as "this clause passes" (spec.md §4.3).
func (s *Store) AddTrigger(ctx context.Context, fingerprintID string, studyPattern, seriesPattern, sopClassExact, excludePattern string) (Trigger, error) {
	tr := Trigger{
		ID:                       newID(),
		FingerprintID:            fingerprintID,
		StudyDescriptionPattern:  studyPattern,
		SeriesDescriptionPattern: seriesPattern,
		SOPClassUIDExact:         sopClassExact,
		ExcludePattern:           excludePattern,
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO triggers (id, fingerprint_id, study_description_pattern, series_description_pattern, sop_class_uid_exact, exclude_pattern)
			VALUES (?, ?, ?, ?, ?, ?)`,
			tr.ID, tr.FingerprintID, tr.StudyDescriptionPattern, tr.SeriesDescriptionPattern, tr.SOPClassUIDExact, tr.ExcludePattern)
		return err
	})
	if err != nil {
		metrics.CatalogErrorsTotal.WithLabelValues("add_trigger").Inc()
		return Trigger{}, fmt.Errorf("catalog: add trigger: %w", err)
	}
	return tr, nil
}

// AddDestination creates a Destination row, optionally joining it to
// fingerprintID in the same transaction (spec.md §4.2).
func (s *Store) AddDestination(ctx context.Context, host string, port int, aeTitle string, fingerprintID string) (Destination, error) {
	dest := Destination{ID: newID(), Host: host, Port: port, AETitle: aeTitle}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO destinations (id, host, port, ae_title) VALUES (?, ?, ?, ?)`,
			dest.ID, dest.Host, dest.Port, dest.AETitle); err != nil {
			return err
		}
		if fingerprintID != "" {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO fingerprint_destinations (fingerprint_id, destination_id) VALUES (?, ?)`,
				fingerprintID, dest.ID)
			return err
		}
		return nil
	})
	if err != nil {
		metrics.CatalogErrorsTotal.WithLabelValues("add_destination").Inc()
		return Destination{}, fmt.Errorf("catalog: add destination: %w", err)
	}
	return dest, nil
}

// AddTask allocates a fresh storage folder under <base_dir>/data/<token>/ and
// creates a PENDING Task referencing fingerprintID (spec.md §4.2).
func (s *Store) AddTask(ctx context.Context, fingerprintID string) (Task, error) {
	token, err := newTaskToken()
	if err != nil {
		return Task{}, err
	}
	folder := filepath.Join(s.baseDir, "data", token)
	if err := ensureDir(folder); err != nil {
		return Task{}, fmt.Errorf("catalog: create task folder: %w", err)
	}

	task := Task{
		ID:                token,
		FingerprintID:     fingerprintID,
		InputArchivePath:  filepath.Join(folder, "input.tar"),
		OutputArchivePath: filepath.Join(folder, "output.tar"),
		Status:            StatusPending,
		CreatedAt:         time.Now().UTC(),
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (id, fingerprint_id, input_archive_path, output_archive_path, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			task.ID, task.FingerprintID, task.InputArchivePath, task.OutputArchivePath, int(task.Status), task.CreatedAt.Format(createdAtLayout))
		return err
	})
	if err != nil {
		metrics.CatalogErrorsTotal.WithLabelValues("add_task").Inc()
		return Task{}, fmt.Errorf("catalog: add task: %w", err)
	}
	return task, nil
}

// UpdateTask applies the optional fields in u to task id; absent fields are
// untouched (spec.md §4.2). Enforces invariant 4 of spec.md §8: once
// InferenceServerUID is set it is never rewritten.
func (s *Store) UpdateTask(ctx context.Context, id string, u TaskUpdate) error {
	if u.InferenceServerUID == nil && u.Status == nil && u.DeletedLocal == nil && u.DeletedRemote == nil {
		return ErrInvalidUpdate
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if u.InferenceServerUID != nil {
			res, err := tx.ExecContext(ctx, `
				UPDATE tasks SET inference_server_uid = ? WHERE id = ? AND inference_server_uid = ''`,
				*u.InferenceServerUID, id)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				// Either the task doesn't exist, or the uid was already set
				// (at-most-once per spec.md §8 invariant 4) — check existence
				// separately so callers get a clear error only when missing.
				var exists int
				if err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&exists); err != nil {
					if err == sql.ErrNoRows {
						return ErrNotFound
					}
					return err
				}
			}
		}
		if u.Status != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ? WHERE id = ?`, int(*u.Status), id); err != nil {
				return err
			}
		}
		if u.DeletedLocal != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET deleted_local = ? WHERE id = ?`, boolToInt(*u.DeletedLocal), id); err != nil {
				return err
			}
		}
		if u.DeletedRemote != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET deleted_remote = ? WHERE id = ?`, boolToInt(*u.DeletedRemote), id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.CatalogErrorsTotal.WithLabelValues("update_task").Inc()
		return fmt.Errorf("catalog: update task %s: %w", id, err)
	}
	return nil
}

// DeleteFingerprint removes fingerprintID, cascading to its Triggers and to
// its join rows with Destinations; Destinations themselves are not deleted
// (spec.md §4.2). Refuses with ErrFingerprintInUse while non-terminal tasks
// reference the fingerprint. Task rows are not cascaded: while any task row
// still references it, even a terminal one, the delete fails on the tasks
// table's foreign key.
func (s *Store) DeleteFingerprint(ctx context.Context, fingerprintID string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var openTasks int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM tasks WHERE fingerprint_id = ? AND status NOT IN (?, ?)`,
			fingerprintID, int(StatusSucceeded), int(StatusFailedCleaned)).Scan(&openTasks); err != nil {
			return err
		}
		if openTasks > 0 {
			return ErrFingerprintInUse
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE id = ?`, fingerprintID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		metrics.CatalogErrorsTotal.WithLabelValues("delete_fingerprint").Inc()
		return fmt.Errorf("catalog: delete fingerprint %s: %w", fingerprintID, err)
	}
	return nil
}

// ListFingerprints returns every Fingerprint with its Triggers and
// Destinations populated, ordered by catalog insertion (rowid), matching the
// stable match-order tie-break of spec.md §4.3.
func (s *Store) ListFingerprints(ctx context.Context) ([]Fingerprint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, human_readable_id, inference_server_url, version, description, delete_locally, delete_remotely
		FROM fingerprints ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []Fingerprint
	for rows.Next() {
		var fp Fingerprint
		var deleteLocally, deleteRemotely int
		if err := rows.Scan(&fp.ID, &fp.HumanReadableID, &fp.InferenceServerURL, &fp.Version, &fp.Description, &deleteLocally, &deleteRemotely); err != nil {
			return nil, fmt.Errorf("catalog: scan fingerprint: %w", err)
		}
		fp.DeleteLocally = deleteLocally != 0
		fp.DeleteRemotely = deleteRemotely != 0
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range fps {
		triggers, err := s.triggersFor(ctx, fps[i].ID)
		if err != nil {
			return nil, err
		}
		fps[i].Triggers = triggers

		destinations, err := s.destinationsFor(ctx, fps[i].ID)
		if err != nil {
			return nil, err
		}
		fps[i].Destinations = destinations
	}
	return fps, nil
}

func (s *Store) triggersFor(ctx context.Context, fingerprintID string) ([]Trigger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, fingerprint_id, study_description_pattern, series_description_pattern, sop_class_uid_exact, exclude_pattern
		FROM triggers WHERE fingerprint_id = ? ORDER BY rowid`, fingerprintID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list triggers: %w", err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var tr Trigger
		if err := rows.Scan(&tr.ID, &tr.FingerprintID, &tr.StudyDescriptionPattern, &tr.SeriesDescriptionPattern, &tr.SOPClassUIDExact, &tr.ExcludePattern); err != nil {
			return nil, fmt.Errorf("catalog: scan trigger: %w", err)
		}
		triggers = append(triggers, tr)
	}
	return triggers, rows.Err()
}

func (s *Store) destinationsFor(ctx context.Context, fingerprintID string) ([]Destination, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.host, d.port, d.ae_title
		FROM destinations d
		JOIN fingerprint_destinations fd ON fd.destination_id = d.id
		WHERE fd.fingerprint_id = ? ORDER BY d.rowid`, fingerprintID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list destinations: %w", err)
	}
	defer rows.Close()

	var dests []Destination
	for rows.Next() {
		var d Destination
		if err := rows.Scan(&d.ID, &d.Host, &d.Port, &d.AETitle); err != nil {
			return nil, fmt.Errorf("catalog: scan destination: %w", err)
		}
		dests = append(dests, d)
	}
	return dests, rows.Err()
}

// GetTask returns a single Task by id.
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	task, err := scanTask(s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id))
	if err != nil {
		return Task{}, fmt.Errorf("catalog: get task %s: %w", id, err)
	}
	return task, nil
}

// ListTasksByStatus returns every Task currently in status, ordered by
// creation time (FIFO per spec.md §1's per-state fairness note).
func (s *Store) ListTasksByStatus(ctx context.Context, status TaskStatus) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE status = ? ORDER BY created_at`, int(status))
	if err != nil {
		return nil, fmt.Errorf("catalog: list tasks by status: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTaskRows(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListOpenTasks returns every Task not yet in a terminal status, used by
// Phase A (Retire) to evaluate timeouts (spec.md §4.6).
func (s *Store) ListOpenTasks(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE status NOT IN (?, ?)`, int(StatusSucceeded), int(StatusFailedCleaned))
	if err != nil {
		return nil, fmt.Errorf("catalog: list open tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTaskRows(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListTasksByStatuses returns every Task whose status is any of statuses,
// used by Phase F (Cleanup) which operates on {FORWARDED, FAILED}.
func (s *Store) ListTasksByStatuses(ctx context.Context, statuses ...TaskStatus) ([]Task, error) {
	var tasks []Task
	for _, st := range statuses {
		ts, err := s.ListTasksByStatus(ctx, st)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, ts...)
	}
	return tasks, nil
}

// GetFingerprint returns a single fingerprint with its triggers and
// destinations populated.
func (s *Store) GetFingerprint(ctx context.Context, id string) (Fingerprint, error) {
	fps, err := s.ListFingerprints(ctx)
	if err != nil {
		return Fingerprint{}, err
	}
	for _, fp := range fps {
		if fp.ID == id {
			return fp, nil
		}
	}
	return Fingerprint{}, ErrNotFound
}

// createdAtLayout is RFC3339 with a fixed-width nanosecond fraction, so that
// the text order of created_at (ORDER BY created_at) is its time order.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

const taskSelect = `
	SELECT id, fingerprint_id, input_archive_path, output_archive_path, status, inference_server_uid, deleted_local, deleted_remote, created_at
	FROM tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	return scanTaskRows(row)
}

func scanTaskRows(row rowScanner) (Task, error) {
	var t Task
	var status, deletedLocal, deletedRemote int
	var createdAt string
	if err := row.Scan(&t.ID, &t.FingerprintID, &t.InputArchivePath, &t.OutputArchivePath, &status, &t.InferenceServerUID, &deletedLocal, &deletedRemote, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return Task{}, ErrNotFound
		}
		return Task{}, err
	}
	t.Status = TaskStatus(status)
	t.DeletedLocal = deletedLocal != 0
	t.DeletedRemote = deletedRemote != 0
	parsed, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	t.CreatedAt = parsed
	return t, nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
