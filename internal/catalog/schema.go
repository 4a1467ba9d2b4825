package catalog

const schema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id                   TEXT PRIMARY KEY,
	human_readable_id    TEXT NOT NULL,
	inference_server_url TEXT NOT NULL,
	version              TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	delete_locally       INTEGER NOT NULL DEFAULT 1,
	delete_remotely      INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS triggers (
	id                          TEXT PRIMARY KEY,
	fingerprint_id              TEXT NOT NULL REFERENCES fingerprints(id) ON DELETE CASCADE,
	study_description_pattern   TEXT NOT NULL DEFAULT '',
	series_description_pattern  TEXT NOT NULL DEFAULT '',
	sop_class_uid_exact         TEXT NOT NULL DEFAULT '',
	exclude_pattern             TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_triggers_fingerprint ON triggers(fingerprint_id);

CREATE TABLE IF NOT EXISTS destinations (
	id       TEXT PRIMARY KEY,
	host     TEXT NOT NULL,
	port     INTEGER NOT NULL,
	ae_title TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fingerprint_destinations (
	fingerprint_id TEXT NOT NULL REFERENCES fingerprints(id) ON DELETE CASCADE,
	destination_id TEXT NOT NULL REFERENCES destinations(id) ON DELETE CASCADE,
	PRIMARY KEY (fingerprint_id, destination_id)
);
CREATE INDEX IF NOT EXISTS idx_fp_dest_fingerprint ON fingerprint_destinations(fingerprint_id);

CREATE TABLE IF NOT EXISTS tasks (
	id                   TEXT PRIMARY KEY,
	fingerprint_id       TEXT NOT NULL REFERENCES fingerprints(id),
	input_archive_path   TEXT NOT NULL,
	output_archive_path  TEXT NOT NULL,
	status               INTEGER NOT NULL,
	inference_server_uid TEXT NOT NULL DEFAULT '',
	deleted_local        INTEGER NOT NULL DEFAULT 0,
	deleted_remote       INTEGER NOT NULL DEFAULT 0,
	created_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_fingerprint ON tasks(fingerprint_id);
`
