package store

import "fmt"

const schemaVersion = 1

// lifecycleColumns are the columns shared by all three task tables, in the
// order every INSERT/SELECT in this package relies on.
const lifecycleColumns = `
	id TEXT PRIMARY KEY,
	subtype TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 100,
	depends_on TEXT,
	result_url TEXT,
	result_local_path TEXT,
	error TEXT,
	max_retries INTEGER NOT NULL DEFAULT 3,
	retry_count INTEGER NOT NULL DEFAULT 0,
	timeout_seconds INTEGER NOT NULL DEFAULT 300,
	expire_at INTEGER,
	locked_by TEXT,
	locked_at INTEGER,
	started_at INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	completed_at INTEGER,
	project_id TEXT,
	processed INTEGER NOT NULL DEFAULT 0
`

func tableDDL(table, extraColumns string) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		%s,
		%s
	);
	CREATE INDEX IF NOT EXISTS idx_%s_status_priority_created ON %s(status, priority, created_at);
	CREATE INDEX IF NOT EXISTS idx_%s_expire_at ON %s(expire_at);
	CREATE INDEX IF NOT EXISTS idx_%s_shot_id ON %s(shot_id);
	`, table, lifecycleColumns, extraColumns, table, table, table, table, table, table)
}

var schema = tableDDL("image_task", `
		prompt TEXT NOT NULL,
		aspect_ratio TEXT NOT NULL,
		resolution TEXT,
		reference_images TEXT,
		provider TEXT NOT NULL,
		output_dir TEXT,
		shot_id TEXT,
		shot_sequence INTEGER,
		slot INTEGER
`) + tableDDL("video_task", `
		prompt TEXT NOT NULL,
		aspect_ratio TEXT NOT NULL,
		resolution TEXT,
		reference_images TEXT,
		duration INTEGER NOT NULL DEFAULT 5,
		provider TEXT NOT NULL,
		output_dir TEXT,
		shot_id TEXT,
		shot_sequence INTEGER
`) + tableDDL("audio_task", `
		text TEXT NOT NULL,
		voice_ref TEXT,
		emotion TEXT,
		emotion_intensity TEXT,
		speed REAL NOT NULL DEFAULT 1.0,
		provider TEXT NOT NULL,
		output_dir TEXT,
		result_duration_ms INTEGER,
		shot_id TEXT,
		shot_sequence INTEGER,
		dialogue_index INTEGER
`)

func (s *Store) migrate() error {
	var current int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func tableFor(kind string) string {
	return kind + "_task"
}
