package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/riverrun/pregel-go/graph/checkpoint"
	"github.com/riverrun/pregel-go/graph/emit"

	_ "modernc.org/sqlite"
)

// SQLiteCheckpointer is a single-file SQLite-backed Checkpointer, generalizing
// the prior engine's SQLiteStore[S] from a single JSON state blob per run to
// the multi-channel checkpoint shape. Designed for:
//   - Development and testing with zero setup.
//   - Single-process deployments needing durability across restarts.
//   - Local prototyping before migrating to MySQLCheckpointer.
//
// Uses WAL mode so readers (e.g. GetStateHistory) never block the writer.
//
// Schema:
//   - checkpoints: one row per (thread_id, namespace, checkpoint_id).
//   - pending_writes: staged writes for the in-flight step of a checkpoint.
//   - events_outbox: transactional outbox for at-least-once event delivery.
type SQLiteCheckpointer struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteCheckpointer opens (creating if necessary) a SQLite-backed
// checkpointer at path. Use ":memory:" for an ephemeral in-process database.
func NewSQLiteCheckpointer(path string) (*SQLiteCheckpointer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &SQLiteCheckpointer{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteCheckpointer) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			parent_checkpoint_id TEXT,
			checkpoint_data TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (thread_id, namespace, checkpoint_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_ns ON checkpoints(thread_id, namespace, checkpoint_id)`,
		`CREATE TABLE IF NOT EXISTS pending_writes (
			thread_id TEXT NOT NULL,
			namespace TEXT NOT NULL,
			checkpoint_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			idx INTEGER NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (thread_id, namespace, checkpoint_id, task_id, channel, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS events_outbox (
			id TEXT NOT NULL PRIMARY KEY,
			run_id TEXT NOT NULL,
			event_data TEXT NOT NULL,
			emitted_at TIMESTAMP NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_pending ON events_outbox(emitted_at, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteCheckpointer) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("sqlite checkpointer: closed")
	}
	return nil
}

// encodedTuple is the JSON-on-disk representation of a checkpoint row, kept
// separate from checkpoint.Checkpoint so schema evolution of one doesn't
// force a migration of the other.
type encodedTuple struct {
	Checkpoint checkpoint.Checkpoint `json:"checkpoint"`
}

// Put implements store.Checkpointer.
func (s *SQLiteCheckpointer) Put(ctx context.Context, cfg Config, cp checkpoint.Checkpoint, meta checkpoint.Metadata) (Config, error) {
	if err := s.checkClosed(); err != nil {
		return Config{}, err
	}
	if cp.ID == "" {
		cp.ID = fmt.Sprintf("%020d", time.Now().UnixNano())
	}

	cpJSON, err := json.Marshal(encodedTuple{Checkpoint: cp})
	if err != nil {
		return Config{}, fmt.Errorf("marshal checkpoint: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Config{}, fmt.Errorf("marshal metadata: %w", err)
	}

	var parentID any
	if cfg.CheckpointID != "" {
		parentID = cfg.CheckpointID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, namespace, checkpoint_id, parent_checkpoint_id, checkpoint_data, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, namespace, checkpoint_id) DO UPDATE SET
			checkpoint_data = excluded.checkpoint_data,
			metadata = excluded.metadata
	`, cfg.ThreadID, cfg.Namespace, cp.ID, parentID, string(cpJSON), string(metaJSON))
	if err != nil {
		return Config{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	out := cfg
	out.CheckpointID = cp.ID
	return out, nil
}

// PutWrites implements store.Checkpointer. Reserved channels (checkpoint.
// WritesIdxMap) are stored at their fixed negative idx and overwritten on
// conflict; ordinary channel writes use their position in writes as idx and
// are inserted idempotently (duplicate idx is a no-op).
func (s *SQLiteCheckpointer) PutWrites(ctx context.Context, cfg Config, writes []checkpoint.PendingWrite) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ordinaryIdx := 0
	for _, w := range writes {
		idx, reserved := checkpoint.WritesIdxMap[w.Channel]
		if !reserved {
			idx = ordinaryIdx
			ordinaryIdx++
		}
		valJSON, err := json.Marshal(w.Value)
		if err != nil {
			return fmt.Errorf("marshal write value: %w", err)
		}
		if reserved {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO pending_writes (thread_id, namespace, checkpoint_id, task_id, channel, idx, value)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(thread_id, namespace, checkpoint_id, task_id, channel, idx) DO UPDATE SET
					value = excluded.value
			`, cfg.ThreadID, cfg.Namespace, cfg.CheckpointID, w.TaskID, w.Channel, idx, string(valJSON))
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO pending_writes (thread_id, namespace, checkpoint_id, task_id, channel, idx, value)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(thread_id, namespace, checkpoint_id, task_id, channel, idx) DO NOTHING
			`, cfg.ThreadID, cfg.Namespace, cfg.CheckpointID, w.TaskID, w.Channel, idx, string(valJSON))
		}
		if err != nil {
			return fmt.Errorf("insert pending write: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteCheckpointer) loadPendingWrites(ctx context.Context, cfg Config) ([]checkpoint.PendingWrite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, channel, value FROM pending_writes
		WHERE thread_id = ? AND namespace = ? AND checkpoint_id = ?
		ORDER BY idx ASC
	`, cfg.ThreadID, cfg.Namespace, cfg.CheckpointID)
	if err != nil {
		return nil, fmt.Errorf("query pending writes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []checkpoint.PendingWrite
	for rows.Next() {
		var w checkpoint.PendingWrite
		var valJSON string
		if err := rows.Scan(&w.TaskID, &w.Channel, &valJSON); err != nil {
			return nil, fmt.Errorf("scan pending write: %w", err)
		}
		if err := json.Unmarshal([]byte(valJSON), &w.Value); err != nil {
			return nil, fmt.Errorf("unmarshal pending write value: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetTuple implements store.Checkpointer.
func (s *SQLiteCheckpointer) GetTuple(ctx context.Context, cfg Config) (Tuple, error) {
	if err := s.checkClosed(); err != nil {
		return Tuple{}, err
	}

	var (
		checkpointID string
		parentID     sql.NullString
		cpJSON       string
		metaJSON     string
	)

	if cfg.CheckpointID == "" {
		err := s.db.QueryRowContext(ctx, `
			SELECT checkpoint_id, parent_checkpoint_id, checkpoint_data, metadata
			FROM checkpoints WHERE thread_id = ? AND namespace = ?
			ORDER BY checkpoint_id DESC LIMIT 1
		`, cfg.ThreadID, cfg.Namespace).Scan(&checkpointID, &parentID, &cpJSON, &metaJSON)
		if err == sql.ErrNoRows {
			return Tuple{}, ErrNotFound
		}
		if err != nil {
			return Tuple{}, fmt.Errorf("query latest checkpoint: %w", err)
		}
	} else {
		err := s.db.QueryRowContext(ctx, `
			SELECT checkpoint_id, parent_checkpoint_id, checkpoint_data, metadata
			FROM checkpoints WHERE thread_id = ? AND namespace = ? AND checkpoint_id = ?
		`, cfg.ThreadID, cfg.Namespace, cfg.CheckpointID).Scan(&checkpointID, &parentID, &cpJSON, &metaJSON)
		if err == sql.ErrNoRows {
			return Tuple{}, ErrNotFound
		}
		if err != nil {
			return Tuple{}, fmt.Errorf("query checkpoint: %w", err)
		}
	}

	var enc encodedTuple
	if err := json.Unmarshal([]byte(cpJSON), &enc); err != nil {
		return Tuple{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	var meta checkpoint.Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return Tuple{}, fmt.Errorf("unmarshal metadata: %w", err)
	}

	out := Tuple{
		Config:     Config{ThreadID: cfg.ThreadID, Namespace: cfg.Namespace, CheckpointID: checkpointID},
		Checkpoint: enc.Checkpoint,
		Metadata:   meta,
	}
	if parentID.Valid {
		out.ParentConfig = &Config{ThreadID: cfg.ThreadID, Namespace: cfg.Namespace, CheckpointID: parentID.String}
	}

	writes, err := s.loadPendingWrites(ctx, out.Config)
	if err != nil {
		return Tuple{}, err
	}
	out.PendingWrites = writes
	return out, nil
}

// List implements store.Checkpointer.
func (s *SQLiteCheckpointer) List(ctx context.Context, cfg Config, opts ListOptions) ([]Tuple, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}

	query := `
		SELECT checkpoint_id, parent_checkpoint_id, checkpoint_data, metadata
		FROM checkpoints WHERE thread_id = ? AND namespace = ?
	`
	args := []any{cfg.ThreadID, cfg.Namespace}
	if opts.Before != nil {
		query += " AND checkpoint_id < ?"
		args = append(args, opts.Before.CheckpointID)
	}
	query += " ORDER BY checkpoint_id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query checkpoint history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Tuple
	for rows.Next() {
		var (
			checkpointID string
			parentID     sql.NullString
			cpJSON       string
			metaJSON     string
		)
		if err := rows.Scan(&checkpointID, &parentID, &cpJSON, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan checkpoint row: %w", err)
		}
		var enc encodedTuple
		if err := json.Unmarshal([]byte(cpJSON), &enc); err != nil {
			return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
		var meta checkpoint.Metadata
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		if !matchesFilter(meta, opts.Filter) {
			continue
		}
		t := Tuple{
			Config:     Config{ThreadID: cfg.ThreadID, Namespace: cfg.Namespace, CheckpointID: checkpointID},
			Checkpoint: enc.Checkpoint,
			Metadata:   meta,
		}
		if parentID.Valid {
			t.ParentConfig = &Config{ThreadID: cfg.ThreadID, Namespace: cfg.Namespace, CheckpointID: parentID.String}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteThread implements store.Checkpointer.
func (s *SQLiteCheckpointer) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_writes WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete pending writes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	return tx.Commit()
}

// GetNextVersion implements store.Checkpointer.
func (s *SQLiteCheckpointer) GetNextVersion(current string) string { return NextVersion(current) }

// PendingEvents implements store.Checkpointer.
func (s *SQLiteCheckpointer) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
	if err := s.checkClosed(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_data FROM events_outbox
		WHERE emitted_at IS NULL ORDER BY created_at ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []emit.Event
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var ev emit.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// RecordEvent inserts an event into the outbox so a later PendingEvents call
// (potentially from a different process) can deliver it.
func (s *SQLiteCheckpointer) RecordEvent(ctx context.Context, e emit.Event) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events_outbox (id, run_id, event_data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.RunID, string(data))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// MarkEventsEmitted implements store.Checkpointer.
func (s *SQLiteCheckpointer) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	if len(eventIDs) == 0 {
		return nil
	}
	placeholders := ""
	args := make([]any, len(eventIDs))
	for i, id := range eventIDs {
		if i > 0 {
			placeholders += ", "
		}
		placeholders += "?"
		args[i] = id
	}
	query := fmt.Sprintf(`UPDATE events_outbox SET emitted_at = CURRENT_TIMESTAMP WHERE id IN (%s)`, placeholders)
	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark events emitted: %w", err)
	}
	return nil
}

// Close closes the underlying database connection. Idempotent.
func (s *SQLiteCheckpointer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLiteCheckpointer) Ping(ctx context.Context) error {
	if err := s.checkClosed(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Path returns the database file path this checkpointer was opened with.
func (s *SQLiteCheckpointer) Path() string { return s.path }
