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

	_ "github.com/go-sql-driver/mysql"
)

// MySQLCheckpointer is a MySQL/MariaDB-backed Checkpointer, generalizing the
// prior engine's MySQLStore[S] to the multi-channel checkpoint shape.
// Designed for:
//   - Production deployments requiring durability across process restarts.
//   - Distributed systems with multiple workers sharing one thread store.
//   - Audit trails over full checkpoint/write history.
//
// The DSN format follows go-sql-driver/mysql conventions, e.g.
// "user:pass@tcp(localhost:3306)/pregel?parseTime=true". Never hardcode
// credentials; read the DSN from the environment.
type MySQLCheckpointer struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewMySQLCheckpointer opens a connection pool against dsn and ensures the
// schema exists.
func NewMySQLCheckpointer(dsn string) (*MySQLCheckpointer, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	m := &MySQLCheckpointer{db: db}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return m, nil
}

func (m *MySQLCheckpointer) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id VARCHAR(255) NOT NULL,
			namespace VARCHAR(255) NOT NULL,
			checkpoint_id VARCHAR(64) NOT NULL,
			parent_checkpoint_id VARCHAR(64),
			checkpoint_data LONGTEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (thread_id, namespace, checkpoint_id)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS pending_writes (
			thread_id VARCHAR(255) NOT NULL,
			namespace VARCHAR(255) NOT NULL,
			checkpoint_id VARCHAR(64) NOT NULL,
			task_id VARCHAR(255) NOT NULL,
			channel VARCHAR(255) NOT NULL,
			idx_num INT NOT NULL,
			value LONGTEXT NOT NULL,
			PRIMARY KEY (thread_id, namespace, checkpoint_id, task_id, channel, idx_num)
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS events_outbox (
			id VARCHAR(255) NOT NULL PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			event_data LONGTEXT NOT NULL,
			emitted_at TIMESTAMP NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			INDEX idx_events_pending (emitted_at, created_at)
		) ENGINE=InnoDB`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (m *MySQLCheckpointer) checkClosed() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return fmt.Errorf("mysql checkpointer: closed")
	}
	return nil
}

// Put implements store.Checkpointer.
func (m *MySQLCheckpointer) Put(ctx context.Context, cfg Config, cp checkpoint.Checkpoint, meta checkpoint.Metadata) (Config, error) {
	if err := m.checkClosed(); err != nil {
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

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, namespace, checkpoint_id, parent_checkpoint_id, checkpoint_data, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE checkpoint_data = VALUES(checkpoint_data), metadata = VALUES(metadata)
	`, cfg.ThreadID, cfg.Namespace, cp.ID, parentID, string(cpJSON), string(metaJSON))
	if err != nil {
		return Config{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	out := cfg
	out.CheckpointID = cp.ID
	return out, nil
}

// PutWrites implements store.Checkpointer with the same reserved-channel
// overwrite / ordinary-channel append-once-idempotent semantics as
// SQLiteCheckpointer.PutWrites.
func (m *MySQLCheckpointer) PutWrites(ctx context.Context, cfg Config, writes []checkpoint.PendingWrite) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
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
				INSERT INTO pending_writes (thread_id, namespace, checkpoint_id, task_id, channel, idx_num, value)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON DUPLICATE KEY UPDATE value = VALUES(value)
			`, cfg.ThreadID, cfg.Namespace, cfg.CheckpointID, w.TaskID, w.Channel, idx, string(valJSON))
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT IGNORE INTO pending_writes (thread_id, namespace, checkpoint_id, task_id, channel, idx_num, value)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, cfg.ThreadID, cfg.Namespace, cfg.CheckpointID, w.TaskID, w.Channel, idx, string(valJSON))
		}
		if err != nil {
			return fmt.Errorf("insert pending write: %w", err)
		}
	}
	return tx.Commit()
}

func (m *MySQLCheckpointer) loadPendingWrites(ctx context.Context, cfg Config) ([]checkpoint.PendingWrite, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT task_id, channel, value FROM pending_writes
		WHERE thread_id = ? AND namespace = ? AND checkpoint_id = ?
		ORDER BY idx_num ASC
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
func (m *MySQLCheckpointer) GetTuple(ctx context.Context, cfg Config) (Tuple, error) {
	if err := m.checkClosed(); err != nil {
		return Tuple{}, err
	}

	var (
		checkpointID string
		parentID     sql.NullString
		cpJSON       string
		metaJSON     string
	)

	if cfg.CheckpointID == "" {
		err := m.db.QueryRowContext(ctx, `
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
		err := m.db.QueryRowContext(ctx, `
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

	writes, err := m.loadPendingWrites(ctx, out.Config)
	if err != nil {
		return Tuple{}, err
	}
	out.PendingWrites = writes
	return out, nil
}

// List implements store.Checkpointer.
func (m *MySQLCheckpointer) List(ctx context.Context, cfg Config, opts ListOptions) ([]Tuple, error) {
	if err := m.checkClosed(); err != nil {
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

	rows, err := m.db.QueryContext(ctx, query, args...)
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
func (m *MySQLCheckpointer) DeleteThread(ctx context.Context, threadID string) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
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
func (m *MySQLCheckpointer) GetNextVersion(current string) string { return NextVersion(current) }

// PendingEvents implements store.Checkpointer.
func (m *MySQLCheckpointer) PendingEvents(ctx context.Context, limit int) ([]emit.Event, error) {
	if err := m.checkClosed(); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, `
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

// RecordEvent inserts an event into the outbox.
func (m *MySQLCheckpointer) RecordEvent(ctx context.Context, e emit.Event) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = m.db.ExecContext(ctx, `
		INSERT IGNORE INTO events_outbox (id, run_id, event_data) VALUES (?, ?, ?)
	`, e.ID, e.RunID, string(data))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// MarkEventsEmitted implements store.Checkpointer.
func (m *MySQLCheckpointer) MarkEventsEmitted(ctx context.Context, eventIDs []string) error {
	if err := m.checkClosed(); err != nil {
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
	_, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark events emitted: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool. Idempotent.
func (m *MySQLCheckpointer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

// Ping verifies the database connection is alive.
func (m *MySQLCheckpointer) Ping(ctx context.Context) error {
	if err := m.checkClosed(); err != nil {
		return err
	}
	return m.db.PingContext(ctx)
}
