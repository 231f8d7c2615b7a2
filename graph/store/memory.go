package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/riverrun/pregel-go/graph/checkpoint"
	"github.com/riverrun/pregel-go/graph/emit"
)

// MemCheckpointer is an in-memory Checkpointer, generalizing the prior
// engine's MemStore[S] to the multi-channel Checkpoint shape. It is
// thread-safe and intended for tests, development, and short-lived
// workflows where durability across process restarts is not required.
//
// Limitations:
//   - Data is lost when the process terminates.
//   - Not suitable for distributed deployments.
//   - Memory usage grows with checkpoint history; callers doing long-lived
//     runs should call DeleteThread once a thread is retired.
type MemCheckpointer struct {
	mu sync.RWMutex

	// tuples[threadID][namespace] is ordered oldest-first by insertion,
	// which for MemCheckpointer also means checkpoint creation order.
	tuples map[string]map[string][]Tuple

	pendingWrites map[string][]checkpoint.PendingWrite // "threadID:ns:checkpointID" -> writes

	seq int64 // monotonic counter backing synthesized checkpoint IDs

	pendingEvents []emit.Event
	emittedIDs    map[string]struct{}
}

// NewMemCheckpointer constructs an empty MemCheckpointer.
func NewMemCheckpointer() *MemCheckpointer {
	return &MemCheckpointer{
		tuples:        make(map[string]map[string][]Tuple),
		pendingWrites: make(map[string][]checkpoint.PendingWrite),
		emittedIDs:    make(map[string]struct{}),
	}
}

func (m *MemCheckpointer) nextID() string {
	m.seq++
	return fmt.Sprintf("%020d", m.seq)
}

func writeKey(threadID, ns, cpID string) string {
	return threadID + ":" + ns + ":" + cpID
}

// GetTuple implements Checkpointer.
func (m *MemCheckpointer) GetTuple(_ context.Context, cfg Config) (Tuple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nsMap, ok := m.tuples[cfg.ThreadID]
	if !ok {
		return Tuple{}, ErrNotFound
	}
	list, ok := nsMap[cfg.Namespace]
	if !ok || len(list) == 0 {
		return Tuple{}, ErrNotFound
	}

	if cfg.CheckpointID == "" {
		t := list[len(list)-1]
		t.PendingWrites = m.pendingWrites[writeKey(cfg.ThreadID, cfg.Namespace, t.Config.CheckpointID)]
		return t, nil
	}
	for _, t := range list {
		if t.Config.CheckpointID == cfg.CheckpointID {
			t.PendingWrites = m.pendingWrites[writeKey(cfg.ThreadID, cfg.Namespace, t.Config.CheckpointID)]
			return t, nil
		}
	}
	return Tuple{}, ErrNotFound
}

// List implements Checkpointer.
func (m *MemCheckpointer) List(_ context.Context, cfg Config, opts ListOptions) ([]Tuple, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nsMap, ok := m.tuples[cfg.ThreadID]
	if !ok {
		return nil, nil
	}
	list := nsMap[cfg.Namespace]

	out := make([]Tuple, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		t := list[i]
		if opts.Before != nil && t.Config.CheckpointID >= opts.Before.CheckpointID {
			continue
		}
		if !matchesFilter(t.Metadata, opts.Filter) {
			continue
		}
		out = append(out, t)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func matchesFilter(meta checkpoint.Metadata, filter map[string]any) bool {
	for k, v := range filter {
		switch k {
		case "source":
			if string(meta.Source) != fmt.Sprint(v) {
				return false
			}
		case "step":
			if meta.Step != toInt(v) {
				return false
			}
		}
	}
	return true
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}

// Put implements Checkpointer.
func (m *MemCheckpointer) Put(_ context.Context, cfg Config, cp checkpoint.Checkpoint, meta checkpoint.Metadata) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cp.ID == "" {
		cp.ID = m.nextID()
	}
	out := cfg
	out.CheckpointID = cp.ID

	var parent *Config
	if cfg.CheckpointID != "" {
		p := Config{ThreadID: cfg.ThreadID, Namespace: cfg.Namespace, CheckpointID: cfg.CheckpointID}
		parent = &p
	}

	if m.tuples[cfg.ThreadID] == nil {
		m.tuples[cfg.ThreadID] = make(map[string][]Tuple)
	}
	list := m.tuples[cfg.ThreadID][cfg.Namespace]
	for i := range list {
		if list[i].Config.CheckpointID == cp.ID {
			list[i].Checkpoint = cp
			list[i].Metadata = meta
			return out, nil
		}
	}
	m.tuples[cfg.ThreadID][cfg.Namespace] = append(m.tuples[cfg.ThreadID][cfg.Namespace], Tuple{
		Config:       out,
		Checkpoint:   cp,
		Metadata:     meta,
		ParentConfig: parent,
	})
	return out, nil
}

// PutWrites implements Checkpointer. Reserved channels overwrite by
// (TaskID, Channel); ordinary channels append, except a retried write with
// an identical (TaskID, Channel, Value) which is skipped so idempotent
// retries don't duplicate entries.
func (m *MemCheckpointer) PutWrites(_ context.Context, cfg Config, writes []checkpoint.PendingWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := writeKey(cfg.ThreadID, cfg.Namespace, cfg.CheckpointID)
	existing := m.pendingWrites[key]

	for _, w := range writes {
		if _, reserved := checkpoint.WritesIdxMap[w.Channel]; reserved {
			replaced := false
			for i, e := range existing {
				if e.TaskID == w.TaskID && e.Channel == w.Channel {
					existing[i] = w
					replaced = true
					break
				}
			}
			if !replaced {
				existing = append(existing, w)
			}
			continue
		}
		duplicate := false
		for _, e := range existing {
			if e.TaskID == w.TaskID && e.Channel == w.Channel && fmt.Sprint(e.Value) == fmt.Sprint(w.Value) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			existing = append(existing, w)
		}
	}
	m.pendingWrites[key] = existing
	return nil
}

// DeleteThread implements Checkpointer.
func (m *MemCheckpointer) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tuples, threadID)
	prefix := threadID + ":"
	for k := range m.pendingWrites {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.pendingWrites, k)
		}
	}
	return nil
}

// GetNextVersion implements Checkpointer.
func (m *MemCheckpointer) GetNextVersion(current string) string { return NextVersion(current) }

// PendingEvents implements Checkpointer, returning up to limit events not
// yet marked emitted, ordered by arrival.
func (m *MemCheckpointer) PendingEvents(_ context.Context, limit int) ([]emit.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]emit.Event, 0, limit)
	for _, e := range m.pendingEvents {
		if _, done := m.emittedIDs[e.ID]; done {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// MarkEventsEmitted implements Checkpointer.
func (m *MemCheckpointer) MarkEventsEmitted(_ context.Context, eventIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range eventIDs {
		m.emittedIDs[id] = struct{}{}
	}
	return nil
}

// RecordEvent appends an event to the outbox. Exposed for use by the stream
// multiplexer when it is configured to persist events transactionally
// alongside a MemCheckpointer-backed run.
func (m *MemCheckpointer) RecordEvent(e emit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingEvents = append(m.pendingEvents, e)
}
