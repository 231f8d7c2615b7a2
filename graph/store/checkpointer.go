// Package store provides durable persistence for the Pregel loop's
// checkpoints, generalizing the prior engine's Store[S] (SaveStep/
// LoadLatest/SaveCheckpoint/SaveCheckpointV2) into a single Checkpointer
// interface keyed by (thread_id, checkpoint_ns) rather than a generic state
// type, so a checkpoint can carry an arbitrary set of named channels.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/riverrun/pregel-go/graph/checkpoint"
	"github.com/riverrun/pregel-go/graph/emit"
)

// ErrNotFound is returned when a requested thread or checkpoint does not exist.
var ErrNotFound = errors.New("store: not found")

// Config identifies the (thread, namespace, checkpoint) coordinates a
// Checkpointer call operates on. CheckpointID is optional on read paths: the
// empty string means "latest".
type Config struct {
	ThreadID     string
	Namespace    string
	CheckpointID string
}

// Tuple bundles a checkpoint with its metadata, parent config, and any
// pending writes staged for the NEXT step (i.e. writes from tasks that
// completed but whose checkpoint has not yet been committed).
type Tuple struct {
	Config        Config
	Checkpoint    checkpoint.Checkpoint
	Metadata      checkpoint.Metadata
	ParentConfig  *Config
	PendingWrites []checkpoint.PendingWrite
}

// ListOptions filters and bounds a checkpoint history query.
type ListOptions struct {
	Before *Config
	Limit  int
	Filter map[string]any // matched against Metadata fields, e.g. {"source": "update"}
}

// Checkpointer is the durable persistence contract the Pregel loop commits
// to at the end of every step. Implementations must make Put idempotent
// under the same (ThreadID, Namespace, CheckpointID): a retried Put after a
// crash between write and acknowledgment must not corrupt history.
//
// Type parameter: none. Channel payloads are carried as the untyped
// map[string]any produced by graph/codec, so a single Checkpointer
// implementation serves every graph regardless of its channel schema.
type Checkpointer interface {
	// GetTuple loads the checkpoint named by cfg, or the latest checkpoint
	// for (ThreadID, Namespace) if cfg.CheckpointID is empty.
	GetTuple(ctx context.Context, cfg Config) (Tuple, error)

	// List returns checkpoint tuples for (ThreadID, Namespace) newest-first,
	// bounded by opts.
	List(ctx context.Context, cfg Config, opts ListOptions) ([]Tuple, error)

	// Put persists a new checkpoint and its metadata, returning the config
	// that addresses it (with CheckpointID populated).
	Put(ctx context.Context, cfg Config, cp checkpoint.Checkpoint, meta checkpoint.Metadata) (Config, error)

	// PutWrites stages PendingWrite records produced by tasks belonging to
	// the in-flight step identified by cfg, ahead of that step's checkpoint
	// being committed. Writes to reserved channels (checkpoint.WritesIdxMap)
	// overwrite any prior write from the same task+channel; all others
	// append. Calling PutWrites twice with the same TaskID+Channel+idx is a
	// no-op (idempotent retry).
	PutWrites(ctx context.Context, cfg Config, writes []checkpoint.PendingWrite) error

	// DeleteThread removes every checkpoint and pending write for a thread
	// across all namespaces.
	DeleteThread(ctx context.Context, threadID string) error

	// GetNextVersion computes the next version token for a channel given its
	// current token (empty string if the channel has never been written).
	// Implementations must return strictly increasing, lexicographically
	// comparable tokens so the planner can compare versions without parsing
	// them.
	GetNextVersion(current string) string

	// PendingEvents and MarkEventsEmitted implement the transactional
	// outbox pattern used by the stream multiplexer for at-least-once event
	// delivery across process restarts, unchanged in shape from the prior
	// engine's Store.
	PendingEvents(ctx context.Context, limit int) ([]emit.Event, error)
	MarkEventsEmitted(ctx context.Context, eventIDs []string) error
}

// NextVersion implements the shared monotonic-integer version scheme used
// by every Checkpointer backend in this package: tokens are fixed-width
// zero-padded decimal integers so that lexicographic and numeric ordering
// agree, letting the planner compare versions with a plain string compare.
func NextVersion(current string) string {
	n := int64(0)
	if current != "" {
		if v, err := strconv.ParseInt(current, 10, 64); err == nil {
			n = v
		}
	}
	return fmt.Sprintf("%020d", n+1)
}
