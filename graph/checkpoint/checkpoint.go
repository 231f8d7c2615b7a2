// Package checkpoint defines the immutable, durable snapshot record the
// Pregel loop writes at the end of every step, generalizing the prior
// engine's single-state Checkpoint[S]/CheckpointV2[S] (graph/checkpoint.go)
// into the multi-channel shape a Pregel-style engine needs.
package checkpoint

import (
	"encoding/json"
	"time"
)

// CurrentVersion is the format version written by this engine. Readers must
// accept any v <= CurrentVersion; v < PendingSendsMigrationVersion carries
// the legacy pending_sends field instead of the __pregel_tasks channel (see
// MigratePendingSends).
const CurrentVersion = 4

// PendingSendsMigrationVersion is the first format version that stores
// dynamically-scheduled Send tasks as an ordinary reserved channel
// (__pregel_tasks) instead of the legacy top-level PendingSends field.
const PendingSendsMigrationVersion = 4

// Source identifies how a checkpoint came to exist.
type Source string

const (
	SourceInput  Source = "input"
	SourceLoop   Source = "loop"
	SourceUpdate Source = "update"
	SourceFork   Source = "fork"
)

// Checkpoint is an immutable record of channel state at a step boundary. It
// is never mutated in place; a new Checkpoint is written for every step.
type Checkpoint struct {
	// ID is a lexicographically sortable, time-ordered, unique identifier
	// within a (thread, namespace) pair. Backends are free to choose the
	// concrete scheme (ULID, monotonic counter, HLC) as long as string
	// comparison recovers creation order.
	ID string `json:"id"`

	// TS is the checkpoint's creation time, serialized as RFC3339 UTC.
	TS time.Time `json:"ts"`

	// V is the format version this checkpoint was written with.
	V int `json:"v"`

	// ChannelValues maps channel name to that channel's current payload,
	// as produced by channel.Channel.Checkpoint(). A channel absent from
	// this map has never been written (is_available() == false).
	ChannelValues map[string]any `json:"channel_values"`

	// ChannelVersions maps channel name to its version token at this
	// checkpoint. Absence means version "" ("never written").
	ChannelVersions map[string]string `json:"channel_versions"`

	// VersionsSeen maps node name to the channel versions that node had
	// observed the last time it ran, so the planner can tell whether a
	// channel has advanced since.
	VersionsSeen map[string]map[string]string `json:"versions_seen"`

	// PendingSends is the legacy (v < 4) representation of Send-scheduled
	// tasks. New checkpoints never populate this; it is read-only migration
	// support for checkpoints written by an older format. See
	// MigratePendingSends.
	PendingSends []LegacySend `json:"pending_sends,omitempty"`

	// RecordedIOs accumulates every Recordable node's external I/O captured
	// so far in this thread, so a later replay run can serve recorded
	// responses instead of re-invoking the external service.
	RecordedIOs []RecordedIO `json:"recorded_ios,omitempty"`
}

// RecordedIO captures one external interaction (an LLM call, a tool
// invocation, a database query) a Recordable node made, keyed by the task
// that made it so concurrent fan-out running the same node disambiguates
// correctly.
type RecordedIO struct {
	// TaskID identifies the task that performed this I/O operation.
	TaskID string `json:"task_id"`

	// Attempt is the retry attempt number this I/O corresponds to.
	Attempt int `json:"attempt"`

	// Request is the serialized request sent to the external service.
	Request json.RawMessage `json:"request"`

	// Response is the serialized response received from the external
	// service.
	Response json.RawMessage `json:"response"`

	// Hash is a SHA-256 hash of the response content, used for mismatch
	// detection during replay. Format: "sha256:hex".
	Hash string `json:"hash"`

	// Timestamp records when this I/O operation was captured.
	Timestamp time.Time `json:"timestamp"`

	// Duration is how long the I/O operation took to complete.
	Duration time.Duration `json:"duration"`
}

// LegacySend is the pre-v4 on-disk shape of a dynamically scheduled task.
type LegacySend struct {
	Node    string `json:"node"`
	Payload any    `json:"payload"`
}

// ReservedTasksChannel is the name of the channel that replaces PendingSends
// from format version 4 onward.
const ReservedTasksChannel = "__pregel_tasks"

// MigratePendingSends synthesizes the __pregel_tasks channel from a legacy
// (v < PendingSendsMigrationVersion) checkpoint's PendingSends field. It is
// a no-op for checkpoints already at or above the migration version. Callers
// must never write PendingSends back out; this is a read path only.
func MigratePendingSends(cp *Checkpoint) {
	if cp.V >= PendingSendsMigrationVersion || len(cp.PendingSends) == 0 {
		return
	}
	tasks := make([]any, 0, len(cp.PendingSends))
	for _, s := range cp.PendingSends {
		tasks = append(tasks, map[string]any{"node": s.Node, "payload": s.Payload})
	}
	if cp.ChannelValues == nil {
		cp.ChannelValues = map[string]any{}
	}
	cp.ChannelValues[ReservedTasksChannel] = tasks
	if cp.ChannelVersions == nil {
		cp.ChannelVersions = map[string]string{}
	}
	if _, ok := cp.ChannelVersions[ReservedTasksChannel]; !ok {
		cp.ChannelVersions[ReservedTasksChannel] = "migrated:1"
	}
}

// Metadata carries provenance for a Checkpoint: why it was created, at what
// step, and (for forked/nested lineages) which parent checkpoint per
// namespace it descends from.
type Metadata struct {
	Source  Source            `json:"source"`
	Step    int               `json:"step"`
	Parents map[string]string `json:"parents,omitempty"`
	Writes  map[string]any    `json:"writes,omitempty"`
}

// PendingWrite is a single (task, channel, value) write staged by the
// runner before the enclosing checkpoint is finalized, so partial step
// progress survives a crash between task completion and checkpoint commit.
type PendingWrite struct {
	TaskID  string `json:"task_id"`
	Channel string `json:"channel"`
	Value   any    `json:"value"`
}

// Reserved channel names used for negative-index pending writes (§4.3):
// these always overwrite rather than append, regardless of backend.
const (
	ChannelError     = "__error__"
	ChannelInterrupt = "__interrupt__"
	ChannelResume    = "__resume__"
)

// WritesIdxMap assigns a fixed negative index to each reserved channel so
// that PutWrites implementations can treat them as "overwrite" slots instead
// of "append" slots, regardless of backend. Ordinary channel writes use
// index >= 0 (the write's position within the task's write list).
var WritesIdxMap = map[string]int{
	ChannelError:     -1,
	ChannelInterrupt: -2,
	ChannelResume:    -3,
}
