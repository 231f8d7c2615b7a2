// Package channel provides the typed, versioned accumulators that nodes
// communicate through. A channel is the only medium of communication between
// nodes in a Pregel-style graph: nodes never see each other directly, only the
// channels they read from and write to.
package channel

import "errors"

// ErrEmptyChannel is returned by Get when a channel has never been written
// (or, for EphemeralValue, has already been consumed once).
var ErrEmptyChannel = errors.New("channel: empty channel")

// ErrInvalidUpdate is returned by Update when the submitted updates violate
// the channel's cardinality rules (e.g. more than one update to a LastValue
// channel within a single step).
var ErrInvalidUpdate = errors.New("channel: invalid update")

// Reducer merges a single update into the accumulated value of a
// BinaryOperatorAggregate channel. It must be pure and associative: given the
// same (acc, update) pair it must always return the same result, and the
// order updates are folded in must not change the final value when multiple
// updates commute.
type Reducer func(acc, update any) any

// Channel is a named, typed, versioned accumulator. Every variant in this
// package implements it; the planner and runner only ever see this interface.
type Channel interface {
	// Update applies the updates gathered for the current step, in
	// task-completion order, and reports whether the channel's value changed.
	// A non-nil error aborts the step (ErrInvalidUpdate).
	Update(updates []any) (bool, error)

	// Get returns the channel's current value, or ErrEmptyChannel if no
	// value is available.
	Get() (any, error)

	// IsAvailable reports whether Get would succeed.
	IsAvailable() bool

	// Checkpoint extracts a serializable snapshot of the channel's internal
	// state (not necessarily the same shape as Get's return value — Topic,
	// for instance, checkpoints its full ordered multiset).
	Checkpoint() any

	// FromCheckpoint returns a new channel of the same variant restored from
	// a snapshot produced by Checkpoint. It does not mutate the receiver.
	FromCheckpoint(state any) Channel

	// Consume is the post-read hook. EphemeralValue clears itself here and
	// reports true; all other variants are no-ops and report false.
	Consume() bool
}

// Versioned is implemented by the planner-facing wrapper that pairs a
// Channel with its monotonic version token. The planner and checkpointer
// depend only on this, never on the concrete channel type.
type Versioned struct {
	Channel Channel
	// Version is "" until the channel has accepted its first update. It is a
	// lexicographically comparable string so that backends free to choose
	// their own monotonic scheme (e.g. a zero-padded counter, a HLC, a
	// ULID-like token) can still be compared with plain string comparison.
	Version string
}

// Factory constructs a fresh, empty Channel for a given variant. Graph
// builders register one Factory per channel name at compile time.
type Factory func() Channel
