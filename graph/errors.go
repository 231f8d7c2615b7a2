package graph

import "errors"

// ErrMaxStepsExceeded indicates that execution reached the maximum allowed
// step count (recursion_limit) without reaching a terminal state. Prevents
// infinite loops and runaway executions.
var ErrMaxStepsExceeded = errors.New("execution exceeded maximum steps limit")

// ErrBackpressure indicates that downstream processing cannot keep up with
// the current execution rate (emitter buffer full, rate limit exceeded).
var ErrBackpressure = errors.New("downstream backpressure exceeded threshold")

// ErrGraphRecursion is returned by Invoke/Stream when a run exceeds its
// configured recursion limit without reaching a terminal checkpoint.
var ErrGraphRecursion = errors.New("graph: recursion limit exceeded")

// ErrGraphValue is returned when a node's Result references a channel name
// the graph was never compiled with.
var ErrGraphValue = errors.New("graph: unknown channel")

// ErrNoRoute is returned when the first step planned by an Invoke, Stream
// or Resume call has no runnable task (no triggered node and no Goto
// target). A later step with no runnable task ends the run normally.
var ErrNoRoute = errors.New("graph: no route to __end__")

// ErrReservedName is returned by the builder when a caller attempts to name
// a node or channel using one of the names reserved for internal routing
// (the reserved channel names declared in builder.go, such as ChannelStart).
var ErrReservedName = errors.New("graph: reserved name")

// ErrUnreachableNode is returned by Compile when a node that subscribes to
// at least one channel is not the entry node and cannot be reached from the
// entry node by following static edges.
var ErrUnreachableNode = errors.New("graph: unreachable node")

// ErrNoProgress indicates the planner produced zero tasks for two
// consecutive steps — a deadlock, since every channel is stable and no node
// is runnable.
var ErrNoProgress = errors.New("graph: no runnable nodes (deadlock)")

// ErrReplayMismatch is returned when a recorded external I/O call during
// replay doesn't match the call the node is now making, meaning the node's
// logic diverged from the run being replayed.
var ErrReplayMismatch = errors.New("graph: replay input mismatch")

// ErrIdempotencyViolation names a checkpoint commit whose computed
// idempotency key has already been used (a duplicate commit attempt). No
// code in this module returns it: the key is stored in checkpoint metadata
// and no Checkpointer backend checks it.
var ErrIdempotencyViolation = errors.New("graph: idempotency key already used")

// ErrMaxAttemptsExceeded is returned when a task exhausts its RetryPolicy's
// MaxAttempts without succeeding.
var ErrMaxAttemptsExceeded = errors.New("graph: max retry attempts exceeded")

// ErrBackpressureTimeout is returned when the frontier queue is full and
// stays full past SideEffectPolicy's configured timeout.
var ErrBackpressureTimeout = errors.New("graph: backpressure timeout waiting on frontier")

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate when MaxAttempts
// or the delay bounds are out of range.
var ErrInvalidRetryPolicy = errors.New("graph: invalid retry policy")

// ErrMissingIdempotencyKeyFunc is returned by Compile when a node's
// SideEffectPolicy.RequiresIdempotency is true but its NodePolicy sets no
// IdempotencyKeyFunc to derive one from.
var ErrMissingIdempotencyKeyFunc = errors.New("graph: side-effecting node requires an idempotency key func")
