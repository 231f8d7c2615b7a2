// Package graph implements a durable, checkpointed Pregel-style execution
// engine: a graph of nodes communicating through versioned channels,
// advanced in synchronized steps and resumable from any committed
// checkpoint.
package graph

// Edge represents a static control-flow connection between two nodes. The
// builder compiles each edge into a reserved trigger channel that the
// source node writes to when it finishes (subject to When), and the
// destination node subscribes to — the channel-subscription analogue of the
// prior engine's direct edge traversal.
type Edge struct {
	From string
	To   string
	When Predicate // nil means unconditional
}

// Predicate evaluates a View to decide whether an edge fires. It is
// evaluated against the channel values as they stood when the step began;
// the source node's own Updates from that step are not visible to it.
type Predicate func(out View) bool
