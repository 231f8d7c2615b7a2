package graph

import (
	"context"

	"github.com/riverrun/pregel-go/graph/plan"
)

// View is a node's read-only window onto the channels it declared interest
// in. It replaces the prior engine's single typed state parameter S: a node
// now reads named channels instead of one struct field.
type View interface {
	// Get returns the current value of channel name and whether it has ever
	// been written. Reading a channel the node didn't declare in Reads is
	// still permitted but is not tracked for triggering purposes.
	Get(name string) (any, bool)

	// Triggers reports which of the node's subscribed channels advanced
	// since its last run, letting a node distinguish "ran because messages
	// changed" from "ran because both messages and decision changed".
	Triggers() []plan.Trigger
}

// Node represents a processing unit in the graph. It receives a View over
// its declared channels, performs computation, and returns a Result.
//
// Nodes are the fundamental building blocks of a graph. Each node can:
//   - Read the channels it declared in its NodeSpec.
//   - Perform computation (call LLMs, tools, or custom logic).
//   - Write deltas to one or more channels via Result.Updates.
//   - Fan out dynamic work via Result.Sends.
//   - Request a human-in-the-loop pause via Result.Interrupt.
type Node interface {
	Run(ctx context.Context, in View) (Result, error)
}

// Result is the output of a node execution.
type Result struct {
	// Updates are the deltas this node contributes to named channels this
	// step. Each channel's Channel.Update is called with the values
	// destined for it, ordered by task OrderKey and then task ID, whatever
	// order the tasks completed in.
	Updates map[string]any

	// Sends dynamically schedules further tasks, bypassing normal channel
	// triggering (map-reduce fan-out, conditional dispatch).
	Sends []plan.Send

	// Goto, if non-empty, explicitly names node(s) to run in the following
	// step regardless of channel subscriptions — the direct analogue of
	// the prior engine's Next.To/Next.Many routing.
	Goto []string

	// Interrupt, if non-nil, halts the step and bubbles a GraphInterrupt to
	// the caller with this payload, to be resumed later via Command.
	Interrupt *Interrupt

	// LLMUsage reports any model calls the node made this execution, so a
	// compiled graph's CostTracker (if set via WithCostTracker) can attribute
	// token cost back to the node and run without the node touching the
	// tracker directly.
	LLMUsage []LLMUsage
}

// LLMUsage is one model invocation's token accounting, reported by a node
// through Result so the runner can feed it to the graph's CostTracker.
type LLMUsage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, in View) (Result, error)

// Run implements Node for NodeFunc.
func (f NodeFunc) Run(ctx context.Context, in View) (Result, error) { return f(ctx, in) }

// NodeError carries structured, attributable error information for a failed
// node execution, unchanged in shape from the prior engine.
type NodeError struct {
	Message string
	Code    string
	NodeID  string
	Cause   error
}

func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

func (e *NodeError) Unwrap() error { return e.Cause }
