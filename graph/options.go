package graph

import (
	"time"

	"github.com/riverrun/pregel-go/graph/store"
)

// Options configures a compiled Pregel's execution behavior. Zero values are
// valid; Compile applies documented defaults for anything left unset.
type Options struct {
	// MaxSteps limits execution to prevent infinite loops (A -> B -> A with
	// no exit condition). If 0, Compile applies the default of 100; a
	// negative value disables the limit.
	MaxSteps int

	// MaxConcurrentNodes limits how many tasks within a single step execute
	// in parallel. Default 8. Set to 1 for strictly sequential execution.
	MaxConcurrentNodes int

	// QueueDepth sets the frontier's capacity for a single step's fan-out.
	// Default 1024.
	QueueDepth int

	// BackpressureTimeout caps how long Enqueue waits for frontier space
	// before the loop returns ErrBackpressureTimeout. Default 30s.
	BackpressureTimeout time.Duration

	// DefaultNodeTimeout bounds node execution when a node's own
	// NodePolicy.Timeout is unset. Default 30s.
	DefaultNodeTimeout time.Duration

	// RunWallClockBudget bounds total Invoke/Stream wall-clock time. 0
	// disables the budget.
	RunWallClockBudget time.Duration

	// ReplayMode, when true, serves recorded I/O to nodes whose
	// SideEffectPolicy.Recordable is set instead of executing it live.
	ReplayMode bool

	// StrictReplay fails a replayed run with ErrReplayMismatch when a
	// recorded I/O call's hash doesn't match the live call being made.
	StrictReplay bool

	// Checkpointer persists checkpoints between steps. Required to Compile;
	// store.NewMemCheckpointer() is the typical default for tests.
	Checkpointer store.Checkpointer

	// InterruptBefore holds node names to pause before. The Pregel loop
	// does not read it: no GraphInterrupt is raised for these nodes, and a
	// run pauses only when a node returns Result.Interrupt.
	InterruptBefore []string

	// InterruptAfter holds node names to pause after. The Pregel loop does
	// not read it either, so it raises no GraphInterrupt.
	InterruptAfter []string

	// Metrics enables Prometheus collection of frontier and step metrics.
	Metrics *PrometheusMetrics

	// CostTracker enables per-model LLM cost accounting across the run.
	CostTracker *CostTracker
}

// Option is a functional option for a StateGraphBuilder, applied at Compile
// time on top of any Options value passed directly.
type Option func(*Options)

// WithMaxSteps limits execution to prevent infinite loops.
func WithMaxSteps(n int) Option {
	return func(o *Options) { o.MaxSteps = n }
}

// WithMaxConcurrent sets the maximum number of tasks executing concurrently
// within a step.
func WithMaxConcurrent(n int) Option {
	return func(o *Options) { o.MaxConcurrentNodes = n }
}

// WithQueueDepth sets the capacity of the per-step execution frontier.
func WithQueueDepth(n int) Option {
	return func(o *Options) { o.QueueDepth = n }
}

// WithBackpressureTimeout sets the maximum time to wait when the frontier
// queue is full before returning ErrBackpressureTimeout.
func WithBackpressureTimeout(d time.Duration) Option {
	return func(o *Options) { o.BackpressureTimeout = d }
}

// WithDefaultNodeTimeout sets the execution timeout applied to nodes that
// don't set their own NodePolicy.Timeout.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(o *Options) { o.DefaultNodeTimeout = d }
}

// WithRunWallClockBudget bounds total execution time for one Invoke/Stream
// call.
func WithRunWallClockBudget(d time.Duration) Option {
	return func(o *Options) { o.RunWallClockBudget = d }
}

// WithReplayMode toggles serving recorded I/O to recordable nodes instead of
// executing it live.
func WithReplayMode(enabled bool) Option {
	return func(o *Options) { o.ReplayMode = enabled }
}

// WithStrictReplay toggles whether a replay hash mismatch fails the run.
func WithStrictReplay(enabled bool) Option {
	return func(o *Options) { o.StrictReplay = enabled }
}

// WithCheckpointer sets the durable store backing checkpoint commits.
func WithCheckpointer(cp store.Checkpointer) Option {
	return func(o *Options) { o.Checkpointer = cp }
}

// WithInterruptBefore appends nodes to Options.InterruptBefore. The loop
// does not read that field, so no interrupt is raised before these nodes.
func WithInterruptBefore(nodes ...string) Option {
	return func(o *Options) { o.InterruptBefore = append(o.InterruptBefore, nodes...) }
}

// WithInterruptAfter appends nodes to Options.InterruptAfter. The loop does
// not read that field, so no interrupt is raised after these nodes.
func WithInterruptAfter(nodes ...string) Option {
	return func(o *Options) { o.InterruptAfter = append(o.InterruptAfter, nodes...) }
}

// WithMetrics enables Prometheus metrics collection for the compiled graph.
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(o *Options) { o.Metrics = metrics }
}

// WithCostTracker enables LLM cost tracking for the compiled graph.
func WithCostTracker(tracker *CostTracker) Option {
	return func(o *Options) { o.CostTracker = tracker }
}

func applyDefaults(o *Options) {
	if o.MaxConcurrentNodes == 0 {
		o.MaxConcurrentNodes = 8
	}
	if o.QueueDepth == 0 {
		o.QueueDepth = 1024
	}
	if o.BackpressureTimeout == 0 {
		o.BackpressureTimeout = 30 * time.Second
	}
	if o.DefaultNodeTimeout == 0 {
		o.DefaultNodeTimeout = 30 * time.Second
	}
	if o.MaxSteps == 0 {
		o.MaxSteps = 100
	}
}
