package graph

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riverrun/pregel-go/graph/plan"
)

// SendInputChannel is the pseudo-channel name a Send-dispatched task's
// payload is exposed under in its View, since Send targets run from a
// dynamic payload rather than the graph's declared channels.
const SendInputChannel = "__send_input__"

// stepView is the concrete View a task sees while its node runs: a
// read-only snapshot of channel values taken at the start of the step, plus
// the triggers that caused this particular task to be planned.
type stepView struct {
	values   map[string]any
	triggers []plan.Trigger
}

func (v *stepView) Get(name string) (any, bool) {
	val, ok := v.values[name]
	return val, ok
}

func (v *stepView) Triggers() []plan.Trigger { return v.triggers }

// taskOutcome is one task's completed (or failed) execution, paired back
// with the task so the caller can apply writes in deterministic order.
type taskOutcome struct {
	task       plan.Task
	result     Result
	err        error
	recordings []RecordedIO
}

// runStep executes every task in the batch with bounded concurrency
// (Options.MaxConcurrentNodes via Frontier), retrying per the task's node
// policy. It returns one outcome per task, in no particular order — callers
// that need deterministic application must sort by OrderKey themselves.
// recordings is the thread's I/O history so far, consulted by Recordable
// nodes running in replay mode.
func (p *Pregel) runStep(ctx context.Context, runID string, tasks []plan.Task, values map[string]any, recordings []RecordedIO) ([]taskOutcome, error) {
	if len(tasks) == 0 {
		return nil, nil
	}

	frontier := NewFrontier(p.opts.QueueDepth)
	for _, task := range tasks {
		if err := enqueueWithTimeout(ctx, frontier, task, p.opts.BackpressureTimeout); err != nil {
			if p.opts.Metrics != nil {
				p.opts.Metrics.IncrementBackpressure(runID, "queue_full")
			}
			return nil, err
		}
	}
	if p.opts.Metrics != nil {
		p.opts.Metrics.UpdateQueueDepth(frontier.Len())
	}

	outcomes := make([]taskOutcome, 0, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxInt(1, p.opts.MaxConcurrentNodes))
	errCh := make(chan error, 1)
	var inflight int32

	for i := 0; i < len(tasks); i++ {
		task, err := frontier.Dequeue(ctx)
		if err != nil {
			return nil, err
		}
		if p.opts.Metrics != nil {
			p.opts.Metrics.UpdateQueueDepth(frontier.Len())
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(t plan.Task) {
			defer wg.Done()
			defer func() { <-sem }()

			if p.opts.Metrics != nil {
				n := atomic.AddInt32(&inflight, 1)
				p.opts.Metrics.UpdateInflightNodes(int(n))
				defer func() {
					n := atomic.AddInt32(&inflight, -1)
					p.opts.Metrics.UpdateInflightNodes(int(n))
				}()
			}

			start := time.Now()
			res, newRecordings, runErr := p.executeTask(ctx, runID, t, values, recordings)
			if p.opts.Metrics != nil {
				status := "success"
				if runErr != nil {
					status = "error"
				}
				p.opts.Metrics.RecordStepLatency(runID, t.Node, time.Since(start), status)
			}
			if p.opts.CostTracker != nil {
				for _, u := range res.LLMUsage {
					_ = p.opts.CostTracker.RecordLLMCall(u.Model, u.InputTokens, u.OutputTokens, t.Node)
				}
			}

			mu.Lock()
			outcomes = append(outcomes, taskOutcome{task: t, result: res, err: runErr, recordings: newRecordings})
			mu.Unlock()

			if runErr != nil {
				select {
				case errCh <- runErr:
				default:
				}
			}
		}(task)
	}

	wg.Wait()
	close(errCh)

	select {
	case err := <-errCh:
		if err != nil {
			return outcomes, err
		}
	default:
	}

	return outcomes, nil
}

func enqueueWithTimeout(ctx context.Context, f *Frontier, task plan.Task, timeout time.Duration) error {
	if timeout <= 0 {
		return f.Enqueue(ctx, task)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := f.Enqueue(cctx, task); err != nil {
		if cctx.Err() != nil && ctx.Err() == nil {
			return ErrBackpressureTimeout
		}
		return err
	}
	return nil
}

// executeTask runs a single task's node, applying its NodePolicy timeout
// and retry behavior. A nil RetryPolicy means a single attempt. It returns
// any RecordedIO the node's Recordable side effects produced this attempt,
// for the loop to persist into the thread's checkpoint.
func (p *Pregel) executeTask(ctx context.Context, runID string, task plan.Task, values map[string]any, recordings []RecordedIO) (Result, []RecordedIO, error) {
	node, ok := p.nodes[task.Node]
	if !ok {
		return Result{}, nil, &NodeError{Message: "unknown node", NodeID: task.Node, Cause: ErrGraphValue}
	}
	policy := p.policies[task.Node]

	taskValues := values
	if task.Input != nil {
		taskValues = make(map[string]any, len(values)+1)
		for k, v := range values {
			taskValues[k] = v
		}
		taskValues[SendInputChannel] = task.Input
	}
	view := &stepView{values: taskValues, triggers: task.Triggers}

	timeout := policy.Timeout
	if timeout <= 0 {
		timeout = p.opts.DefaultNodeTimeout
	}

	retry := policy.RetryPolicy
	maxAttempts := 1
	if retry != nil {
		maxAttempts = retry.MaxAttempts
	}

	var lastErr error
	exhausted := false
	rng := rand.New(rand.NewSource(int64(task.OrderKey)))

	sideEffect := p.sideEffects[task.Node]

	for attempt := 0; attempt < maxAttempts; attempt++ {
		nodeCtx := ctx
		var cancel context.CancelFunc
		if timeout > 0 {
			nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		}

		var rec *ioRecorder
		if sideEffect.Recordable {
			rec = &ioRecorder{
				taskID:  task.ID,
				attempt: attempt,
				replay:  p.opts.ReplayMode,
				strict:  p.opts.StrictReplay,
				lookup:  recordings,
			}
			nodeCtx = withIORecorder(nodeCtx, rec)
		}

		res, err := node.Run(nodeCtx, view)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			var produced []RecordedIO
			if rec != nil {
				produced = rec.out
			}
			return res, produced, nil
		}
		lastErr = err

		if retry == nil || retry.Retryable == nil || !retry.Retryable(err) {
			break
		}
		if attempt == maxAttempts-1 {
			exhausted = true
			break
		}

		if p.opts.Metrics != nil {
			p.opts.Metrics.IncrementRetries(runID, task.Node, "error")
		}
		delay := computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay, rng)
		select {
		case <-ctx.Done():
			return Result{}, nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if exhausted && maxAttempts > 1 {
		return Result{}, nil, &NodeError{Message: "max retry attempts exceeded", NodeID: task.Node, Cause: ErrMaxAttemptsExceeded}
	}
	return Result{}, nil, &NodeError{Message: lastErr.Error(), NodeID: task.Node, Cause: lastErr}
}

// sortOutcomes orders completed tasks by OrderKey (tie-broken by task ID) so
// that channel writes fold in deterministically regardless of goroutine
// completion order.
func sortOutcomes(outcomes []taskOutcome) {
	sort.Slice(outcomes, func(i, j int) bool {
		if outcomes[i].task.OrderKey != outcomes[j].task.OrderKey {
			return outcomes[i].task.OrderKey < outcomes[j].task.OrderKey
		}
		return outcomes[i].task.ID < outcomes[j].task.ID
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
