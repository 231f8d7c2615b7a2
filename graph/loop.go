package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/riverrun/pregel-go/graph/channel"
	"github.com/riverrun/pregel-go/graph/checkpoint"
	"github.com/riverrun/pregel-go/graph/emit"
	"github.com/riverrun/pregel-go/graph/plan"
	"github.com/riverrun/pregel-go/graph/store"
)

// Pregel is a compiled graph, ready to execute threads. It holds no
// per-thread state itself — every Invoke/Stream/Resume call reconstructs
// channel state from the configured Checkpointer, runs to completion or
// interruption, and persists the result before returning.
type Pregel struct {
	nodes            map[string]Node
	specs            []plan.NodeSpec
	edges            []Edge
	channelFactories map[string]channel.Factory
	entry            string
	policies         map[string]NodePolicy
	sideEffects      map[string]SideEffectPolicy
	opts             Options
}

// threadState is the reconstructed, in-memory view of one thread's channels
// at the point its last committed checkpoint left off.
type threadState struct {
	channels     map[string]channel.Channel
	versions     map[string]string
	seen         map[string]plan.VersionsSeen
	step         int
	checkpointID string
	recordings   []RecordedIO
}

// Invoke runs a fresh or existing thread to completion (no more runnable
// tasks) or until it interrupts, and returns the final channel values.
func (p *Pregel) Invoke(ctx context.Context, threadID string, input map[string]any) (map[string]any, error) {
	return p.run(ctx, threadID, input, nil, emit.NewNullEmitter())
}

// Stream behaves like Invoke but, after each step commits, emits one event
// per task of that step to emitter (Msg "node_end", NodeID the task's node,
// Step the step number). No other events are emitted.
func (p *Pregel) Stream(ctx context.Context, threadID string, input map[string]any, emitter emit.Emitter) (map[string]any, error) {
	return p.run(ctx, threadID, input, nil, emitter)
}

// Resume continues a thread previously paused by a GraphInterrupt, applying
// cmd's updates and/or redirect before resuming.
func (p *Pregel) Resume(ctx context.Context, threadID string, cmd Command, emitter emit.Emitter) (map[string]any, error) {
	if emitter == nil {
		emitter = emit.NewNullEmitter()
	}
	return p.run(ctx, threadID, nil, &cmd, emitter)
}

func (p *Pregel) run(ctx context.Context, threadID string, input map[string]any, cmd *Command, emitter emit.Emitter) (map[string]any, error) {
	cfg := store.NewConfig(threadID)
	ts, err := p.loadThreadState(ctx, cfg)
	if err != nil {
		return nil, err
	}
	isFresh := ts.checkpointID == ""

	if p.opts.RunWallClockBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.RunWallClockBudget)
		defer cancel()
	}

	var forcedGoto []string
	switch {
	case isFresh:
		if err := p.applyExternalWrites(ts, input); err != nil {
			return nil, err
		}
	case cmd != nil:
		if err := p.applyExternalWrites(ts, cmd.Update); err != nil {
			return nil, err
		}
		forcedGoto = cmd.Goto
		if cmd.Resume != nil {
			ctx = withResumeValues(ctx, cmd.Resume)
		}
	}

	startStep := ts.step
	for {
		if p.opts.MaxSteps > 0 && ts.step-startStep >= p.opts.MaxSteps {
			return nil, fmt.Errorf("%w: %w", ErrGraphRecursion, ErrMaxStepsExceeded)
		}

		tasks, err := plan.Plan(ctx, ts.checkpointID, p.specs, plan.ChannelVersions(ts.versions), ts.seen)
		if err != nil {
			return nil, err
		}
		for _, name := range forcedGoto {
			tasks = append(tasks, p.gotoTask(ts, name))
		}
		forcedGoto = nil

		if len(tasks) == 0 {
			if ts.step == startStep {
				return nil, ErrNoRoute
			}
			break
		}

		values := snapshotValues(ts.channels)
		allOutcomes, err := p.runToFixpoint(ctx, threadID, ts.checkpointID, tasks, values, ts.recordings)
		if err != nil {
			return nil, err
		}
		sortOutcomes(allOutcomes)

		if interrupted := firstInterrupt(threadID, allOutcomes); interrupted != nil {
			if err := p.persistInterrupt(ctx, cfg, ts, interrupted); err != nil {
				return nil, err
			}
			return nil, interrupted
		}

		writes, pendingWrites, newGoto, err := p.applyOutcomes(ts, values, allOutcomes)
		if err != nil {
			return nil, err
		}
		forcedGoto = newGoto

		if err := p.commit(ctx, cfg, ts, threadID, allOutcomes, writes, pendingWrites); err != nil {
			return nil, err
		}
		emitStep(emitter, threadID, ts.step, allOutcomes)
		ts.step++
	}

	return snapshotValues(ts.channels), nil
}

// runToFixpoint runs tasks, then recursively runs any dynamically Sent
// tasks they produce, until no batch yields further Sends. All outcomes
// across every wave belong to the same Pregel step.
func (p *Pregel) runToFixpoint(ctx context.Context, runID, checkpointID string, tasks []plan.Task, values map[string]any, recordings []RecordedIO) ([]taskOutcome, error) {
	var all []taskOutcome
	pending := tasks
	for len(pending) > 0 {
		outcomes, err := p.runStep(ctx, runID, pending, values, recordings)
		if err != nil {
			return nil, err
		}
		all = append(all, outcomes...)

		var next []plan.Task
		for _, oc := range outcomes {
			if oc.err != nil {
				return nil, oc.err
			}
			if len(oc.result.Sends) > 0 {
				next = append(next, plan.ExpandSends(checkpointID, oc.task, oc.result.Sends)...)
			}
		}
		pending = next
	}
	return all, nil
}

func firstInterrupt(threadID string, outcomes []taskOutcome) *GraphInterrupt {
	for _, oc := range outcomes {
		if oc.result.Interrupt != nil {
			return &GraphInterrupt{
				ThreadID: threadID,
				TaskPath: oc.task.Path,
				Value:    oc.result.Interrupt.Value,
				Key:      oc.result.Interrupt.Key,
			}
		}
	}
	return nil
}

// applyOutcomes folds every task's Updates (plus edge-trigger writes and
// Goto collection) into per-channel write batches, without mutating
// channels yet — commit does that once all outcomes are known to be
// interrupt-free.
func (p *Pregel) applyOutcomes(ts *threadState, values map[string]any, outcomes []taskOutcome) (map[string][]any, []checkpoint.PendingWrite, []string, error) {
	writes := make(map[string][]any)
	var pendingWrites []checkpoint.PendingWrite
	var gotoNodes []string

	ranNodes := make(map[string]bool)

	for _, oc := range outcomes {
		ranNodes[oc.task.Node] = true

		for chName, val := range oc.result.Updates {
			if _, ok := ts.channels[chName]; !ok {
				return nil, nil, nil, fmt.Errorf("%w: %s", ErrGraphValue, chName)
			}
			writes[chName] = append(writes[chName], val)
			pendingWrites = append(pendingWrites, checkpoint.PendingWrite{TaskID: oc.task.ID, Channel: chName, Value: val})
		}

		for _, edge := range p.edges {
			if edge.From != oc.task.Node || edge.To == NodeEnd {
				continue
			}
			if edge.When != nil && !edge.When(&stepView{values: values}) { // pre-step values
				continue
			}
			trig := edgeChannelName(edge.From, edge.To)
			writes[trig] = append(writes[trig], struct{}{})
		}

		gotoNodes = append(gotoNodes, oc.result.Goto...)
	}

	for node := range ranNodes {
		spec := p.specByName(node)
		if spec == nil {
			continue
		}
		nodeSeen := ts.seen[node]
		if nodeSeen == nil {
			nodeSeen = plan.VersionsSeen{}
		}
		for _, chName := range spec.Subscribes {
			if v, ok := ts.versions[chName]; ok {
				nodeSeen[chName] = v
			}
		}
		ts.seen[node] = nodeSeen
	}

	return writes, pendingWrites, gotoNodes, nil
}

func (p *Pregel) specByName(name string) *plan.NodeSpec {
	for i := range p.specs {
		if p.specs[i].Name == name {
			return &p.specs[i]
		}
	}
	return nil
}

// commit folds writes into channels, advances versions for changed
// channels, and persists the resulting checkpoint.
func (p *Pregel) commit(ctx context.Context, cfg store.Config, ts *threadState, threadID string, outcomes []taskOutcome, writes map[string][]any, pendingWrites []checkpoint.PendingWrite) error {
	cp := p.opts.Checkpointer

	for chName, updates := range writes {
		ch, ok := ts.channels[chName]
		if !ok {
			continue
		}
		changed, err := ch.Update(updates)
		if err != nil {
			if p.opts.Metrics != nil {
				p.opts.Metrics.IncrementMergeConflicts(threadID, "reducer_error")
			}
			return err
		}
		if changed {
			ts.versions[chName] = cp.GetNextVersion(ts.versions[chName])
		}
	}

	values := make(map[string]any, len(ts.channels))
	for name, ch := range ts.channels {
		if ch.IsAvailable() {
			values[name] = ch.Checkpoint()
		}
	}

	for _, oc := range outcomes {
		ts.recordings = append(ts.recordings, oc.recordings...)
	}

	newCP := checkpoint.Checkpoint{
		ID:              nextCheckpointID(ts.checkpointID, ts.step),
		TS:              time.Now().UTC(),
		V:               checkpoint.CurrentVersion,
		ChannelValues:   values,
		ChannelVersions: copyVersions(ts.versions),
		VersionsSeen:    copySeen(ts.seen),
		RecordedIOs:     ts.recordings,
	}

	writeSummary := make(map[string]any, len(writes)+1)
	for name, vals := range writes {
		if len(vals) > 0 {
			writeSummary[name] = vals[len(vals)-1]
		}
	}
	tasks := make([]plan.Task, len(outcomes))
	for i, oc := range outcomes {
		tasks[i] = oc.task
	}
	if key, err := computeIdempotencyKey(threadID, ts.step, tasks, writeSummary); err == nil {
		writeSummary[idempotencyKeyMetaKey] = key
	}
	meta := checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: ts.step, Writes: writeSummary}
	if ts.checkpointID != "" {
		meta.Parents = map[string]string{store.RootNamespace: ts.checkpointID}
	}

	newCfg, err := cp.Put(ctx, cfg, newCP, meta)
	if err != nil {
		return err
	}
	if len(pendingWrites) > 0 {
		if err := cp.PutWrites(ctx, newCfg, pendingWrites); err != nil {
			return err
		}
	}

	ts.checkpointID = newCP.ID
	return nil
}

func nextCheckpointID(prev string, step int) string {
	return store.NextVersion(prev) + "-" + itoa(step)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func copyVersions(v map[string]string) map[string]string {
	out := make(map[string]string, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

func copySeen(s map[string]plan.VersionsSeen) map[string]map[string]string {
	out := make(map[string]map[string]string, len(s))
	for node, seen := range s {
		inner := make(map[string]string, len(seen))
		for ch, v := range seen {
			inner[ch] = v
		}
		out[node] = inner
	}
	return out
}

func snapshotValues(channels map[string]channel.Channel) map[string]any {
	out := make(map[string]any, len(channels))
	for name, ch := range channels {
		if val, err := ch.Get(); err == nil {
			out[name] = val
			ch.Consume()
		}
	}
	return out
}

func (p *Pregel) applyExternalWrites(ts *threadState, writes map[string]any) error {
	for name, val := range writes {
		ch, ok := ts.channels[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrGraphValue, name)
		}
		changed, err := ch.Update([]any{val})
		if err != nil {
			return err
		}
		if changed {
			ts.versions[name] = p.opts.Checkpointer.GetNextVersion(ts.versions[name])
		}
	}
	return nil
}

func (p *Pregel) gotoTask(ts *threadState, node string) plan.Task {
	path := []plan.PathStep{{Node: node, EdgeIndex: -1}}
	return plan.Task{
		ID:       plan.TaskID(ts.checkpointID, node, path),
		Node:     node,
		Path:     path,
		OrderKey: plan.OrderKey(path),
	}
}

func (p *Pregel) loadThreadState(ctx context.Context, cfg store.Config) (*threadState, error) {
	tuple, err := p.opts.Checkpointer.GetTuple(ctx, cfg)
	if errors.Is(err, store.ErrNotFound) {
		return p.freshThreadState(), nil
	}
	if err != nil {
		return nil, err
	}

	checkpoint.MigratePendingSends(&tuple.Checkpoint)

	ts := &threadState{
		channels:   make(map[string]channel.Channel, len(p.channelFactories)),
		versions:   make(map[string]string, len(tuple.Checkpoint.ChannelVersions)),
		seen:       make(map[string]plan.VersionsSeen, len(tuple.Checkpoint.VersionsSeen)),
		recordings: append([]RecordedIO(nil), tuple.Checkpoint.RecordedIOs...),
	}

	for name, factory := range p.channelFactories {
		ch := factory()
		if val, ok := tuple.Checkpoint.ChannelValues[name]; ok {
			ch = ch.FromCheckpoint(val)
		}
		ts.channels[name] = ch
	}
	for name, v := range tuple.Checkpoint.ChannelVersions {
		ts.versions[name] = v
	}
	for node, seenMap := range tuple.Checkpoint.VersionsSeen {
		ts.seen[node] = plan.VersionsSeen(seenMap)
	}
	ts.step = tuple.Metadata.Step + 1
	ts.checkpointID = tuple.Checkpoint.ID
	return ts, nil
}

func (p *Pregel) freshThreadState() *threadState {
	ts := &threadState{
		channels: make(map[string]channel.Channel, len(p.channelFactories)),
		versions: make(map[string]string),
		seen:     make(map[string]plan.VersionsSeen),
	}
	for name, factory := range p.channelFactories {
		ts.channels[name] = factory()
	}
	return ts
}

func emitStep(emitter emit.Emitter, threadID string, step int, outcomes []taskOutcome) {
	for _, oc := range outcomes {
		msg := "node_end"
		meta := map[string]interface{}{}
		if oc.result.Interrupt != nil {
			msg = "node_interrupt"
		}
		emitter.Emit(emit.Event{
			ID:     threadID + ":" + itoa(step) + ":" + oc.task.ID,
			RunID:  threadID,
			Step:   step,
			NodeID: oc.task.Node,
			Msg:    msg,
			Meta:   meta,
		})
	}
}

type resumeValuesKey struct{}

func withResumeValues(ctx context.Context, resume map[string]any) context.Context {
	return context.WithValue(ctx, resumeValuesKey{}, resume)
}

// ResumeValue retrieves the value a Command.Resume supplied for key, for a
// node to read after being resumed from an Interrupt. Returns ok=false if
// the run isn't a resume or no value was supplied for key.
func ResumeValue(ctx context.Context, key string) (any, bool) {
	resume, ok := ctx.Value(resumeValuesKey{}).(map[string]any)
	if !ok {
		return nil, false
	}
	val, ok := resume[key]
	return val, ok
}

// GetState returns the current channel values for threadID without
// executing any further steps.
func (p *Pregel) GetState(ctx context.Context, threadID string) (map[string]any, error) {
	ts, err := p.loadThreadState(ctx, store.NewConfig(threadID))
	if err != nil {
		return nil, err
	}
	return snapshotValues(ts.channels), nil
}

// GetStateHistory returns the checkpoint tuples for threadID, newest first,
// for inspection. UpdateState and the run calls always continue from the
// thread's latest checkpoint; none of them takes an older checkpoint's
// config.
func (p *Pregel) GetStateHistory(ctx context.Context, threadID string, limit int) ([]store.Tuple, error) {
	return p.opts.Checkpointer.List(ctx, store.NewConfig(threadID), store.ListOptions{Limit: limit})
}

// UpdateState writes values directly to threadID's channels as a new
// checkpoint, without running any node — the direct-patch escape hatch for
// operator intervention or test setup.
func (p *Pregel) UpdateState(ctx context.Context, threadID string, values map[string]any) (map[string]any, error) {
	cfg := store.NewConfig(threadID)
	ts, err := p.loadThreadState(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := p.applyExternalWrites(ts, values); err != nil {
		return nil, err
	}
	if err := p.commit(ctx, cfg, ts, threadID, nil, nil, nil); err != nil {
		return nil, err
	}
	return snapshotValues(ts.channels), nil
}

func (p *Pregel) persistInterrupt(ctx context.Context, cfg store.Config, ts *threadState, interrupted *GraphInterrupt) error {
	values := make(map[string]any, len(ts.channels)+1)
	for name, ch := range ts.channels {
		if ch.IsAvailable() {
			values[name] = ch.Checkpoint()
		}
	}
	values[checkpoint.ChannelInterrupt] = interrupted.Value

	newCP := checkpoint.Checkpoint{
		ID:              nextCheckpointID(ts.checkpointID, ts.step),
		TS:              time.Now().UTC(),
		V:               checkpoint.CurrentVersion,
		ChannelValues:   values,
		ChannelVersions: copyVersions(ts.versions),
		VersionsSeen:    copySeen(ts.seen),
		RecordedIOs:     ts.recordings,
	}
	meta := checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: ts.step}
	if ts.checkpointID != "" {
		meta.Parents = map[string]string{store.RootNamespace: ts.checkpointID}
	}

	_, err := p.opts.Checkpointer.Put(ctx, cfg, newCP, meta)
	return err
}
