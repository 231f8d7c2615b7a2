package graph

import (
	"fmt"

	"github.com/riverrun/pregel-go/graph/channel"
	"github.com/riverrun/pregel-go/graph/checkpoint"
	"github.com/riverrun/pregel-go/graph/plan"
	"github.com/riverrun/pregel-go/graph/store"
)

// ChannelStart and NodeEnd are reserved sentinel names for the implicit
// entry channel and terminal node. The error/interrupt/resume/tasks names
// are reserved too but owned by the checkpoint package, since they also
// appear in the on-disk checkpoint format (checkpoint.WritesIdxMap,
// checkpoint.ReservedTasksChannel).
const (
	ChannelStart = "__start__"
	NodeEnd      = "__end__"
)

var reservedNames = map[string]bool{
	ChannelStart:                  true,
	NodeEnd:                       true,
	checkpoint.ChannelError:       true,
	checkpoint.ChannelInterrupt:   true,
	checkpoint.ChannelResume:      true,
	checkpoint.ReservedTasksChannel: true,
}

type nodeEntry struct {
	node       Node
	spec       plan.NodeSpec
	policy     NodePolicy
	sideEffect SideEffectPolicy
}

// StateGraphBuilder assembles nodes, edges, and channel declarations into a
// compiled Pregel. It mirrors the prior engine's fluent Add/Connect/StartAt
// builder, generalized from a single typed state to named channels.
type StateGraphBuilder struct {
	nodes    map[string]*nodeEntry
	edges    []Edge
	channels map[string]channel.Factory
	entry    string
	err      error
}

// NewStateGraph creates an empty builder.
func NewStateGraph() *StateGraphBuilder {
	return &StateGraphBuilder{
		nodes:    make(map[string]*nodeEntry),
		channels: make(map[string]channel.Factory),
	}
}

// AddNode registers a node under name, declaring which channels trigger it
// (subscribes) and which it is allowed to read (reads). subscribes and
// reads commonly overlap; reads may additionally name channels the node
// consults without being woken by their advance.
func (b *StateGraphBuilder) AddNode(name string, node Node, subscribes, reads []string) *StateGraphBuilder {
	if b.err != nil {
		return b
	}
	if reservedNames[name] {
		b.err = fmt.Errorf("%w: %s", ErrReservedName, name)
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.err = fmt.Errorf("graph: duplicate node %q", name)
		return b
	}

	b.nodes[name] = &nodeEntry{
		node: node,
		spec: plan.NodeSpec{Name: name, Subscribes: append([]string(nil), subscribes...), Reads: append([]string(nil), reads...)},
	}
	for _, ch := range subscribes {
		b.ensureChannel(ch)
	}
	for _, ch := range reads {
		b.ensureChannel(ch)
	}
	return b
}

// WithChannel overrides the channel variant used for name, which otherwise
// defaults to channel.NewLastValue. Call before Compile.
func (b *StateGraphBuilder) WithChannel(name string, factory channel.Factory) *StateGraphBuilder {
	if reservedNames[name] {
		b.err = fmt.Errorf("%w: %s", ErrReservedName, name)
		return b
	}
	b.channels[name] = factory
	return b
}

func (b *StateGraphBuilder) ensureChannel(name string) {
	if reservedNames[name] {
		return
	}
	if _, ok := b.channels[name]; !ok {
		b.channels[name] = func() channel.Channel { return channel.NewLastValue() }
	}
}

// AddEdge wires a control-flow edge from -> to. The builder compiles it
// into a reserved trigger channel the source node's completion advances
// (subject to when) and the destination node subscribes to.
func (b *StateGraphBuilder) AddEdge(from, to string, when Predicate) *StateGraphBuilder {
	if b.err != nil {
		return b
	}
	b.edges = append(b.edges, Edge{From: from, To: to, When: when})

	if to == NodeEnd {
		return b
	}
	trigger := edgeChannelName(from, to)
	b.channels[trigger] = func() channel.Channel { return channel.NewEphemeralValue() }
	if entry, ok := b.nodes[to]; ok {
		entry.spec.Subscribes = append(entry.spec.Subscribes, trigger)
	} else {
		b.err = fmt.Errorf("graph: edge to unknown node %q", to)
	}
	return b
}

func edgeChannelName(from, to string) string {
	return "__edge__" + from + "__" + to
}

// SetEntry designates the node the graph starts at. Reachability is checked
// from this node at Compile time.
func (b *StateGraphBuilder) SetEntry(name string) *StateGraphBuilder {
	b.entry = name
	return b
}

// WithPolicy attaches a NodePolicy (timeout, retry, idempotency key func) to
// an already-registered node.
func (b *StateGraphBuilder) WithPolicy(name string, policy NodePolicy) *StateGraphBuilder {
	if entry, ok := b.nodes[name]; ok {
		entry.policy = policy
	} else {
		b.err = fmt.Errorf("graph: cannot set policy, unknown node %q", name)
	}
	return b
}

// WithSideEffectPolicy declares a node's external-I/O characteristics,
// enabling RecordIO/ReplayResponse for its execution when Recordable is
// set. Compile rejects RequiresIdempotency without a matching
// NodePolicy.IdempotencyKeyFunc.
func (b *StateGraphBuilder) WithSideEffectPolicy(name string, policy SideEffectPolicy) *StateGraphBuilder {
	if entry, ok := b.nodes[name]; ok {
		entry.sideEffect = policy
	} else {
		b.err = fmt.Errorf("graph: cannot set side-effect policy, unknown node %q", name)
	}
	return b
}

// Compile validates the graph (reserved names already rejected at
// registration time, reachability checked here) and returns an executable
// Pregel.
func (b *StateGraphBuilder) Compile(opts ...Option) (*Pregel, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.entry == "" {
		return nil, fmt.Errorf("graph: no entry node set, call SetEntry")
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, fmt.Errorf("graph: entry node %q not registered", b.entry)
	}
	if err := b.checkReachability(); err != nil {
		return nil, err
	}

	var options Options
	for _, opt := range opts {
		opt(&options)
	}
	applyDefaults(&options)
	if options.Checkpointer == nil {
		options.Checkpointer = store.NewMemCheckpointer()
	}

	specs := make([]plan.NodeSpec, 0, len(b.nodes))
	nodes := make(map[string]Node, len(b.nodes))
	policies := make(map[string]NodePolicy, len(b.nodes))
	sideEffects := make(map[string]SideEffectPolicy, len(b.nodes))
	for name, entry := range b.nodes {
		if entry.sideEffect.RequiresIdempotency && entry.policy.IdempotencyKeyFunc == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingIdempotencyKeyFunc, name)
		}
		specs = append(specs, entry.spec)
		nodes[name] = entry.node
		policies[name] = entry.policy
		sideEffects[name] = entry.sideEffect
	}

	channels := make(map[string]channel.Factory, len(b.channels))
	for name, factory := range b.channels {
		channels[name] = factory
	}

	return &Pregel{
		nodes:            nodes,
		specs:            specs,
		edges:            b.edges,
		channelFactories: channels,
		entry:            b.entry,
		policies:         policies,
		sideEffects:      sideEffects,
		opts:             options,
	}, nil
}

// checkReachability walks the static edge graph from the entry node and
// reports any node that subscribes to at least one channel but is not
// reached by AddEdge wiring. Nodes that subscribe to no channel at all
// (such as targets reached only through dynamic Sends) are exempt, since
// static analysis cannot see them being scheduled.
func (b *StateGraphBuilder) checkReachability() error {
	reachable := map[string]bool{b.entry: true}
	changed := true
	for changed {
		changed = false
		for _, edge := range b.edges {
			if reachable[edge.From] && !reachable[edge.To] {
				reachable[edge.To] = true
				changed = true
			}
		}
	}
	for name, entry := range b.nodes {
		if name == b.entry || len(entry.spec.Subscribes) == 0 {
			// The entry node, or a node that subscribes to nothing
			// (e.g. a Send target) — not subject to the edge walk.
			continue
		}
		if !reachable[name] {
			return fmt.Errorf("%w: %s", ErrUnreachableNode, name)
		}
	}
	return nil
}
