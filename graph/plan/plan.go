// Package plan implements the Pregel loop's task planner: given a
// checkpoint and the set of channels each node reads, it decides which
// nodes are triggered for the next step and in what deterministic order,
// generalizing the prior engine's scheduler.go (WorkItem/ComputeOrderKey/
// Frontier) from an edge-traversal model to a channel-subscription model.
package plan

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/google/uuid"
)

// taskNamespace is the fixed UUID namespace every task_id is derived from,
// so task IDs are stable across processes without any shared counter.
var taskNamespace = uuid.MustParse("8d2f9c1e-9a3b-4f2a-8e1d-6c0b6f9a2b11")

// Trigger describes why a node is scheduled: it read updates on at least one
// of its subscribed channels since it last ran.
type Trigger struct {
	Channel string
	Version string
}

// Task is a single unit of planned work: one node invocation with a
// deterministic ID and ordering key, grounded in the same node+payload+path
// shape the prior engine's WorkItem used, minus the generic state type.
type Task struct {
	ID       string   // UUIDv5, stable given (checkpoint id, node, path)
	Node     string   // node name to invoke
	Triggers []Trigger
	Input    any       // channel values visible to the node, or a Send payload
	Path     []PathStep // provenance for OrderKey and for resuming a specific subtask
	OrderKey uint64
}

// PathStep records one hop of a task's ancestry, used both to derive its
// deterministic ID and to compute its OrderKey so that fan-out from Send
// directives still replays in the same order every run.
type PathStep struct {
	Node      string
	EdgeIndex int
}

// ChannelVersions is the set of (channel -> version) pairs visible at
// planning time, i.e. a checkpoint's ChannelVersions map.
type ChannelVersions map[string]string

// VersionsSeen is a node's record of the last channel versions it observed,
// i.e. one entry of a checkpoint's VersionsSeen map.
type VersionsSeen map[string]string

// NodeSpec is the planner's view of a compiled graph node: which channels
// it subscribes to (triggers replanning when any advances) and which it
// reads as input.
type NodeSpec struct {
	Name        string
	Subscribes  []string // channel names; any version advance triggers this node
	Reads       []string // channel names passed as input (superset of Subscribes, usually equal)
	IsPassStep  bool     // PASS nodes run unconditionally every step while active (rare; e.g. __start__)
}

// Plan computes the tasks to run for the next step, given the current
// channel versions and each node's last-seen versions. Nodes are returned in
// deterministic order: primarily by OrderKey, secondarily by name, so a
// replay with max_concurrency=1 reproduces the exact same sequence.
func Plan(ctx context.Context, checkpointID string, nodes []NodeSpec, versions ChannelVersions, seen map[string]VersionsSeen) ([]Task, error) {
	var tasks []Task

	for _, n := range nodes {
		triggers := triggeredChannels(n, versions, seen[n.Name])
		if len(triggers) == 0 && !n.IsPassStep {
			continue
		}
		path := []PathStep{{Node: n.Name, EdgeIndex: 0}}
		task := Task{
			ID:       TaskID(checkpointID, n.Name, path),
			Node:     n.Name,
			Triggers: triggers,
			Path:     path,
			OrderKey: OrderKey(path),
		}
		tasks = append(tasks, task)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].OrderKey != tasks[j].OrderKey {
			return tasks[i].OrderKey < tasks[j].OrderKey
		}
		return tasks[i].Node < tasks[j].Node
	})
	return tasks, nil
}

func triggeredChannels(n NodeSpec, versions ChannelVersions, seen VersionsSeen) []Trigger {
	var triggers []Trigger
	for _, ch := range n.Subscribes {
		current, ok := versions[ch]
		if !ok {
			continue
		}
		if last, wasSeen := seen[ch]; !wasSeen || last != current {
			triggers = append(triggers, Trigger{Channel: ch, Version: current})
		}
	}
	return triggers
}

// TaskID derives a deterministic UUIDv5 task identifier from the checkpoint
// it belongs to, the node it invokes, and its path. Re-planning the same
// checkpoint always yields the same task IDs, which is what makes PutWrites
// idempotent across retries.
func TaskID(checkpointID, node string, path []PathStep) string {
	b, _ := json.Marshal(struct {
		Checkpoint string
		Node       string
		Path       []PathStep
	}{checkpointID, node, path})
	return uuid.NewSHA1(taskNamespace, b).String()
}

// OrderKey computes a deterministic sort key from a task's path, the
// channel-subscription analogue of the prior engine's ComputeOrderKey
// (hash(parent_node, edge_index)). Extended to a full path so that a task
// several Send-hops deep from the triggering step still sorts consistently.
func OrderKey(path []PathStep) uint64 {
	h := sha256.New()
	for _, step := range path {
		h.Write([]byte(step.Node))
		edgeBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(edgeBytes, uint32(step.EdgeIndex))
		h.Write(edgeBytes)
	}
	sum := h.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
