package plan

// Send is a node's directive to dynamically schedule another node with an
// explicit payload, bypassing the normal channel-subscription trigger. It is
// how a node fans out work (e.g. map-reduce over a list) without every
// target needing its own statically wired edge.
type Send struct {
	Node    string
	Payload any
}

// ExpandSends turns Send directives collected from a completed task into
// planned Tasks, each a child of the originating task's path so OrderKey and
// TaskID stay deterministic across replays regardless of goroutine
// scheduling order.
func ExpandSends(checkpointID string, parent Task, sends []Send) []Task {
	tasks := make([]Task, 0, len(sends))
	for i, s := range sends {
		path := append(append([]PathStep{}, parent.Path...), PathStep{Node: s.Node, EdgeIndex: i})
		tasks = append(tasks, Task{
			ID:       TaskID(checkpointID, s.Node, path),
			Node:     s.Node,
			Input:    s.Payload,
			Path:     path,
			OrderKey: OrderKey(path),
		})
	}
	return tasks
}
