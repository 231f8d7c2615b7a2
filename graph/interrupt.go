package graph

import "github.com/riverrun/pregel-go/graph/plan"

// Interrupt is the payload a node attaches to Result.Interrupt to pause the
// step and hand control back to the caller. The loop records it against the
// task's path and surfaces it as a GraphInterrupt, rather than completing
// the step and advancing channels.
type Interrupt struct {
	// Value is arbitrary data describing what the node needs from the
	// caller (a question, a proposed action, a form to fill in).
	Value any

	// Key identifies this interrupt point within the node, letting a node
	// that calls the interrupt helper more than once per run tell its
	// pauses apart on resume.
	Key string
}

// GraphInterrupt is returned by Invoke/Stream when a node's Result carries a
// non-nil Interrupt. Execution is parked at a new checkpoint that holds the
// channel values from before the interrupted step plus the interrupt value;
// resuming requires a Command submitted against the same thread.
type GraphInterrupt struct {
	// ThreadID identifies the paused run.
	ThreadID string

	// TaskPath identifies which task raised the interrupt, so Command.Resume
	// values can be routed back to the correct node on resume.
	TaskPath []plan.PathStep

	// Value is the Interrupt.Value the node supplied.
	Value any

	// Key echoes Interrupt.Key.
	Key string
}

func (e *GraphInterrupt) Error() string {
	return "graph: execution interrupted, thread " + e.ThreadID
}

// Command resumes a previously interrupted thread. Exactly one of Resume,
// Update, or Goto is typically set, though Update may be combined with
// either of the others.
type Command struct {
	// Resume supplies the value an interrupted node's resume point receives,
	// keyed by the interrupt's Key. ResumeValue looks a value up by its
	// exact key; an empty key matches only an entry stored under "".
	Resume map[string]any

	// Update applies additional channel writes before resuming, as if a
	// node had produced them (UpdateState equivalent).
	Update map[string]any

	// Goto adds tasks for the named node(s) to the first resumed step, on
	// top of the tasks planned from channel state (which include the
	// interrupted task again).
	Goto []string
}

// resumeScratchpad holds pending Command.Resume values for a thread, keyed
// by the string form of the interrupted task's path so a resumed node can
// recover the value supplied for its specific interrupt point.
type resumeScratchpad struct {
	byPath map[string]map[string]any
}

func newResumeScratchpad() *resumeScratchpad {
	return &resumeScratchpad{byPath: make(map[string]map[string]any)}
}

func pathKey(path []plan.PathStep) string {
	key := ""
	for _, step := range path {
		key += step.Node + "#"
		key += string(rune(step.EdgeIndex))
	}
	return key
}

func (s *resumeScratchpad) set(path []plan.PathStep, resume map[string]any) {
	s.byPath[pathKey(path)] = resume
}

func (s *resumeScratchpad) get(path []plan.PathStep) (map[string]any, bool) {
	v, ok := s.byPath[pathKey(path)]
	return v, ok
}

func (s *resumeScratchpad) clear(path []plan.PathStep) {
	delete(s.byPath, pathKey(path))
}
