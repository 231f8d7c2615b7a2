package channel

// BinaryOperatorAggregateChannel folds each step's updates into an
// accumulated value using a user-supplied associative Reducer, starting from
// Initial. This is the channel variant LangGraph calls a "reducer channel":
// writers submit deltas (update_type), the channel folds them with Operator
// into the payload (value_type), which may be a different shape entirely
// (e.g. deltas are single strings, the payload is a running slice).
type BinaryOperatorAggregateChannel struct {
	Operator  Reducer
	Initial   any
	value     any
	available bool
}

// NewBinaryOperatorAggregate constructs a channel seeded with initial and
// folded by operator.
func NewBinaryOperatorAggregate(operator Reducer, initial any) *BinaryOperatorAggregateChannel {
	return &BinaryOperatorAggregateChannel{Operator: operator, Initial: initial}
}

// Update implements Channel. Updates are folded in the order given — the
// caller (the runner, per spec) is responsible for supplying them in
// task-completion order so that non-commutative reducers behave
// deterministically under max_concurrency=1.
func (c *BinaryOperatorAggregateChannel) Update(updates []any) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	if !c.available {
		c.value = c.Initial
		c.available = true
	}
	for _, u := range updates {
		c.value = c.Operator(c.value, u)
	}
	return true, nil
}

// Get implements Channel.
func (c *BinaryOperatorAggregateChannel) Get() (any, error) {
	if !c.available {
		return nil, ErrEmptyChannel
	}
	return c.value, nil
}

// IsAvailable implements Channel.
func (c *BinaryOperatorAggregateChannel) IsAvailable() bool { return c.available }

// Checkpoint implements Channel.
func (c *BinaryOperatorAggregateChannel) Checkpoint() any {
	if !c.available {
		return nil
	}
	return c.value
}

// FromCheckpoint implements Channel.
func (c *BinaryOperatorAggregateChannel) FromCheckpoint(state any) Channel {
	restored := &BinaryOperatorAggregateChannel{Operator: c.Operator, Initial: c.Initial}
	if state == nil {
		return restored
	}
	restored.value = state
	restored.available = true
	return restored
}

// Consume implements Channel. Aggregates are not consumed on read.
func (c *BinaryOperatorAggregateChannel) Consume() bool { return false }
