package channel

// LastValueChannel overwrites its value with each update. At most one update
// per step is permitted; a second update in the same step is an invariant
// violation (ErrInvalidUpdate) rather than a silent overwrite, so that a
// misconfigured fan-in is caught instead of quietly discarding writes.
type LastValueChannel struct {
	value     any
	available bool
}

// NewLastValue constructs an empty LastValueChannel.
func NewLastValue() *LastValueChannel {
	return &LastValueChannel{}
}

// Update implements Channel.
func (c *LastValueChannel) Update(updates []any) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	if len(updates) > 1 {
		return false, ErrInvalidUpdate
	}
	c.value = updates[0]
	c.available = true
	return true, nil
}

// Get implements Channel.
func (c *LastValueChannel) Get() (any, error) {
	if !c.available {
		return nil, ErrEmptyChannel
	}
	return c.value, nil
}

// IsAvailable implements Channel.
func (c *LastValueChannel) IsAvailable() bool { return c.available }

// Checkpoint implements Channel.
func (c *LastValueChannel) Checkpoint() any {
	if !c.available {
		return nil
	}
	return c.value
}

// FromCheckpoint implements Channel.
func (c *LastValueChannel) FromCheckpoint(state any) Channel {
	if state == nil {
		return NewLastValue()
	}
	return &LastValueChannel{value: state, available: true}
}

// Consume implements Channel. LastValue is not consumed on read.
func (c *LastValueChannel) Consume() bool { return false }
