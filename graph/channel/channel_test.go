package channel

import "testing"

func TestLastValue_SingleUpdateWins(t *testing.T) {
	c := NewLastValue()
	if c.IsAvailable() {
		t.Fatal("expected fresh LastValue to be unavailable")
	}
	if _, err := c.Get(); err != ErrEmptyChannel {
		t.Fatalf("expected ErrEmptyChannel, got %v", err)
	}

	changed, err := c.Update([]any{"hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatal("expected Update to report a change")
	}
	v, err := c.Get()
	if err != nil || v != "hello" {
		t.Fatalf("expected value hello, got %v, err %v", v, err)
	}
}

func TestLastValue_MultipleUpdatesInvalid(t *testing.T) {
	c := NewLastValue()
	if _, err := c.Update([]any{"a", "b"}); err != ErrInvalidUpdate {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
}

func TestLastValue_RoundTrip(t *testing.T) {
	c := NewLastValue()
	_, _ = c.Update([]any{42})
	snap := c.Checkpoint()
	restored := c.FromCheckpoint(snap)
	v, err := restored.Get()
	if err != nil || v != 42 {
		t.Fatalf("round-trip mismatch: %v, %v", v, err)
	}
}

func TestEphemeralValue_ConsumedAfterRead(t *testing.T) {
	c := NewEphemeralValue()
	_, _ = c.Update([]any{"q"})

	v, err := c.Get()
	if err != nil || v != "q" {
		t.Fatalf("expected q, got %v, %v", v, err)
	}
	c.Consume()

	if c.IsAvailable() {
		t.Fatal("expected channel to be unavailable after Consume")
	}
	if _, err := c.Get(); err != ErrEmptyChannel {
		t.Fatalf("expected ErrEmptyChannel on second read, got %v", err)
	}
}

func TestTopic_AccumulateAcrossSteps(t *testing.T) {
	c := NewTopic(true, false)
	_, _ = c.Update([]any{"x"})
	_, _ = c.Update([]any{"y"})

	v, _ := c.Get()
	got := v.([]any)
	if len(got) != 2 || got[0] != "x" || got[1] != "y" {
		t.Fatalf("expected [x y], got %v", got)
	}
}

func TestTopic_ResetsWithoutAccumulate(t *testing.T) {
	c := NewTopic(false, false)
	_, _ = c.Update([]any{"x"})
	_, _ = c.Update([]any{"y"})

	v, _ := c.Get()
	got := v.([]any)
	if len(got) != 1 || got[0] != "y" {
		t.Fatalf("expected [y], got %v", got)
	}
}

func TestTopic_Dedupe(t *testing.T) {
	c := NewTopic(true, true)
	changed, _ := c.Update([]any{"x", "x", "y"})
	if !changed {
		t.Fatal("expected change")
	}
	changed, _ = c.Update([]any{"x"})
	if changed {
		t.Fatal("expected no change for fully-deduplicated update")
	}
}

func TestBinaryOperatorAggregate_ConcatReducer(t *testing.T) {
	concat := func(acc, update any) any {
		return acc.(string) + update.(string)
	}
	c := NewBinaryOperatorAggregate(concat, "")
	_, _ = c.Update([]any{"a", "b"})
	_, _ = c.Update([]any{"c"})

	v, err := c.Get()
	if err != nil || v != "abc" {
		t.Fatalf("expected abc, got %v, %v", v, err)
	}
}

func TestBinaryOperatorAggregate_RoundTrip(t *testing.T) {
	sum := func(acc, update any) any { return acc.(int) + update.(int) }
	c := NewBinaryOperatorAggregate(sum, 0)
	_, _ = c.Update([]any{1, 2, 3})

	restored := c.FromCheckpoint(c.Checkpoint())
	v, err := restored.Get()
	if err != nil || v != 6 {
		t.Fatalf("expected 6, got %v, %v", v, err)
	}
}

func TestEmptyChannel_NoUpdateNoChange(t *testing.T) {
	c := NewLastValue()
	changed, err := c.Update(nil)
	if err != nil || changed {
		t.Fatalf("expected no-op update, got changed=%v err=%v", changed, err)
	}
}
