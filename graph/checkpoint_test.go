package graph

import (
	"strings"
	"testing"

	"github.com/riverrun/pregel-go/graph/plan"
)

func TestComputeIdempotencyKeyDeterministic(t *testing.T) {
	tasks := []plan.Task{
		{ID: "t2", OrderKey: 2},
		{ID: "t1", OrderKey: 1},
	}
	writes := map[string]any{"out": 1}

	a, err := computeIdempotencyKey("thread-1", 3, tasks, writes)
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}
	b, err := computeIdempotencyKey("thread-1", 3, tasks, writes)
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}
	if a != b {
		t.Fatalf("identical inputs produced different keys: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "sha256:") {
		t.Errorf("key %q missing sha256: prefix", a)
	}
}

func TestComputeIdempotencyKeyIgnoresTaskOrderInSlice(t *testing.T) {
	writes := map[string]any{"out": 1}
	forward := []plan.Task{{ID: "a", OrderKey: 1}, {ID: "b", OrderKey: 2}}
	reversed := []plan.Task{{ID: "b", OrderKey: 2}, {ID: "a", OrderKey: 1}}

	k1, err := computeIdempotencyKey("thread-1", 0, forward, writes)
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}
	k2, err := computeIdempotencyKey("thread-1", 0, reversed, writes)
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("key depends on slice order: %s vs %s, want stable after internal sort", k1, k2)
	}
}

func TestComputeIdempotencyKeyVariesWithInputs(t *testing.T) {
	tasks := []plan.Task{{ID: "a", OrderKey: 1}}
	base, err := computeIdempotencyKey("thread-1", 0, tasks, map[string]any{"out": 1})
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}

	byThread, err := computeIdempotencyKey("thread-2", 0, tasks, map[string]any{"out": 1})
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}
	if byThread == base {
		t.Error("different threadID produced the same key")
	}

	byStep, err := computeIdempotencyKey("thread-1", 1, tasks, map[string]any{"out": 1})
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}
	if byStep == base {
		t.Error("different step produced the same key")
	}

	byWrites, err := computeIdempotencyKey("thread-1", 0, tasks, map[string]any{"out": 2})
	if err != nil {
		t.Fatalf("computeIdempotencyKey: %v", err)
	}
	if byWrites == base {
		t.Error("different writes produced the same key")
	}
}
