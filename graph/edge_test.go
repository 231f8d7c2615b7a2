package graph

import (
	"testing"

	"github.com/riverrun/pregel-go/graph/plan"
)

type fixedView struct {
	values map[string]any
}

func (v fixedView) Get(name string) (any, bool) {
	val, ok := v.values[name]
	return val, ok
}

func (v fixedView) Triggers() []plan.Trigger { return nil }

func TestEdgeUnconditional(t *testing.T) {
	e := Edge{From: "a", To: "b"}
	if e.When != nil {
		t.Fatal("unconditional edge should have a nil Predicate")
	}
}

func TestEdgePredicateEvaluation(t *testing.T) {
	e := Edge{
		From: "classify",
		To:   "escalate",
		When: func(out View) bool {
			val, ok := out.Get("severity")
			return ok && val == "high"
		},
	}

	high := fixedView{values: map[string]any{"severity": "high"}}
	if !e.When(high) {
		t.Error("expected edge to fire for high severity")
	}

	low := fixedView{values: map[string]any{"severity": "low"}}
	if e.When(low) {
		t.Error("expected edge not to fire for low severity")
	}

	empty := fixedView{values: map[string]any{}}
	if e.When(empty) {
		t.Error("expected edge not to fire when channel unset")
	}
}
