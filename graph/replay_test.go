package graph

import (
	"context"
	"errors"
	"testing"
)

func TestRecordIOOutsideGraphIsNoop(t *testing.T) {
	if err := RecordIO(context.Background(), "req", "resp"); err != nil {
		t.Fatalf("RecordIO without a recorder should be a no-op, got %v", err)
	}
	if _, ok := ReplayResponse(context.Background()); ok {
		t.Fatal("ReplayResponse without a recorder should report ok=false")
	}
}

func TestRecordIOStagesRecordingForRunner(t *testing.T) {
	r := &ioRecorder{taskID: "task-1", attempt: 0}
	ctx := withIORecorder(context.Background(), r)

	if err := RecordIO(ctx, map[string]string{"q": "hi"}, map[string]string{"a": "hello"}); err != nil {
		t.Fatalf("RecordIO: %v", err)
	}
	if len(r.out) != 1 {
		t.Fatalf("r.out has %d entries, want 1", len(r.out))
	}
	if r.out[0].TaskID != "task-1" || r.out[0].Attempt != 0 {
		t.Errorf("recording identity = %+v, want task-1/0", r.out[0])
	}
}

func TestReplayResponseServesRecordedValueInReplayMode(t *testing.T) {
	recorded, err := recordIO("task-1", 0, "req", map[string]string{"a": "hello"})
	if err != nil {
		t.Fatalf("recordIO: %v", err)
	}

	r := &ioRecorder{taskID: "task-1", attempt: 0, replay: true, lookup: []RecordedIO{recorded}}
	ctx := withIORecorder(context.Background(), r)

	resp, ok := ReplayResponse(ctx)
	if !ok {
		t.Fatal("expected a cache hit in replay mode")
	}
	if string(resp) != string(recorded.Response) {
		t.Errorf("ReplayResponse = %s, want %s", resp, recorded.Response)
	}
}

func TestReplayResponseMissesWhenNotInReplayMode(t *testing.T) {
	recorded, _ := recordIO("task-1", 0, "req", "resp")
	r := &ioRecorder{taskID: "task-1", attempt: 0, replay: false, lookup: []RecordedIO{recorded}}
	ctx := withIORecorder(context.Background(), r)

	if _, ok := ReplayResponse(ctx); ok {
		t.Fatal("expected no recorded response outside replay mode")
	}
}

func TestStrictReplayDetectsHashMismatch(t *testing.T) {
	recorded, err := recordIO("task-1", 0, "req", map[string]string{"a": "hello"})
	if err != nil {
		t.Fatalf("recordIO: %v", err)
	}

	r := &ioRecorder{taskID: "task-1", attempt: 0, replay: true, strict: true, lookup: []RecordedIO{recorded}}
	ctx := withIORecorder(context.Background(), r)

	err = RecordIO(ctx, "req", map[string]string{"a": "goodbye"})
	if !errors.Is(err, ErrReplayMismatch) {
		t.Fatalf("RecordIO err = %v, want ErrReplayMismatch", err)
	}
}

func TestStrictReplayAcceptsMatchingResponse(t *testing.T) {
	recorded, err := recordIO("task-1", 0, "req", map[string]string{"a": "hello"})
	if err != nil {
		t.Fatalf("recordIO: %v", err)
	}

	r := &ioRecorder{taskID: "task-1", attempt: 0, replay: true, strict: true, lookup: []RecordedIO{recorded}}
	ctx := withIORecorder(context.Background(), r)

	if err := RecordIO(ctx, "req", map[string]string{"a": "hello"}); err != nil {
		t.Fatalf("RecordIO with matching response should succeed, got %v", err)
	}
}

func TestLookupRecordedIODisambiguatesByAttempt(t *testing.T) {
	first, _ := recordIO("task-1", 0, "req", "first")
	second, _ := recordIO("task-1", 1, "req", "second")
	recordings := []RecordedIO{first, second}

	got, ok := lookupRecordedIO(recordings, "task-1", 1)
	if !ok {
		t.Fatal("expected to find attempt 1")
	}
	if string(got.Response) != string(second.Response) {
		t.Errorf("lookupRecordedIO returned wrong attempt: %s", got.Response)
	}
}
