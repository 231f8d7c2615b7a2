// Package graph provides the core graph execution engine for LangGraph-Go.
package graph

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/riverrun/pregel-go/graph/checkpoint"
)

// RecordedIO is the root package's name for a captured external
// interaction; the on-disk shape lives in graph/checkpoint since it's part
// of the checkpoint format.
type RecordedIO = checkpoint.RecordedIO

// recordIO serializes request/response to JSON, hashes the response for
// later mismatch detection, and returns the RecordedIO to persist.
func recordIO(taskID string, attempt int, request, response interface{}) (RecordedIO, error) {
	start := time.Now()

	requestJSON, err := json.Marshal(request)
	if err != nil {
		return RecordedIO{}, fmt.Errorf("failed to marshal request: %w", err)
	}
	responseJSON, err := json.Marshal(response)
	if err != nil {
		return RecordedIO{}, fmt.Errorf("failed to marshal response: %w", err)
	}

	hasher := sha256.New()
	hasher.Write(responseJSON)
	hashStr := "sha256:" + hex.EncodeToString(hasher.Sum(nil))

	return RecordedIO{
		TaskID:    taskID,
		Attempt:   attempt,
		Request:   json.RawMessage(requestJSON),
		Response:  json.RawMessage(responseJSON),
		Hash:      hashStr,
		Timestamp: time.Now(),
		Duration:  time.Since(start),
	}, nil
}

// lookupRecordedIO finds a recording by (taskID, attempt), the key a
// Recordable node's calls are disambiguated by across retries and
// concurrent fan-out.
func lookupRecordedIO(recordings []RecordedIO, taskID string, attempt int) (RecordedIO, bool) {
	for _, rec := range recordings {
		if rec.TaskID == taskID && rec.Attempt == attempt {
			return rec, true
		}
	}
	return RecordedIO{}, false
}

// verifyReplayHash reports ErrReplayMismatch when actualResponse's hash
// doesn't match a recording's, meaning the node's logic diverged from the
// run being replayed (non-seeded RNG, wall-clock reads, iteration-order
// dependence, etc.).
func verifyReplayHash(recorded RecordedIO, actualResponse interface{}) error {
	actualJSON, err := json.Marshal(actualResponse)
	if err != nil {
		return fmt.Errorf("failed to marshal actual response: %w", err)
	}
	hasher := sha256.New()
	hasher.Write(actualJSON)
	actualHash := "sha256:" + hex.EncodeToString(hasher.Sum(nil))

	if actualHash != recorded.Hash {
		return fmt.Errorf("%w: expected %s, got %s", ErrReplayMismatch, recorded.Hash, actualHash)
	}
	return nil
}

// ioRecorder is attached to a task's context for the duration of one
// attempt, giving a Recordable node's body access to replay lookups and a
// place to stage newly recorded calls for the runner to persist.
type ioRecorder struct {
	taskID  string
	attempt int
	replay  bool
	strict  bool
	lookup  []RecordedIO

	mu  sync.Mutex
	out []RecordedIO
}

type ioRecorderKey struct{}

func withIORecorder(ctx context.Context, r *ioRecorder) context.Context {
	return context.WithValue(ctx, ioRecorderKey{}, r)
}

func ioRecorderFromContext(ctx context.Context) (*ioRecorder, bool) {
	r, ok := ctx.Value(ioRecorderKey{}).(*ioRecorder)
	return r, ok
}

// ReplayResponse returns the recorded response for the running task's
// current attempt if the graph is executing in replay mode and a matching
// recording exists, letting a Recordable node skip its live external call
// entirely. ok is false outside replay mode or on a cache miss (first-ever
// execution of this call).
func ReplayResponse(ctx context.Context) (json.RawMessage, bool) {
	r, ok := ioRecorderFromContext(ctx)
	if !ok || !r.replay {
		return nil, false
	}
	rec, found := lookupRecordedIO(r.lookup, r.taskID, r.attempt)
	if !found {
		return nil, false
	}
	return rec.Response, true
}

// RecordIO captures a Recordable node's external call so the runner
// persists it into the thread's checkpoint for future replay. Outside a
// compiled graph's execution (ctx has no recorder attached) it's a no-op,
// so nodes can call it unconditionally rather than branching on whether
// they're under test. In strict replay mode it also verifies the live
// response against the recording it's replaying, returning
// ErrReplayMismatch on divergence.
func RecordIO(ctx context.Context, request, response any) error {
	r, ok := ioRecorderFromContext(ctx)
	if !ok {
		return nil
	}

	if r.strict && r.replay {
		if recorded, found := lookupRecordedIO(r.lookup, r.taskID, r.attempt); found {
			if err := verifyReplayHash(recorded, response); err != nil {
				return err
			}
		}
	}

	rec, err := recordIO(r.taskID, r.attempt, request, response)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.out = append(r.out, rec)
	r.mu.Unlock()
	return nil
}
