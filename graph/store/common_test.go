package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/riverrun/pregel-go/graph/checkpoint"
	"github.com/riverrun/pregel-go/graph/store"
)

// runCheckpointerConformance exercises the Checkpointer contract against
// any backend. No test calls it: the package's backend tests use
// runCheckpointerConformanceInPackage, which checks only a Put/GetTuple
// round-trip.
func runCheckpointerConformance(t *testing.T, cp store.Checkpointer) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetTuple on empty thread returns ErrNotFound", func(t *testing.T) {
		_, err := cp.GetTuple(ctx, store.NewConfig("thread-empty"))
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Put then GetTuple round-trips", func(t *testing.T) {
		cfg := store.NewConfig("thread-a")
		cp1 := checkpoint.Checkpoint{
			V:               checkpoint.CurrentVersion,
			ChannelValues:   map[string]any{"messages": []any{"hi"}},
			ChannelVersions: map[string]string{"messages": "00000000000000000001"},
		}
		meta := checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: 1}

		out, err := cp.Put(ctx, cfg, cp1, meta)
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if out.CheckpointID == "" {
			t.Fatal("expected Put to populate CheckpointID")
		}

		tup, err := cp.GetTuple(ctx, store.NewConfig("thread-a"))
		if err != nil {
			t.Fatalf("GetTuple failed: %v", err)
		}
		if tup.Config.CheckpointID != out.CheckpointID {
			t.Fatalf("expected latest checkpoint %s, got %s", out.CheckpointID, tup.Config.CheckpointID)
		}
		if tup.Metadata.Step != 1 {
			t.Fatalf("expected step 1, got %d", tup.Metadata.Step)
		}
	})

	t.Run("successive Put calls form a parent chain", func(t *testing.T) {
		threadID := "thread-chain"
		cfg := store.NewConfig(threadID)

		first, err := cp.Put(ctx, cfg, checkpoint.Checkpoint{V: checkpoint.CurrentVersion}, checkpoint.Metadata{Step: 1})
		if err != nil {
			t.Fatalf("first Put failed: %v", err)
		}
		second, err := cp.Put(ctx, first, checkpoint.Checkpoint{V: checkpoint.CurrentVersion}, checkpoint.Metadata{Step: 2})
		if err != nil {
			t.Fatalf("second Put failed: %v", err)
		}

		tup, err := cp.GetTuple(ctx, second)
		if err != nil {
			t.Fatalf("GetTuple failed: %v", err)
		}
		if tup.ParentConfig == nil || tup.ParentConfig.CheckpointID != first.CheckpointID {
			t.Fatalf("expected parent %s, got %+v", first.CheckpointID, tup.ParentConfig)
		}
	})

	t.Run("List returns newest-first and honors Limit", func(t *testing.T) {
		threadID := "thread-list"
		cfg := store.NewConfig(threadID)
		var last store.Config = cfg
		for i := 1; i <= 3; i++ {
			var err error
			last, err = cp.Put(ctx, last, checkpoint.Checkpoint{V: checkpoint.CurrentVersion}, checkpoint.Metadata{Step: i})
			if err != nil {
				t.Fatalf("Put step %d failed: %v", i, err)
			}
		}

		all, err := cp.List(ctx, cfg, store.ListOptions{})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 checkpoints, got %d", len(all))
		}
		if all[0].Metadata.Step != 3 || all[2].Metadata.Step != 1 {
			t.Fatalf("expected newest-first ordering, got steps %d,%d,%d", all[0].Metadata.Step, all[1].Metadata.Step, all[2].Metadata.Step)
		}

		limited, err := cp.List(ctx, cfg, store.ListOptions{Limit: 2})
		if err != nil {
			t.Fatalf("limited List failed: %v", err)
		}
		if len(limited) != 2 {
			t.Fatalf("expected 2 checkpoints with Limit=2, got %d", len(limited))
		}
	})

	t.Run("PutWrites reserved channel overwrites, ordinary channel appends", func(t *testing.T) {
		cfg, err := cp.Put(ctx, store.NewConfig("thread-writes"), checkpoint.Checkpoint{V: checkpoint.CurrentVersion}, checkpoint.Metadata{Step: 1})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}

		err = cp.PutWrites(ctx, cfg, []checkpoint.PendingWrite{
			{TaskID: "t1", Channel: "out", Value: "a"},
			{TaskID: "t1", Channel: checkpoint.ChannelError, Value: "first error"},
		})
		if err != nil {
			t.Fatalf("PutWrites failed: %v", err)
		}
		err = cp.PutWrites(ctx, cfg, []checkpoint.PendingWrite{
			{TaskID: "t1", Channel: "out", Value: "b"},
			{TaskID: "t1", Channel: checkpoint.ChannelError, Value: "second error"},
		})
		if err != nil {
			t.Fatalf("second PutWrites failed: %v", err)
		}

		tup, err := cp.GetTuple(ctx, cfg)
		if err != nil {
			t.Fatalf("GetTuple failed: %v", err)
		}

		var outCount int
		var lastErrVal any
		for _, w := range tup.PendingWrites {
			switch w.Channel {
			case "out":
				outCount++
			case checkpoint.ChannelError:
				lastErrVal = w.Value
			}
		}
		if outCount != 2 {
			t.Fatalf("expected 2 appended ordinary writes, got %d", outCount)
		}
		if lastErrVal != "second error" {
			t.Fatalf("expected reserved channel to hold latest write, got %v", lastErrVal)
		}
	})

	t.Run("DeleteThread removes all namespaces and writes", func(t *testing.T) {
		threadID := "thread-delete"
		cfg, err := cp.Put(ctx, store.NewConfig(threadID), checkpoint.Checkpoint{V: checkpoint.CurrentVersion}, checkpoint.Metadata{Step: 1})
		if err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		if err := cp.PutWrites(ctx, cfg, []checkpoint.PendingWrite{{TaskID: "t1", Channel: "out", Value: 1}}); err != nil {
			t.Fatalf("PutWrites failed: %v", err)
		}

		if err := cp.DeleteThread(ctx, threadID); err != nil {
			t.Fatalf("DeleteThread failed: %v", err)
		}

		if _, err := cp.GetTuple(ctx, store.NewConfig(threadID)); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after DeleteThread, got %v", err)
		}
	})

	t.Run("GetNextVersion is strictly increasing and lexicographically comparable", func(t *testing.T) {
		v1 := cp.GetNextVersion("")
		v2 := cp.GetNextVersion(v1)
		v3 := cp.GetNextVersion(v2)
		if !(v1 < v2 && v2 < v3) {
			t.Fatalf("expected strictly increasing versions, got %q, %q, %q", v1, v2, v3)
		}
	})

	t.Run("MarkEventsEmitted on empty input is a no-op", func(t *testing.T) {
		if err := cp.MarkEventsEmitted(ctx, nil); err != nil {
			t.Fatalf("expected no-op, got %v", err)
		}
	})
}
