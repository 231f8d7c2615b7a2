// Package store provides persistence implementations for the Pregel loop.
package store

import (
	"context"
	"os"
	"testing"

	"github.com/riverrun/pregel-go/graph/checkpoint"
)

// TestMySQLIntegration validates MySQLCheckpointer against a real MySQL
// database.
//
// Prerequisites:
//   - MySQL server running (local, Docker, or cloud).
//   - TEST_MYSQL_DSN environment variable set with connection string.
//
// Example DSN: "user:password@tcp(localhost:3306)/test_db?parseTime=true"
//
// To run: export TEST_MYSQL_DSN=... && go test -v -run TestMySQLIntegration ./graph/store
func TestMySQLIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping MySQL integration test: set TEST_MYSQL_DSN to run")
	}

	ctx := context.Background()
	cp, err := NewMySQLCheckpointer(dsn)
	if err != nil {
		t.Fatalf("NewMySQLCheckpointer failed: %v", err)
	}
	defer func() { _ = cp.Close() }()

	threadID := "integration-thread"
	defer func() { _ = cp.DeleteThread(ctx, threadID) }()

	cfg, err := cp.Put(ctx, NewConfig(threadID), checkpoint.Checkpoint{
		V:             checkpoint.CurrentVersion,
		ChannelValues: map[string]any{"status": "running", "step_count": 1.0},
	}, checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: 1})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	cfg, err = cp.Put(ctx, cfg, checkpoint.Checkpoint{
		V:             checkpoint.CurrentVersion,
		ChannelValues: map[string]any{"status": "done", "step_count": 2.0},
	}, checkpoint.Metadata{Source: checkpoint.SourceLoop, Step: 2})
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	tup, err := cp.GetTuple(ctx, cfg)
	if err != nil {
		t.Fatalf("GetTuple failed: %v", err)
	}
	if tup.Checkpoint.ChannelValues["status"] != "done" {
		t.Fatalf("expected status done, got %+v", tup.Checkpoint.ChannelValues)
	}

	history, err := cp.List(ctx, NewConfig(threadID), ListOptions{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 checkpoints in history, got %d", len(history))
	}
}
