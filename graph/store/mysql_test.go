package store

import (
	"context"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	return os.Getenv("TEST_MYSQL_DSN")
}

func TestMySQLCheckpointer_NewConnection(t *testing.T) {
	dsn := getTestDSN(t)
	if dsn == "" {
		t.Skip("skipping MySQL tests: TEST_MYSQL_DSN not set")
	}

	cp, err := NewMySQLCheckpointer(dsn)
	if err != nil {
		t.Fatalf("NewMySQLCheckpointer failed: %v", err)
	}
	defer func() { _ = cp.Close() }()

	if err := cp.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
}

func TestMySQLCheckpointer_Conformance(t *testing.T) {
	dsn := getTestDSN(t)
	if dsn == "" {
		t.Skip("skipping MySQL tests: TEST_MYSQL_DSN not set")
	}

	cp, err := NewMySQLCheckpointer(dsn)
	if err != nil {
		t.Fatalf("NewMySQLCheckpointer failed: %v", err)
	}
	defer func() { _ = cp.Close() }()

	runCheckpointerConformanceInPackage(t, cp)
}

func TestMySQLCheckpointer_ClosedRejectsOperations(t *testing.T) {
	dsn := getTestDSN(t)
	if dsn == "" {
		t.Skip("skipping MySQL tests: TEST_MYSQL_DSN not set")
	}

	cp, err := NewMySQLCheckpointer(dsn)
	if err != nil {
		t.Fatalf("NewMySQLCheckpointer failed: %v", err)
	}
	if err := cp.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := cp.Close(); err != nil {
		t.Fatalf("double Close should be a no-op, got %v", err)
	}
	if _, err := cp.GetTuple(context.Background(), NewConfig("thread")); err == nil {
		t.Fatal("expected error on GetTuple after Close")
	}
}
