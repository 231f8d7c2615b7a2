package store

// TestCheckpointer_InterfaceContract verifies each backend satisfies the
// Checkpointer interface at compile time.
var (
	_ Checkpointer = (*MemCheckpointer)(nil)
	_ Checkpointer = (*SQLiteCheckpointer)(nil)
	_ Checkpointer = (*MySQLCheckpointer)(nil)
)
