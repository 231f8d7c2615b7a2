package store

// RootNamespace is the checkpoint namespace used for a thread's top-level
// graph, as opposed to the namespace of a subgraph invoked from within a
// node (which is scoped as "parentNamespace|nodeID").
const RootNamespace = ""

// NewConfig builds a Config addressing the latest checkpoint of a thread's
// root namespace. Use WithCheckpointID / WithNamespace for more specific
// addressing.
func NewConfig(threadID string) Config {
	return Config{ThreadID: threadID, Namespace: RootNamespace}
}

// WithCheckpointID returns a copy of cfg addressing a specific checkpoint.
func (cfg Config) WithCheckpointID(id string) Config {
	cfg.CheckpointID = id
	return cfg
}

// WithNamespace returns a copy of cfg scoped to a subgraph namespace.
func (cfg Config) WithNamespace(ns string) Config {
	cfg.Namespace = ns
	return cfg
}
