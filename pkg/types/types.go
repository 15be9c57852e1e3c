package types

// NodeID identifies a node in a cluster.
type NodeID string
