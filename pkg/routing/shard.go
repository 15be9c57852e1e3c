package routing

import (
	"fmt"

	"searchdb/pkg/types"
)

// State is the lifecycle state of one shard copy.
type State byte

const (
	// StateUnassigned means the copy exists in the table but no node holds it.
	StateUnassigned State = iota + 1
	// StateInitializing means a node is recovering the copy and it cannot
	// serve reads yet.
	StateInitializing
	// StateStarted means the copy is fully allocated and serving.
	StateStarted
	// StateRelocating means the copy is moving to another node; the source
	// keeps serving until the move completes.
	StateRelocating
)

func (s State) String() string {
	switch s {
	case StateUnassigned:
		return "UNASSIGNED"
	case StateInitializing:
		return "INITIALIZING"
	case StateStarted:
		return "STARTED"
	case StateRelocating:
		return "RELOCATING"
	default:
		return fmt.Sprintf("State(%d)", byte(s))
	}
}

// StateFromByte validates a wire byte against the known states.
func StateFromByte(b byte) (State, error) {
	s := State(b)
	switch s {
	case StateUnassigned, StateInitializing, StateStarted, StateRelocating:
		return s, nil
	}
	return 0, fmt.Errorf("invalid shard state byte %d", b)
}

// ShardID names one logical shard: index name plus shard number.
type ShardID struct {
	Index string
	ID    int
}

func (id ShardID) String() string {
	return fmt.Sprintf("[%s][%d]", id.Index, id.ID)
}

// TransitionError is returned when a lifecycle transition is requested from a
// state it does not apply to.
type TransitionError struct {
	Copy ShardCopy
	Op   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("routing: cannot %s %s", e.Op, e.Copy.ShortSummary())
}

// ShardCopy is one physical copy of a shard. Values are immutable: lifecycle
// transitions return a new value, they never modify the receiver.
type ShardCopy struct {
	Shard ShardID

	// Node is empty exactly when State is StateUnassigned.
	Node types.NodeID

	// RelocatingNode is the target node of an in-flight relocation, set only
	// while State is StateRelocating.
	RelocatingNode types.NodeID

	Primary bool
	State   State
}

// Assigned reports whether the copy currently lives on a node.
func (c ShardCopy) Assigned() bool {
	return c.Node != ""
}

// Unassigned reports whether the copy is waiting for allocation.
func (c ShardCopy) Unassigned() bool {
	return c.State == StateUnassigned
}

// Active reports whether the copy can serve reads: started, or the source
// side of a relocation.
func (c ShardCopy) Active() bool {
	return c.State == StateStarted || c.State == StateRelocating
}

// Initialize assigns an unassigned copy to a node and starts recovery.
func (c ShardCopy) Initialize(node types.NodeID) (ShardCopy, error) {
	if c.State != StateUnassigned {
		return ShardCopy{}, &TransitionError{Copy: c, Op: "initialize"}
	}
	c.Node = node
	c.State = StateInitializing
	return c, nil
}

// MoveToStarted marks recovery as complete. A relocation target that finishes
// recovery also lands here, dropping the relocation marker.
func (c ShardCopy) MoveToStarted() (ShardCopy, error) {
	if c.State != StateInitializing && c.State != StateRelocating {
		return ShardCopy{}, &TransitionError{Copy: c, Op: "start"}
	}
	c.RelocatingNode = ""
	c.State = StateStarted
	return c, nil
}

// Relocate begins moving a started copy to target. The copy stays on its
// current node, and keeps serving, until the move completes.
func (c ShardCopy) Relocate(target types.NodeID) (ShardCopy, error) {
	if c.State != StateStarted {
		return ShardCopy{}, &TransitionError{Copy: c, Op: "relocate"}
	}
	c.RelocatingNode = target
	c.State = StateRelocating
	return c, nil
}

// CancelRelocation reverts a relocating copy to plain started.
func (c ShardCopy) CancelRelocation() (ShardCopy, error) {
	if c.State != StateRelocating {
		return ShardCopy{}, &TransitionError{Copy: c, Op: "cancel relocation of"}
	}
	c.RelocatingNode = ""
	c.State = StateStarted
	return c, nil
}

// Deassign returns the copy to the unassigned pool, e.g. after its node left.
func (c ShardCopy) Deassign() ShardCopy {
	c.Node = ""
	c.RelocatingNode = ""
	c.State = StateUnassigned
	return c
}

// PromoteToPrimary flags the copy as the primary of its group. The caller is
// responsible for demoting the previous primary in the same rebuild.
func (c ShardCopy) PromoteToPrimary() ShardCopy {
	c.Primary = true
	return c
}

// DemoteToReplica clears the primary flag.
func (c ShardCopy) DemoteToReplica() ShardCopy {
	c.Primary = false
	return c
}

// ShortSummary renders the copy on one line for logs and table dumps.
func (c ShardCopy) ShortSummary() string {
	role := "r"
	if c.Primary {
		role = "p"
	}
	node := "unassigned"
	if c.Assigned() {
		node = string(c.Node)
	}
	if c.RelocatingNode != "" {
		return fmt.Sprintf("%s node[%s] -> node[%s] [%s] %s", c.Shard, node, c.RelocatingNode, role, c.State)
	}
	return fmt.Sprintf("%s node[%s] [%s] %s", c.Shard, node, role, c.State)
}
