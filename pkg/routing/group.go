package routing

import (
	"errors"
	"log/slog"
	"slices"
	"sync/atomic"

	"github.com/zhangyunhao116/fastrand"
)

// ErrEmptyGroup is returned when a group builder is drained to zero copies
// and then built. Removing a whole shard happens at the table level.
var ErrEmptyGroup = errors.New("routing: group has no copies")

// duplicatesAbsorbed counts builder adds that were silently dropped because
// they would have put two copies of one shard on the same node (or a second
// primary into a group). The adds are absorbed on purpose: a stale
// allocation message must not crash request routing. The counter makes the
// condition observable so an allocator bug cannot hide behind it.
var duplicatesAbsorbed atomic.Uint64

// DuplicatesAbsorbed returns the process-wide count of absorbed adds.
func DuplicatesAbsorbed() uint64 {
	return duplicatesAbsorbed.Load()
}

// Group holds every copy of one shard: one primary and its replicas,
// including unassigned placeholders. Groups are immutable once built and may
// be shared freely across goroutines.
type Group struct {
	shardID ShardID
	copies  []ShardCopy

	// counter hands out iterator origins. Seeded randomly per group instance
	// so that round-robin starting points differ across processes.
	counter atomic.Uint32
}

func newGroup(shardID ShardID, copies []ShardCopy) *Group {
	g := &Group{shardID: shardID, copies: copies}
	g.counter.Store(fastrand.Uint32n(uint32(len(copies))))
	return g
}

func (g *Group) ShardID() ShardID {
	return g.shardID
}

func (g *Group) Size() int {
	return len(g.copies)
}

// Copies returns the copies in group order.
func (g *Group) Copies() []ShardCopy {
	return slices.Clone(g.copies)
}

// Primary returns the primary copy, or false when no primary exists yet.
func (g *Group) Primary() (ShardCopy, bool) {
	for _, c := range g.copies {
		if c.Primary {
			return c, true
		}
	}
	return ShardCopy{}, false
}

// Replicas returns all non-primary copies in group order.
func (g *Group) Replicas() []ShardCopy {
	replicas := make([]ShardCopy, 0, len(g.copies)-1)
	for _, c := range g.copies {
		if !c.Primary {
			replicas = append(replicas, c)
		}
	}
	return replicas
}

// WithState returns all copies whose state matches one of states.
func (g *Group) WithState(states ...State) []ShardCopy {
	var out []ShardCopy
	for _, c := range g.copies {
		if slices.Contains(states, c.State) {
			out = append(out, c)
		}
	}
	return out
}

func (g *Group) CountWithState(state State) int {
	n := 0
	for _, c := range g.copies {
		if c.State == state {
			n++
		}
	}
	return n
}

// Iterator returns a cursor starting at the first copy.
func (g *Group) Iterator() *Iterator {
	return newIterator(g, 0)
}

// RandomIterator returns a cursor whose origin advances by one on every call,
// spreading read load round-robin across the group's copies without any state
// shared between callers.
func (g *Group) RandomIterator() *Iterator {
	return newIterator(g, int(g.counter.Add(1)))
}

// copyAt indexes modulo the group size, so cursors can grow without bound.
func (g *Group) copyAt(i int) ShardCopy {
	if i < 0 {
		i = -i
	}
	return g.copies[i%len(g.copies)]
}

// GroupBuilder accumulates the copies of one shard. It is not safe for
// concurrent use; Build snapshots the result into an immutable Group.
type GroupBuilder struct {
	shardID ShardID
	copies  []ShardCopy
}

func NewGroupBuilder(shardID ShardID) *GroupBuilder {
	return &GroupBuilder{shardID: shardID}
}

// GroupBuilderFrom starts from an existing group's copies, for incremental
// edits.
func GroupBuilderFrom(g *Group) *GroupBuilder {
	return &GroupBuilder{shardID: g.shardID, copies: slices.Clone(g.copies)}
}

// Add appends a copy to the group. An add that would violate a group
// invariant is absorbed: two copies of one shard never share a node, and a
// group holds at most one primary, assigned or not. An assigned primary
// supersedes an unassigned primary placeholder. We rely on the allocator
// never producing such input; when it does (stale or corrupt message),
// dropping a copy beats failing the whole table rebuild.
func (b *GroupBuilder) Add(c ShardCopy) *GroupBuilder {
	for i, existing := range b.copies {
		if existing.Assigned() && c.Assigned() && existing.Node == c.Node {
			b.absorb(c, "node already holds a copy")
			return b
		}
		if existing.Primary && c.Primary {
			if !existing.Assigned() && c.Assigned() {
				b.absorb(existing, "unassigned primary superseded")
				b.copies = slices.Delete(b.copies, i, i+1)
				return b.Add(c)
			}
			b.absorb(c, "group already has a primary")
			return b
		}
	}
	b.copies = append(b.copies, c)
	return b
}

func (b *GroupBuilder) absorb(c ShardCopy, reason string) {
	duplicatesAbsorbed.Add(1)
	slog.Debug("absorbed invalid shard copy add",
		"shard", b.shardID.String(),
		"copy", c.ShortSummary(),
		"reason", reason)
}

// Remove deletes a copy by value equality. Unknown copies are ignored.
func (b *GroupBuilder) Remove(c ShardCopy) *GroupBuilder {
	for i, existing := range b.copies {
		if existing == c {
			b.copies = slices.Delete(b.copies, i, i+1)
			return b
		}
	}
	return b
}

func (b *GroupBuilder) Size() int {
	return len(b.copies)
}

// Build snapshots the accumulated copies into an immutable Group.
func (b *GroupBuilder) Build() (*Group, error) {
	if len(b.copies) == 0 {
		return nil, ErrEmptyGroup
	}
	return newGroup(b.shardID, slices.Clone(b.copies)), nil
}
