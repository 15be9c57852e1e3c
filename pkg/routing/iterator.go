package routing

import (
	"errors"
	"fmt"
)

// ErrNoMoreCopies is returned by Next, NextActive and NextAssigned once the
// cursor has visited every copy. Callers that prefer a soft signal use the
// OrNone variants instead.
var ErrNoMoreCopies = errors.New("routing: no more copies")

// Iterator walks the copies of one Group, visiting each exactly once per
// pass. Three filter tiers share a single cursor: any copy, only active
// copies (serving reads), or only assigned copies (on a node, even while
// still initializing).
//
// An Iterator holds mutable cursor state and must not be shared between
// goroutines; each caller obtains its own from Group.Iterator or
// Group.RandomIterator. The group itself is immutable and safe to share.
type Iterator struct {
	group *Group

	origin  int
	index   int
	visited int
}

func newIterator(g *Group, origin int) *Iterator {
	return &Iterator{group: g, origin: origin, index: origin}
}

func (it *Iterator) ShardID() ShardID {
	return it.group.ShardID()
}

// Size is the total copy count of the underlying group.
func (it *Iterator) Size() int {
	return it.group.Size()
}

// SizeActive counts active copies. Does not move the cursor.
func (it *Iterator) SizeActive() int {
	n := 0
	for _, c := range it.group.copies {
		if c.Active() {
			n++
		}
	}
	return n
}

// SizeAssigned counts assigned copies. Does not move the cursor.
func (it *Iterator) SizeAssigned() int {
	n := 0
	for _, c := range it.group.copies {
		if c.Assigned() {
			n++
		}
	}
	return n
}

func (it *Iterator) HasNext() bool {
	return it.visited < it.group.Size()
}

// Next returns the next copy, in any state, or ErrNoMoreCopies once every
// copy has been visited.
func (it *Iterator) Next() (ShardCopy, error) {
	if !it.HasNext() {
		return ShardCopy{}, fmt.Errorf("%s: %w", it.group.shardID, ErrNoMoreCopies)
	}
	it.visited++
	c := it.group.copyAt(it.index)
	it.index++
	return c, nil
}

// HasNextActive reports whether a forward scan from the current position
// would find an active copy. Does not move the cursor.
func (it *Iterator) HasNextActive() bool {
	visited, index := it.visited, it.index
	for visited < it.group.Size() {
		visited++
		if it.group.copyAt(index).Active() {
			return true
		}
		index++
	}
	return false
}

// NextActiveOrNone advances until it finds an active copy. The scan consumes
// cursor positions: copies skipped over are not revisited on later calls.
// Returns false once the group is exhausted.
func (it *Iterator) NextActiveOrNone() (ShardCopy, bool) {
	for it.visited < it.group.Size() {
		it.visited++
		c := it.group.copyAt(it.index)
		it.index++
		if c.Active() {
			return c, true
		}
	}
	return ShardCopy{}, false
}

// NextActive is NextActiveOrNone with a hard failure on exhaustion.
func (it *Iterator) NextActive() (ShardCopy, error) {
	c, ok := it.NextActiveOrNone()
	if !ok {
		return ShardCopy{}, fmt.Errorf("%s: no active copy: %w", it.group.shardID, ErrNoMoreCopies)
	}
	return c, nil
}

// HasNextAssigned reports whether a forward scan from the current position
// would find an assigned copy. Does not move the cursor.
func (it *Iterator) HasNextAssigned() bool {
	visited, index := it.visited, it.index
	for visited < it.group.Size() {
		visited++
		if it.group.copyAt(index).Assigned() {
			return true
		}
		index++
	}
	return false
}

// NextAssignedOrNone advances until it finds a copy with a node, including
// ones still initializing. A weaker filter than NextActiveOrNone, for callers
// that target recovery destinations rather than query-serving capacity.
func (it *Iterator) NextAssignedOrNone() (ShardCopy, bool) {
	for it.visited < it.group.Size() {
		it.visited++
		c := it.group.copyAt(it.index)
		it.index++
		if c.Assigned() {
			return c, true
		}
	}
	return ShardCopy{}, false
}

// NextAssigned is NextAssignedOrNone with a hard failure on exhaustion.
func (it *Iterator) NextAssigned() (ShardCopy, error) {
	c, ok := it.NextAssignedOrNone()
	if !ok {
		return ShardCopy{}, fmt.Errorf("%s: no assigned copy: %w", it.group.shardID, ErrNoMoreCopies)
	}
	return c, nil
}

// Reset rewinds the cursor to its origin and returns the iterator, so a
// caller can fall back to a weaker filter over the same pass order.
func (it *Iterator) Reset() *Iterator {
	it.index = it.origin
	it.visited = 0
	return it
}
