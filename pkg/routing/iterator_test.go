package routing

import (
	"errors"
	"testing"

	"searchdb/pkg/types"
)

func buildGroup(t *testing.T, copies ...ShardCopy) *Group {
	t.Helper()
	b := NewGroupBuilder(testShardID())
	for _, c := range copies {
		b.Add(c)
	}
	return mustBuild(t, b)
}

func TestIterator_VisitsEveryCopyOnce(t *testing.T) {
	g := buildGroup(t,
		copyOn("nodeA", true, StateStarted),
		copyOn("nodeB", false, StateStarted),
		copyOn("nodeC", false, StateInitializing),
	)

	it := g.RandomIterator()
	seen := map[types.NodeID]int{}
	for i := 0; i < g.Size(); i++ {
		c, err := it.Next()
		if err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
		seen[c.Node]++
	}
	for _, node := range []types.NodeID{"nodeA", "nodeB", "nodeC"} {
		if seen[node] != 1 {
			t.Fatalf("node %s visited %d times, want 1", node, seen[node])
		}
	}
}

func TestIterator_Exhaustion(t *testing.T) {
	g := buildGroup(t,
		copyOn("nodeA", true, StateStarted),
		copyOn("nodeB", false, StateStarted),
	)

	it := g.Iterator()
	for i := 0; i < g.Size(); i++ {
		if _, err := it.Next(); err != nil {
			t.Fatalf("next %d: %v", i, err)
		}
	}
	if it.HasNext() {
		t.Fatal("HasNext = true after full pass")
	}
	if _, err := it.Next(); !errors.Is(err, ErrNoMoreCopies) {
		t.Fatalf("next past exhaustion: err = %v, want ErrNoMoreCopies", err)
	}
	if _, err := it.NextActive(); !errors.Is(err, ErrNoMoreCopies) {
		t.Fatalf("nextActive past exhaustion: err = %v, want ErrNoMoreCopies", err)
	}
}

func TestIterator_ResetReproducesSequence(t *testing.T) {
	g := buildGroup(t,
		copyOn("nodeA", true, StateStarted),
		copyOn("nodeB", false, StateStarted),
		copyOn("nodeC", false, StateStarted),
		copyOn("nodeD", false, StateStarted),
	)

	it := g.RandomIterator()
	var first []types.NodeID
	for it.HasNext() {
		c, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		first = append(first, c.Node)
	}

	it.Reset()
	for i := 0; it.HasNext(); i++ {
		c, err := it.Next()
		if err != nil {
			t.Fatal(err)
		}
		if c.Node != first[i] {
			t.Fatalf("position %d after reset: got %s, want %s", i, c.Node, first[i])
		}
	}
}

func TestIterator_NextActiveSkipsInactive(t *testing.T) {
	// Scenario: A primary started, B replica started, C replica initializing.
	// NextActive must only ever yield A or B, across wraparound via reset.
	g := buildGroup(t,
		copyOn("nodeA", true, StateStarted),
		copyOn("nodeB", false, StateStarted),
		copyOn("nodeC", false, StateInitializing),
	)

	it := g.RandomIterator()
	for round := 0; round < 3; round++ {
		for {
			c, ok := it.NextActiveOrNone()
			if !ok {
				break
			}
			if c.Node == "nodeC" {
				t.Fatalf("round %d: NextActive returned the initializing copy on nodeC", round)
			}
			if !c.Active() {
				t.Fatalf("round %d: NextActive returned inactive copy %s", round, c.ShortSummary())
			}
		}
		it.Reset()
	}
}

func TestIterator_RelocatingSourceCountsAsActive(t *testing.T) {
	relocating, err := copyOn("nodeA", true, StateStarted).Relocate("nodeB")
	if err != nil {
		t.Fatal(err)
	}
	g := buildGroup(t, relocating, copyOn("", false, StateUnassigned))

	it := g.Iterator()
	c, ok := it.NextActiveOrNone()
	if !ok {
		t.Fatal("expected the relocation source to be returned as active")
	}
	if c.Node != "nodeA" || c.State != StateRelocating {
		t.Fatalf("got %s", c.ShortSummary())
	}
	if _, ok := it.NextActiveOrNone(); ok {
		t.Fatal("expected exhaustion after the single active copy")
	}
}

func TestIterator_NextAssignedIncludesInitializing(t *testing.T) {
	g := buildGroup(t,
		copyOn("nodeC", false, StateInitializing),
		copyOn("", true, StateUnassigned),
	)

	it := g.Iterator()
	if _, ok := it.NextActiveOrNone(); ok {
		t.Fatal("no copy is active, NextActiveOrNone must report none")
	}

	it.Reset()
	c, ok := it.NextAssignedOrNone()
	if !ok {
		t.Fatal("expected the initializing copy from NextAssignedOrNone")
	}
	if c.Node != "nodeC" {
		t.Fatalf("assigned copy on %s, want nodeC", c.Node)
	}
	if _, ok := it.NextAssignedOrNone(); ok {
		t.Fatal("unassigned placeholder must not be returned as assigned")
	}
}

func TestIterator_SizesIgnoreCursor(t *testing.T) {
	g := buildGroup(t,
		copyOn("nodeA", true, StateStarted),
		copyOn("nodeB", false, StateRelocating),
		copyOn("nodeC", false, StateInitializing),
		copyOn("", false, StateUnassigned),
	)

	it := g.Iterator()
	if _, err := it.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := it.Next(); err != nil {
		t.Fatal(err)
	}

	if got := it.Size(); got != 4 {
		t.Errorf("Size = %d, want 4", got)
	}
	if got := it.SizeActive(); got != 2 {
		t.Errorf("SizeActive = %d, want 2", got)
	}
	if got := it.SizeAssigned(); got != 3 {
		t.Errorf("SizeAssigned = %d, want 3", got)
	}
}

func TestIterator_HasNextLookaheadDoesNotAdvance(t *testing.T) {
	g := buildGroup(t,
		copyOn("nodeA", false, StateInitializing),
		copyOn("nodeB", true, StateStarted),
	)

	it := g.Iterator()
	if !it.HasNextActive() {
		t.Fatal("HasNextActive = false, want true")
	}
	if !it.HasNextAssigned() {
		t.Fatal("HasNextAssigned = false, want true")
	}

	// The lookahead must not have consumed anything: a full pass still
	// visits both copies.
	count := 0
	for it.HasNext() {
		if _, err := it.Next(); err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 2 {
		t.Fatalf("visited %d copies after lookahead, want 2", count)
	}
}

func TestRandomIterator_OriginsRotate(t *testing.T) {
	g := buildGroup(t,
		copyOn("nodeA", true, StateStarted),
		copyOn("nodeB", false, StateStarted),
		copyOn("nodeC", false, StateStarted),
	)

	// Consecutive RandomIterator calls advance the per-group counter, so the
	// first copy rotates over the whole group.
	firsts := map[types.NodeID]bool{}
	for i := 0; i < g.Size(); i++ {
		c, err := g.RandomIterator().Next()
		if err != nil {
			t.Fatal(err)
		}
		firsts[c.Node] = true
	}
	if len(firsts) != g.Size() {
		t.Fatalf("starting copies covered %d of %d nodes", len(firsts), g.Size())
	}
}
