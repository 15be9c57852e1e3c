package routing

import (
	"fmt"
	"slices"
	"strings"

	"searchdb/pkg/types"
)

func sortedShardIDs(groups map[int]*Group) []int {
	ids := make([]int, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Table is the routing table of one index: every shard group, keyed by shard
// number. Built once via TableBuilder and immutable afterwards, so any number
// of request-routing goroutines can read it without locks while a new table
// is assembled off to the side.
type Table struct {
	index  string
	groups map[int]*Group

	allCopies []ShardCopy
	allActive []ShardCopy
}

func newTable(index string, groups map[int]*Group) *Table {
	t := &Table{index: index, groups: groups}
	for _, id := range sortedShardIDs(groups) {
		for _, c := range groups[id].copies {
			t.allCopies = append(t.allCopies, c)
			if c.Active() {
				t.allActive = append(t.allActive, c)
			}
		}
	}
	return t
}

func (t *Table) Index() string {
	return t.index
}

// Group returns the group for a shard number.
func (t *Table) Group(shard int) (*Group, bool) {
	g, ok := t.groups[shard]
	return g, ok
}

// Groups returns all groups ordered by shard number.
func (t *Table) Groups() []*Group {
	out := make([]*Group, 0, len(t.groups))
	for _, id := range sortedShardIDs(t.groups) {
		out = append(out, t.groups[id])
	}
	return out
}

func (t *Table) NumGroups() int {
	return len(t.groups)
}

// AllCopies returns every copy of every group, in shard order.
func (t *Table) AllCopies() []ShardCopy {
	return slices.Clone(t.allCopies)
}

// AllActive returns every active copy of every group, in shard order.
func (t *Table) AllActive() []ShardCopy {
	return slices.Clone(t.allActive)
}

// WithState collects copies across all groups matching one of states.
func (t *Table) WithState(states ...State) []ShardCopy {
	var out []ShardCopy
	for _, g := range t.Groups() {
		out = append(out, g.WithState(states...)...)
	}
	return out
}

// PrimariesActive counts groups whose primary is active.
func (t *Table) PrimariesActive() int {
	n := 0
	for _, g := range t.groups {
		if p, ok := g.Primary(); ok && p.Active() {
			n++
		}
	}
	return n
}

// AllPrimariesActive reports whether every group has an active primary.
func (t *Table) AllPrimariesActive() bool {
	return t.PrimariesActive() == len(t.groups)
}

// PrimariesUnassigned counts groups whose primary is missing or unassigned.
func (t *Table) PrimariesUnassigned() int {
	n := 0
	for _, g := range t.groups {
		if p, ok := g.Primary(); !ok || p.Unassigned() {
			n++
		}
	}
	return n
}

func (t *Table) AllPrimariesUnassigned() bool {
	return t.PrimariesUnassigned() == len(t.groups)
}

// NodesHoldingCopies counts the distinct nodes holding at least one copy of
// this index, minus the excluded ones.
func (t *Table) NodesHoldingCopies(excluded ...types.NodeID) int {
	nodes := make(map[types.NodeID]struct{})
	for _, c := range t.allCopies {
		if !c.Assigned() || slices.Contains(excluded, c.Node) {
			continue
		}
		nodes[c.Node] = struct{}{}
	}
	return len(nodes)
}

// Validate checks the table's shape against the expected shard and replica
// counts and that every copy belongs to this index.
func (t *Table) Validate(numShards, numReplicas int) error {
	if len(t.groups) != numShards {
		return fmt.Errorf("routing table for [%s] has %d shards, expected %d", t.index, len(t.groups), numShards)
	}
	for shard := 0; shard < numShards; shard++ {
		g, ok := t.groups[shard]
		if !ok {
			return fmt.Errorf("routing table for [%s] is missing shard [%d]", t.index, shard)
		}
		if g.Size()-1 != numReplicas {
			return fmt.Errorf("shard %s has %d replicas, expected %d", g.ShardID(), g.Size()-1, numReplicas)
		}
		for _, c := range g.copies {
			if c.Shard.Index != t.index {
				return fmt.Errorf("copy %s belongs to a different index than [%s]", c.ShortSummary(), t.index)
			}
		}
	}
	return nil
}

// PrettyPrint renders the table for logs and the inspection endpoint.
func (t *Table) PrettyPrint() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- index [%s]\n", t.index)
	for _, g := range t.Groups() {
		fmt.Fprintf(&sb, "----shard %s\n", g.ShardID())
		for _, c := range g.copies {
			fmt.Fprintf(&sb, "--------%s\n", c.ShortSummary())
		}
	}
	return sb.String()
}

// TableBuilder accumulates group edits and freezes them into a Table. Not
// safe for concurrent use; the built Table is.
type TableBuilder struct {
	index  string
	groups map[int]*GroupBuilder
}

func NewTableBuilder(index string) *TableBuilder {
	return &TableBuilder{index: index, groups: make(map[int]*GroupBuilder)}
}

// TableBuilderFrom clones an existing table's groups for incremental edits.
func TableBuilderFrom(t *Table) *TableBuilder {
	b := NewTableBuilder(t.index)
	for shard, g := range t.groups {
		b.groups[shard] = GroupBuilderFrom(g)
	}
	return b
}

// InitializeEmpty seeds the builder with every group of a fresh index: one
// primary and numReplicas replicas per shard, all unassigned.
func (b *TableBuilder) InitializeEmpty(numShards, numReplicas int) (*TableBuilder, error) {
	if len(b.groups) != 0 {
		return nil, fmt.Errorf("initializing index [%s] that already has shards", b.index)
	}
	for shard := 0; shard < numShards; shard++ {
		gb := NewGroupBuilder(ShardID{Index: b.index, ID: shard})
		for i := 0; i <= numReplicas; i++ {
			gb.Add(ShardCopy{
				Shard:   ShardID{Index: b.index, ID: shard},
				Primary: i == 0,
				State:   StateUnassigned,
			})
		}
		b.groups[shard] = gb
	}
	return b, nil
}

// Add routes a copy to its group's builder, creating the group if needed.
// The group-level duplicate guard applies.
func (b *TableBuilder) Add(c ShardCopy) *TableBuilder {
	gb, ok := b.groups[c.Shard.ID]
	if !ok {
		gb = NewGroupBuilder(c.Shard)
		b.groups[c.Shard.ID] = gb
	}
	gb.Add(c)
	return b
}

// Remove deletes a copy by value equality. A group drained to zero copies is
// dropped from the table.
func (b *TableBuilder) Remove(c ShardCopy) *TableBuilder {
	gb, ok := b.groups[c.Shard.ID]
	if !ok {
		return b
	}
	gb.Remove(c)
	if gb.Size() == 0 {
		delete(b.groups, c.Shard.ID)
	}
	return b
}

// AddGroup inserts a prebuilt group, replacing any existing one for the same
// shard number.
func (b *TableBuilder) AddGroup(g *Group) *TableBuilder {
	b.groups[g.ShardID().ID] = GroupBuilderFrom(g)
	return b
}

// AddReplica appends one unassigned replica to every group.
func (b *TableBuilder) AddReplica() *TableBuilder {
	for shard, gb := range b.groups {
		gb.Add(ShardCopy{
			Shard: ShardID{Index: b.index, ID: shard},
			State: StateUnassigned,
		})
	}
	return b
}

// RemoveReplica drops one replica from every group, preferring an unassigned
// one so live copies survive when possible.
func (b *TableBuilder) RemoveReplica() *TableBuilder {
	for _, gb := range b.groups {
		removed := false
		for _, c := range gb.copies {
			if !c.Primary && !c.Assigned() {
				gb.Remove(c)
				removed = true
				break
			}
		}
		if removed {
			continue
		}
		for _, c := range gb.copies {
			if !c.Primary {
				gb.Remove(c)
				break
			}
		}
	}
	return b
}

// Build freezes the builder into an immutable Table.
func (b *TableBuilder) Build() (*Table, error) {
	groups := make(map[int]*Group, len(b.groups))
	for shard, gb := range b.groups {
		g, err := gb.Build()
		if err != nil {
			return nil, fmt.Errorf("build shard [%d] of [%s]: %w", shard, b.index, err)
		}
		groups[shard] = g
	}
	return newTable(b.index, groups), nil
}
