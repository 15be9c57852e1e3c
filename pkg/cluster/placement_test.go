package cluster

import (
	"testing"

	"searchdb/pkg/routing"
	"searchdb/pkg/types"
)

func TestPlacement_FullSetPerGroup(t *testing.T) {
	p := Placement{NumShards: 4, NumReplicas: 2}
	copies := p.AllocateIndex("docs", []types.NodeID{"nodeC", "nodeA", "nodeB"})

	if len(copies) != 4*3 {
		t.Fatalf("copies = %d, want %d", len(copies), 4*3)
	}

	perShard := map[int][]routing.ShardCopy{}
	for _, c := range copies {
		if c.Shard.Index != "docs" {
			t.Fatalf("copy carries index %q", c.Shard.Index)
		}
		perShard[c.Shard.ID] = append(perShard[c.Shard.ID], c)
	}
	for shard := 0; shard < 4; shard++ {
		group := perShard[shard]
		if len(group) != 3 {
			t.Fatalf("shard %d has %d copies, want 3", shard, len(group))
		}
		primaries := 0
		seen := map[types.NodeID]bool{}
		for _, c := range group {
			if c.Primary {
				primaries++
			}
			if c.Node == "" {
				t.Fatalf("shard %d has an unassigned copy with %d nodes available", shard, 3)
			}
			if seen[c.Node] {
				t.Fatalf("shard %d assigns node %q twice", shard, c.Node)
			}
			seen[c.Node] = true
			if c.State != routing.StateStarted {
				t.Fatalf("assigned copy in state %v", c.State)
			}
		}
		if primaries != 1 {
			t.Fatalf("shard %d has %d primaries", shard, primaries)
		}
	}
}

func TestPlacement_DeterministicAcrossNodeOrder(t *testing.T) {
	p := Placement{NumShards: 3, NumReplicas: 1}
	a := p.AllocateIndex("docs", []types.NodeID{"nodeA", "nodeB", "nodeC"})
	b := p.AllocateIndex("docs", []types.NodeID{"nodeC", "nodeB", "nodeA"})

	if len(a) != len(b) {
		t.Fatal("allocation size depends on input order")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("copy %d differs across node orderings: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestPlacement_ScarceNodesLeavePlaceholders(t *testing.T) {
	p := Placement{NumShards: 2, NumReplicas: 2}
	copies := p.AllocateIndex("docs", []types.NodeID{"nodeA"})

	for _, c := range copies {
		switch {
		case c.Primary:
			if c.Node != "nodeA" || c.State != routing.StateStarted {
				t.Fatalf("primary not placed on the only node: %+v", c)
			}
		default:
			if c.Node != "" || c.State != routing.StateUnassigned {
				t.Fatalf("replica should be an unassigned placeholder: %+v", c)
			}
		}
	}

	// The full set still builds a valid table.
	b := routing.NewTableBuilder("docs")
	for _, c := range copies {
		b.Add(c)
	}
	table, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := table.Validate(2, 2); err != nil {
		t.Fatal(err)
	}
}
