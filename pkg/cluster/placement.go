package cluster

import (
	"slices"

	"searchdb/pkg/routing"
	"searchdb/pkg/types"
)

// Placement is a stand-in for a real allocator: it spreads shard copies
// round-robin over the live nodes. Its one obligation to the routing layer is
// the full-rebuild contract: every call emits the complete copy set of every
// shard group, never a diff.
type Placement struct {
	NumShards   int
	NumReplicas int
}

// AllocateIndex computes the copy set for one index over the given nodes.
// Nodes are sorted first so every cluster member derives the same layout.
// When the nodes run out, the remaining copies are emitted as unassigned
// placeholders for a later rebuild to pick up.
func (p Placement) AllocateIndex(index string, nodes []types.NodeID) []routing.ShardCopy {
	sorted := slices.Clone(nodes)
	slices.Sort(sorted)

	copies := make([]routing.ShardCopy, 0, p.NumShards*(p.NumReplicas+1))
	for shard := 0; shard < p.NumShards; shard++ {
		shardID := routing.ShardID{Index: index, ID: shard}
		for i := 0; i <= p.NumReplicas; i++ {
			c := routing.ShardCopy{
				Shard:   shardID,
				Primary: i == 0,
				State:   routing.StateUnassigned,
			}
			if i < len(sorted) {
				c.Node = sorted[(shard+i)%len(sorted)]
				c.State = routing.StateStarted
			}
			copies = append(copies, c)
		}
	}
	return copies
}
