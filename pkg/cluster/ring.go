package cluster

import (
	"fmt"
	"hash/crc32"
	"sort"
)

// ShardRing maps document keys onto shard numbers with consistent hashing
// over virtual points, so the keyspace splits evenly across shards of an
// index. The ring is fixed at construction (shard counts only change with a
// new index), so reads need no locking.
type ShardRing struct {
	numShards int
	hashes    []int
	shardOf   map[int]int // point hash -> shard number
}

// NewShardRing builds a ring of numShards shards with pointsPerShard virtual
// points each.
func NewShardRing(numShards, pointsPerShard int) *ShardRing {
	r := &ShardRing{
		numShards: numShards,
		shardOf:   make(map[int]int, numShards*pointsPerShard),
	}
	for shard := 0; shard < numShards; shard++ {
		for i := 0; i < pointsPerShard; i++ {
			hash := int(crc32.ChecksumIEEE(fmt.Appendf(nil, "shard-%d#%d", shard, i)))
			r.hashes = append(r.hashes, hash)
			r.shardOf[hash] = shard
		}
	}
	sort.Ints(r.hashes)
	return r
}

func (r *ShardRing) NumShards() int {
	return r.numShards
}

// ShardForKey returns the shard owning key, false only for an empty ring.
func (r *ShardRing) ShardForKey(key string) (int, bool) {
	if len(r.hashes) == 0 {
		return 0, false
	}
	hash := int(crc32.ChecksumIEEE([]byte(key)))
	idx := sort.SearchInts(r.hashes, hash)
	if idx == len(r.hashes) {
		idx = 0
	}
	return r.shardOf[r.hashes[idx]], true
}
