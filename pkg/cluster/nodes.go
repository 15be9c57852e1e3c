package cluster

import (
	"github.com/zhangyunhao116/skipmap"

	"searchdb/pkg/types"
)

// NodeInfo holds metadata about a node.
type NodeInfo struct {
	ID   types.NodeID
	Addr string
	DC   string
	Rack string
}

// Catalog is the live view of cluster nodes: request-routing goroutines
// resolve node ids to addresses from it while the membership watcher applies
// joins and leaves.
type Catalog struct {
	nodes *skipmap.StringMap[NodeInfo]
}

func NewCatalog() *Catalog {
	return &Catalog{nodes: skipmap.NewString[NodeInfo]()}
}

func (c *Catalog) Put(info NodeInfo) {
	c.nodes.Store(string(info.ID), info)
}

func (c *Catalog) Remove(id types.NodeID) {
	c.nodes.Delete(string(id))
}

func (c *Catalog) Get(id types.NodeID) (NodeInfo, bool) {
	return c.nodes.Load(string(id))
}

// IDs returns all node ids in sorted order.
func (c *Catalog) IDs() []types.NodeID {
	ids := make([]types.NodeID, 0, c.nodes.Len())
	c.nodes.Range(func(key string, _ NodeInfo) bool {
		ids = append(ids, types.NodeID(key))
		return true
	})
	return ids
}

// All returns all nodes in id order.
func (c *Catalog) All() []NodeInfo {
	infos := make([]NodeInfo, 0, c.nodes.Len())
	c.nodes.Range(func(_ string, info NodeInfo) bool {
		infos = append(infos, info)
		return true
	})
	return infos
}

func (c *Catalog) Len() int {
	return c.nodes.Len()
}

// Replace swaps the whole membership in one pass, returning the ids that
// joined and left relative to the previous view.
func (c *Catalog) Replace(infos []NodeInfo) (joined, left []types.NodeID) {
	next := make(map[string]NodeInfo, len(infos))
	for _, info := range infos {
		next[string(info.ID)] = info
	}
	c.nodes.Range(func(key string, _ NodeInfo) bool {
		if _, ok := next[key]; !ok {
			left = append(left, types.NodeID(key))
			c.nodes.Delete(key)
		}
		return true
	})
	for key, info := range next {
		if _, ok := c.nodes.Load(key); !ok {
			joined = append(joined, types.NodeID(key))
		}
		c.nodes.Store(key, info)
	}
	return joined, left
}
