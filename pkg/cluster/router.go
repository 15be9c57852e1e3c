package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"searchdb/pkg/routing"
	"searchdb/pkg/types"
)

var (
	// ErrNoCopyAvailable means no copy of the target shard is on any node,
	// not even one still initializing.
	ErrNoCopyAvailable = errors.New("cluster: no copy available for shard")

	// ErrNoActivePrimary means the shard's primary cannot take writes right
	// now. The caller decides whether to wait for the next routing table.
	ErrNoActivePrimary = errors.New("cluster: no active primary for shard")

	errUnknownNode = errors.New("cluster: node not in catalog")
)

// Remote is a client to another node's document API.
type Remote interface {
	PutDoc(ctx context.Context, key, value string) error
	GetDoc(ctx context.Context, key string) (string, bool, error)
	DeleteDoc(ctx context.Context, key string) error
}

// ClientFactory builds remote clients by node address.
type ClientFactory func(addr string) (Remote, error)

// DocStore is the node-local document store the router falls through to when
// the selected copy lives here.
type DocStore interface {
	Put(key, value string) error
	Get(key string) (string, bool, error)
	Delete(key string) error
}

// Router sends document operations to a shard copy: reads go to any active
// copy, picked round-robin through the group's iterator with a fallback to
// assigned copies mid-recovery; writes go to the primary. All routing reads
// run against the table snapshot current at call time.
type Router struct {
	Local     types.NodeID
	Index     string
	Ring      *ShardRing
	State     *State
	Nodes     *Catalog
	Store     DocStore
	NewClient ClientFactory
}

func (r *Router) group(key string) (*routing.Group, error) {
	shard, ok := r.Ring.ShardForKey(key)
	if !ok {
		return nil, fmt.Errorf("ring for index [%s] is empty", r.Index)
	}
	table, ok := r.State.Table(r.Index)
	if !ok {
		return nil, fmt.Errorf("no routing table for index [%s]", r.Index)
	}
	g, ok := table.Group(shard)
	if !ok {
		return nil, fmt.Errorf("no routing for shard [%s][%d]", r.Index, shard)
	}
	return g, nil
}

// pickReadCopy prefers an active copy; when none serves, it retries the same
// pass order for anything assigned, so a recovering copy can still answer.
func pickReadCopy(g *routing.Group) (routing.ShardCopy, error) {
	it := g.RandomIterator()
	if c, ok := it.NextActiveOrNone(); ok {
		return c, nil
	}
	if c, ok := it.Reset().NextAssignedOrNone(); ok {
		return c, nil
	}
	return routing.ShardCopy{}, fmt.Errorf("%s: %w", g.ShardID(), ErrNoCopyAvailable)
}

func (r *Router) remote(node types.NodeID) (Remote, error) {
	info, ok := r.Nodes.Get(node)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownNode, node)
	}
	cl, err := r.NewClient(info.Addr)
	if err != nil {
		return nil, fmt.Errorf("router: create client for %s: %w", node, err)
	}
	return cl, nil
}

func (r *Router) logRoute(method, key string, c routing.ShardCopy) {
	slog.Debug("routed request",
		"method", method,
		"key", key,
		"shard", c.Shard.String(),
		"node", c.Node,
		"local", c.Node == r.Local)
}

func (r *Router) Get(ctx context.Context, key string) (string, bool, error) {
	g, err := r.group(key)
	if err != nil {
		return "", false, err
	}
	c, err := pickReadCopy(g)
	if err != nil {
		return "", false, err
	}
	r.logRoute("GET", key, c)

	if c.Node == r.Local {
		return r.Store.Get(key)
	}
	cl, err := r.remote(c.Node)
	if err != nil {
		return "", false, err
	}
	return cl.GetDoc(ctx, key)
}

func (r *Router) Put(ctx context.Context, key, value string) error {
	g, err := r.group(key)
	if err != nil {
		return err
	}
	primary, ok := g.Primary()
	if !ok || !primary.Active() {
		return fmt.Errorf("%s: %w", g.ShardID(), ErrNoActivePrimary)
	}
	r.logRoute("PUT", key, primary)

	if primary.Node == r.Local {
		return r.Store.Put(key, value)
	}
	cl, err := r.remote(primary.Node)
	if err != nil {
		return err
	}
	return cl.PutDoc(ctx, key, value)
}

func (r *Router) Delete(ctx context.Context, key string) error {
	g, err := r.group(key)
	if err != nil {
		return err
	}
	primary, ok := g.Primary()
	if !ok || !primary.Active() {
		return fmt.Errorf("%s: %w", g.ShardID(), ErrNoActivePrimary)
	}
	r.logRoute("DELETE", key, primary)

	if primary.Node == r.Local {
		return r.Store.Delete(key)
	}
	cl, err := r.remote(primary.Node)
	if err != nil {
		return err
	}
	return cl.DeleteDoc(ctx, key)
}
