package cluster

import (
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"searchdb/pkg/metrics"
	"searchdb/pkg/routing"
)

type tableSet = map[string]*routing.Table

// State owns the published routing tables, one per index. Readers take a
// lock-free snapshot reference; the single writer rebuilds off to the side
// and publishes with one atomic pointer swap, so a reader that grabbed the
// old tables keeps a consistent view until it drops them.
type State struct {
	tables atomic.Pointer[tableSet]

	// Serializes writers only. Reads never touch it.
	mu      sync.Mutex
	metrics metrics.Collector
}

func NewState(collector metrics.Collector) *State {
	if collector == nil {
		collector = metrics.Noop()
	}
	s := &State{metrics: collector}
	empty := tableSet{}
	s.tables.Store(&empty)
	return s
}

// Table returns the current routing table of an index. The returned table is
// immutable and stays valid after later publishes.
func (s *State) Table(index string) (*routing.Table, bool) {
	t, ok := (*s.tables.Load())[index]
	return t, ok
}

// Tables returns the current table of every index.
func (s *State) Tables() []*routing.Table {
	current := *s.tables.Load()
	out := make([]*routing.Table, 0, len(current))
	for _, t := range current {
		out = append(out, t)
	}
	return out
}

// ApplyAllocation rebuilds one index's table from the complete copy set the
// allocator produced and publishes it. The contract is a full set per
// rebuild, not a diff.
func (s *State) ApplyAllocation(index string, copies []routing.ShardCopy) (*routing.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	absorbedBefore := routing.DuplicatesAbsorbed()

	b := routing.NewTableBuilder(index)
	for _, c := range copies {
		b.Add(c)
	}
	table, err := b.Build()
	if err != nil {
		return nil, err
	}

	if absorbed := routing.DuplicatesAbsorbed() - absorbedBefore; absorbed > 0 {
		slog.Warn("allocation contained invalid copies, absorbed",
			"index", index, "absorbed", absorbed)
		s.metrics.IncCounter("routing_duplicate_assignments_total",
			map[string]string{"index": index}, float64(absorbed))
	}

	s.publish(table)
	return table, nil
}

// ApplyTable publishes an already built table, e.g. one decoded from a peer.
func (s *State) ApplyTable(table *routing.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(table)
}

// RemoveIndex drops an index's table.
func (s *State) RemoveIndex(index string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(*s.tables.Load())
	delete(next, index)
	s.tables.Store(&next)
}

// publish installs a new snapshot. Caller holds s.mu.
func (s *State) publish(table *routing.Table) {
	next := maps.Clone(*s.tables.Load())
	next[table.Index()] = table
	s.tables.Store(&next)

	labels := map[string]string{"index": table.Index()}
	s.metrics.IncCounter("routing_table_applies_total", labels, 1)
	s.metrics.SetGauge("routing_primaries_active", labels, float64(table.PrimariesActive()))
	s.metrics.SetGauge("routing_copies_total", labels, float64(len(table.AllCopies())))

	slog.Info("routing table published",
		"index", table.Index(),
		"shards", table.NumGroups(),
		"primaries_active", table.PrimariesActive())
}
