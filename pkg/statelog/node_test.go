package statelog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.etcd.io/etcd/raft/v3/raftpb"

	"searchdb/pkg/config"
	"searchdb/pkg/routing"
)

// recordingApplier collects the tables applied in commit order.
type recordingApplier struct {
	mu     sync.Mutex
	tables []*routing.Table
}

func (a *recordingApplier) ApplyTable(table *routing.Table) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables = append(a.tables, table)
}

func (a *recordingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tables)
}

func (a *recordingApplier) last() *routing.Table {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.tables) == 0 {
		return nil
	}
	return a.tables[len(a.tables)-1]
}

// mockTransport records peer changes and outgoing messages.
type mockTransport struct {
	mu      sync.Mutex
	added   map[uint64]string
	updated map[uint64]string
	removed []uint64
	sent    []raftpb.Message
}

func newMockTransport() *mockTransport {
	return &mockTransport{added: map[uint64]string{}, updated: map[uint64]string{}}
}

func (m *mockTransport) Send(msg raftpb.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockTransport) AddPeer(id uint64, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added[id] = addr
}

func (m *mockTransport) RemovePeer(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, id)
}

func (m *mockTransport) UpdatePeer(id uint64, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated[id] = addr
}

func testRaftConfig(id uint64, peers ...config.RaftPeer) *config.RaftConfig {
	return &config.RaftConfig{
		ID:                        id,
		Peers:                     peers,
		ElectionTick:              10,
		HeartbeatTick:             2,
		MaxSizePerMsg:             1024,
		MaxCommittedSizePerReady:  4096,
		MaxUncommittedEntriesSize: 8192,
		MaxInflightMsgs:           256,
	}
}

func singleNode(t *testing.T) (*Node, *recordingApplier, *mockTransport) {
	t.Helper()
	applier := &recordingApplier{}
	n, err := NewNode(testRaftConfig(1, config.RaftPeer{ID: 1, Address: "n1"}), applier)
	if err != nil {
		t.Fatalf("create node: %v", err)
	}
	mt := newMockTransport()
	n.transport = mt
	t.Cleanup(func() { _ = n.Stop() })
	return n, applier, mt
}

func normalEntry(t *testing.T, u Update) raftpb.Entry {
	t.Helper()
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal update: %v", err)
	}
	return raftpb.Entry{Type: raftpb.EntryNormal, Index: 1, Data: data}
}

func TestNode_ApplyEntryDeliversTable(t *testing.T) {
	n, applier, _ := singleNode(t)

	u := NewUpdate(sampleTable(t))
	resultChan := make(chan proposeResult, 1)
	n.proposalsMu.Lock()
	n.proposals[u.ID] = resultChan
	n.proposalsMu.Unlock()

	n.applyEntry(normalEntry(t, u))

	if applier.count() != 1 {
		t.Fatalf("applied %d tables, want 1", applier.count())
	}
	if got := applier.last(); got.Index() != "docs" || got.NumGroups() != 2 {
		t.Fatalf("applied table [%s]/%d", got.Index(), got.NumGroups())
	}
	select {
	case res := <-resultChan:
		if res.Err != nil {
			t.Fatalf("proposer notified with error: %v", res.Err)
		}
	default:
		t.Fatal("proposer never notified")
	}
}

func TestNode_ApplyEntryRejectsCorruptUpdate(t *testing.T) {
	n, applier, _ := singleNode(t)

	u := NewUpdate(sampleTable(t))
	u.Table = u.Table[:len(u.Table)-1]
	resultChan := make(chan proposeResult, 1)
	n.proposalsMu.Lock()
	n.proposals[u.ID] = resultChan
	n.proposalsMu.Unlock()

	n.applyEntry(normalEntry(t, u))

	if applier.count() != 0 {
		t.Fatal("corrupt update must not reach the applier")
	}
	select {
	case res := <-resultChan:
		if res.Err == nil {
			t.Fatal("proposer must see the rejection")
		}
	default:
		t.Fatal("proposer never notified of the rejection")
	}
}

func TestNode_ApplyEntrySkipsGarbage(t *testing.T) {
	n, applier, _ := singleNode(t)

	n.applyEntry(raftpb.Entry{Type: raftpb.EntryNormal, Index: 1, Data: []byte("{")})
	n.applyEntry(raftpb.Entry{Type: raftpb.EntryNormal, Index: 2})
	n.applyEntry(raftpb.Entry{Type: raftpb.EntryConfChange, Index: 3, Data: []byte("x")})

	if applier.count() != 0 {
		t.Fatalf("applied %d tables from garbage entries", applier.count())
	}
}

func TestNode_UpdateTransport(t *testing.T) {
	n, _, mt := singleNode(t)

	n.updateTransport(raftpb.ConfChange{
		Type: raftpb.ConfChangeAddNode, NodeID: 2, Context: []byte("n2"),
	})
	if mt.added[2] != "n2" || n.Peers[2] != "n2" {
		t.Fatalf("add not propagated: transport=%q peers=%q", mt.added[2], n.Peers[2])
	}

	n.updateTransport(raftpb.ConfChange{
		Type: raftpb.ConfChangeUpdateNode, NodeID: 2, Context: []byte("n2b"),
	})
	if mt.updated[2] != "n2b" || n.Peers[2] != "n2b" {
		t.Fatalf("update not propagated: transport=%q peers=%q", mt.updated[2], n.Peers[2])
	}

	n.updateTransport(raftpb.ConfChange{Type: raftpb.ConfChangeRemoveNode, NodeID: 2})
	if len(mt.removed) != 1 || mt.removed[0] != 2 {
		t.Fatalf("remove not propagated: %v", mt.removed)
	}
	if _, ok := n.Peers[2]; ok {
		t.Fatal("removed peer still in peer map")
	}
}

// inprocTransport short-circuits messages between in-memory nodes.
type inprocTransport struct {
	mu    sync.RWMutex
	nodes map[uint64]*Node
}

func (tr *inprocTransport) Send(msg raftpb.Message) error {
	tr.mu.RLock()
	target, ok := tr.nodes[msg.To]
	tr.mu.RUnlock()
	if !ok {
		return nil
	}
	go func() { _ = target.Handle(context.Background(), msg) }()
	return nil
}

func (tr *inprocTransport) AddPeer(uint64, string)    {}
func (tr *inprocTransport) RemovePeer(uint64)         {}
func (tr *inprocTransport) UpdatePeer(uint64, string) {}

func waitForLeader(t *testing.T, nodes []*Node, timeout time.Duration) *Node {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var leaders []*Node
		for _, n := range nodes {
			if n.IsLeader() {
				leaders = append(leaders, n)
			}
		}
		if len(leaders) == 1 {
			return leaders[0]
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("no leader within %s", timeout)
	return nil
}

func TestNode_ReplicatesTableToAllMembers(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a 3-node election")
	}

	peers := []config.RaftPeer{
		{ID: 1, Address: "n1"}, {ID: 2, Address: "n2"}, {ID: 3, Address: "n3"},
	}
	transport := &inprocTransport{nodes: map[uint64]*Node{}}
	appliers := make([]*recordingApplier, 3)
	nodes := make([]*Node, 3)

	for i := range nodes {
		appliers[i] = &recordingApplier{}
		n, err := NewNode(testRaftConfig(uint64(i+1), peers...), appliers[i])
		if err != nil {
			t.Fatalf("create node %d: %v", i+1, err)
		}
		n.transport = transport
		nodes[i] = n
		transport.mu.Lock()
		transport.nodes[n.ID] = n
		transport.mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, n := range nodes {
		go func(n *Node) { _ = n.Run(ctx) }(n)
	}

	leader := waitForLeader(t, nodes, 5*time.Second)

	pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pcancel()
	if err := leader.Propose(pctx, NewUpdate(sampleTable(t))); err != nil {
		t.Fatalf("propose: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		done := 0
		for _, a := range appliers {
			if a.count() > 0 && a.last().Index() == "docs" {
				done++
			}
		}
		if done == len(appliers) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("table not applied on every member")
}
