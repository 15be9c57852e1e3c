package statelog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/etcd/raft/v3"
	"go.etcd.io/etcd/raft/v3/raftpb"

	"searchdb/pkg/config"
	"searchdb/pkg/routing"
)

// Applier receives decoded routing tables in commit order.
type Applier interface {
	ApplyTable(table *routing.Table)
}

type iTransport interface {
	Send(msg raftpb.Message) error
	AddPeer(id uint64, addr string)
	RemovePeer(id uint64)
	UpdatePeer(id uint64, addr string)
}

// Node replicates routing-table updates through etcd/raft, so the whole
// cluster applies the same sequence of tables regardless of which member
// proposed them.
type Node struct {
	ID           uint64
	Peers        map[uint64]string
	underlying   raft.Node
	applier      Applier
	jr           *raft.MemoryStorage
	conf         *raftpb.ConfState
	tickInterval time.Duration
	transport    iTransport

	ctx  context.Context
	stop context.CancelFunc

	proposalsMu sync.RWMutex
	proposals   map[uuid.UUID]chan proposeResult
}

func NewNode(cfg *config.RaftConfig, applier Applier) (*Node, error) {
	rc := toRaftConfig(cfg)
	storage := raft.NewMemoryStorage()
	rc.Storage = storage

	var (
		confState raftpb.ConfState
		peers     = make(map[uint64]string, len(cfg.Peers))
		raftPeers = make([]raft.Peer, 0, len(cfg.Peers))
	)
	for _, p := range cfg.Peers {
		if _, ok := peers[p.ID]; ok {
			return nil, fmt.Errorf("duplicate peer ID %d", p.ID)
		}
		peers[p.ID] = p.Address
		confState.Voters = append(confState.Voters, p.ID)
		raftPeers = append(raftPeers, raft.Peer{
			ID:      p.ID,
			Context: []byte(p.Address),
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		ID:           cfg.ID,
		Peers:        peers,
		conf:         &confState,
		underlying:   raft.StartNode(rc, raftPeers),
		applier:      applier,
		jr:           storage,
		tickInterval: 100 * time.Millisecond,
		transport:    NewTransport(peers),
		proposals:    make(map[uuid.UUID]chan proposeResult),
		ctx:          ctx,
		stop:         cancel,
	}, nil
}

func (n *Node) Run(ctx context.Context) error {
	ticker := time.NewTicker(n.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return n.ctx.Err()
		case <-ctx.Done():
			_ = n.Stop()
			return ctx.Err()
		case <-ticker.C:
			n.underlying.Tick()
		case rd := <-n.underlying.Ready():
			if err := n.handleReady(rd); err != nil {
				return err
			}
		}
	}
}

func (n *Node) handleReady(rd raft.Ready) error {
	if err := n.jr.Append(rd.Entries); err != nil {
		return fmt.Errorf("append entries: %w", err)
	}

	n.sendMessages(rd.Messages)

	for _, entry := range rd.CommittedEntries {
		n.applyEntry(entry)

		if entry.Type == raftpb.EntryConfChange {
			var cc raftpb.ConfChange
			if err := cc.Unmarshal(entry.Data); err != nil {
				return fmt.Errorf("unmarshal conf change: %w", err)
			}
			n.conf = n.underlying.ApplyConfChange(cc)
			n.updateTransport(cc)
		}
	}

	n.underlying.Advance()
	return nil
}

func (n *Node) updateTransport(cc raftpb.ConfChange) {
	switch cc.Type {
	case raftpb.ConfChangeAddNode:
		peerAddr := string(cc.Context)
		n.Peers[cc.NodeID] = peerAddr
		n.transport.AddPeer(cc.NodeID, peerAddr)
		slog.Info("added peer", "id", cc.NodeID, "addr", peerAddr)

	case raftpb.ConfChangeRemoveNode:
		delete(n.Peers, cc.NodeID)
		n.transport.RemovePeer(cc.NodeID)
		slog.Info("removed peer", "id", cc.NodeID)

	case raftpb.ConfChangeUpdateNode:
		peerAddr := string(cc.Context)
		n.Peers[cc.NodeID] = peerAddr
		n.transport.UpdatePeer(cc.NodeID, peerAddr)
		slog.Info("updated peer", "id", cc.NodeID, "addr", peerAddr)
	}
}

func (n *Node) sendMessages(msgs []raftpb.Message) {
	for _, msg := range msgs {
		if msg.To == n.ID {
			continue
		}

		go func(m raftpb.Message) {
			if err := n.transport.Send(m); err != nil {
				slog.Error("failed to send raft message",
					"from", m.From,
					"to", m.To,
					"type", m.Type,
					"error", err)
			}
		}(msg)
	}
}

// applyEntry decodes and applies one committed update. A corrupt update is
// rejected without touching the published tables: the proposer gets the
// error, the log keeps going. Every member sees the same bytes, so every
// member rejects the same entries.
func (n *Node) applyEntry(entry raftpb.Entry) {
	if entry.Type != raftpb.EntryNormal || len(entry.Data) == 0 {
		return
	}

	var update Update
	if err := json.Unmarshal(entry.Data, &update); err != nil {
		slog.Error("undecodable routing update entry, skipped",
			"index", entry.Index, "error", err)
		return
	}

	table, err := update.DecodeTable()
	if err != nil {
		slog.Error("rejected routing update", "error", err)
		n.notifyProposalResult(update.ID, proposeResult{Err: err})
		return
	}

	n.applier.ApplyTable(table)
	n.notifyProposalResult(update.ID, proposeResult{Err: nil})
}

func (n *Node) IsLeader() bool {
	return n.underlying.Status().Lead == n.ID
}

func (n *Node) LeaderID() uint64 {
	return n.underlying.Status().Lead
}

func (n *Node) LeaderAddr() string {
	leaderID := n.underlying.Status().Lead
	return n.Peers[leaderID]
}

type proposeResult struct {
	Err error
}

func (n *Node) notifyProposalResult(updateID uuid.UUID, result proposeResult) {
	n.proposalsMu.RLock()
	resultChan, ok := n.proposals[updateID]
	n.proposalsMu.RUnlock()

	if !ok {
		// Followers apply updates they never proposed; a proposer may also
		// have timed out already.
		slog.Debug("proposal result channel not found (ignored)",
			"update_id", updateID, "is_leader", n.IsLeader())
		return
	}

	select {
	case resultChan <- result:
	default:
		slog.Debug("proposal result channel is full (ignored)", "update_id", updateID)
	}
}

// Propose replicates a routing update and waits until the cluster commits and
// applies it, or ctx expires.
func (n *Node) Propose(ctx context.Context, update Update) error {
	if _, err := update.DecodeTable(); err != nil {
		return err
	}

	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}

	resultChan := make(chan proposeResult, 1)
	n.proposalsMu.Lock()
	n.proposals[update.ID] = resultChan
	n.proposalsMu.Unlock()

	defer func() {
		n.proposalsMu.Lock()
		delete(n.proposals, update.ID)
		n.proposalsMu.Unlock()
	}()

	if err := n.underlying.Propose(ctx, data); err != nil {
		return fmt.Errorf("propose: %w", err)
	}

	select {
	case result := <-resultChan:
		return result.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle feeds an incoming raft message from another node into the state
// machine.
func (n *Node) Handle(ctx context.Context, msg raftpb.Message) error {
	return n.underlying.Step(ctx, msg)
}

func (n *Node) Stop() error {
	slog.Info("stopping statelog node", "id", n.ID)

	n.underlying.Stop()
	n.stop()

	n.proposalsMu.Lock()
	for _, resultChan := range n.proposals {
		select {
		case resultChan <- proposeResult{Err: fmt.Errorf("node stopped")}:
		default:
		}
		close(resultChan)
	}
	n.proposalsMu.Unlock()

	slog.Info("statelog node stopped", "id", n.ID)
	return nil
}
