package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"searchdb/internal/http"
	"searchdb/pkg/cluster"
	"searchdb/pkg/metrics"
	"searchdb/pkg/routing"
	"searchdb/pkg/statelog"
	"searchdb/pkg/storage"
	"searchdb/pkg/types"
)

const proposeTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to YAML config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := initConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogger(&cfg)

	local := types.NodeID(cfg.Cluster.NodeID)
	registry := metrics.NewRegistry()
	state := cluster.NewState(registry)
	catalog := cluster.NewCatalog()
	store := storage.New()
	ring := cluster.NewShardRing(cfg.Routing.NumShards, cfg.Routing.PointsPerShard)
	placement := cluster.Placement{
		NumShards:   cfg.Routing.NumShards,
		NumReplicas: cfg.Routing.NumReplicas,
	}

	// Routing updates go through the replicated statelog when peers are
	// configured; a standalone node applies them directly.
	var node *statelog.Node
	if len(cfg.Raft.Peers) > 0 {
		node, err = statelog.NewNode(&cfg.Raft, state)
		if err != nil {
			slog.Error("failed to start statelog node", "error", err)
			os.Exit(1)
		}
	}

	publish := func(nodes []cluster.NodeInfo) {
		catalog.Replace(nodes)

		copies := placement.AllocateIndex(cfg.Routing.Index, catalog.IDs())
		if node == nil {
			if _, err := state.ApplyAllocation(cfg.Routing.Index, copies); err != nil {
				slog.Error("failed to apply allocation", "error", err)
			}
			return
		}
		if !node.IsLeader() {
			return
		}

		b := routing.NewTableBuilder(cfg.Routing.Index)
		for _, c := range copies {
			b.Add(c)
		}
		table, err := b.Build()
		if err != nil {
			slog.Error("failed to build routing table", "error", err)
			return
		}

		pctx, pcancel := context.WithTimeout(ctx, proposeTimeout)
		defer pcancel()
		if err := node.Propose(pctx, statelog.NewUpdate(table)); err != nil {
			slog.Error("failed to propose routing update", "error", err)
		}
	}

	var membership *cluster.ZKMembership
	if len(cfg.Cluster.ZKServers) > 0 {
		membership, err = cluster.NewZKMembership(cfg.Cluster.ZKServers, cfg.Cluster.ZKRoot, local, cfg.Cluster.Addr)
		if err != nil {
			slog.Error("failed to connect to zookeeper", "error", err)
			os.Exit(1)
		}
		defer membership.Close()

		if err := membership.RegisterSelf(); err != nil {
			slog.Error("failed to register node in zookeeper", "error", err)
			os.Exit(1)
		}
		membership.RunWatch(ctx, publish)
	} else {
		// Single-node development mode: this node is the whole cluster.
		publish([]cluster.NodeInfo{{ID: local, Addr: cfg.Cluster.Addr}})
	}

	router := &cluster.Router{
		Local: local,
		Index: cfg.Routing.Index,
		Ring:  ring,
		State: state,
		Nodes: catalog,
		Store: store,
		NewClient: func(addr string) (cluster.Remote, error) {
			return cluster.NewHTTPClient("http://" + addr), nil
		},
	}

	server := http.NewServer(router, state, fmt.Sprintf("%d", cfg.Server.Port))
	server.SetMetricsRegistry(registry)
	if node != nil {
		server.SetRaftNode(node)
	}
	if err := server.Start(); err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	slog.Info("searchdb node running",
		"node", local,
		"index", cfg.Routing.Index,
		"shards", cfg.Routing.NumShards,
		"port", cfg.Server.Port)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		slog.Error("error stopping server", "error", err)
	}
	slog.Info("searchdb stopped")
}
