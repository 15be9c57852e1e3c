package config

// Config is the root configuration of a node. yaml tags drive file parsing.
type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	Server  ServerConfig  `yaml:"http-server"`
	Cluster ClusterConfig `yaml:"cluster"`
	Routing RoutingConfig `yaml:"routing"`
	Raft    RaftConfig    `yaml:"raft"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// ClusterConfig describes identity and membership of the node.
type ClusterConfig struct {
	NodeID    string   `yaml:"node_id"`
	Addr      string   `yaml:"addr"`
	ZKServers []string `yaml:"zk_servers"`
	ZKRoot    string   `yaml:"zk_root"`
}

// RoutingConfig controls partitioning of the document space.
type RoutingConfig struct {
	Index          string `yaml:"index"`
	NumShards      int    `yaml:"num_shards"`
	NumReplicas    int    `yaml:"num_replicas"`
	PointsPerShard int    `yaml:"points_per_shard"`
}

// RaftConfig controls the replicated routing-update log. An empty peer list
// disables replication and routing tables apply locally.
type RaftConfig struct {
	ID                        uint64     `yaml:"id"`
	Peers                     []RaftPeer `yaml:"peers"`
	ElectionTick              int        `yaml:"election_tick"`
	HeartbeatTick             int        `yaml:"heartbeat_tick"`
	MaxSizePerMsg             uint64     `yaml:"max_size_per_msg"`
	MaxCommittedSizePerReady  uint64     `yaml:"max_committed_size_per_ready"`
	MaxUncommittedEntriesSize uint64     `yaml:"max_uncommitted_entries_size"`
	MaxInflightMsgs           int        `yaml:"max_inflight_msgs"`
	CheckQuorum               bool       `yaml:"check_quorum"`
	PreVote                   bool       `yaml:"pre_vote"`
}

type RaftPeer struct {
	ID      uint64 `yaml:"id"`
	Address string `yaml:"address"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Cluster: ClusterConfig{
			NodeID: "node-1",
			Addr:   "localhost:8080",
			ZKRoot: "/searchdb",
		},
		Routing: RoutingConfig{
			Index:          "docs",
			NumShards:      16,
			NumReplicas:    1,
			PointsPerShard: 100,
		},
		Raft: RaftConfig{
			ID:                        1,
			ElectionTick:              10,
			HeartbeatTick:             1,
			MaxSizePerMsg:             1024 * 1024,
			MaxCommittedSizePerReady:  4 * 1024 * 1024,
			MaxUncommittedEntriesSize: 16 * 1024 * 1024,
			MaxInflightMsgs:           256,
			CheckQuorum:               true,
			PreVote:                   true,
		},
	}
}
