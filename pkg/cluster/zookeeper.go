package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"

	"searchdb/pkg/types"
)

// ZKMembership tracks cluster membership through ZooKeeper ephemeral nodes:
// each node registers itself under <root>/nodes and watches the children for
// joins and leaves. Topology changes feed the allocator, which then rebuilds
// the routing tables.
type ZKMembership struct {
	conn     *zk.Conn
	rootPath string
	local    types.NodeID
	addr     string
}

// servers: ["zk1:2181", "zk2:2181"]
func NewZKMembership(servers []string, rootPath string, local types.NodeID, addr string) (*ZKMembership, error) {
	conn, _, err := zk.Connect(servers, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("zk connect: %w", err)
	}
	return &ZKMembership{
		conn:     conn,
		rootPath: rootPath,
		local:    local,
		addr:     addr,
	}, nil
}

func (m *ZKMembership) Close() error {
	m.conn.Close()
	return nil
}

func (m *ZKMembership) ensurePath(path string) error {
	parts := strings.Split(path, "/")
	cur := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = cur + "/" + p
		exists, _, err := m.conn.Exists(cur)
		if err != nil {
			return err
		}
		if !exists {
			_, err = m.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
			if err != nil && err != zk.ErrNodeExists {
				return err
			}
		}
	}
	return nil
}

// RegisterSelf creates the ephemeral node for the local node, with its
// address as the node data.
func (m *ZKMembership) RegisterSelf() error {
	if err := m.waitConnected(10 * time.Second); err != nil {
		return err
	}

	if err := m.ensurePath(m.rootPath + "/nodes"); err != nil {
		return fmt.Errorf("ensure nodes path: %w", err)
	}

	nodePath := fmt.Sprintf("%s/nodes/%s", m.rootPath, m.local)
	_, err := m.conn.Create(nodePath, []byte(m.addr), zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		return fmt.Errorf("create ephemeral node: %w", err)
	}

	slog.Info("registered node in zookeeper", "path", nodePath, "addr", m.addr)
	return nil
}

// ReadNodes reads the current live nodes with their addresses.
func (m *ZKMembership) ReadNodes() ([]NodeInfo, error) {
	children, _, err := m.conn.Children(m.rootPath + "/nodes")
	if err != nil {
		return nil, fmt.Errorf("zk children: %w", err)
	}
	return m.resolveNodes(children)
}

func (m *ZKMembership) resolveNodes(children []string) ([]NodeInfo, error) {
	infos := make([]NodeInfo, 0, len(children))
	for _, child := range children {
		data, _, err := m.conn.Get(fmt.Sprintf("%s/nodes/%s", m.rootPath, child))
		if err != nil {
			// Node vanished between the list and the read; the next watch
			// event delivers the corrected view.
			slog.Warn("skipping unreadable member node", "node", child, "error", err)
			continue
		}
		infos = append(infos, NodeInfo{ID: types.NodeID(child), Addr: string(data)})
	}
	return infos, nil
}

// RunWatch follows <root>/nodes and invokes onChange with the full membership
// after every topology change, starting with the view at subscription time.
func (m *ZKMembership) RunWatch(ctx context.Context, onChange func(nodes []NodeInfo)) {
	go func() {
		for {
			children, _, ch, err := m.conn.ChildrenW(m.rootPath + "/nodes")
			if err != nil {
				slog.Error("zk watch error", "error", err)
				select {
				case <-time.After(2 * time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}

			infos, err := m.resolveNodes(children)
			if err != nil {
				slog.Error("zk resolve nodes", "error", err)
			} else {
				onChange(infos)
			}

			select {
			case ev := <-ch:
				slog.Debug("zk membership event", "type", ev.Type.String(), "path", ev.Path)
			case <-ctx.Done():
				slog.Info("zk membership watch stopped")
				return
			}
		}
	}()
}

func (m *ZKMembership) waitConnected(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		st := m.conn.State()
		if st == zk.StateConnected || st == zk.StateHasSession {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("zk: not connected after %s, state=%v", timeout, st)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
