package statelog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/zhangyunhao116/skipmap"
	"go.etcd.io/etcd/raft/v3/raftpb"
)

const (
	raftRoute   = "/api/internal/raft"
	sendTimeout = 3 * time.Second
	sendRetries = 3
	sendBackoff = 100 * time.Millisecond
)

// Transport delivers raft messages to statelog peers through their internal
// HTTP endpoint. Peer addresses sit in a concurrent map: conf changes land
// from the raft loop while send goroutines read.
type Transport struct {
	peers  *skipmap.Uint64Map[string]
	client *http.Client
}

func NewTransport(peers map[uint64]string) *Transport {
	t := &Transport{
		peers:  skipmap.NewUint64[string](),
		client: &http.Client{Timeout: sendTimeout},
	}
	for id, addr := range peers {
		t.peers.Store(id, addr)
	}
	return t
}

func (t *Transport) AddPeer(id uint64, addr string)    { t.peers.Store(id, addr) }
func (t *Transport) UpdatePeer(id uint64, addr string) { t.peers.Store(id, addr) }
func (t *Transport) RemovePeer(id uint64)              { t.peers.Delete(id) }

// Send posts one message to its destination, retrying transient failures
// with a growing backoff. Raft tolerates lost messages, so the retry budget
// stays small and a final failure is only logged by the caller.
func (t *Transport) Send(msg raftpb.Message) error {
	addr, ok := t.peers.Load(msg.To)
	if !ok {
		return fmt.Errorf("statelog: no address for peer %d", msg.To)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("statelog: marshal message: %w", err)
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = t.post(addr+raftRoute, body); lastErr == nil {
			return nil
		}
		if attempt == sendRetries {
			break
		}
		slog.Warn("raft message delivery failed, retrying",
			"to", msg.To,
			"type", msg.Type,
			"attempt", attempt,
			"error", lastErr)
		time.Sleep(sendBackoff * time.Duration(attempt))
	}
	return fmt.Errorf("statelog: deliver to peer %d after %d attempts: %w",
		msg.To, sendRetries, lastErr)
}

func (t *Transport) post(url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("peer answered %d: %s", resp.StatusCode, detail)
	}
	return nil
}
