// Package hub fans render commands out to connected map clients.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"route-animator/internal/render"
)

// ErrDropped is returned by Publish when the broadcast queue is full.
var ErrDropped = errors.New("broadcast queue full")

// Snapshotter rebuilds the current scene for a newly attached client.
type Snapshotter interface {
	Snapshot() ([]render.Command, uint64)
}

type Client struct {
	ID   string
	Send chan []byte

	// since is the last command seq covered by the client's snapshot.
	since uint64
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{ID: id, Send: make(chan []byte, bufferSize)}
}

type SnapshotMessage struct {
	Type     string           `json:"type"`
	Seq      uint64           `json:"seq"`
	Commands []render.Command `json:"commands"`
}

type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type PongMessage struct {
	Type string `json:"type"`
}

type frame struct {
	seq  uint64
	data []byte
}

// Hub is a render.Sink. Commands are encoded on Publish and delivered to
// every attached client from the Run goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast chan frame
	logger    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan frame, 1024),
		logger:    logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return
		case f := <-h.broadcast:
			h.fanout(f)
		}
	}
}

// Publish queues cmd for delivery. It never blocks.
func (h *Hub) Publish(cmd render.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- frame{seq: cmd.Seq, data: data}:
		return nil
	default:
		h.logger.Warn().Uint64("seq", cmd.Seq).Msg("broadcast channel full, dropping command")
		return ErrDropped
	}
}

// Attach registers client and queues a snapshot of scene as its first
// message. Commands already reflected in the snapshot are not delivered again.
func (h *Hub) Attach(client *Client, scene Snapshotter) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	cmds, seq := scene.Snapshot()
	data, err := json.Marshal(SnapshotMessage{Type: "snapshot", Seq: seq, Commands: cmds})
	if err != nil {
		return err
	}
	client.since = seq
	select {
	case client.Send <- data:
	default:
		return ErrDropped
	}
	h.clients[client] = struct{}{}
	h.logger.Debug().Str("client_id", client.ID).Int("total", len(h.clients)).Msg("client registered")
	return nil
}

func (h *Hub) Detach(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	h.logger.Debug().Str("client_id", client.ID).Int("total", len(h.clients)).Msg("client unregistered")
}

// Reply queues v for a single client, dropping it if the client is slow.
func (h *Hub) Reply(client *Client, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; !ok {
		return false
	}
	select {
	case client.Send <- data:
		return true
	default:
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) fanout(f frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if f.seq != 0 && f.seq <= client.since {
			continue
		}
		select {
		case client.Send <- f.data:
		default:
			h.logger.Debug().Str("client_id", client.ID).Msg("client send buffer full")
		}
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.Send)
	}
	h.clients = make(map[*Client]struct{})
}
