package server

import (
	"sync"
	"time"

	"github.com/room4-2/omnistream/device"
	"github.com/room4-2/omnistream/messages"
	"github.com/room4-2/omnistream/session"
)

// Hub fans server messages out to every connected dashboard.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Broadcast queues msg on every client without blocking.
func (h *Hub) Broadcast(msg *messages.ServerMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.queueMessage(msg)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseIdle closes every client with no activity since cutoff and
// returns how many it closed. Closed clients unregister themselves once
// their read loop ends.
func (h *Hub) CloseIdle(cutoff time.Time) int {
	h.mu.RLock()
	var idle []*Client
	for c := range h.clients {
		if c.LastActivity().Before(cutoff) {
			idle = append(idle, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range idle {
		c.Close()
	}
	return len(idle)
}

// DeviceEvent forwards a device change.
func (h *Hub) DeviceEvent(ev device.Event) {
	switch ev.Kind {
	case device.EventState:
		h.Broadcast(messages.NewStateMessage(*ev.State))
	case device.EventLog:
		h.Broadcast(messages.NewLogMessage(*ev.Entry))
	case device.EventSignal:
		h.Broadcast(messages.NewSignalMessage(ev.Signal))
	}
}

// VoiceState forwards a voice link state change.
func (h *Hub) VoiceState(st session.State) {
	h.Broadcast(messages.NewVoiceMessage(st.String(), ""))
}

// Transcript forwards live transcription.
func (h *Hub) Transcript(t session.Transcript) {
	h.Broadcast(messages.NewTranscriptMessage(t.Role, t.Text))
}
