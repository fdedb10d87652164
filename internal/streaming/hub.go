package streaming

import (
	"context"
	"log"
	"sync"
	"time"
)

// Client is one connected SSE consumer.
type Client struct {
	Events chan SSEEvent
}

// NewClient creates a client with a small buffered event channel. A
// consumer that falls behind loses non-terminal events rather than
// blocking the session.
func NewClient() *Client {
	return &Client{
		Events: make(chan SSEEvent, 10),
	}
}

// SessionBroadcaster fans events out to the clients of one parse session.
type SessionBroadcaster struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	events   chan SSEEvent
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopped  bool
}

// NewSessionBroadcaster creates a broadcaster bound to ctx.
func NewSessionBroadcaster(ctx context.Context) *SessionBroadcaster {
	ctx, cancel := context.WithCancel(ctx)
	return &SessionBroadcaster{
		clients: make(map[*Client]bool),
		events:  make(chan SSEEvent, 100),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a client to the broadcaster.
func (b *SessionBroadcaster) Register(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
	log.Printf("INFO: client registered, total clients: %d", len(b.clients))
}

// Unregister removes a client and closes its channel. After Stop the
// channels are already closed.
func (b *SessionBroadcaster) Unregister(client *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		if !b.stopped {
			close(client.Events)
		}
		log.Printf("INFO: client unregistered, total clients: %d", len(b.clients))
	}
}

// ClientCount returns the number of connected clients.
func (b *SessionBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// isTerminal reports whether an event type ends the session stream.
func isTerminal(t EventType) bool {
	return t == EventTypeComplete || t == EventTypeError
}

// Broadcast queues an event for delivery. Terminal events wait briefly
// for channel space; everything else is dropped when the queue is full.
func (b *SessionBroadcaster) Broadcast(event SSEEvent) {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return
	}
	b.mu.RUnlock()

	if isTerminal(event.Type) {
		select {
		case b.events <- event:
		case <-b.ctx.Done():
		case <-time.After(100 * time.Millisecond):
			log.Printf("ERROR: failed to queue terminal event %s, clients may hang", event.Type)
		}
		return
	}

	select {
	case b.events <- event:
	case <-b.ctx.Done():
	default:
		log.Printf("WARN: event queue full, dropping event type: %s", event.Type)
	}
}

// Stop shuts the broadcaster down and closes all client channels.
func (b *SessionBroadcaster) Stop() {
	b.stopOnce.Do(func() {
		b.mu.Lock()
		b.stopped = true
		for client := range b.clients {
			close(client.Events)
			delete(b.clients, client)
		}
		b.mu.Unlock()
		b.cancel()
		close(b.events)
	})
}

// Start begins delivering queued events to clients. The broadcaster
// stops itself shortly after a terminal event.
func (b *SessionBroadcaster) Start() {
	go func() {
		defer b.Stop()
		for {
			select {
			case <-b.ctx.Done():
				return
			case event, ok := <-b.events:
				if !ok {
					return
				}
				b.deliver(event)

				if isTerminal(event.Type) {
					// Leave a short window for clients to drain.
					time.Sleep(100 * time.Millisecond)
					return
				}
			}
		}
	}()
}

// deliver sends one event to every client. Terminal events get a short
// per-client grace period; others are skipped for full channels.
func (b *SessionBroadcaster) deliver(event SSEEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		if isTerminal(event.Type) {
			select {
			case client.Events <- event:
			case <-time.After(50 * time.Millisecond):
				log.Printf("ERROR: failed to deliver terminal event %s to client", event.Type)
			}
			continue
		}

		select {
		case client.Events <- event:
		default:
			log.Printf("WARN: client channel full, skipping event type: %s", event.Type)
		}
	}
}

// StreamHub routes events to per-session broadcasters.
type StreamHub struct {
	mu           sync.RWMutex
	broadcasters map[string]*SessionBroadcaster
}

// NewStreamHub creates an empty hub.
func NewStreamHub() *StreamHub {
	return &StreamHub{
		broadcasters: make(map[string]*SessionBroadcaster),
	}
}

// Register attaches a new client to the session, creating and starting
// the session broadcaster on first use.
func (h *StreamHub) Register(ctx context.Context, sessionID string) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	client := NewClient()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		broadcaster = NewSessionBroadcaster(ctx)
		h.broadcasters[sessionID] = broadcaster
		broadcaster.Start()
		log.Printf("INFO: created broadcaster for session %s", sessionID)
	}

	broadcaster.Register(client)
	return client
}

// Unregister detaches a client. The last client leaving tears the
// session broadcaster down.
func (h *StreamHub) Unregister(sessionID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		return
	}

	broadcaster.Unregister(client)

	if broadcaster.ClientCount() == 0 {
		broadcaster.Stop()
		delete(h.broadcasters, sessionID)
		log.Printf("INFO: broadcaster for session %s cleaned up", sessionID)
	}
}

// Broadcast sends an event to all clients of a session.
func (h *StreamHub) Broadcast(sessionID string, event SSEEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	broadcaster, exists := h.broadcasters[sessionID]
	if !exists {
		log.Printf("WARN: broadcast to unknown session %s", sessionID)
		return
	}

	broadcaster.Broadcast(event)
}

// IsRunning reports whether a session broadcaster exists.
func (h *StreamHub) IsRunning(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.broadcasters[sessionID]
	return exists
}
