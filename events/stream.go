package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// clientBuffer is how many events a slow subscriber may lag behind before events are dropped.
const clientBuffer = 32

// keepAliveInterval keeps idle connections from being closed by proxies.
const keepAliveInterval = 30 * time.Second

// SSEEvent is one message on the event stream.
type SSEEvent struct {
	Event string // SSE `event:` field, the subject
	Data  []byte // SSE `data:` field, the JSON payload
}

// Broadcaster fans events out to Server-Sent Events subscribers.
// It implements Publisher, so it can sit next to NATS behind a MultiPublisher.
type Broadcaster struct {
	clients map[string]chan SSEEvent
	mu      sync.RWMutex
	logger  logrus.FieldLogger
}

// NewBroadcaster creates a Broadcaster with no subscribers.
func NewBroadcaster(logger logrus.FieldLogger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]chan SSEEvent),
		logger:  logger.WithField("component", "event_stream"),
	}
}

// Subscribe registers a client and returns its id and event channel.
func (b *Broadcaster) Subscribe() (string, <-chan SSEEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()
	ch := make(chan SSEEvent, clientBuffer)
	b.clients[id] = ch
	b.logger.WithField("client_id", id).Debug("Event stream client subscribed")
	return id, ch
}

// Unsubscribe removes the client and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		b.logger.WithField("client_id", id).Debug("Event stream client removed")
	}
}

// Close disconnects every subscriber. Streams being served return.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

// Clients returns the number of connected subscribers.
func (b *Broadcaster) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends the event to every subscriber without blocking. A subscriber whose
// buffer is full misses the event.
func (b *Broadcaster) Publish(subject string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.WithError(err).WithField("subject", subject).Error("Failed to encode event")
		return
	}
	event := SSEEvent{Event: subject, Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.clients {
		select {
		case ch <- event:
		default:
			b.logger.WithFields(logrus.Fields{"client_id": id, "subject": subject}).Warn("Event stream client lagging, event dropped")
		}
	}
}

// ServeHTTP streams events to the client until it disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, events := b.Subscribe()
	defer b.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, ev.Data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// MultiPublisher forwards every event to each of its publishers in order.
type MultiPublisher []Publisher

// Publish implements Publisher.
func (m MultiPublisher) Publish(subject string, payload interface{}) {
	for _, p := range m {
		p.Publish(subject, payload)
	}
}
