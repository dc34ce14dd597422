package events

import (
	"context"
	"strings"
	"sync"
)

// Wake lifecycle event types.
const (
	TypeWakeStarted   = "wake.started"
	TypeWakeCompleted = "wake.completed"
)

type WakeEvent struct {
	AgentID string         `json:"agent_id"`
	Type    string         `json:"type"`
	Ts      string         `json:"ts"`
	Forced  bool           `json:"forced"`
	Payload map[string]any `json:"payload"`
}

// Broker fans wake lifecycle events out to per-agent subscribers. Delivery
// is best effort: a slow subscriber drops events rather than blocking the
// wake cycle that published them.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan WakeEvent]struct{}
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan WakeEvent]struct{}{},
	}
}

func (b *Broker) Subscribe(ctx context.Context, agentID string) <-chan WakeEvent {
	ch := make(chan WakeEvent, 16)

	b.mu.Lock()
	if b.subscribers[agentID] == nil {
		b.subscribers[agentID] = map[chan WakeEvent]struct{}{}
	}
	b.subscribers[agentID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[agentID] != nil {
			delete(b.subscribers[agentID], ch)
			if len(b.subscribers[agentID]) == 0 {
				delete(b.subscribers, agentID)
			}
		}
		// Closed while holding the lock: Publish sends under the read lock,
		// so it can never race a send onto a channel being closed here.
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

func (b *Broker) Publish(event WakeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.AgentID] {
		select {
		case ch <- event:
		default:
		}
	}
}
