// Package bus is the broadcast channel siblings agents coordinate over.
// Every published message is delivered to every other subscriber; the
// publisher never receives its own messages.
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/learnhub/offline-sync/internal/domain"
)

// Message types for the refresh coordination protocol.
const (
	TypeRefreshStart   = "refresh-start"
	TypeRefreshEnd     = "refresh-end"
	TypeRefreshTimeout = "refresh-timeout"
)

// Message is one broadcast frame. Token identifies the refresh cycle;
// receivers ignore messages whose token does not match their tracked cycle.
type Message struct {
	Type      string    `json:"type"`
	Token     string    `json:"token"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Success   bool      `json:"success,omitempty"`
}

// Bus delivers messages to all other same-machine agents.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe registers fn for every incoming message. The returned func
	// unsubscribes. fn runs on the bus's delivery goroutine and must not block.
	Subscribe(fn func(Message)) func()
	Close() error
}

// MemoryBus is a process-local Bus. Single-agent deployments run on it, and
// tests use two handles on one MemoryBus to simulate sibling tabs: messages
// published through one handle are delivered only to the other handles.
type MemoryBus struct {
	mu      sync.Mutex
	closed  bool
	handles map[*MemoryHandle]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handles: make(map[*MemoryHandle]struct{})}
}

// Handle returns a new endpoint on the bus, playing the role of one tab.
func (b *MemoryBus) Handle() *MemoryHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	h := &MemoryHandle{parent: b, subs: make(map[int]func(Message))}
	b.handles[h] = struct{}{}
	return h
}

func (b *MemoryBus) broadcast(from *MemoryHandle, msg Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrBusClosed
	}
	targets := make([]*MemoryHandle, 0, len(b.handles))
	for h := range b.handles {
		if h != from {
			targets = append(targets, h)
		}
	}
	b.mu.Unlock()

	for _, h := range targets {
		h.deliver(msg)
	}
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// MemoryHandle is one endpoint on a MemoryBus.
type MemoryHandle struct {
	parent *MemoryBus

	mu      sync.Mutex
	subs    map[int]func(Message)
	nextSub int
}

func (h *MemoryHandle) Publish(_ context.Context, msg Message) error {
	return h.parent.broadcast(h, msg)
}

func (h *MemoryHandle) Subscribe(fn func(Message)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

func (h *MemoryHandle) deliver(msg Message) {
	h.mu.Lock()
	fns := make([]func(Message), 0, len(h.subs))
	for _, fn := range h.subs {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (h *MemoryHandle) Close() error {
	h.parent.mu.Lock()
	defer h.parent.mu.Unlock()
	delete(h.parent.handles, h)
	return nil
}

var _ Bus = (*MemoryHandle)(nil)
