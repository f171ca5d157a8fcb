package bus

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/learnhub/offline-sync/internal/domain"
)

// WSBus is the cross-process Bus: a websocket connection to the local relay
// daemon, which rebroadcasts every frame to every other connected agent.
//
// Reconnection is deliberately out of scope; the agent restarts instead, and
// the refresh coordinator's watchdog bounds any window where siblings are
// out of contact.
type WSBus struct {
	conn   *websocket.Conn
	logger *zap.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	subs    map[int]func(Message)
	nextSub int
}

// DialWS connects to the relay at url (e.g. ws://127.0.0.1:7399/bus) and
// starts the read loop.
func DialWS(ctx context.Context, url string, logger *zap.Logger) (*WSBus, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b := &WSBus{
		conn:   conn,
		logger: logger,
		cancel: cancel,
		subs:   make(map[int]func(Message)),
	}
	go b.readLoop(loopCtx)
	return b, nil
}

func (b *WSBus) Publish(ctx context.Context, msg Message) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.ErrBusClosed
	}
	b.mu.Unlock()
	return wsjson.Write(ctx, b.conn, msg)
}

func (b *WSBus) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *WSBus) readLoop(ctx context.Context) {
	for {
		var msg Message
		if err := wsjson.Read(ctx, b.conn, &msg); err != nil {
			b.mu.Lock()
			closed := b.closed
			b.mu.Unlock()
			if !closed && !errors.Is(err, context.Canceled) {
				b.logger.Warn("relay connection lost", zap.Error(err))
			}
			return
		}
		b.deliver(msg)
	}
}

func (b *WSBus) deliver(msg Message) {
	b.mu.Lock()
	fns := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(msg)
	}
}

func (b *WSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	return b.conn.Close(websocket.StatusNormalClosure, "agent shutting down")
}

var _ Bus = (*WSBus)(nil)
