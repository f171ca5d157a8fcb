package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/learnhub/offline-sync/internal/bus"
)

// DefaultWatchdog bounds how long any caller can be blocked waiting on a
// refresh owned by another agent.
const DefaultWatchdog = 15 * time.Second

// Refresh cycle outcomes reported to the metrics hook.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
)

// RefreshFunc performs the actual token refresh network call.
type RefreshFunc func(ctx context.Context) (bool, error)

// cycle is one logical refresh, identified by token. done is closed exactly
// once, after success is set; everyone waiting converges on that value.
type cycle struct {
	token     string
	startedAt time.Time
	initiator bool
	watchdog  *time.Timer

	done    chan struct{}
	success bool
}

// Coordinator guarantees at most one refresh runs at a time across all
// agents of one user. The initiating agent broadcasts refresh-start, runs
// the network call, and broadcasts refresh-end; siblings observing
// refresh-start open a passive cycle that resolves on the matching
// refresh-end or on their own watchdog. Ownership is expressed purely by
// token identity; there is no shared lock between processes.
type Coordinator struct {
	b        bus.Bus
	doer     RefreshFunc
	watchdog time.Duration
	logger   *zap.Logger
	onResult func(result string)

	// netGuard collapses concurrent invocations of the refresh network call
	// itself, independent of the broadcast protocol.
	netGuard singleflight.Group

	mu          sync.Mutex
	active      *cycle
	unsubscribe func()
}

func NewCoordinator(b bus.Bus, doer RefreshFunc, watchdog time.Duration, logger *zap.Logger, onResult func(string)) *Coordinator {
	if watchdog <= 0 {
		watchdog = DefaultWatchdog
	}
	if onResult == nil {
		onResult = func(string) {}
	}
	c := &Coordinator{
		b:        b,
		doer:     doer,
		watchdog: watchdog,
		logger:   logger,
		onResult: onResult,
	}
	c.unsubscribe = b.Subscribe(c.onMessage)
	return c
}

// Close detaches the coordinator from the bus. Any active cycle still
// resolves through its watchdog.
func (c *Coordinator) Close() {
	c.unsubscribe()
}

// Refresh returns the result of the current refresh cycle, starting one if
// none is active. Concurrent callers, in this agent or in siblings via the
// broadcast channel, share a single underlying network call.
func (c *Coordinator) Refresh(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if cy := c.active; cy != nil {
		c.mu.Unlock()
		return c.await(ctx, cy)
	}

	cy := &cycle{
		token:     uuid.New().String(),
		startedAt: time.Now().UTC(),
		initiator: true,
		done:      make(chan struct{}),
	}
	cy.watchdog = time.AfterFunc(c.watchdog, func() { c.expire(cy.token) })
	c.active = cy
	c.mu.Unlock()

	c.logger.Debug("starting refresh cycle", zap.String("token", cy.token))
	if err := c.b.Publish(ctx, bus.Message{
		Type:      bus.TypeRefreshStart,
		Token:     cy.token,
		StartedAt: cy.startedAt,
	}); err != nil {
		c.logger.Warn("failed to broadcast refresh-start", zap.Error(err))
	}

	v, err, _ := c.netGuard.Do("refresh", func() (any, error) {
		return c.doer(ctx)
	})
	success := err == nil && v.(bool)

	if err := c.b.Publish(ctx, bus.Message{
		Type:    bus.TypeRefreshEnd,
		Token:   cy.token,
		Success: success,
	}); err != nil {
		c.logger.Warn("failed to broadcast refresh-end", zap.Error(err))
	}

	result := ResultSuccess
	if !success {
		result = ResultFailure
	}
	c.resolve(cy.token, success, result)

	// The cycle may have been expired by the watchdog while the network
	// call was stuck; the caller still gets the real outcome.
	return success, err
}

// Wait joins the in-flight refresh, if any, without starting one. The
// second return is false when no refresh is active.
func (c *Coordinator) Wait(ctx context.Context) (success bool, waited bool, err error) {
	c.mu.Lock()
	cy := c.active
	c.mu.Unlock()
	if cy == nil {
		return false, false, nil
	}
	ok, err := c.await(ctx, cy)
	return ok, true, err
}

// InProgress reports whether a refresh cycle is currently tracked.
func (c *Coordinator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

func (c *Coordinator) await(ctx context.Context, cy *cycle) (bool, error) {
	select {
	case <-cy.done:
		return cy.success, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// onMessage handles frames from sibling agents. Messages whose token does
// not match the tracked cycle are stale and ignored.
func (c *Coordinator) onMessage(msg bus.Message) {
	switch msg.Type {
	case bus.TypeRefreshStart:
		c.mu.Lock()
		if c.active != nil {
			c.mu.Unlock()
			return
		}
		cy := &cycle{
			token:     msg.Token,
			startedAt: msg.StartedAt,
			done:      make(chan struct{}),
		}
		cy.watchdog = time.AfterFunc(c.watchdog, func() { c.expire(cy.token) })
		c.active = cy
		c.mu.Unlock()
		c.logger.Debug("tracking sibling refresh", zap.String("token", msg.Token))

	case bus.TypeRefreshEnd:
		result := ResultSuccess
		if !msg.Success {
			result = ResultFailure
		}
		c.resolve(msg.Token, msg.Success, result)

	case bus.TypeRefreshTimeout:
		c.resolve(msg.Token, false, ResultTimeout)
	}
}

// resolve finishes the tracked cycle if token matches: records the outcome,
// closes done, and returns to idle.
func (c *Coordinator) resolve(token string, success bool, result string) {
	c.mu.Lock()
	cy := c.active
	if cy == nil || cy.token != token {
		c.mu.Unlock()
		return
	}
	c.active = nil
	cy.watchdog.Stop()
	cy.success = success
	close(cy.done)
	c.mu.Unlock()

	c.onResult(result)
	c.logger.Debug("refresh cycle resolved",
		zap.String("token", token),
		zap.Bool("success", success),
		zap.String("result", result),
	)
}

// expire is the watchdog path: no refresh-end arrived in time, so every
// agent independently resolves false and announces the timeout.
func (c *Coordinator) expire(token string) {
	c.mu.Lock()
	cy := c.active
	if cy == nil || cy.token != token {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.logger.Warn("refresh watchdog expired", zap.String("token", token))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.b.Publish(ctx, bus.Message{Type: bus.TypeRefreshTimeout, Token: token}); err != nil {
		c.logger.Warn("failed to broadcast refresh-timeout", zap.Error(err))
	}
	c.resolve(token, false, ResultTimeout)
}
