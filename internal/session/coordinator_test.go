package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/learnhub/offline-sync/internal/bus"
	"github.com/learnhub/offline-sync/internal/session"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestCoordinator_SingleFlightWithinTab: 3 concurrent callers, exactly one
// network refresh, everyone sees the same result.
func TestCoordinator_SingleFlightWithinTab(t *testing.T) {
	b := bus.NewMemoryBus()
	release := make(chan struct{})
	var calls atomic.Int32

	doer := func(ctx context.Context) (bool, error) {
		calls.Add(1)
		<-release
		return true, nil
	}
	coord := session.NewCoordinator(b.Handle(), doer, time.Minute, zap.NewNop(), nil)
	defer coord.Close()

	ctx := context.Background()
	results := make(chan bool, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := coord.Refresh(ctx)
			require.NoError(t, err)
			results <- ok
		}()
	}

	waitFor(t, coord.InProgress, "refresh cycle never started")
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "network refresh must execute exactly once")
	for i := 0; i < 3; i++ {
		assert.True(t, <-results, "every caller must receive the shared result")
	}
	assert.False(t, coord.InProgress(), "coordinator must return to idle")
}

// TestCoordinator_CrossTabConvergence: tab A initiates and succeeds; tab B's
// pending wait resolves true and B returns to idle.
func TestCoordinator_CrossTabConvergence(t *testing.T) {
	b := bus.NewMemoryBus()
	release := make(chan struct{})

	coordA := session.NewCoordinator(b.Handle(),
		func(ctx context.Context) (bool, error) { <-release; return true, nil },
		time.Minute, zap.NewNop(), nil)
	defer coordA.Close()

	coordB := session.NewCoordinator(b.Handle(),
		func(ctx context.Context) (bool, error) {
			t.Error("sibling must not perform its own refresh")
			return false, nil
		},
		time.Minute, zap.NewNop(), nil)
	defer coordB.Close()

	ctx := context.Background()
	aDone := make(chan bool, 1)
	go func() {
		ok, _ := coordA.Refresh(ctx)
		aDone <- ok
	}()

	// B observes refresh-start and opens a passive cycle.
	waitFor(t, coordB.InProgress, "sibling never observed refresh-start")

	bDone := make(chan bool, 1)
	go func() {
		ok, waited, err := coordB.Wait(ctx)
		require.NoError(t, err)
		require.True(t, waited)
		bDone <- ok
	}()

	close(release)

	assert.True(t, <-aDone, "initiator must see success")
	assert.True(t, <-bDone, "sibling must converge on the broadcast result")
	waitFor(t, func() bool { return !coordB.InProgress() }, "sibling did not return to idle")
	assert.False(t, coordA.InProgress())
}

// TestCoordinator_WatchdogTimeout: a refresh-start with no matching
// refresh-end resolves false after the watchdog and returns to idle.
func TestCoordinator_WatchdogTimeout(t *testing.T) {
	b := bus.NewMemoryBus()
	sibling := b.Handle()

	coord := session.NewCoordinator(b.Handle(), nil, 50*time.Millisecond, zap.NewNop(), nil)
	defer coord.Close()

	timeouts := make(chan bus.Message, 1)
	sibling.Subscribe(func(m bus.Message) {
		if m.Type == bus.TypeRefreshTimeout {
			timeouts <- m
		}
	})

	// A sibling starts a refresh and then goes silent.
	require.NoError(t, sibling.Publish(context.Background(), bus.Message{
		Type:      bus.TypeRefreshStart,
		Token:     "stuck-cycle",
		StartedAt: time.Now().UTC(),
	}))
	waitFor(t, coord.InProgress, "coordinator never tracked the sibling refresh")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, waited, err := coord.Wait(ctx)
	require.NoError(t, err)
	require.True(t, waited)
	assert.False(t, ok, "watchdog expiry must resolve false")
	assert.False(t, coord.InProgress(), "coordinator must return to idle")

	select {
	case m := <-timeouts:
		assert.Equal(t, "stuck-cycle", m.Token)
	case <-time.After(time.Second):
		t.Fatal("expected a refresh-timeout broadcast")
	}
}

// TestCoordinator_IgnoresStaleTokens: an end frame for a token from a prior
// cycle must not resolve the current one.
func TestCoordinator_IgnoresStaleTokens(t *testing.T) {
	b := bus.NewMemoryBus()
	sibling := b.Handle()

	coord := session.NewCoordinator(b.Handle(), nil, time.Minute, zap.NewNop(), nil)
	defer coord.Close()

	ctx := context.Background()
	require.NoError(t, sibling.Publish(ctx, bus.Message{Type: bus.TypeRefreshStart, Token: "current"}))
	waitFor(t, coord.InProgress, "coordinator never tracked the refresh")

	require.NoError(t, sibling.Publish(ctx, bus.Message{Type: bus.TypeRefreshEnd, Token: "previous", Success: true}))
	assert.True(t, coord.InProgress(), "stale token must not resolve the cycle")

	require.NoError(t, sibling.Publish(ctx, bus.Message{Type: bus.TypeRefreshEnd, Token: "current", Success: false}))
	waitFor(t, func() bool { return !coord.InProgress() }, "matching token must resolve the cycle")
}

// TestCoordinator_FailedRefreshSharedResult: a failing refresh resolves
// false for joiners as well.
func TestCoordinator_FailedRefreshSharedResult(t *testing.T) {
	b := bus.NewMemoryBus()
	coord := session.NewCoordinator(b.Handle(),
		func(ctx context.Context) (bool, error) { return false, nil },
		time.Minute, zap.NewNop(), nil)
	defer coord.Close()

	ok, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, coord.InProgress())
}
