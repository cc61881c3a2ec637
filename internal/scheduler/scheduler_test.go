package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tothemoon-go/internal/engine"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePrices struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakePrices) CurrentPrices(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return map[string]float64{"BTCUSDT": 100}, nil
}

type fakeTicker struct {
	mu       sync.Mutex
	persists []bool
	stopAt   int
	ctrl     *Controller
}

func (f *fakeTicker) OnPrices(_ map[string]float64, persist bool) []engine.TickResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persists = append(f.persists, persist)
	if f.stopAt > 0 && len(f.persists) >= f.stopAt {
		f.ctrl.Stop()
	}
	return []engine.TickResult{{}}
}

func TestControllerWaitWakesOnStop(t *testing.T) {
	ctrl := NewController()
	go func() {
		time.Sleep(10 * time.Millisecond)
		ctrl.Stop()
	}()
	start := time.Now()
	assert.False(t, ctrl.Wait(context.Background(), time.Minute))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, ctrl.Stopped())
	ctrl.Stop()
}

func TestControllerWaitElapses(t *testing.T) {
	ctrl := NewController()
	assert.True(t, ctrl.Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, ctrl.Wait(ctx, time.Minute))
}

func TestPollerFirstCycleIsPreviewThenPersists(t *testing.T) {
	ctrl := NewController()
	ticker := &fakeTicker{stopAt: 3, ctrl: ctrl}
	reported := 0
	p := NewPoller(&fakePrices{}, ticker, PollerOptions{
		Interval:     time.Millisecond,
		HistoryEvery: -1,
		Log:          zerolog.Nop(),
		Report:       func(engine.TickResult) { reported++ },
	})
	require.NoError(t, p.Run(context.Background(), ctrl))
	assert.Equal(t, []bool{false, true, true}, ticker.persists)
	assert.Equal(t, 3, reported)
}

func TestPollerPersistsOncePerHistoryInterval(t *testing.T) {
	ctrl := NewController()
	ticker := &fakeTicker{stopAt: 4, ctrl: ctrl}
	p := NewPoller(&fakePrices{}, ticker, PollerOptions{Interval: time.Millisecond, HistoryEvery: time.Minute, Log: zerolog.Nop()})

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time {
		clock = clock.Add(25 * time.Second)
		return clock
	}
	require.NoError(t, p.Run(context.Background(), ctrl))
	assert.Equal(t, []bool{false, false, false, true}, ticker.persists)
}

func TestPollerSwallowsFetchErrors(t *testing.T) {
	ctrl := NewController()
	prices := &fakePrices{err: errors.New("unreachable")}
	ticker := &fakeTicker{}
	p := NewPoller(prices, ticker, PollerOptions{Interval: time.Millisecond, Log: zerolog.Nop()})

	err := p.Cycle(context.Background(), false)
	assert.Error(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		ctrl.Stop()
	}()
	require.NoError(t, p.Run(context.Background(), ctrl))
	prices.mu.Lock()
	defer prices.mu.Unlock()
	assert.Greater(t, prices.calls, 1)
	assert.Empty(t, ticker.persists)
}

type blockingActivity struct{ exited chan struct{} }

func (b blockingActivity) Run(ctx context.Context, ctrl *Controller) error {
	defer close(b.exited)
	<-ctrl.Done()
	return nil
}

type quittingActivity struct{}

func (quittingActivity) Run(context.Context, *Controller) error { return nil }

func TestRunStopsAllActivitiesWhenOneReturns(t *testing.T) {
	ctrl := NewController()
	blocker := blockingActivity{exited: make(chan struct{})}
	require.NoError(t, Run(context.Background(), ctrl, blocker, quittingActivity{}))
	<-blocker.exited
	assert.True(t, ctrl.Stopped())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := NewController()
	blocker := blockingActivity{exited: make(chan struct{})}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, Run(ctx, ctrl, blocker))
	assert.True(t, ctrl.Stopped())
}
