package listenentries

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"frontdesk/internal/common/logger"
	"frontdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeSub struct {
	payloads chan Payload
	errs     chan error
	pingErr  atomic.Pointer[error]
	closed   atomic.Bool
	once     sync.Once
}

func newFakeSub() *fakeSub {
	return &fakeSub{
		payloads: make(chan Payload, 16),
		errs:     make(chan error, 1),
	}
}

func (s *fakeSub) Payloads() <-chan Payload { return s.payloads }
func (s *fakeSub) Errors() <-chan error     { return s.errs }

func (s *fakeSub) Ping() error {
	if err := s.pingErr.Load(); err != nil {
		return *err
	}
	return nil
}

func (s *fakeSub) Close() error {
	s.once.Do(func() { s.closed.Store(true) })
	return nil
}

func (s *fakeSub) send(data string) {
	s.payloads <- Payload{Data: []byte(data)}
}

type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	failFirst int
	dialed    chan *fakeSub
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{dialed: make(chan *fakeSub, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, channel string) (Subscription, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= d.failFirst {
		return nil, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	}
	sub := newFakeSub()
	d.dialed <- sub
	return sub, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) next(t *testing.T) *fakeSub {
	t.Helper()
	select {
	case sub := <-d.dialed:
		return sub
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription dialed")
		return nil
	}
}

func createTestConfig() *Config {
	return &Config{
		Channel:     "entry_events",
		MinBackoff:  5 * time.Millisecond,
		MaxBackoff:  20 * time.Millisecond,
		StopTimeout: time.Second,
	}
}

func createTestListener(t *testing.T, cfg *Config, dialer Dialer) (*Listener, *Dispatcher) {
	t.Helper()
	decoder, err := NewDecoder(true)
	require.NoError(t, err)
	dispatcher := NewDispatcher()
	l := NewListener(cfg, dialer, decoder, dispatcher, logger.NewTestLogger(t))
	t.Cleanup(func() { _ = l.Stop() })
	return l, dispatcher
}

func waitForState(t *testing.T, l *Listener, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return l.Health().State == want },
		2*time.Second, 5*time.Millisecond, "listener never reached %s", want)
}

func entryJSON(id int) string {
	return `{"id":` + strconv.Itoa(id) + `,"member_id":514,"access_kind":"cash_payment","area":"front_desk","device":"front-1","notes":"","created_at":"2026-10-16T09:30:00.123456+00:00"}`
}

func ids(events []models.EntryEvent) []int64 {
	out := make([]int64, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}

// ==========================
// Core Functionality Tests
// ==========================

func TestListener_MalformedPayloadDoesNotStopDelivery(t *testing.T) {
	dialer := newFakeDialer()
	l, dispatcher := createTestListener(t, createTestConfig(), dialer)

	require.NoError(t, l.Start("entry_events"))
	sub := dialer.next(t)
	waitForState(t, l, StateListening)

	sub.send(entryJSON(1))
	sub.send(`{"id": 2, "member_id":`)
	sub.send(`{"member_id": 9, "created_at": "2026-10-16T09:30:00Z"}`)
	sub.send(entryJSON(3))

	require.Eventually(t, func() bool { return dispatcher.Len() == 2 }, time.Second, 5*time.Millisecond)
	events := dispatcher.Drain()
	assert.Equal(t, []int64{1, 3}, ids(events))
	assert.Equal(t, "entry_events", events[0].Channel)
	assert.False(t, events[0].ReceivedAt.IsZero())

	h := l.Health()
	assert.Equal(t, StateListening, h.State)
	assert.True(t, h.Healthy())
	assert.Equal(t, int64(2), h.Decoded)
	assert.Equal(t, int64(2), h.Dropped)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestListener_StartIsIdempotent(t *testing.T) {
	dialer := newFakeDialer()
	l, _ := createTestListener(t, createTestConfig(), dialer)

	require.NoError(t, l.Start("entry_events"))
	dialer.next(t)
	waitForState(t, l, StateListening)
	require.NoError(t, l.Start("entry_events"))
	require.NoError(t, l.Start(""))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())

	err := l.Start("other_channel")
	assert.ErrorIs(t, err, ErrChannelMismatch)
}

func TestListener_ReconnectsAfterConnectionLoss(t *testing.T) {
	dialer := newFakeDialer()
	l, dispatcher := createTestListener(t, createTestConfig(), dialer)

	require.NoError(t, l.Start("entry_events"))
	first := dialer.next(t)
	waitForState(t, l, StateListening)

	first.errs <- errors.New("read tcp: connection reset by peer")

	second := dialer.next(t)
	waitForState(t, l, StateListening)
	assert.True(t, first.closed.Load())

	h := l.Health()
	assert.Equal(t, 1, h.Reconnects)
	assert.Contains(t, h.LastError, "connection reset")

	second.send(entryJSON(7))
	require.Eventually(t, func() bool { return dispatcher.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{7}, ids(dispatcher.Drain()))
}

func TestListener_ClosedPayloadStreamReconnects(t *testing.T) {
	dialer := newFakeDialer()
	l, _ := createTestListener(t, createTestConfig(), dialer)

	require.NoError(t, l.Start("entry_events"))
	first := dialer.next(t)
	waitForState(t, l, StateListening)

	close(first.payloads)
	dialer.next(t)
	waitForState(t, l, StateListening)
	assert.Contains(t, l.Health().LastError, "SUBSCRIPTION_CLOSED")
}

func TestListener_RetriesFailedDialsWithBackoff(t *testing.T) {
	dialer := newFakeDialer()
	dialer.failFirst = 3
	l, _ := createTestListener(t, createTestConfig(), dialer)

	require.NoError(t, l.Start("entry_events"))
	dialer.next(t)
	waitForState(t, l, StateListening)

	h := l.Health()
	assert.Equal(t, 3, h.Reconnects)
	assert.Contains(t, h.LastError, "connection refused")
	assert.Equal(t, 4, dialer.dialCount())
}

func TestListener_PingFailureReconnects(t *testing.T) {
	cfg := createTestConfig()
	cfg.PingInterval = 10 * time.Millisecond
	dialer := newFakeDialer()
	l, _ := createTestListener(t, cfg, dialer)

	require.NoError(t, l.Start("entry_events"))
	first := dialer.next(t)
	pingErr := errors.New("server closed the connection")
	first.pingErr.Store(&pingErr)

	dialer.next(t)
	waitForState(t, l, StateListening)
	assert.Contains(t, l.Health().LastError, "ping")
}

func TestListener_StopClosesSubscription(t *testing.T) {
	dialer := newFakeDialer()
	l, _ := createTestListener(t, createTestConfig(), dialer)

	require.NoError(t, l.Start("entry_events"))
	sub := dialer.next(t)
	waitForState(t, l, StateListening)

	require.NoError(t, l.Stop())
	assert.True(t, sub.closed.Load())
	assert.Equal(t, StateStopped, l.Health().State)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	assert.ErrorIs(t, l.Start("entry_events"), ErrListenerStopped)
	assert.NoError(t, l.Stop())
}

func TestListener_StopBeforeStart(t *testing.T) {
	l, _ := createTestListener(t, createTestConfig(), newFakeDialer())
	assert.NoError(t, l.Stop())
	assert.Equal(t, StateStopped, l.Health().State)
}

// stuckDialer ignores cancellation until released.
type stuckDialer struct {
	entered chan struct{}
	release chan struct{}
	sub     *fakeSub
}

func (d *stuckDialer) Dial(context.Context, string) (Subscription, error) {
	close(d.entered)
	<-d.release
	return d.sub, nil
}

func TestListener_StopIsBounded(t *testing.T) {
	cfg := createTestConfig()
	cfg.StopTimeout = 50 * time.Millisecond
	dialer := &stuckDialer{entered: make(chan struct{}), release: make(chan struct{}), sub: newFakeSub()}
	l, _ := createTestListener(t, cfg, dialer)

	require.NoError(t, l.Start("entry_events"))
	<-dialer.entered

	start := time.Now()
	err := l.Stop()
	assert.ErrorIs(t, err, ErrStopTimeout)
	assert.Less(t, time.Since(start), time.Second)

	// a subscription that arrives after Stop is closed, not leaked
	close(dialer.release)
	require.Eventually(t, dialer.sub.closed.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateStopped, l.Health().State)
}

func TestNextBackoff(t *testing.T) {
	lo, hi := 500*time.Millisecond, 30*time.Second
	assert.Equal(t, time.Second, nextBackoff(lo, lo, hi))
	assert.Equal(t, time.Second, nextBackoff(0, lo, hi))
	assert.Equal(t, hi, nextBackoff(20*time.Second, lo, hi))
	assert.Equal(t, hi, nextBackoff(hi, lo, hi))
}

// ==========================
// End-to-end through the consumer
// ==========================

func TestListener_DuplicateAfterReconnectIsDeliveredOnce(t *testing.T) {
	dialer := newFakeDialer()
	l, dispatcher := createTestListener(t, createTestConfig(), dialer)

	var mu sync.Mutex
	var seen []int64
	consumer := NewConsumer(NewMemoryDeduper(16), func(_ context.Context, ev models.EntryEvent) {
		mu.Lock()
		seen = append(seen, ev.ID)
		mu.Unlock()
	}, logger.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go dispatcher.Run(ctx, consumer.Handle)

	require.NoError(t, l.Start("entry_events"))
	first := dialer.next(t)
	first.send(entryJSON(1))
	first.send(entryJSON(2))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)

	first.errs <- errors.New("connection reset by peer")
	second := dialer.next(t)
	second.send(entryJSON(2))
	second.send(entryJSON(3))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{1, 2, 3}, seen)
}
