// internal/workers/entries/listen-entries/listener.go
package listenentries

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "frontdesk/internal/common/errors"
	"frontdesk/internal/common/logger"
	"frontdesk/internal/common/metrics"
	"frontdesk/internal/models"
)

const TaskType = "listen-entries"

var (
	ErrListenerStopped = errors.New("LISTENER_STOPPED")
	ErrChannelMismatch = errors.New("LISTENER_CHANNEL_MISMATCH")
	ErrStopTimeout     = errors.New("LISTENER_STOP_TIMEOUT")
)

// Publisher receives decoded events on the listener goroutine.
type Publisher interface {
	Publish(ev models.EntryEvent)
}

// Listener keeps one subscription alive on a dedicated goroutine and
// publishes every decodable payload. Connection loss is retried with capped
// exponential backoff until Stop.
type Listener struct {
	config  *Config
	dialer  Dialer
	decoder *Decoder
	out     Publisher
	logger  logger.Logger

	mu          sync.Mutex
	state       State
	channel     string
	cancel      context.CancelFunc
	done        chan struct{}
	sub         Subscription
	reconnects  int
	lastErr     error
	lastEventAt time.Time
	decoded     int64
	dropped     int64
}

func NewListener(config *Config, dialer Dialer, decoder *Decoder, out Publisher, log logger.Logger) *Listener {
	return &Listener{
		config:  config,
		dialer:  dialer,
		decoder: decoder,
		out:     out,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType}),
		state:   StateDisconnected,
	}
}

// Start launches the worker. Calling it again while running on the same
// channel is a no-op.
func (l *Listener) Start(channel string) error {
	if channel == "" {
		channel = l.config.Channel
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case l.state == StateStopped:
		return ErrListenerStopped
	case l.done != nil && l.channel == channel:
		return nil
	case l.done != nil:
		return fmt.Errorf("%w: listening on %s", ErrChannelMismatch, l.channel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l.channel = channel
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx, channel, l.done)

	l.logger.Info("listener started", map[string]interface{}{"channel": channel})
	return nil
}

func (l *Listener) run(ctx context.Context, channel string, done chan struct{}) {
	defer close(done)

	backoff := l.config.MinBackoff
	for {
		l.setState(StateConnecting)
		listened, err := l.session(ctx, channel)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrSubscriptionClosed
		}
		if listened {
			backoff = l.config.MinBackoff
		}

		l.fail(channel, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = nextBackoff(backoff, l.config.MinBackoff, l.config.MaxBackoff)

		l.mu.Lock()
		l.reconnects++
		l.mu.Unlock()
		metrics.ListenerReconnectsTotal.Inc()
		l.setState(StateDisconnected)
	}
}

// session runs one subscription until it fails or ctx is done. listened
// reports whether the subscription came up at all.
func (l *Listener) session(ctx context.Context, channel string) (listened bool, err error) {
	sub, err := l.dialer.Dial(ctx, channel)
	if err != nil {
		return false, err
	}
	if !l.attach(sub) {
		sub.Close()
		return false, nil
	}
	defer l.detach(sub)

	l.setState(StateListening)
	l.logger.Info("listening", map[string]interface{}{"channel": channel})

	var ping <-chan time.Time
	if l.config.PingInterval > 0 {
		ticker := time.NewTicker(l.config.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	payloads := sub.Payloads()
	for {
		select {
		case <-ctx.Done():
			return true, nil
		case p, ok := <-payloads:
			if !ok {
				select {
				case err := <-sub.Errors():
					return true, err
				default:
					return true, ErrSubscriptionClosed
				}
			}
			l.handle(channel, p)
		case err := <-sub.Errors():
			return true, err
		case <-ping:
			if err := sub.Ping(); err != nil {
				return true, fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// handle decodes and publishes one payload; a bad payload is dropped alone.
func (l *Listener) handle(channel string, p Payload) {
	if p.Channel == "" {
		p.Channel = channel
	}
	ev, err := l.decoder.Decode(p)
	if err != nil {
		l.mu.Lock()
		l.dropped++
		l.mu.Unlock()
		metrics.ListenerEventsTotal.WithLabelValues("dropped").Inc()
		decodeErr := apperrors.NewDecodeError(channel, err)
		l.logger.Warn("dropping channel payload", map[string]interface{}{
			"channel": channel,
			"bytes":   len(p.Data),
			"error":   decodeErr,
		})
		return
	}

	ev.ReceivedAt = time.Now().UTC()
	l.mu.Lock()
	l.decoded++
	l.lastEventAt = ev.ReceivedAt
	l.mu.Unlock()
	metrics.ListenerEventsTotal.WithLabelValues("decoded").Inc()

	l.out.Publish(ev)
}

// attach records the live subscription so Stop can close it. It refuses once
// Stop has begun.
func (l *Listener) attach(sub Subscription) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateStopped {
		return false
	}
	l.sub = sub
	return true
}

func (l *Listener) detach(sub Subscription) {
	l.mu.Lock()
	if l.sub == sub {
		l.sub = nil
	}
	l.mu.Unlock()
	sub.Close()
}

func (l *Listener) fail(channel string, err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()
	l.setState(StateError)

	l.logger.Warn("subscription lost, reconnecting", map[string]interface{}{
		"channel": channel,
		"error":   apperrors.NewConnectionError(channel, err),
	})
}

// setState never leaves Stopped.
func (l *Listener) setState(s State) {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return
	}
	l.state = s
	channel := l.channel
	l.mu.Unlock()

	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		metrics.ListenerState.WithLabelValues(channel, string(st)).Set(v)
	}
}

// Stop ends the worker and closes the subscription, waiting at most
// StopTimeout for the worker to exit. Stopped is terminal.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.state == StateStopped {
		l.mu.Unlock()
		return nil
	}
	l.state = StateStopped
	cancel, done, sub, channel := l.cancel, l.done, l.sub, l.channel
	l.mu.Unlock()

	for _, st := range allStates {
		v := 0.0
		if st == StateStopped {
			v = 1
		}
		metrics.ListenerState.WithLabelValues(channel, string(st)).Set(v)
	}

	if cancel == nil {
		return nil
	}
	cancel()
	if sub != nil {
		sub.Close()
	}

	timeout := l.config.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
		l.logger.Info("listener stopped", map[string]interface{}{"channel": channel})
		return nil
	case <-time.After(timeout):
		// the worker is abandoned; whatever it attached is still closed
		l.mu.Lock()
		late := l.sub
		l.mu.Unlock()
		if late != nil {
			late.Close()
		}
		l.logger.Error("listener did not stop in time", map[string]interface{}{
			"channel": channel,
			"timeout": timeout.String(),
		})
		return ErrStopTimeout
	}
}

func (l *Listener) Health() Health {
	l.mu.Lock()
	defer l.mu.Unlock()
	h := Health{
		State:       l.state,
		Channel:     l.channel,
		Reconnects:  l.reconnects,
		LastEventAt: l.lastEventAt,
		Decoded:     l.decoded,
		Dropped:     l.dropped,
	}
	if l.lastErr != nil {
		h.LastError = l.lastErr.Error()
	}
	return h
}

func nextBackoff(cur, lo, hi time.Duration) time.Duration {
	if cur < lo {
		cur = lo
	}
	next := cur * 2
	if hi > 0 && next > hi {
		next = hi
	}
	return next
}
