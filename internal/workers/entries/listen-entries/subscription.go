// internal/workers/entries/listen-entries/subscription.go
package listenentries

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

var ErrSubscriptionClosed = errors.New("SUBSCRIPTION_CLOSED")

// Subscription is one live LISTEN on one channel. Payloads is closed when the
// subscription ends; Errors reports why.
type Subscription interface {
	Payloads() <-chan Payload
	Errors() <-chan error
	Ping() error
	Close() error
}

// Dialer opens subscriptions. Dial must return promptly once ctx is done.
type Dialer interface {
	Dial(ctx context.Context, channel string) (Subscription, error)
}

// PQDialer subscribes through lib/pq's Listener on a dedicated connection.
type PQDialer struct {
	DSN string
}

func NewPQDialer(dsn string) *PQDialer {
	return &PQDialer{DSN: dsn}
}

func (d *PQDialer) Dial(ctx context.Context, channel string) (Subscription, error) {
	sub := &pqSubscription{
		channel: channel,
		out:     make(chan Payload),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	// pq's own reconnect loop is cut short on the first disconnect; the
	// listener owns backoff and state.
	sub.l = pq.NewListener(d.DSN, 100*time.Millisecond, time.Second, sub.onEvent)

	listened := make(chan error, 1)
	go func() { listened <- sub.l.Listen(channel) }()

	select {
	case err := <-listened:
		if err != nil {
			sub.Close()
			if first := sub.firstError(); first != nil {
				err = first
			}
			return nil, fmt.Errorf("listen %s: %w", channel, err)
		}
	case <-ctx.Done():
		sub.Close()
		return nil, ctx.Err()
	}

	go sub.forward()
	return sub, nil
}

type pqSubscription struct {
	l       *pq.Listener
	channel string
	out     chan Payload
	errs    chan error
	done    chan struct{}

	once  sync.Once
	mu    sync.Mutex
	first error
}

func (s *pqSubscription) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		if err == nil {
			err = ErrSubscriptionClosed
		}
		s.mu.Lock()
		if s.first == nil {
			s.first = err
		}
		s.mu.Unlock()
		select {
		case s.errs <- err:
		default:
		}
		go s.Close()
	}
}

func (s *pqSubscription) firstError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first
}

func (s *pqSubscription) forward() {
	defer close(s.out)
	notify := s.l.NotificationChannel()
	for {
		select {
		case n, ok := <-notify:
			if !ok {
				return
			}
			// nil marks a pq-level reconnect; onEvent has already failed us
			if n == nil {
				continue
			}
			select {
			case s.out <- Payload{Channel: n.Channel, Data: []byte(n.Extra)}:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *pqSubscription) Payloads() <-chan Payload { return s.out }
func (s *pqSubscription) Errors() <-chan error     { return s.errs }
func (s *pqSubscription) Ping() error              { return s.l.Ping() }

// Close is idempotent.
func (s *pqSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.l.Close()
	})
	return err
}
