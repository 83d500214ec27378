// Package store reads and writes the records gated by a cash-payment
// confirmation against whichever backing store is authoritative.
package store

import (
	"context"
	"errors"
	"time"

	"frontdesk/internal/models"
)

var (
	ErrNotFound        = errors.New("NOT_FOUND")
	ErrAlreadyAnswered = errors.New("ALREADY_ANSWERED")
	ErrSaleNotPending  = errors.New("SALE_NOT_PENDING")
)

// Store is implemented by SQLStore (one database) and MirroredStore
// (authoritative database plus a local copy for offline lookups).
//
// Every write reports its own outcome; a write that matched nothing is an
// error, never a silent no-op.
type Store interface {
	// FindNotificationByCode filters on answered when it is non-nil.
	FindNotificationByCode(ctx context.Context, code string, answered *bool) (*models.PendingNotification, error)
	FindNotificationByID(ctx context.Context, id int64) (*models.PendingNotification, error)

	// MarkNotificationAnswered is the check-and-set on the answered flag.
	// Exactly one caller per id gets nil; the rest get ErrAlreadyAnswered.
	MarkNotificationAnswered(ctx context.Context, id int64, at time.Time) error

	FindSale(ctx context.Context, id int64) (*models.DigitalSale, error)
	// ActivateSale moves pending_payment to active, otherwise ErrSaleNotPending.
	ActivateSale(ctx context.Context, id int64) error

	CreateAccessGrant(ctx context.Context, g *models.AccessGrant) (int64, error)
	AppendEntryLog(ctx context.Context, e *models.EntryLog) (int64, error)
	CreateCompletionNotification(ctx context.Context, c *models.CompletionNotification) (int64, error)

	Ping(ctx context.Context) error
	Name() string
}

// Bool returns a pointer for the answered filter.
func Bool(b bool) *bool { return &b }
