// Package rpc invokes the server-side routine that confirms a cash payment in
// one transaction.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"frontdesk/internal/common/database"

	"github.com/lib/pq"
)

var (
	// ErrRemoteUnavailable means the routine could not be reached or did not
	// answer in time. The caller may run its own fallback.
	ErrRemoteUnavailable = errors.New("REMOTE_UNAVAILABLE")
	// ErrAlreadyAnswered is the routine's own check-and-set losing.
	ErrAlreadyAnswered = errors.New("ALREADY_ANSWERED")
	// ErrRemoteRejected is any other business error. No fallback.
	ErrRemoteRejected = errors.New("REMOTE_REJECTED")
)

// Terminal identifies where the confirmation happened. It ends up on the
// entry log row written by the routine.
type Terminal struct {
	Device     string
	Area       string
	AccessKind string
}

// RemoteResult is the JSON document returned by confirm_cash_payment.
type RemoteResult struct {
	Status         string     `json:"status"`
	NotificationID int64      `json:"notification_id"`
	MemberID       int64      `json:"member_id"`
	Amount         float64    `json:"amount"`
	Code           string     `json:"code"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
	GrantID        *int64     `json:"grant_id,omitempty"`
	EntryLogID     *int64     `json:"entry_log_id,omitempty"`
}

// Client confirms one notification atomically. Errors are always wrapped
// around one of ErrRemoteUnavailable, ErrAlreadyAnswered or ErrRemoteRejected.
type Client interface {
	ConfirmPayment(ctx context.Context, notificationID int64) (*RemoteResult, error)
	Transport() string
}

// Classify maps a raw transport or database error onto the three outcomes.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrAlreadyAnswered) || errors.Is(err, ErrRemoteRejected) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "P0001" && strings.Contains(pqErr.Message, "ALREADY_ANSWERED"):
			return fmt.Errorf("%w: %s", ErrAlreadyAnswered, pqErr.Message)
		case pqErr.Code == "42883", // undefined_function
			pqErr.Code == "57014", // query_canceled
			pqErr.Code.Class() == "53": // insufficient_resources
			return fmt.Errorf("%w: %s", ErrRemoteUnavailable, pqErr.Message)
		case database.IsConnectionError(pqErr):
			return fmt.Errorf("%w: %s", ErrRemoteUnavailable, pqErr.Message)
		}
		return fmt.Errorf("%w: %s (%s)", ErrRemoteRejected, pqErr.Message, pqErr.Code)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.classify()
	}

	if database.IsConnectionError(err) {
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrRemoteRejected, err)
}
