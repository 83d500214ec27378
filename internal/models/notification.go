// internal/models/notification.go
package models

import "time"

// PendingNotification is a cash payment awaiting confirmation at the desk.
// Answered flips false->true at most once per id.
type PendingNotification struct {
	ID         int64      `json:"id"`
	MemberID   int64      `json:"memberId"`
	Kind       string     `json:"kind"`             // "cash_payment"
	SaleID     *int64     `json:"saleId,omitempty"` // nil when nothing is gated on the payment
	Amount     float64    `json:"amount"`
	Code       string     `json:"code"` // e.g. CASH-14
	CreatedAt  time.Time  `json:"createdAt"`
	Read       bool       `json:"read"`
	Answered   bool       `json:"answered"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

// HasSale reports whether confirming this notification activates a sale.
func (n *PendingNotification) HasSale() bool {
	return n != nil && n.SaleID != nil
}

// CompletionNotification tells the member their payment went through.
type CompletionNotification struct {
	ID             int64     `json:"id"`
	NotificationID int64     `json:"notificationId"`
	MemberID       int64     `json:"memberId"`
	Kind           string    `json:"kind"` // "payment_confirmed"
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"createdAt"`
}
