// internal/models/sale.go
package models

import "time"

type SaleState string

const (
	SaleStatePendingPayment SaleState = "pending_payment"
	SaleStateActive         SaleState = "active"
	SaleStateCancelled      SaleState = "cancelled"
)

type DigitalSale struct {
	ID          int64     `json:"id"`
	MemberID    int64     `json:"memberId"`
	ProductID   int64     `json:"productId"`
	LockerID    *int64    `json:"lockerId,omitempty"`
	State       SaleState `json:"state"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// AccessGrant exists if and only if its sale became active.
type AccessGrant struct {
	ID          int64     `json:"id"`
	MemberID    int64     `json:"memberId"`
	ProductID   int64     `json:"productId"`
	SaleID      int64     `json:"saleId"`
	LockerID    *int64    `json:"lockerId,omitempty"`
	Active      bool      `json:"active"`
	Cancelled   bool      `json:"cancelled"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
}

// GrantForSale builds the grant a freshly activated sale entitles its member to.
func GrantForSale(s *DigitalSale) *AccessGrant {
	return &AccessGrant{
		MemberID:    s.MemberID,
		ProductID:   s.ProductID,
		SaleID:      s.ID,
		LockerID:    s.LockerID,
		Active:      true,
		PeriodStart: s.PeriodStart,
		PeriodEnd:   s.PeriodEnd,
	}
}
