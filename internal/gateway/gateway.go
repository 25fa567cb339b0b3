package gateway

import (
	"context"
	"errors"
)

type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusUnpaid  PaymentStatus = "unpaid"
	StatusExpired PaymentStatus = "expired"
)

var (
	// ErrUnavailable covers transport failures and an open circuit breaker.
	// Callers may retry; no local state is mutated on this path.
	ErrUnavailable = errors.New("payment gateway unavailable")
	// ErrRejected means the gateway answered but refused the request.
	ErrRejected = errors.New("payment gateway rejected the request")
)

// LineItem is one gateway-facing order line. UnitAmount is in minor
// currency units; the gateway multiplies by Quantity, so rounding happens
// exactly once per unit price.
type LineItem struct {
	Name       string
	ImageURL   string
	UnitAmount int64
	Quantity   int32
}

type CreateSessionParams struct {
	LineItems  []LineItem
	DiscountID string // empty when no discount is attached
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// Session is the gateway's view of a checkout. AmountTotal is the settled
// total in minor units and is authoritative over anything computed locally.
type Session struct {
	ID            string
	PaymentStatus PaymentStatus
	AmountTotal   int64
	Metadata      map[string]string
}

type Client interface {
	CreateSession(ctx context.Context, params *CreateSessionParams) (*Session, error)
	CreatePercentageDiscount(ctx context.Context, percent int) (string, error)
	GetSession(ctx context.Context, id string) (*Session, error)
}
