package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderLineItem struct {
	OrderID   uuid.UUID `json:"order_id"`
	ProductID int64     `json:"product_id"`
	Quantity  int32     `json:"quantity"`
	UnitPrice float64   `json:"unit_price"` // price at checkout time, not current catalog price
}

// Order is created exactly once per successful payment session.
// ExternalSessionID carries a store-enforced unique constraint; that
// constraint is what makes confirmation idempotent under races.
type Order struct {
	ID                uuid.UUID       `json:"id"`
	UserID            int64           `json:"user_id"`
	TotalAmount       float64         `json:"total_amount"` // settled total reported by the gateway
	ExternalSessionID string          `json:"external_session_id"`
	Items             []OrderLineItem `json:"items"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ConfirmResult is returned for every confirmation call, whether the order
// was newly finalized or had already been created by an earlier call.
type ConfirmResult struct {
	OrderID          uuid.UUID
	AlreadyProcessed bool
}
