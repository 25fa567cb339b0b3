package domain

import (
	"time"

	"github.com/google/uuid"
)

type Coupon struct {
	ID                 uuid.UUID `json:"id"`
	Code               string    `json:"code"`
	DiscountPercentage int       `json:"discount_percentage"`
	ExpirationDate     time.Time `json:"expiration_date"`
	IsActive           bool      `json:"is_active"`
	UserID             int64     `json:"user_id"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Expired reports whether the coupon's expiration date has passed.
// An expired coupon found active in the store must be deactivated by the
// caller; expiry is enforced at read time, not by a background sweep.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpirationDate.Before(now)
}
