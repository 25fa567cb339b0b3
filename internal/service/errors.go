package service

import (
	"errors"
	"fmt"

	"github.com/avolkhov/storefront-checkout/internal/gateway"
)

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrInvalidProductData = errors.New("invalid product data")
	ErrCouponNotFound     = errors.New("coupon not found for this user or inactive")
	ErrCouponExpired      = errors.New("coupon expired")
	// ErrFinalizationFailed marks store failures during confirmation. The
	// idempotency gate makes retries free of double-charging side effects.
	ErrFinalizationFailed = errors.New("order finalization failed")
)

// PaymentIncompleteError is a legitimate terminal outcome of confirmation,
// not a subsystem failure: the gateway reports the session as not paid.
type PaymentIncompleteError struct {
	Status gateway.PaymentStatus
}

func (e *PaymentIncompleteError) Error() string {
	return fmt.Sprintf("payment not completed, current status: %s", e.Status)
}
