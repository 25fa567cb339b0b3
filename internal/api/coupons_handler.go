package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/avolkhov/storefront-checkout/domain"
)

type CouponReader interface {
	ActiveCoupon(ctx context.Context, userID int64) (*domain.Coupon, error)
	Validate(ctx context.Context, code string, userID int64) (*domain.Coupon, error)
}

type CouponsHandler struct {
	ledger  CouponReader
	timeout time.Duration
}

func NewCouponsHandler(ledger CouponReader, timeout time.Duration) *CouponsHandler {
	return &CouponsHandler{
		ledger:  ledger,
		timeout: timeout,
	}
}

type CouponResponseDTO struct {
	ID                 string    `json:"id"`
	Code               string    `json:"code"`
	DiscountPercentage int       `json:"discount_percentage"`
	ExpirationDate     time.Time `json:"expiration_date"`
}

// GET /api/v1/coupons
func (h *CouponsHandler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	coupon, err := h.ledger.ActiveCoupon(ctx, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if coupon == nil {
		respondJSON(w, http.StatusOK, nil)
		return
	}

	respondJSON(w, http.StatusOK, convertCoupon(coupon))
}

type ValidateCouponRequestDTO struct {
	Code string `json:"code"`
}

// POST /api/v1/coupons/validate
func (h *CouponsHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ValidateCouponRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "missing_code", "code is required")
		return
	}

	coupon, err := h.ledger.Validate(ctx, req.Code, userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertCoupon(coupon))
}

func convertCoupon(c *domain.Coupon) CouponResponseDTO {
	return CouponResponseDTO{
		ID:                 c.ID.String(),
		Code:               c.Code,
		DiscountPercentage: c.DiscountPercentage,
		ExpirationDate:     c.ExpirationDate,
	}
}
