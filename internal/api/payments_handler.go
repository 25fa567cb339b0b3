package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/avolkhov/storefront-checkout/domain"
	"github.com/avolkhov/storefront-checkout/internal/gateway"
	"github.com/avolkhov/storefront-checkout/internal/service"
)

type SessionCreator interface {
	CreateSession(ctx context.Context, userID int64, items []domain.CartItemInput, couponCode string) (string, domain.CouponOutcome, error)
}

type CheckoutConfirmer interface {
	Confirm(ctx context.Context, sessionID string) (*domain.ConfirmResult, error)
}

type PaymentsHandler struct {
	builder   SessionCreator
	finalizer CheckoutConfirmer
	timeout   time.Duration
}

func NewPaymentsHandler(builder SessionCreator, finalizer CheckoutConfirmer, timeout time.Duration) *PaymentsHandler {
	return &PaymentsHandler{
		builder:   builder,
		finalizer: finalizer,
		timeout:   timeout,
	}
}

type ProductDTO struct {
	ProductID int64    `json:"product_id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Quantity  int32    `json:"quantity"`
	Images    []string `json:"images"`
}

type CheckoutSessionRequestDTO struct {
	Products   []ProductDTO `json:"products"`
	CouponCode string       `json:"coupon_code"`
}

type CouponOutcomeDTO struct {
	Applied bool   `json:"applied"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type CheckoutSessionResponseDTO struct {
	SessionID string           `json:"session_id"`
	Coupon    CouponOutcomeDTO `json:"coupon"`
}

// POST /api/v1/payments/checkout-session
func (h *PaymentsHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req CheckoutSessionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	items := make([]domain.CartItemInput, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, domain.CartItemInput{
			ProductID: p.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  p.Quantity,
			Images:    p.Images,
		})
	}

	sessionID, outcome, err := h.builder.CreateSession(ctx, userID, items, req.CouponCode)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, CheckoutSessionResponseDTO{
		SessionID: sessionID,
		Coupon: CouponOutcomeDTO{
			Applied: outcome.Applied,
			Code:    outcome.Code,
			Reason:  outcome.Reason,
		},
	})
}

type ConfirmRequestDTO struct {
	SessionID string `json:"session_id"`
}

type ConfirmResponseDTO struct {
	OrderID          string `json:"order_id"`
	AlreadyProcessed bool   `json:"already_processed"`
}

// POST /api/v1/payments/checkout-success
func (h *PaymentsHandler) ConfirmCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	userID := getUserIDFromContext(r.Context())
	if userID == 0 {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
		return
	}

	var req ConfirmRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	result, err := h.finalizer.Confirm(ctx, req.SessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// Newly finalized and idempotent replay both answer 200; callers
	// distinguish them only via already_processed.
	respondJSON(w, http.StatusOK, ConfirmResponseDTO{
		OrderID:          result.OrderID.String(),
		AlreadyProcessed: result.AlreadyProcessed,
	})
}

func handleServiceError(w http.ResponseWriter, err error) {
	var incomplete *service.PaymentIncompleteError
	switch {
	case errors.As(err, &incomplete):
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":          "payment not completed",
			"code":           "payment_incomplete",
			"payment_status": string(incomplete.Status),
		})
	case errors.Is(err, service.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", err.Error())
	case errors.Is(err, service.ErrInvalidProductData):
		respondError(w, http.StatusBadRequest, "invalid_product_data", err.Error())
	case errors.Is(err, service.ErrCouponNotFound):
		respondError(w, http.StatusNotFound, "coupon_not_found", err.Error())
	case errors.Is(err, service.ErrCouponExpired):
		respondError(w, http.StatusBadRequest, "coupon_expired", err.Error())
	case errors.Is(err, gateway.ErrUnavailable):
		respondError(w, http.StatusBadGateway, "gateway_unavailable", "payment gateway unavailable")
	case errors.Is(err, gateway.ErrRejected):
		respondError(w, http.StatusBadGateway, "gateway_rejected", "payment gateway rejected the request")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
