package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/shopspring/decimal"

	"github.com/avolkhov/storefront-checkout/domain"
	"github.com/avolkhov/storefront-checkout/internal/gateway"
)

// MetadataCache keeps a best-effort copy of immutable session metadata.
// Misses and write failures are never fatal; the gateway holds the record.
type MetadataCache interface {
	Get(ctx context.Context, sessionID string) (*domain.SessionMetadata, error)
	Set(ctx context.Context, sessionID string, meta *domain.SessionMetadata) error
}

type CheckoutBuilder struct {
	gateway gateway.Client
	coupons *CouponLedger
	cache   MetadataCache

	successURL string
	cancelURL  string
	// rewardThreshold is in minor currency units; sessions whose
	// gateway-reported total meets it grant a reward coupon at creation
	// time, whether or not they are ever paid.
	rewardThreshold int64
}

type CheckoutBuilderConfig struct {
	SuccessURL      string
	CancelURL       string
	RewardThreshold int64
}

func NewCheckoutBuilder(gw gateway.Client, coupons *CouponLedger, cache MetadataCache, cfg CheckoutBuilderConfig) *CheckoutBuilder {
	return &CheckoutBuilder{
		gateway:         gw,
		coupons:         coupons,
		cache:           cache,
		successURL:      cfg.SuccessURL,
		cancelURL:       cfg.CancelURL,
		rewardThreshold: cfg.RewardThreshold,
	}
}

// CreateSession validates the cart snapshot, optionally applies a coupon,
// and creates a hosted payment session carrying enough metadata to rebuild
// the order later without trusting client input again.
func (b *CheckoutBuilder) CreateSession(ctx context.Context, userID int64, items []domain.CartItemInput, couponCode string) (string, domain.CouponOutcome, error) {
	none := domain.CouponNone()

	if len(items) == 0 {
		return "", none, ErrEmptyCart
	}

	for i := range items {
		if err := validateItem(&items[i]); err != nil {
			return "", none, err
		}
	}
	items, err := mergeDuplicateLines(items)
	if err != nil {
		return "", none, err
	}

	lineItems := make([]gateway.LineItem, 0, len(items))
	refs := make([]domain.ProductRef, 0, len(items))
	for _, item := range items {
		lineItems = append(lineItems, gateway.LineItem{
			Name:       item.Name,
			ImageURL:   item.Images[0],
			UnitAmount: minorUnits(item.Price),
			Quantity:   item.Quantity,
		})
		refs = append(refs, domain.ProductRef{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	outcome, discountID := b.applyCoupon(ctx, couponCode, userID)

	meta := &domain.SessionMetadata{
		SchemaVersion: domain.MetadataSchemaVersion,
		UserID:        userID,
		Products:      refs,
	}
	if outcome.Applied {
		meta.CouponCode = outcome.Code
	}
	metaBag, err := meta.Encode()
	if err != nil {
		return "", none, fmt.Errorf("encode session metadata: %w", err)
	}

	sess, err := b.gateway.CreateSession(ctx, &gateway.CreateSessionParams{
		LineItems:  lineItems,
		DiscountID: discountID,
		SuccessURL: b.successURL,
		CancelURL:  b.cancelURL,
		Metadata:   metaBag,
	})
	if err != nil {
		return "", none, err
	}

	if cacheErr := b.cache.Set(ctx, sess.ID, meta); cacheErr != nil {
		log.Printf("failed to cache session metadata for %s: %v", sess.ID, cacheErr)
	}

	// Reward happens at session-creation time, independent of whether the
	// session is ever paid. Issuance failure never fails the checkout.
	if sess.AmountTotal >= b.rewardThreshold {
		if _, rewardErr := b.coupons.IssueReward(ctx, userID); rewardErr != nil {
			log.Printf("failed to issue reward coupon for user %d: %v", userID, rewardErr)
		}
	}

	return sess.ID, outcome, nil
}

// applyCoupon validates the supplied code and requests a single-use
// percentage discount from the gateway. Every failure downgrades to a
// Skipped outcome; a bad coupon must not block checkout.
func (b *CheckoutBuilder) applyCoupon(ctx context.Context, code string, userID int64) (domain.CouponOutcome, string) {
	if code == "" {
		return domain.CouponNone(), ""
	}

	coupon, err := b.coupons.Validate(ctx, code, userID)
	if errors.Is(err, ErrCouponNotFound) {
		return domain.CouponSkipped(code, "coupon not found for this user or inactive"), ""
	}
	if errors.Is(err, ErrCouponExpired) {
		return domain.CouponSkipped(code, "coupon expired"), ""
	}
	if err != nil {
		log.Printf("coupon validation failed for code %q: %v", code, err)
		return domain.CouponSkipped(code, "coupon could not be validated"), ""
	}

	discountID, err := b.gateway.CreatePercentageDiscount(ctx, coupon.DiscountPercentage)
	if err != nil {
		log.Printf("failed to create gateway discount for code %q: %v", code, err)
		return domain.CouponSkipped(code, "discount could not be created"), ""
	}

	return domain.CouponApplied(coupon.Code), discountID
}

// mergeDuplicateLines collapses repeated cart lines for the same product
// into one line with the summed quantity, so a product appears at most once
// in the frozen refs and in the order's line items. Duplicate lines that
// disagree on price are invalid input; there is no right amount to charge.
func mergeDuplicateLines(items []domain.CartItemInput) ([]domain.CartItemInput, error) {
	merged := make([]domain.CartItemInput, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, item := range items {
		i, seen := index[item.ProductID]
		if !seen {
			index[item.ProductID] = len(merged)
			merged = append(merged, item)
			continue
		}
		if merged[i].Price != item.Price {
			return nil, fmt.Errorf("%w: conflicting prices for product %d", ErrInvalidProductData, item.ProductID)
		}
		merged[i].Quantity += item.Quantity
	}
	return merged, nil
}

func validateItem(item *domain.CartItemInput) error {
	switch {
	case math.IsNaN(item.Price) || math.IsInf(item.Price, 0) || item.Price <= 0:
		return fmt.Errorf("%w: non-positive price for product %d", ErrInvalidProductData, item.ProductID)
	case item.Quantity <= 0:
		return fmt.Errorf("%w: non-positive quantity for product %d", ErrInvalidProductData, item.ProductID)
	case item.Name == "":
		return fmt.Errorf("%w: missing name for product %d", ErrInvalidProductData, item.ProductID)
	case len(item.Images) == 0:
		return fmt.Errorf("%w: missing image for product %d", ErrInvalidProductData, item.ProductID)
	}
	return nil
}

// minorUnits converts a major-unit price to minor units, rounding once per
// unit price. Quantity is multiplied by the gateway, so rounding error
// never compounds across quantity.
func minorUnits(price float64) int64 {
	return decimal.NewFromFloat(price).
		Mul(decimal.NewFromInt(100)).
		RoundBank(0).
		IntPart()
}
