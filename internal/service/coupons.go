package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/avolkhov/storefront-checkout/domain"
	"github.com/avolkhov/storefront-checkout/internal/repository"
)

// CouponStore is the slice of the repository the ledger needs.
type CouponStore interface {
	GetActiveCouponForUser(ctx context.Context, userID int64) (*domain.Coupon, error)
	GetCouponByCode(ctx context.Context, code string, userID int64) (*domain.Coupon, error)
	CreateCoupon(ctx context.Context, c *domain.Coupon) error
	DeactivateCoupon(ctx context.Context, code string, userID int64) error
}

const (
	rewardCodePrefix   = "GIFT"
	rewardCodeLength   = 6
	rewardDiscount     = 10 // percent
	rewardValidity     = 30 * 24 * time.Hour
	rewardCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type CouponLedger struct {
	store CouponStore
	now   func() time.Time
}

func NewCouponLedger(store CouponStore) *CouponLedger {
	return &CouponLedger{
		store: store,
		now:   time.Now,
	}
}

// ActiveCoupon returns the user's most-recently-expiring active coupon.
// A coupon found past its expiration date is deactivated before returning
// nil, so expiry is visible in the store after every read.
func (l *CouponLedger) ActiveCoupon(ctx context.Context, userID int64) (*domain.Coupon, error) {
	coupon, err := l.store.GetActiveCouponForUser(ctx, userID)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active coupon: %w", err)
	}

	if coupon.Expired(l.now()) {
		if err := l.store.DeactivateCoupon(ctx, coupon.Code, userID); err != nil {
			return nil, fmt.Errorf("deactivate expired coupon: %w", err)
		}
		return nil, nil
	}

	return coupon, nil
}

// Validate looks up an active coupon by exact code and owner. An expired
// match is deactivated as a side effect and reported as ErrCouponExpired,
// never silently treated as valid.
func (l *CouponLedger) Validate(ctx context.Context, code string, userID int64) (*domain.Coupon, error) {
	coupon, err := l.store.GetCouponByCode(ctx, code, userID)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get coupon by code: %w", err)
	}

	if coupon.Expired(l.now()) {
		if err := l.store.DeactivateCoupon(ctx, coupon.Code, userID); err != nil {
			return nil, fmt.Errorf("deactivate expired coupon: %w", err)
		}
		return nil, ErrCouponExpired
	}

	return coupon, nil
}

// IssueReward creates a fresh single-use reward coupon for the user.
// A code collision retries once with a new code.
func (l *CouponLedger) IssueReward(ctx context.Context, userID int64) (*domain.Coupon, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		coupon := &domain.Coupon{
			ID:                 uuid.New(),
			Code:               generateRewardCode(),
			DiscountPercentage: rewardDiscount,
			ExpirationDate:     l.now().Add(rewardValidity),
			IsActive:           true,
			UserID:             userID,
		}

		err := l.store.CreateCoupon(ctx, coupon)
		if err == nil {
			return coupon, nil
		}
		if !errors.Is(err, repository.ErrDuplicateCouponCode) {
			return nil, fmt.Errorf("create reward coupon: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("create reward coupon: %w", lastErr)
}

func (l *CouponLedger) Deactivate(ctx context.Context, code string, userID int64) error {
	return l.store.DeactivateCoupon(ctx, code, userID)
}

func generateRewardCode() string {
	suffix := make([]byte, rewardCodeLength)
	for i := range suffix {
		suffix[i] = rewardCodeAlphabet[rand.Intn(len(rewardCodeAlphabet))]
	}
	return rewardCodePrefix + string(suffix)
}
