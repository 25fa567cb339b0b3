package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkhov/storefront-checkout/domain"
	"github.com/avolkhov/storefront-checkout/internal/gateway"
)

func validCart() []domain.CartItemInput {
	return []domain.CartItemInput{
		{ProductID: 1, Name: "Mechanical Keyboard", Price: 49.99, Quantity: 2, Images: []string{"https://img.example/kb.jpg"}},
	}
}

func newTestBuilder(gw *MockGateway, couponStore *MockCouponStore, cache *MockMetadataCache) *CheckoutBuilder {
	ledger := NewCouponLedger(couponStore)
	ledger.now = fixedNow
	return NewCheckoutBuilder(gw, ledger, cache, CheckoutBuilderConfig{
		SuccessURL:      "https://shop.example/purchase-success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:       "https://shop.example/purchase-cancel",
		RewardThreshold: 20000,
	})
}

func TestCreateSession_EmptyCart(t *testing.T) {
	b := newTestBuilder(&MockGateway{}, &MockCouponStore{}, NewMockMetadataCache())

	_, _, err := b.CreateSession(context.Background(), 1, nil, "")

	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateSession_InvalidItems(t *testing.T) {
	cases := []struct {
		name string
		item domain.CartItemInput
	}{
		{"zero price", domain.CartItemInput{ProductID: 1, Name: "x", Price: 0, Quantity: 1, Images: []string{"i"}}},
		{"negative price", domain.CartItemInput{ProductID: 1, Name: "x", Price: -5, Quantity: 1, Images: []string{"i"}}},
		{"zero quantity", domain.CartItemInput{ProductID: 1, Name: "x", Price: 5, Quantity: 0, Images: []string{"i"}}},
		{"missing name", domain.CartItemInput{ProductID: 1, Price: 5, Quantity: 1, Images: []string{"i"}}},
		{"missing image", domain.CartItemInput{ProductID: 1, Name: "x", Price: 5, Quantity: 1}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &MockGateway{}
			b := newTestBuilder(gw, &MockCouponStore{}, NewMockMetadataCache())

			_, _, err := b.CreateSession(context.Background(), 1, []domain.CartItemInput{tc.item}, "")

			assert.ErrorIs(t, err, ErrInvalidProductData)
			// a partial session must never be created
			assert.Nil(t, gw.CreatedParams)
		})
	}
}

func TestCreateSession_MergesDuplicateProductLines(t *testing.T) {
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_10", AmountTotal: 14997}}
	b := newTestBuilder(gw, &MockCouponStore{}, NewMockMetadataCache())

	cart := []domain.CartItemInput{
		{ProductID: 1, Name: "Mechanical Keyboard", Price: 49.99, Quantity: 2, Images: []string{"https://img.example/kb.jpg"}},
		{ProductID: 1, Name: "Mechanical Keyboard", Price: 49.99, Quantity: 1, Images: []string{"https://img.example/kb.jpg"}},
	}
	_, _, err := b.CreateSession(context.Background(), 7, cart, "")

	require.NoError(t, err)
	// one gateway line with the summed quantity, not two lines
	require.Len(t, gw.CreatedParams.LineItems, 1)
	assert.Equal(t, int32(3), gw.CreatedParams.LineItems[0].Quantity)

	// the frozen refs carry the product once, so finalization inserts
	// exactly one line item row for it
	meta, err := domain.ParseSessionMetadata(gw.CreatedParams.Metadata)
	require.NoError(t, err)
	require.Len(t, meta.Products, 1)
	assert.Equal(t, domain.ProductRef{ProductID: 1, Quantity: 3, Price: 49.99}, meta.Products[0])
}

func TestCreateSession_ConflictingDuplicatePricesRejected(t *testing.T) {
	gw := &MockGateway{}
	b := newTestBuilder(gw, &MockCouponStore{}, NewMockMetadataCache())

	cart := []domain.CartItemInput{
		{ProductID: 1, Name: "Mechanical Keyboard", Price: 49.99, Quantity: 1, Images: []string{"https://img.example/kb.jpg"}},
		{ProductID: 1, Name: "Mechanical Keyboard", Price: 39.99, Quantity: 1, Images: []string{"https://img.example/kb.jpg"}},
	}
	_, _, err := b.CreateSession(context.Background(), 7, cart, "")

	assert.ErrorIs(t, err, ErrInvalidProductData)
	assert.Nil(t, gw.CreatedParams)
}

func TestCreateSession_RoundsOncePerUnitPrice(t *testing.T) {
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_1", AmountTotal: 9998}}
	b := newTestBuilder(gw, &MockCouponStore{}, NewMockMetadataCache())

	sessionID, outcome, err := b.CreateSession(context.Background(), 1, validCart(), "")

	require.NoError(t, err)
	assert.Equal(t, "sess_1", sessionID)
	assert.False(t, outcome.Applied)
	require.Len(t, gw.CreatedParams.LineItems, 1)
	item := gw.CreatedParams.LineItems[0]
	// 49.99 -> 4999 minor units, quantity left to the gateway
	assert.Equal(t, int64(4999), item.UnitAmount)
	assert.Equal(t, int32(2), item.Quantity)
	assert.Equal(t, "Mechanical Keyboard", item.Name)
}

func TestCreateSession_MetadataFreezesCart(t *testing.T) {
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_2", AmountTotal: 9998}}
	b := newTestBuilder(gw, &MockCouponStore{}, NewMockMetadataCache())

	_, _, err := b.CreateSession(context.Background(), 7, validCart(), "")

	require.NoError(t, err)
	meta, err := domain.ParseSessionMetadata(gw.CreatedParams.Metadata)
	require.NoError(t, err)
	assert.Equal(t, domain.MetadataSchemaVersion, meta.SchemaVersion)
	assert.Equal(t, int64(7), meta.UserID)
	assert.Empty(t, meta.CouponCode)
	require.Len(t, meta.Products, 1)
	assert.Equal(t, domain.ProductRef{ProductID: 1, Quantity: 2, Price: 49.99}, meta.Products[0])
}

func TestCreateSession_CouponApplied(t *testing.T) {
	gw := &MockGateway{
		Session:    &gateway.Session{ID: "sess_3", AmountTotal: 8998},
		DiscountID: "disc_abc",
	}
	store := &MockCouponStore{ByCode: map[string]*domain.Coupon{
		"SAVE10": {Code: "SAVE10", DiscountPercentage: 10, ExpirationDate: fixedNow().Add(time.Hour), IsActive: true, UserID: 1},
	}}
	b := newTestBuilder(gw, store, NewMockMetadataCache())

	_, outcome, err := b.CreateSession(context.Background(), 1, validCart(), "SAVE10")

	require.NoError(t, err)
	assert.True(t, outcome.Applied)
	assert.Equal(t, "SAVE10", outcome.Code)
	assert.Equal(t, "disc_abc", gw.CreatedParams.DiscountID)

	meta, err := domain.ParseSessionMetadata(gw.CreatedParams.Metadata)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", meta.CouponCode)
}

func TestCreateSession_BadCouponDowngradesToSkipped(t *testing.T) {
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_4", AmountTotal: 9998}}
	b := newTestBuilder(gw, &MockCouponStore{ByCode: map[string]*domain.Coupon{}}, NewMockMetadataCache())

	sessionID, outcome, err := b.CreateSession(context.Background(), 1, validCart(), "BOGUS")

	// checkout proceeds without the discount rather than failing
	require.NoError(t, err)
	assert.Equal(t, "sess_4", sessionID)
	assert.False(t, outcome.Applied)
	assert.Equal(t, "BOGUS", outcome.Code)
	assert.NotEmpty(t, outcome.Reason)
	assert.Empty(t, gw.CreatedParams.DiscountID)

	meta, err := domain.ParseSessionMetadata(gw.CreatedParams.Metadata)
	require.NoError(t, err)
	assert.Empty(t, meta.CouponCode)
}

func TestCreateSession_DiscountCreationFailureDowngrades(t *testing.T) {
	gw := &MockGateway{
		Session:     &gateway.Session{ID: "sess_5", AmountTotal: 9998},
		DiscountErr: gateway.ErrUnavailable,
	}
	store := &MockCouponStore{ByCode: map[string]*domain.Coupon{
		"SAVE10": {Code: "SAVE10", DiscountPercentage: 10, ExpirationDate: fixedNow().Add(time.Hour), IsActive: true, UserID: 1},
	}}
	b := newTestBuilder(gw, store, NewMockMetadataCache())

	_, outcome, err := b.CreateSession(context.Background(), 1, validCart(), "SAVE10")

	require.NoError(t, err)
	assert.False(t, outcome.Applied)
}

func TestCreateSession_RewardIssuedAtThreshold(t *testing.T) {
	// session total 200.00 crosses the threshold; the session is not paid
	// and never will be, the reward is granted regardless
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_6", AmountTotal: 20000, PaymentStatus: gateway.StatusUnpaid}}
	store := &MockCouponStore{}
	b := newTestBuilder(gw, store, NewMockMetadataCache())

	cart := []domain.CartItemInput{
		{ProductID: 2, Name: "Monitor", Price: 100.00, Quantity: 2, Images: []string{"https://img.example/m.jpg"}},
	}
	_, _, err := b.CreateSession(context.Background(), 9, cart, "")

	require.NoError(t, err)
	require.Len(t, store.CreatedCoupons, 1)
	reward := store.CreatedCoupons[0]
	assert.Equal(t, int64(9), reward.UserID)
	assert.Equal(t, 10, reward.DiscountPercentage)
}

func TestCreateSession_NoRewardBelowThreshold(t *testing.T) {
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_7", AmountTotal: 9998}}
	store := &MockCouponStore{}
	b := newTestBuilder(gw, store, NewMockMetadataCache())

	_, _, err := b.CreateSession(context.Background(), 9, validCart(), "")

	require.NoError(t, err)
	assert.Empty(t, store.CreatedCoupons)
}

func TestCreateSession_RewardFailureDoesNotFailCheckout(t *testing.T) {
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_8", AmountTotal: 20000}}
	store := &MockCouponStore{CreateErrs: []error{errors.New("db down"), errors.New("db down")}}
	b := newTestBuilder(gw, store, NewMockMetadataCache())

	cart := []domain.CartItemInput{
		{ProductID: 2, Name: "Monitor", Price: 200.00, Quantity: 1, Images: []string{"https://img.example/m.jpg"}},
	}
	sessionID, _, err := b.CreateSession(context.Background(), 9, cart, "")

	require.NoError(t, err)
	assert.Equal(t, "sess_8", sessionID)
}

func TestCreateSession_GatewayErrorPropagates(t *testing.T) {
	gw := &MockGateway{SessionErr: gateway.ErrUnavailable}
	b := newTestBuilder(gw, &MockCouponStore{}, NewMockMetadataCache())

	_, _, err := b.CreateSession(context.Background(), 1, validCart(), "")

	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCreateSession_CachesMetadata(t *testing.T) {
	gw := &MockGateway{Session: &gateway.Session{ID: "sess_9", AmountTotal: 9998}}
	cache := NewMockMetadataCache()
	b := newTestBuilder(gw, &MockCouponStore{}, cache)

	_, _, err := b.CreateSession(context.Background(), 1, validCart(), "")

	require.NoError(t, err)
	cached, ok := cache.Entries["sess_9"]
	require.True(t, ok)
	assert.Equal(t, int64(1), cached.UserID)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(4999), minorUnits(49.99))
	assert.Equal(t, int64(100), minorUnits(1.0))
	assert.Equal(t, int64(10), minorUnits(0.1))
	// half-to-even at the minor-unit boundary
	assert.Equal(t, int64(2000), minorUnits(19.995))
	assert.Equal(t, int64(12), minorUnits(0.125))
}
