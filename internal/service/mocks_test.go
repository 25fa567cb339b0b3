package service

import (
	"context"
	"errors"
	"sync"

	"github.com/avolkhov/storefront-checkout/domain"
	"github.com/avolkhov/storefront-checkout/internal/gateway"
	"github.com/avolkhov/storefront-checkout/internal/repository"
)

// MockCouponStore implements CouponStore for testing
type MockCouponStore struct {
	ActiveCoupon   *domain.Coupon
	ActiveErr      error
	ByCode         map[string]*domain.Coupon
	ByCodeErr      error
	CreateErrs     []error // popped per CreateCoupon call
	CreatedCoupons []*domain.Coupon
	Deactivated    []string // codes passed to DeactivateCoupon
	DeactivateErr  error
}

func (m *MockCouponStore) GetActiveCouponForUser(_ context.Context, _ int64) (*domain.Coupon, error) {
	if m.ActiveErr != nil {
		return nil, m.ActiveErr
	}
	if m.ActiveCoupon == nil {
		return nil, repository.ErrCouponNotFound
	}
	return m.ActiveCoupon, nil
}

func (m *MockCouponStore) GetCouponByCode(_ context.Context, code string, _ int64) (*domain.Coupon, error) {
	if m.ByCodeErr != nil {
		return nil, m.ByCodeErr
	}
	coupon, ok := m.ByCode[code]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	return coupon, nil
}

func (m *MockCouponStore) CreateCoupon(_ context.Context, c *domain.Coupon) error {
	if len(m.CreateErrs) > 0 {
		err := m.CreateErrs[0]
		m.CreateErrs = m.CreateErrs[1:]
		if err != nil {
			return err
		}
	}
	m.CreatedCoupons = append(m.CreatedCoupons, c)
	return nil
}

func (m *MockCouponStore) DeactivateCoupon(_ context.Context, code string, _ int64) error {
	if m.DeactivateErr != nil {
		return m.DeactivateErr
	}
	m.Deactivated = append(m.Deactivated, code)
	return nil
}

// MockGateway implements gateway.Client for testing
type MockGateway struct {
	Session       *gateway.Session
	SessionErr    error
	DiscountID    string
	DiscountErr   error
	GetSession_   *gateway.Session
	GetSessionErr error
	GetSessionFn  func(ctx context.Context) (*gateway.Session, error) // overrides the fields above when set

	CreatedParams   *gateway.CreateSessionParams
	GetSessionCalls int
}

func (m *MockGateway) CreateSession(_ context.Context, params *gateway.CreateSessionParams) (*gateway.Session, error) {
	m.CreatedParams = params
	if m.SessionErr != nil {
		return nil, m.SessionErr
	}
	return m.Session, nil
}

func (m *MockGateway) CreatePercentageDiscount(_ context.Context, _ int) (string, error) {
	if m.DiscountErr != nil {
		return "", m.DiscountErr
	}
	return m.DiscountID, nil
}

func (m *MockGateway) GetSession(ctx context.Context, _ string) (*gateway.Session, error) {
	m.GetSessionCalls++
	if m.GetSessionFn != nil {
		return m.GetSessionFn(ctx)
	}
	if m.GetSessionErr != nil {
		return nil, m.GetSessionErr
	}
	return m.GetSession_, nil
}

// MockOrderStore implements OrderStore for testing. Safe for concurrent use
// so confirmation races can be exercised with real goroutines.
type MockOrderStore struct {
	mu sync.Mutex

	Existing     *domain.Order
	GetErr       error
	FinalizeErrs []error // popped per FinalizeOrder call
	// WinnerOnDuplicate becomes visible to re-reads once FinalizeOrder
	// reports ErrDuplicateSession, mimicking a concurrent finalizer whose
	// insert landed between the idempotency check and ours.
	WinnerOnDuplicate *domain.Order

	Finalized     []*repository.FinalizeOrderParams
	FinalizeCalls int
}

func (m *MockOrderStore) GetOrderBySessionID(_ context.Context, _ string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Existing == nil {
		return nil, repository.ErrOrderNotFound
	}
	return m.Existing, nil
}

func (m *MockOrderStore) FinalizeOrder(_ context.Context, params *repository.FinalizeOrderParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FinalizeCalls++
	if len(m.FinalizeErrs) > 0 {
		err := m.FinalizeErrs[0]
		m.FinalizeErrs = m.FinalizeErrs[1:]
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateSession) && m.WinnerOnDuplicate != nil {
				m.Existing = m.WinnerOnDuplicate
			}
			return err
		}
	}
	// first successful finalize wins, the way the unique constraint behaves
	if m.Existing != nil {
		return repository.ErrDuplicateSession
	}
	m.Finalized = append(m.Finalized, params)
	m.Existing = params.Order
	return nil
}

// MockMetadataCache implements MetadataCache for testing
type MockMetadataCache struct {
	mu      sync.Mutex
	Entries map[string]*domain.SessionMetadata
	GetErr  error
	SetErr  error
}

func NewMockMetadataCache() *MockMetadataCache {
	return &MockMetadataCache{Entries: make(map[string]*domain.SessionMetadata)}
}

func (m *MockMetadataCache) Get(_ context.Context, sessionID string) (*domain.SessionMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	meta, ok := m.Entries[sessionID]
	if !ok {
		return nil, errors.New("no cached metadata")
	}
	return meta, nil
}

func (m *MockMetadataCache) Set(_ context.Context, sessionID string, meta *domain.SessionMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.Entries[sessionID] = meta
	return nil
}
