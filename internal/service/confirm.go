package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/avolkhov/storefront-checkout/domain"
	"github.com/avolkhov/storefront-checkout/internal/gateway"
	"github.com/avolkhov/storefront-checkout/internal/repository"
)

// OrderStore is the slice of the repository the finalizer needs.
type OrderStore interface {
	GetOrderBySessionID(ctx context.Context, sessionID string) (*domain.Order, error)
	FinalizeOrder(ctx context.Context, params *repository.FinalizeOrderParams) error
}

const orderConfirmedEvent = "order.confirmed"

// confirmFlightTimeout bounds one finalization flight. The flight serves
// every caller waiting on the same session, so it cannot run under any
// single caller's context.
const confirmFlightTimeout = 30 * time.Second

// Finalizer turns a paid payment session into exactly one persisted order.
// The DB unique constraint on external_session_id is the cross-process
// guarantee; singleflight only collapses duplicates inside this process.
type Finalizer struct {
	gateway gateway.Client
	store   OrderStore
	cache   MetadataCache
	sfg     singleflight.Group
}

func NewFinalizer(gw gateway.Client, store OrderStore, cache MetadataCache) *Finalizer {
	return &Finalizer{
		gateway: gw,
		store:   store,
		cache:   cache,
	}
}

// Confirm may be invoked any number of times for the same session: retry,
// double-click, webhook redelivery. Every call reports the same order.
func (f *Finalizer) Confirm(ctx context.Context, sessionID string) (*domain.ConfirmResult, error) {
	v, err, _ := f.sfg.Do(sessionID, func() (interface{}, error) {
		// Detach from the leader's request: a rider whose own request is
		// healthy must not lose the result to the leader's cancellation.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmFlightTimeout)
		defer cancel()
		return f.confirm(flightCtx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.ConfirmResult), nil
}

func (f *Finalizer) confirm(ctx context.Context, sessionID string) (*domain.ConfirmResult, error) {
	sess, err := f.gateway.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if sess.PaymentStatus != gateway.StatusPaid {
		return nil, &PaymentIncompleteError{Status: sess.PaymentStatus}
	}

	// Idempotency gate: an existing order for this session means an
	// earlier call already finalized it.
	existing, err := f.store.GetOrderBySessionID(ctx, sessionID)
	if err == nil {
		return &domain.ConfirmResult{OrderID: existing.ID, AlreadyProcessed: true}, nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrFinalizationFailed, err)
	}

	meta, err := f.sessionMetadata(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFinalizationFailed, err)
	}

	order := &domain.Order{
		ID:                uuid.New(),
		UserID:            meta.UserID,
		TotalAmount:       majorUnits(sess.AmountTotal),
		ExternalSessionID: sessionID,
	}
	for _, ref := range meta.Products {
		order.Items = append(order.Items, domain.OrderLineItem{
			OrderID:   order.ID,
			ProductID: ref.ProductID,
			Quantity:  ref.Quantity,
			UnitPrice: ref.Price,
		})
	}

	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"user_id":      order.UserID,
		"session_id":   sessionID,
		"total_amount": order.TotalAmount,
		"items":        order.Items,
		"confirmed_at": time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal event payload: %v", ErrFinalizationFailed, err)
	}

	finalizeErr := f.store.FinalizeOrder(ctx, &repository.FinalizeOrderParams{
		Order:      order,
		CouponCode: meta.CouponCode,
		EventType:  orderConfirmedEvent,
		Payload:    payload,
	})
	if errors.Is(finalizeErr, repository.ErrDuplicateSession) {
		// Lost the race with a concurrent finalizer; the winner's order
		// is the result, same as a sequential duplicate call.
		winner, readErr := f.store.GetOrderBySessionID(ctx, sessionID)
		if readErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrFinalizationFailed, readErr)
		}
		return &domain.ConfirmResult{OrderID: winner.ID, AlreadyProcessed: true}, nil
	}
	if finalizeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrFinalizationFailed, finalizeErr)
	}

	return &domain.ConfirmResult{OrderID: order.ID}, nil
}

// sessionMetadata prefers the live gateway record; the cache only serves
// as a fallback when the gateway response carried no metadata bag.
func (f *Finalizer) sessionMetadata(ctx context.Context, sess *gateway.Session) (*domain.SessionMetadata, error) {
	if len(sess.Metadata) > 0 {
		return domain.ParseSessionMetadata(sess.Metadata)
	}

	cached, err := f.cache.Get(ctx, sess.ID)
	if err != nil {
		log.Printf("session %s carries no metadata and cache lookup failed: %v", sess.ID, err)
		return nil, fmt.Errorf("session metadata unavailable for %s", sess.ID)
	}
	return cached, nil
}

func majorUnits(amount int64) float64 {
	f, _ := decimal.NewFromInt(amount).Div(decimal.NewFromInt(100)).Float64()
	return f
}
