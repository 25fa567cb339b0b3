package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/avolkhov/storefront-checkout/domain"
)

type FinalizeOrderParams struct {
	Order      *domain.Order
	CouponCode string // deactivated inside the transaction when non-empty
	EventType  string
	Payload    []byte // outbox event payload, already JSON
}

// FinalizeOrder applies every confirmation side effect as one transaction:
// coupon deactivation, order row, line items, cart clear, outbox row.
// A unique violation on external_session_id rolls everything back and
// returns ErrDuplicateSession so the caller can return the race winner.
func (r *Repository) FinalizeOrder(ctx context.Context, params *FinalizeOrderParams) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	order := params.Order

	if params.CouponCode != "" {
		deactivate := `UPDATE coupons SET is_active = false, updated_at = NOW()
		               WHERE code = $1 AND user_id = $2`
		if _, err := tx.ExecContext(ctx, deactivate, params.CouponCode, order.UserID); err != nil {
			return fmt.Errorf("deactivate applied coupon: %w", err)
		}
	}

	insertOrder := `INSERT INTO orders (id, user_id, total_amount, external_session_id, created_at)
	                VALUES ($1, $2, $3, $4, NOW())`
	_, insertErr := tx.ExecContext(ctx, insertOrder,
		order.ID,
		order.UserID,
		order.TotalAmount,
		order.ExternalSessionID)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateSession
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	insertItem := `INSERT INTO order_items (order_id, product_id, quantity, unit_price)
	               VALUES ($1, $2, $3, $4)`
	for _, item := range order.Items {
		if _, err := tx.ExecContext(ctx, insertItem,
			order.ID, item.ProductID, item.Quantity, item.UnitPrice); err != nil {
			return fmt.Errorf("insert order item %d: %w", item.ProductID, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, order.UserID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}

	insertEvent := `INSERT INTO outbox_events (aggregate_id, event_type, payload, created_at)
	                VALUES ($1, $2, $3, NOW())`
	if _, err := tx.ExecContext(ctx, insertEvent, order.ID.String(), params.EventType, params.Payload); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize tx: %w", err)
	}
	committed = true
	return nil
}

func (r *Repository) GetOrderBySessionID(ctx context.Context, sessionID string) (*domain.Order, error) {
	query := `SELECT id, user_id, total_amount, external_session_id, created_at
	          FROM orders WHERE external_session_id = $1`

	var order domain.Order
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&order.ID,
		&order.UserID,
		&order.TotalAmount,
		&order.ExternalSessionID,
		&order.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by session id: %w", err)
	}

	items, err := r.getOrderItems(ctx, &order)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return &order, nil
}

func (r *Repository) getOrderItems(ctx context.Context, order *domain.Order) ([]domain.OrderLineItem, error) {
	query := `SELECT order_id, product_id, quantity, unit_price
	          FROM order_items WHERE order_id = $1`

	rows, err := r.db.QueryContext(ctx, query, order.ID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderLineItem
	for rows.Next() {
		var item domain.OrderLineItem
		if err := rows.Scan(&item.OrderID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}
