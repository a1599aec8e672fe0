package store

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/models"
)

// ErrSessionAlreadyProcessed is returned by InsertOrders when another
// delivery already committed orders for the same checkout session
var ErrSessionAlreadyProcessed = errors.New("checkout session already processed")

// HasOrdersForSession checks if any order row carries sessionID
func (s *Store) HasOrdersForSession(ctx context.Context, sessionID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM orders WHERE stripe_session_id = $1)", sessionID)
	return exists, err
}

// InsertOrders writes all rows of one checkout session in a single
// transaction. The session id is claimed first, so a concurrent delivery
// that lost the race gets ErrSessionAlreadyProcessed and writes nothing.
func (s *Store) InsertOrders(ctx context.Context, sessionID string, orders []models.Order) error {
	if len(orders) == 0 {
		return errors.New("no orders to insert")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_checkout_sessions (session_id) VALUES ($1) ON CONFLICT (session_id) DO NOTHING",
		sessionID)
	if err != nil {
		return fmt.Errorf("failed to claim session: %w", err)
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if claimed == 0 {
		return ErrSessionAlreadyProcessed
	}

	query := `
		INSERT INTO orders (id, stripe_session_id, sticker_id, quantity, unit_price, total_amount,
			fulfillment_provider, status, pricing_tier_at_sale, customer_data)
		VALUES (:id, :stripe_session_id, :sticker_id, :quantity, :unit_price, :total_amount,
			:fulfillment_provider, :status, :pricing_tier_at_sale, :customer_data)`

	if _, err := tx.NamedExecContext(ctx, query, orders); err != nil {
		return fmt.Errorf("failed to insert orders: %w", err)
	}

	return tx.Commit()
}

// ListOrdersWithTitles retrieves every order newest first with its sticker title
func (s *Store) ListOrdersWithTitles(ctx context.Context) ([]models.OrderWithTitle, error) {
	orders := []models.OrderWithTitle{}
	err := s.db.SelectContext(ctx, &orders, `
		SELECT o.id, o.stripe_session_id, COALESCE(o.sticker_id, '') AS sticker_id, o.quantity,
			o.unit_price, o.total_amount, o.fulfillment_provider, o.status, o.pricing_tier_at_sale,
			o.customer_data, o.created_at, o.updated_at,
			COALESCE(st.title, 'Unknown sticker') AS sticker_title
		FROM orders o
		LEFT JOIN stickers st ON st.id = o.sticker_id
		ORDER BY o.created_at DESC`)
	return orders, err
}

// ListDailyMetrics retrieves the most recent daily metric rows, newest first
func (s *Store) ListDailyMetrics(ctx context.Context, limit int) ([]models.DailyMetric, error) {
	metrics := []models.DailyMetric{}
	err := s.db.SelectContext(ctx, &metrics, `
		SELECT date, orders, gross_revenue, cogs, estimated_profit, new_listings, avg_order_value
		FROM daily_metrics ORDER BY date DESC LIMIT $1`, limit)
	return metrics, err
}

// RefreshDailyMetrics rebuilds the daily_metrics view
func (s *Store) RefreshDailyMetrics(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "SELECT refresh_daily_metrics()")
	return err
}
