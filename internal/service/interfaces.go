package service

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/worker"
)

// CatalogReader batch-reads stickers by id, including unpublished ones
type CatalogReader interface {
	GetStickersByIDs(ctx context.Context, ids []string) ([]models.Sticker, error)
}

// SessionCreator creates a hosted checkout session and returns its URL
type SessionCreator interface {
	CreateCheckoutSession(ctx context.Context, items []models.CheckoutLineItem) (string, error)
}

// EventVerifier authenticates a raw webhook body against its signature header
type EventVerifier interface {
	ConstructEvent(payload []byte, signature string) (*payment.Event, error)
}

// OrderStore persists orders. InsertOrders must return
// store.ErrSessionAlreadyProcessed when the session was claimed before.
type OrderStore interface {
	HasOrdersForSession(ctx context.Context, sessionID string) (bool, error)
	InsertOrders(ctx context.Context, sessionID string, orders []models.Order) error
}

// SalesCounter maintains per-sticker sales counts
type SalesCounter interface {
	IncrementSalesCount(ctx context.Context, stickerID string, quantity int) error
	AddSalesCount(ctx context.Context, stickerID string, quantity int) error
}

// MetricsRefresher rebuilds the admin dashboard aggregates
type MetricsRefresher interface {
	RefreshDailyMetrics(ctx context.Context) error
}

// OrderEventPublisher announces committed orders to downstream consumers
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// TaskDispatcher runs best-effort work without blocking the caller
type TaskDispatcher interface {
	Dispatch(name string, task worker.Task)
}
