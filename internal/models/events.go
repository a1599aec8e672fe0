package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced = "ORDER_PLACED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published once the orders of a checkout session are committed
type OrderPlacedEvent struct {
	BaseEvent
	StripeSessionID string          `json:"stripe_session_id"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Items           []OrderItemData `json:"items"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	OrderID     string          `json:"order_id"`
	StickerID   string          `json:"sticker_id"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	PricingTier string          `json:"pricing_tier"`
}
