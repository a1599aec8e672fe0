package broker

import (
	"context"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// NewOrderPlacedEvent builds the event announcing the orders of one session
func NewOrderPlacedEvent(sessionID string, orders []models.Order) *models.OrderPlacedEvent {
	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: time.Now(),
		},
		StripeSessionID: sessionID,
		Items:           make([]models.OrderItemData, 0, len(orders)),
	}

	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalAmount)
		event.Items = append(event.Items, models.OrderItemData{
			OrderID:     o.ID,
			StickerID:   o.StickerID,
			Quantity:    o.Quantity,
			UnitPrice:   o.UnitPrice,
			PricingTier: o.PricingTierAtSale,
		})
	}
	event.TotalAmount = total
	return event
}

// PublishOrderPlaced publishes an OrderPlaced event keyed by checkout session
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, "session-"+event.StripeSessionID, event)
}
