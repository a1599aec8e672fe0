package service

import (
	"context"
	"encoding/json"
	"errors"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Outcome describes how a verified webhook event was handled
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// Best-effort task names
const (
	TaskRefreshDailyMetrics = "refresh_daily_metrics"
	TaskPublishOrderPlaced  = "publish_order_placed"
)

// WebhookService turns completed checkout sessions into order rows
type WebhookService struct {
	verifier   EventVerifier
	orders     OrderStore
	sales      SalesCounter
	metrics    MetricsRefresher
	publisher  OrderEventPublisher
	dispatcher TaskDispatcher
	logger     *zap.Logger
}

// NewWebhookService creates a new webhook service. publisher may be nil.
func NewWebhookService(
	verifier EventVerifier,
	orders OrderStore,
	sales SalesCounter,
	metrics MetricsRefresher,
	publisher OrderEventPublisher,
	dispatcher TaskDispatcher,
) *WebhookService {
	return &WebhookService{
		verifier:   verifier,
		orders:     orders,
		sales:      sales,
		metrics:    metrics,
		publisher:  publisher,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
	}
}

// HandleEvent verifies and processes one webhook delivery. Only a
// checkout.session.completed event touches storage. Replays of an already
// processed session are acknowledged without writing anything.
func (s *WebhookService) HandleEvent(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleEvent")
	defer span.End()

	if signature == "" {
		util.WebhookEventsTotal.WithLabelValues("missing_signature").Inc()
		return "", ErrMissingSignature
	}

	event, err := s.verifier.ConstructEvent(payload, signature)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("invalid_signature").Inc()
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return "", upstream(ErrInvalidSignature, err)
	}

	if event.Type != payment.EventCheckoutSessionCompleted || event.Session == nil {
		util.WebhookEventsTotal.WithLabelValues(string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	sess := event.Session
	logger := s.logger.With(zap.String("session_id", sess.ID), zap.String("event_id", event.ID))

	exists, err := s.orders.HasOrdersForSession(ctx, sess.ID)
	if err != nil {
		util.RecordError(span, err)
		util.WebhookEventsTotal.WithLabelValues("lookup_error").Inc()
		logger.Error("Order lookup failed", zap.Error(err))
		return "", upstream(ErrOrderLookup, err)
	}
	if exists {
		util.WebhookEventsTotal.WithLabelValues(string(OutcomeDuplicate)).Inc()
		logger.Info("Checkout session already processed")
		return OutcomeDuplicate, nil
	}

	items, err := parseCartMetadata(sess.Metadata)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("missing_metadata").Inc()
		logger.Warn("Cart metadata unusable", zap.Error(err))
		return "", ErrMissingCartMetadata
	}

	orders := buildOrders(sess.ID, items, customerDataFrom(sess))

	if err := s.orders.InsertOrders(ctx, sess.ID, orders); err != nil {
		if errors.Is(err, store.ErrSessionAlreadyProcessed) {
			util.WebhookEventsTotal.WithLabelValues(string(OutcomeDuplicate)).Inc()
			logger.Info("Checkout session claimed by a concurrent delivery")
			return OutcomeDuplicate, nil
		}
		util.RecordError(span, err)
		util.WebhookEventsTotal.WithLabelValues("insert_error").Inc()
		logger.Error("Order insert failed", zap.Error(err))
		return "", upstream(ErrOrderInsert, err)
	}

	util.OrdersCreatedTotal.Add(float64(len(orders)))
	logger.Info("Orders created", zap.Int("count", len(orders)))

	s.updateSalesCounts(ctx, items)
	s.scheduleFollowUps(sess.ID, orders)

	util.WebhookEventsTotal.WithLabelValues(string(OutcomeProcessed)).Inc()
	return OutcomeProcessed, nil
}

func parseCartMetadata(metadata map[string]string) ([]models.CartMetaItem, error) {
	raw, ok := metadata[payment.CartMetadataKey]
	if !ok || raw == "" {
		return nil, errors.New("cart metadata absent")
	}
	var items []models.CartMetaItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New("cart metadata empty")
	}
	return items, nil
}

// customerDataFrom returns nil when the session carries no customer details
func customerDataFrom(sess *payment.CompletedSession) *models.CustomerData {
	if sess.CustomerDetails == nil {
		return nil
	}

	data := &models.CustomerData{Email: deref(sess.CustomerDetails.Email)}

	ship := sess.Shipping()
	if ship != nil && ship.Name != nil && *ship.Name != "" {
		data.Name = *ship.Name
	} else {
		data.Name = deref(sess.CustomerDetails.Name)
	}

	if ship != nil && ship.Address != nil {
		addr := ship.Address
		data.ShippingAddress = models.ShippingAddress{
			Line1:      deref(addr.Line1),
			Line2:      addr.Line2,
			City:       deref(addr.City),
			State:      deref(addr.State),
			PostalCode: deref(addr.PostalCode),
			Country:    deref(addr.Country),
		}
	}
	return data
}

func buildOrders(sessionID string, items []models.CartMetaItem, customer *models.CustomerData) []models.Order {
	orders := make([]models.Order, 0, len(items))
	for _, item := range items {
		orders = append(orders, models.Order{
			ID:                  uuid.New().String(),
			StripeSessionID:     sessionID,
			StickerID:           item.StickerID,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			TotalAmount:         item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))),
			FulfillmentProvider: item.FulfillmentProvider,
			Status:              models.OrderStatusPending,
			PricingTierAtSale:   item.PricingTier,
			CustomerData:        customer,
		})
	}
	return orders
}

// updateSalesCounts never fails the event. The atomic increment is tried
// first, then a read-modify-write fallback.
func (s *WebhookService) updateSalesCounts(ctx context.Context, items []models.CartMetaItem) {
	for _, item := range items {
		err := s.sales.IncrementSalesCount(ctx, item.StickerID, item.Quantity)
		if err == nil {
			continue
		}
		s.logger.Warn("Atomic sales count increment failed, falling back",
			zap.String("sticker_id", item.StickerID), zap.Error(err))

		if err := s.sales.AddSalesCount(ctx, item.StickerID, item.Quantity); err != nil {
			util.SalesCountFallbackTotal.WithLabelValues("failure").Inc()
			s.logger.Error("Sales count fallback failed",
				zap.String("sticker_id", item.StickerID), zap.Error(err))
			continue
		}
		util.SalesCountFallbackTotal.WithLabelValues("success").Inc()
	}
}

func (s *WebhookService) scheduleFollowUps(sessionID string, orders []models.Order) {
	if s.dispatcher == nil {
		return
	}

	if s.metrics != nil {
		s.dispatcher.Dispatch(TaskRefreshDailyMetrics, func(ctx context.Context) error {
			return s.metrics.RefreshDailyMetrics(ctx)
		})
	}

	if s.publisher != nil {
		event := broker.NewOrderPlacedEvent(sessionID, orders)
		s.dispatcher.Dispatch(TaskPublishOrderPlaced, func(ctx context.Context) error {
			return s.publisher.PublishOrderPlaced(ctx, event)
		})
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
