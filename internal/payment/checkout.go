package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"go.uber.org/zap"
)

// ErrExternalSession is returned when the provider accepts a session
// request but does not hand back a hosted checkout URL.
var ErrExternalSession = errors.New("payment provider returned no checkout URL")

// CartMetadataKey is the session metadata key holding the serialized cart.
const CartMetadataKey = "cart"

// SessionIDPlaceholder is substituted by Stripe with the created session id.
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// sessionAPI is the subset of the Stripe checkout session client used here.
type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Options configures the hosted checkout sessions.
type Options struct {
	BaseURL         string
	Currency        string
	ShippingCountry string
	WebhookSecret   string
	Timeout         time.Duration
}

// Gateway creates Stripe hosted checkout sessions and verifies Stripe webhooks
type Gateway struct {
	sessions sessionAPI
	breaker  *gobreaker.CircuitBreaker[*stripe.CheckoutSession]
	opts     Options
	logger   *zap.Logger
}

// NewGateway creates a gateway authenticating with secretKey
func NewGateway(secretKey string, opts Options) *Gateway {
	client := &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey}
	return newGateway(client, opts)
}

func newGateway(sessions sessionAPI, opts Options) *Gateway {
	if opts.Currency == "" {
		opts.Currency = string(stripe.CurrencyUSD)
	}
	if opts.ShippingCountry == "" {
		opts.ShippingCountry = "US"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	logger := util.GetLogger()
	breaker := gobreaker.NewCircuitBreaker[*stripe.CheckoutSession](gobreaker.Settings{
		Name:        "stripe-checkout",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Gateway{
		sessions: sessions,
		breaker:  breaker,
		opts:     opts,
		logger:   logger,
	}
}

// UnitAmount converts a decimal price into integer minor currency units.
func UnitAmount(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

// BuildSessionParams maps server-priced line items to a Stripe session request
func (g *Gateway) BuildSessionParams(items []models.CheckoutLineItem) (*stripe.CheckoutSessionParams, error) {
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(items))
	cartMeta := make([]models.CartMetaItem, 0, len(items))

	for _, item := range items {
		images := []*string{}
		if item.ImageURL != nil && *item.ImageURL != "" {
			images = append(images, stripe.String(*item.ImageURL))
		}

		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(g.opts.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:   stripe.String(item.Title),
					Images: images,
				},
				UnitAmount: stripe.Int64(UnitAmount(item.UnitPrice)),
			},
			Quantity: stripe.Int64(int64(item.Quantity)),
		})

		cartMeta = append(cartMeta, models.CartMetaItem{
			StickerID:           item.StickerID,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			FulfillmentProvider: item.FulfillmentProvider,
			PricingTier:         item.PricingTier,
		})
	}

	cartJSON, err := json.Marshal(cartMeta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart metadata: %w", err)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:      stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: lineItems,
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{g.opts.ShippingCountry}),
		},
		SuccessURL: stripe.String(g.opts.BaseURL + "/checkout/success?session_id=" + SessionIDPlaceholder),
		CancelURL:  stripe.String(g.opts.BaseURL + "/"),
	}
	params.AddMetadata(CartMetadataKey, string(cartJSON))

	return params, nil
}

// CreateCheckoutSession creates a hosted checkout session and returns its URL
func (g *Gateway) CreateCheckoutSession(ctx context.Context, items []models.CheckoutLineItem) (string, error) {
	ctx, span := util.StartSpan(ctx, "Gateway.CreateCheckoutSession")
	defer span.End()

	params, err := g.BuildSessionParams(items)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	params.Context = ctx

	start := time.Now()
	sess, err := g.breaker.Execute(func() (*stripe.CheckoutSession, error) {
		return g.sessions.New(params)
	})
	util.PaymentProviderLatency.WithLabelValues("create_session").Observe(time.Since(start).Seconds())

	if err != nil {
		util.RecordError(span, err)
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	if sess == nil || sess.URL == "" {
		util.RecordError(span, ErrExternalSession)
		return "", ErrExternalSession
	}

	g.logger.Info("Checkout session created",
		zap.String("session_id", sess.ID),
		zap.Int("line_items", len(items)))
	return sess.URL, nil
}
