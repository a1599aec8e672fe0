package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Prices travel as JSON numbers, both to clients and in payment metadata.
	decimal.MarshalJSONWithoutQuotes = true
}

// Pricing tiers
const (
	TierJustDropped = "just_dropped"
	TierTrending    = "trending"
	TierCooling     = "cooling"
	TierEvergreen   = "evergreen"
)

// PricingTiers lists every tier in catalog display order.
var PricingTiers = []string{TierJustDropped, TierTrending, TierCooling, TierEvergreen}

// IsPricingTier reports whether tier is one of the known pricing tiers.
func IsPricingTier(tier string) bool {
	for _, t := range PricingTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// ModerationApproved is the only moderation status that makes a sticker purchasable.
const ModerationApproved = "approved"

// Sticker represents a catalog item
type Sticker struct {
	ID                  string          `db:"id" json:"id"`
	Title               string          `db:"title" json:"title"`
	Description         *string         `db:"description" json:"description"`
	ImageURL            string          `db:"image_url" json:"image_url"`
	ThumbnailURL        *string         `db:"thumbnail_url" json:"thumbnail_url"`
	Price               decimal.Decimal `db:"price" json:"price"`
	PricingTier         string          `db:"current_pricing_tier" json:"current_pricing_tier"`
	FulfillmentProvider *string         `db:"fulfillment_provider" json:"fulfillment_provider"`
	ModerationStatus    *string         `db:"moderation_status" json:"moderation_status"`
	SalesCount          int             `db:"sales_count" json:"sales_count"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	PublishedAt         *time.Time      `db:"published_at" json:"published_at"`
}

// Purchasable reports whether the sticker is published and approved.
func (s *Sticker) Purchasable() bool {
	return s.PublishedAt != nil && s.ModerationStatus != nil && *s.ModerationStatus == ModerationApproved
}

// CheckoutLineItem is a cart line priced from the catalog, never from the client.
type CheckoutLineItem struct {
	StickerID           string
	Title               string
	ImageURL            *string
	UnitPrice           decimal.Decimal
	Quantity            int
	FulfillmentProvider *string
	PricingTier         string
}

// CartMetaItem is the per-line cart snapshot attached to a payment session.
type CartMetaItem struct {
	StickerID           string          `json:"stickerId"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	FulfillmentProvider *string         `json:"fulfillmentProvider"`
	PricingTier         string          `json:"pricingTier"`
}

// Order represents one purchased line item of a completed checkout session
type Order struct {
	ID                  string          `db:"id" json:"id"`
	StripeSessionID     string          `db:"stripe_session_id" json:"stripe_session_id"`
	StickerID           string          `db:"sticker_id" json:"sticker_id"`
	Quantity            int             `db:"quantity" json:"quantity"`
	UnitPrice           decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalAmount         decimal.Decimal `db:"total_amount" json:"total_amount"`
	FulfillmentProvider *string         `db:"fulfillment_provider" json:"fulfillment_provider"`
	Status              string          `db:"status" json:"status"`
	PricingTierAtSale   string          `db:"pricing_tier_at_sale" json:"pricing_tier_at_sale"`
	CustomerData        *CustomerData   `db:"customer_data" json:"customer_data"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at" json:"updated_at"`
}

// OrderWithTitle is an order row joined with its sticker title for the admin table
type OrderWithTitle struct {
	Order
	StickerTitle string `db:"sticker_title" json:"sticker_title"`
}

// Order statuses
const (
	OrderStatusPending   = "pending"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusRefunded  = "refunded"
	OrderStatusFailed    = "failed"
)

// ShippingAddress is the postal address collected by the payment provider
type ShippingAddress struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country"`
}

// CustomerData is stored as jsonb on every order row of a session
type CustomerData struct {
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
}

// Value implements driver.Valuer
func (c CustomerData) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner
func (c *CustomerData) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported customer_data type %T", src)
	}
	return json.Unmarshal(raw, c)
}

// DailyMetric is one precomputed row of the admin dashboard
type DailyMetric struct {
	Date            time.Time       `db:"date" json:"date"`
	Orders          int             `db:"orders" json:"orders"`
	GrossRevenue    decimal.Decimal `db:"gross_revenue" json:"gross_revenue"`
	COGS            decimal.Decimal `db:"cogs" json:"cogs"`
	EstimatedProfit decimal.Decimal `db:"estimated_profit" json:"estimated_profit"`
	NewListings     int             `db:"new_listings" json:"new_listings"`
	AvgOrderValue   decimal.Decimal `db:"avg_order_value" json:"avg_order_value"`
}
