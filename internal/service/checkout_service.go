package service

import (
	"context"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// CheckoutService turns a client cart into a hosted checkout session
type CheckoutService struct {
	catalog  CatalogReader
	sessions SessionCreator
	logger   *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(catalog CatalogReader, sessions SessionCreator) *CheckoutService {
	return &CheckoutService{
		catalog:  catalog,
		sessions: sessions,
		logger:   util.GetLogger(),
	}
}

// CheckoutRequest is the cart submitted by the client
type CheckoutRequest struct {
	Items []CheckoutItemRequest `json:"items"`
}

// CheckoutItemRequest references one sticker. Any price the client sends
// is not part of the request and never read.
type CheckoutItemRequest struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// CheckoutResponse carries the hosted checkout URL
type CheckoutResponse struct {
	URL string `json:"url"`
}

// CreateCheckout validates the whole cart against the catalog and creates a
// payment session for it. Nothing is created unless every item validates.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.CreateCheckout")
	defer span.End()

	if req == nil || len(req.Items) == 0 {
		util.CheckoutRejectedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	if err := validateQuantities(req.Items); err != nil {
		util.CheckoutRejectedTotal.WithLabelValues("invalid_quantity").Inc()
		return nil, err
	}

	stickers, err := s.fetchStickers(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	lineItems := buildLineItems(req.Items, stickers)

	url, err := s.sessions.CreateCheckoutSession(ctx, lineItems)
	if err != nil {
		util.RecordError(span, err)
		util.CheckoutRejectedTotal.WithLabelValues("provider_error").Inc()
		s.logger.Error("Checkout session creation failed", zap.Error(err))
		return nil, upstream(ErrCheckoutFailed, err)
	}

	util.CheckoutSessionsCreatedTotal.Inc()
	return &CheckoutResponse{URL: url}, nil
}

// fetchStickers reads every referenced sticker in one batch and rejects the
// cart if any id is unknown or any sticker is not purchasable
func (s *CheckoutService) fetchStickers(ctx context.Context, items []CheckoutItemRequest) (map[string]*models.Sticker, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if !seen[item.ItemID] {
			seen[item.ItemID] = true
			ids = append(ids, item.ItemID)
		}
	}

	stickers, err := s.catalog.GetStickersByIDs(ctx, ids)
	if err != nil {
		util.CheckoutRejectedTotal.WithLabelValues("catalog_error").Inc()
		s.logger.Error("Catalog fetch failed", zap.Error(err))
		return nil, upstream(ErrCheckoutFailed, err)
	}

	byID := make(map[string]*models.Sticker, len(stickers))
	for i := range stickers {
		byID[stickers[i].ID] = &stickers[i]
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		util.CheckoutRejectedTotal.WithLabelValues("invalid_items").Inc()
		return nil, &InvalidItemsError{IDs: missing}
	}

	var unavailable []string
	for _, id := range ids {
		if st := byID[id]; !st.Purchasable() {
			unavailable = append(unavailable, st.Title)
		}
	}
	if len(unavailable) > 0 {
		util.CheckoutRejectedTotal.WithLabelValues("unavailable_items").Inc()
		return nil, &UnavailableItemsError{Titles: unavailable}
	}

	return byID, nil
}

func validateQuantities(items []CheckoutItemRequest) error {
	var bad []string
	for _, item := range items {
		if item.Quantity < 1 {
			bad = append(bad, item.ItemID)
		}
	}
	if len(bad) > 0 {
		return &InvalidQuantityError{IDs: bad}
	}
	return nil
}

// buildLineItems prices every requested line from the catalog
func buildLineItems(items []CheckoutItemRequest, stickers map[string]*models.Sticker) []models.CheckoutLineItem {
	lineItems := make([]models.CheckoutLineItem, 0, len(items))
	for _, item := range items {
		st := stickers[item.ItemID]
		image := st.ImageURL
		lineItems = append(lineItems, models.CheckoutLineItem{
			StickerID:           st.ID,
			Title:               st.Title,
			ImageURL:            &image,
			UnitPrice:           st.Price,
			Quantity:            item.Quantity,
			FulfillmentProvider: st.FulfillmentProvider,
			PricingTier:         st.PricingTier,
		})
	}
	return lineItems
}
