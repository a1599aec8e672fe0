package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/store"
	"storefront/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func publishedSticker(id, title, price string) models.Sticker {
	now := time.Now()
	return models.Sticker{
		ID:               id,
		Title:            title,
		ImageURL:         "https://img/" + id + ".png",
		Price:            dec(price),
		PricingTier:      models.TierTrending,
		ModerationStatus: strPtr(models.ModerationApproved),
		PublishedAt:      &now,
	}
}

type fakeCatalog struct {
	stickers []models.Sticker
	err      error
	calls    int
}

func (f *fakeCatalog) GetStickersByIDs(_ context.Context, ids []string) ([]models.Sticker, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Sticker
	for _, s := range f.stickers {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeSessions struct {
	items []models.CheckoutLineItem
	url   string
	err   error
	calls int
}

func (f *fakeSessions) CreateCheckoutSession(_ context.Context, items []models.CheckoutLineItem) (string, error) {
	f.calls++
	f.items = items
	return f.url, f.err
}

func TestCreateCheckout_PricesFromCatalog(t *testing.T) {
	catalog := &fakeCatalog{stickers: []models.Sticker{publishedSticker("a", "Frog", "4.49")}}
	sessions := &fakeSessions{url: "https://checkout.example/cs_1"}
	svc := NewCheckoutService(catalog, sessions)

	// the client-side price is not even representable in the request
	var req CheckoutRequest
	require.NoError(t, json.Unmarshal([]byte(`{"items":[{"itemId":"a","quantity":2,"price":0.01}]}`), &req))

	resp, err := svc.CreateCheckout(context.Background(), &req)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/cs_1", resp.URL)

	require.Len(t, sessions.items, 1)
	assert.Equal(t, "4.49", sessions.items[0].UnitPrice.String())
	assert.Equal(t, 2, sessions.items[0].Quantity)
	assert.Equal(t, "Frog", sessions.items[0].Title)
	assert.Equal(t, "https://img/a.png", *sessions.items[0].ImageURL)
}

func TestCreateCheckout_EmptyCart(t *testing.T) {
	catalog := &fakeCatalog{}
	svc := NewCheckoutService(catalog, &fakeSessions{})

	_, err := svc.CreateCheckout(context.Background(), &CheckoutRequest{})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = svc.CreateCheckout(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, catalog.calls)
}

func TestCreateCheckout_InvalidQuantity(t *testing.T) {
	catalog := &fakeCatalog{}
	sessions := &fakeSessions{}
	svc := NewCheckoutService(catalog, sessions)

	_, err := svc.CreateCheckout(context.Background(), &CheckoutRequest{Items: []CheckoutItemRequest{
		{ItemID: "a", Quantity: 1},
		{ItemID: "b", Quantity: 0},
		{ItemID: "c", Quantity: -3},
	}})

	var qe *InvalidQuantityError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, []string{"b", "c"}, qe.IDs)
	assert.Zero(t, catalog.calls)
	assert.Zero(t, sessions.calls)
}

func TestCreateCheckout_NamesEveryMissingID(t *testing.T) {
	catalog := &fakeCatalog{stickers: []models.Sticker{publishedSticker("a", "Frog", "4.49")}}
	sessions := &fakeSessions{}
	svc := NewCheckoutService(catalog, sessions)

	_, err := svc.CreateCheckout(context.Background(), &CheckoutRequest{Items: []CheckoutItemRequest{
		{ItemID: "a", Quantity: 1},
		{ItemID: "x", Quantity: 1},
		{ItemID: "y", Quantity: 1},
	}})

	var ie *InvalidItemsError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, []string{"x", "y"}, ie.IDs)
	assert.Zero(t, sessions.calls)
}

func TestCreateCheckout_UnavailableTitles(t *testing.T) {
	draft := publishedSticker("b", "Draft Cat", "3")
	draft.PublishedAt = nil
	rejected := publishedSticker("c", "Rejected Dog", "3")
	rejected.ModerationStatus = strPtr("rejected")

	catalog := &fakeCatalog{stickers: []models.Sticker{publishedSticker("a", "Frog", "4.49"), draft, rejected}}
	sessions := &fakeSessions{}
	svc := NewCheckoutService(catalog, sessions)

	_, err := svc.CreateCheckout(context.Background(), &CheckoutRequest{Items: []CheckoutItemRequest{
		{ItemID: "a", Quantity: 1},
		{ItemID: "b", Quantity: 1},
		{ItemID: "c", Quantity: 1},
	}})

	var ue *UnavailableItemsError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, []string{"Draft Cat", "Rejected Dog"}, ue.Titles)
	assert.Zero(t, sessions.calls)
}

func TestCreateCheckout_UpstreamFailures(t *testing.T) {
	svc := NewCheckoutService(&fakeCatalog{err: errors.New("connection refused")}, &fakeSessions{})
	_, err := svc.CreateCheckout(context.Background(), &CheckoutRequest{Items: []CheckoutItemRequest{{ItemID: "a", Quantity: 1}}})
	assert.ErrorIs(t, err, ErrCheckoutFailed)

	catalog := &fakeCatalog{stickers: []models.Sticker{publishedSticker("a", "Frog", "4.49")}}
	svc = NewCheckoutService(catalog, &fakeSessions{err: errors.New("provider down")})
	_, err = svc.CreateCheckout(context.Background(), &CheckoutRequest{Items: []CheckoutItemRequest{{ItemID: "a", Quantity: 1}}})
	assert.ErrorIs(t, err, ErrCheckoutFailed)
	assert.Contains(t, err.Error(), "provider down")
}

// webhook fakes

type fakeVerifier struct {
	event *payment.Event
	err   error
}

func (f *fakeVerifier) ConstructEvent(_ []byte, _ string) (*payment.Event, error) {
	return f.event, f.err
}

// fakeOrders keeps rows per checkout session and, like the real store,
// rejects a second insert for a session that was already claimed.
type fakeOrders struct {
	mu        sync.Mutex
	rows      map[string][]models.Order
	lookupErr error
	insertErr error
	inserted  []models.Order
	inserts   int
	lookups   int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{rows: map[string][]models.Order{}}
}

func (f *fakeOrders) HasOrdersForSession(_ context.Context, sessionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	return len(f.rows[sessionID]) > 0, nil
}

func (f *fakeOrders) InsertOrders(_ context.Context, sessionID string, orders []models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if f.insertErr != nil {
		return f.insertErr
	}
	if _, claimed := f.rows[sessionID]; claimed {
		return store.ErrSessionAlreadyProcessed
	}
	f.rows[sessionID] = append([]models.Order(nil), orders...)
	f.inserted = append(f.inserted, orders...)
	return nil
}

type fakeSales struct {
	incrementErr error
	addErr       error
	increments   map[string]int
	adds         map[string]int
}

func newFakeSales() *fakeSales {
	return &fakeSales{increments: map[string]int{}, adds: map[string]int{}}
}

func (f *fakeSales) IncrementSalesCount(_ context.Context, id string, qty int) error {
	if f.incrementErr != nil {
		return f.incrementErr
	}
	f.increments[id] += qty
	return nil
}

func (f *fakeSales) AddSalesCount(_ context.Context, id string, qty int) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.adds[id] += qty
	return nil
}

type fakeRefresher struct {
	err   error
	calls int
}

func (f *fakeRefresher) RefreshDailyMetrics(_ context.Context) error {
	f.calls++
	return f.err
}

type fakePublisher struct {
	events []*models.OrderPlacedEvent
	err    error
}

func (f *fakePublisher) PublishOrderPlaced(_ context.Context, event *models.OrderPlacedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

// inlineDispatcher runs tasks synchronously and records their results
type inlineDispatcher struct {
	names   []string
	results map[string]error
}

func (d *inlineDispatcher) Dispatch(name string, task worker.Task) {
	if d.results == nil {
		d.results = map[string]error{}
	}
	d.names = append(d.names, name)
	d.results[name] = task(context.Background())
}

type webhookFixture struct {
	verifier   *fakeVerifier
	orders     *fakeOrders
	sales      *fakeSales
	refresher  *fakeRefresher
	publisher  *fakePublisher
	dispatcher *inlineDispatcher
	svc        *WebhookService
}

func newWebhookFixture(event *payment.Event) *webhookFixture {
	f := &webhookFixture{
		verifier:   &fakeVerifier{event: event},
		orders:     newFakeOrders(),
		sales:      newFakeSales(),
		refresher:  &fakeRefresher{},
		publisher:  &fakePublisher{},
		dispatcher: &inlineDispatcher{},
	}
	f.svc = NewWebhookService(f.verifier, f.orders, f.sales, f.refresher, f.publisher, f.dispatcher)
	return f
}

func completedEvent(cart string) *payment.Event {
	return &payment.Event{
		ID:   "evt_1",
		Type: payment.EventCheckoutSessionCompleted,
		Session: &payment.CompletedSession{
			ID:       "cs_test_1",
			Metadata: map[string]string{payment.CartMetadataKey: cart},
			CustomerDetails: &payment.CustomerDetails{
				Name:  strPtr("Jane Doe"),
				Email: strPtr("jane@example.com"),
			},
			ShippingDetails: &payment.ShippingDetails{
				Name: strPtr("Jane Shipper"),
				Address: &payment.Address{
					Line1:      strPtr("123 Main St"),
					City:       strPtr("Chicago"),
					State:      strPtr("IL"),
					PostalCode: strPtr("60601"),
					Country:    strPtr("US"),
				},
			},
		},
	}
}

const twoItemCart = `[{"stickerId":"a","quantity":2,"unitPrice":4.49,"fulfillmentProvider":"printful","pricingTier":"trending"},` +
	`{"stickerId":"b","quantity":1,"unitPrice":3,"fulfillmentProvider":null,"pricingTier":"evergreen"}]`

func TestHandleEvent_CreatesOneRowPerItem(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))

	outcome, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	require.Len(t, f.orders.inserted, 2)
	first, second := f.orders.inserted[0], f.orders.inserted[1]

	assert.Equal(t, "cs_test_1", first.StripeSessionID)
	assert.Equal(t, "cs_test_1", second.StripeSessionID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "8.98", first.TotalAmount.String())
	assert.Equal(t, "3", second.TotalAmount.String())
	assert.Equal(t, models.OrderStatusPending, first.Status)
	assert.Equal(t, "trending", first.PricingTierAtSale)
	assert.Equal(t, "printful", *first.FulfillmentProvider)
	assert.Nil(t, second.FulfillmentProvider)

	require.NotNil(t, first.CustomerData)
	assert.Equal(t, "Jane Shipper", first.CustomerData.Name)
	assert.Equal(t, "jane@example.com", first.CustomerData.Email)
	assert.Equal(t, "Chicago", first.CustomerData.ShippingAddress.City)
	assert.Nil(t, first.CustomerData.ShippingAddress.Line2)

	assert.Equal(t, map[string]int{"a": 2, "b": 1}, f.sales.increments)
	assert.Equal(t, []string{TaskRefreshDailyMetrics, TaskPublishOrderPlaced}, f.dispatcher.names)
	assert.Equal(t, 1, f.refresher.calls)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "11.98", f.publisher.events[0].TotalAmount.String())
}

func TestHandleEvent_ReplayWritesOneBatch(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))

	outcome, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	outcome, err = f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	assert.Equal(t, 1, f.orders.inserts)
	assert.Len(t, f.orders.rows["cs_test_1"], 2)
	assert.Len(t, f.orders.inserted, 2)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, f.sales.increments)
	assert.Len(t, f.publisher.events, 1)
}

func TestHandleEvent_ClaimedSessionIsDuplicate(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.orders.rows["cs_test_1"] = nil

	outcome, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Equal(t, 1, f.orders.inserts)
	assert.Empty(t, f.orders.inserted)
	assert.Empty(t, f.sales.increments)
}

func TestBuildOrders_ExactTotals(t *testing.T) {
	orders := buildOrders("cs_1", []models.CartMetaItem{
		{StickerID: "a", Quantity: 3, UnitPrice: dec("1.10"), PricingTier: models.TierTrending},
	}, nil)

	require.Len(t, orders, 1)
	assert.Equal(t, "a", orders[0].StickerID)
	assert.Equal(t, "3.3", orders[0].TotalAmount.String())
}

func TestHandleEvent_MissingSignature(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))

	_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "")
	assert.ErrorIs(t, err, ErrMissingSignature)
	assert.Zero(t, f.orders.lookups)
}

func TestHandleEvent_InvalidSignature(t *testing.T) {
	f := newWebhookFixture(nil)
	f.verifier.err = errors.New("signature mismatch")

	_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=bad")
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Zero(t, f.orders.lookups)
}

func TestHandleEvent_IgnoresOtherTypes(t *testing.T) {
	f := newWebhookFixture(&payment.Event{ID: "evt_2", Type: "payment_intent.created"})

	outcome, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Zero(t, f.orders.lookups)
	assert.Zero(t, f.orders.inserts)
}

func TestHandleEvent_DuplicateDelivery(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.orders.rows["cs_test_1"] = []models.Order{{ID: "o_prev", StripeSessionID: "cs_test_1"}}

	outcome, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Zero(t, f.orders.inserts)
	assert.Empty(t, f.sales.increments)
	assert.Empty(t, f.dispatcher.names)
}

func TestHandleEvent_LostRace(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.orders.insertErr = store.ErrSessionAlreadyProcessed

	outcome, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Empty(t, f.sales.increments)
	assert.Empty(t, f.dispatcher.names)
}

func TestHandleEvent_LookupError(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.orders.lookupErr = errors.New("db down")

	_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	assert.ErrorIs(t, err, ErrOrderLookup)
	assert.Zero(t, f.orders.inserts)
}

func TestHandleEvent_InsertError(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.orders.insertErr = errors.New("constraint violation")

	_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	assert.ErrorIs(t, err, ErrOrderInsert)
	assert.Empty(t, f.sales.increments)
}

func TestHandleEvent_BadMetadata(t *testing.T) {
	for name, cart := range map[string]string{
		"empty array": "[]",
		"empty":       "",
		"not json":    "{oops",
	} {
		t.Run(name, func(t *testing.T) {
			f := newWebhookFixture(completedEvent(cart))

			_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
			assert.ErrorIs(t, err, ErrMissingCartMetadata)
			assert.Zero(t, f.orders.inserts)
		})
	}

	f := newWebhookFixture(completedEvent(twoItemCart))
	f.verifier.event.Session.Metadata = nil
	_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	assert.ErrorIs(t, err, ErrMissingCartMetadata)
}

func TestHandleEvent_SideEffectFailuresDoNotFailEvent(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.sales.incrementErr = errors.New("function missing")
	f.sales.addErr = errors.New("row locked")
	f.refresher.err = errors.New("refresh failed")
	f.publisher.err = errors.New("kafka down")

	outcome, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Len(t, f.orders.inserted, 2)
	assert.Error(t, f.dispatcher.results[TaskRefreshDailyMetrics])
	assert.Error(t, f.dispatcher.results[TaskPublishOrderPlaced])
}

func TestHandleEvent_SalesCountFallback(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.sales.incrementErr = errors.New("function missing")

	_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Empty(t, f.sales.increments)
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, f.sales.adds)
}

func TestHandleEvent_NilPublisher(t *testing.T) {
	f := newWebhookFixture(completedEvent(twoItemCart))
	f.svc = NewWebhookService(f.verifier, f.orders, f.sales, f.refresher, nil, f.dispatcher)

	_, err := f.svc.HandleEvent(context.Background(), []byte("{}"), "t=1,v1=sig")
	require.NoError(t, err)
	assert.Equal(t, []string{TaskRefreshDailyMetrics}, f.dispatcher.names)
}

func TestCustomerDataFrom(t *testing.T) {
	assert.Nil(t, customerDataFrom(&payment.CompletedSession{ID: "cs"}))

	sess := &payment.CompletedSession{
		ID:              "cs",
		CustomerDetails: &payment.CustomerDetails{Name: strPtr("Payer")},
	}
	data := customerDataFrom(sess)
	require.NotNil(t, data)
	assert.Equal(t, "Payer", data.Name)
	assert.Equal(t, "", data.Email)
	assert.Equal(t, "", data.ShippingAddress.Line1)
	assert.Nil(t, data.ShippingAddress.Line2)

	sess.CustomerDetails.Name = nil
	assert.Equal(t, "", customerDataFrom(sess).Name)
}
