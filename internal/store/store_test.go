package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"storefront/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore connects to STOREFRONT_TEST_DATABASE_URL and applies the
// migrations. Tests using it are skipped when the variable is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("STOREFRONT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	return s
}

func seedSticker(t *testing.T, s *Store, published bool, moderation string) string {
	t.Helper()

	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO stickers (id, title, image_url, price, current_pricing_tier, moderation_status, published_at)
		VALUES ($1, $2, 'https://img.example.com/x.png', 4.49, 'trending', $3,
			CASE WHEN $4 THEN NOW() ELSE NULL END)`,
		id, "Sticker "+id[:8], moderation, published)
	require.NoError(t, err)
	return id
}

func newOrders(sessionID string, stickerIDs ...string) []models.Order {
	orders := make([]models.Order, 0, len(stickerIDs))
	for _, id := range stickerIDs {
		orders = append(orders, models.Order{
			ID:                uuid.NewString(),
			StripeSessionID:   sessionID,
			StickerID:         id,
			Quantity:          2,
			UnitPrice:         decimal.RequireFromString("4.49"),
			TotalAmount:       decimal.RequireFromString("8.98"),
			Status:            models.OrderStatusPending,
			PricingTierAtSale: models.TierTrending,
			CustomerData:      &models.CustomerData{Name: "Jane Doe", Email: "jane@example.com"},
		})
	}
	return orders
}

func TestGetStickersByIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	live := seedSticker(t, s, true, models.ModerationApproved)
	draft := seedSticker(t, s, false, models.ModerationApproved)

	stickers, err := s.GetStickersByIDs(ctx, []string{live, draft, uuid.NewString()})
	require.NoError(t, err)
	assert.Len(t, stickers, 2)

	got, err := s.GetPurchasableSticker(ctx, live)
	require.NoError(t, err)
	assert.Equal(t, "4.49", got.Price.String())

	_, err = s.GetPurchasableSticker(ctx, draft)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertOrders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := seedSticker(t, s, true, models.ModerationApproved)
	b := seedSticker(t, s, true, models.ModerationApproved)
	session := "cs_test_" + uuid.NewString()

	exists, err := s.HasOrdersForSession(ctx, session)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.InsertOrders(ctx, session, newOrders(session, a, b)))

	exists, err = s.HasOrdersForSession(ctx, session)
	require.NoError(t, err)
	assert.True(t, exists)

	err = s.InsertOrders(ctx, session, newOrders(session, a, b))
	assert.ErrorIs(t, err, ErrSessionAlreadyProcessed)

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM orders WHERE stripe_session_id = $1", session))
	assert.Equal(t, 2, count)
}

func TestInsertOrders_ConcurrentDeliveries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := seedSticker(t, s, true, models.ModerationApproved)
	session := "cs_test_" + uuid.NewString()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.InsertOrders(ctx, session, newOrders(session, a))
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)

	var count int
	require.NoError(t, s.db.Get(&count, "SELECT COUNT(*) FROM orders WHERE stripe_session_id = $1", session))
	assert.Equal(t, 1, count)
}

func TestSalesCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := seedSticker(t, s, true, models.ModerationApproved)

	require.NoError(t, s.IncrementSalesCount(ctx, id, 2))
	require.NoError(t, s.AddSalesCount(ctx, id, 3))

	stickers, err := s.GetStickersByIDs(ctx, []string{id})
	require.NoError(t, err)
	require.Len(t, stickers, 1)
	assert.Equal(t, 5, stickers[0].SalesCount)

	assert.ErrorIs(t, s.AddSalesCount(ctx, uuid.NewString(), 1), ErrNotFound)
}

func TestListOrdersWithTitles(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := seedSticker(t, s, true, models.ModerationApproved)
	session := "cs_test_" + uuid.NewString()
	require.NoError(t, s.InsertOrders(ctx, session, newOrders(session, a)))

	orders, err := s.ListOrdersWithTitles(ctx)
	require.NoError(t, err)

	var found bool
	for _, o := range orders {
		if o.StripeSessionID == session {
			found = true
			assert.Equal(t, "Sticker "+a[:8], o.StickerTitle)
			assert.Equal(t, "8.98", o.TotalAmount.String())
			require.NotNil(t, o.CustomerData)
			assert.Equal(t, "jane@example.com", o.CustomerData.Email)
		}
	}
	assert.True(t, found)

	require.NoError(t, s.RefreshDailyMetrics(ctx))
	metrics, err := s.ListDailyMetrics(ctx, 30)
	require.NoError(t, err)
	assert.NotEmpty(t, metrics)
}
