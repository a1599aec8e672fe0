package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Migrate applies the embedded schema migrations
func (s *Store) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := postgres.WithInstance(s.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection for readiness probes
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const stickerColumns = `id, title, description, image_url, thumbnail_url, price,
	current_pricing_tier, fulfillment_provider, moderation_status, sales_count,
	created_at, published_at`

// GetStickersByIDs retrieves every sticker whose id is in ids, regardless of
// publication or moderation state
func (s *Store) GetStickersByIDs(ctx context.Context, ids []string) ([]models.Sticker, error) {
	if len(ids) == 0 {
		return []models.Sticker{}, nil
	}

	query, args, err := sqlx.In("SELECT "+stickerColumns+" FROM stickers WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var stickers []models.Sticker
	err = s.db.SelectContext(ctx, &stickers, query, args...)
	return stickers, err
}

// ListPurchasableStickers retrieves published, approved stickers, newest
// first, optionally restricted to one pricing tier
func (s *Store) ListPurchasableStickers(ctx context.Context, tier string) ([]models.Sticker, error) {
	query := "SELECT " + stickerColumns + ` FROM stickers
		WHERE published_at IS NOT NULL AND moderation_status = $1`
	args := []interface{}{models.ModerationApproved}
	if tier != "" {
		query += " AND current_pricing_tier = $2"
		args = append(args, tier)
	}
	query += " ORDER BY published_at DESC"

	stickers := []models.Sticker{}
	err := s.db.SelectContext(ctx, &stickers, query, args...)
	return stickers, err
}

// GetPurchasableSticker retrieves one published, approved sticker
func (s *Store) GetPurchasableSticker(ctx context.Context, id string) (*models.Sticker, error) {
	var sticker models.Sticker
	err := s.db.GetContext(ctx, &sticker, "SELECT "+stickerColumns+` FROM stickers
		WHERE id = $1 AND published_at IS NOT NULL AND moderation_status = $2`,
		id, models.ModerationApproved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sticker, nil
}

// ListPublishedStickers retrieves every published sticker for the admin
// inventory table, newest first
func (s *Store) ListPublishedStickers(ctx context.Context) ([]models.Sticker, error) {
	stickers := []models.Sticker{}
	err := s.db.SelectContext(ctx, &stickers, "SELECT "+stickerColumns+` FROM stickers
		WHERE published_at IS NOT NULL ORDER BY created_at DESC`)
	return stickers, err
}

// IncrementSalesCount calls the increment_sales_count stored procedure
func (s *Store) IncrementSalesCount(ctx context.Context, stickerID string, quantity int) error {
	_, err := s.db.ExecContext(ctx, "SELECT increment_sales_count($1, $2)", stickerID, quantity)
	return err
}

// AddSalesCount adds quantity to a sticker's sales count with a plain
// read-then-update. It is the fallback when the stored procedure fails.
func (s *Store) AddSalesCount(ctx context.Context, stickerID string, quantity int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current sql.NullInt64
	err = tx.GetContext(ctx, &current,
		"SELECT sales_count FROM stickers WHERE id = $1 FOR UPDATE", stickerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read sales count: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE stickers SET sales_count = $1, last_sale_at = NOW() WHERE id = $2",
		current.Int64+int64(quantity), stickerID)
	if err != nil {
		return fmt.Errorf("failed to update sales count: %w", err)
	}

	return tx.Commit()
}
