package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by a KV when the key does not exist.
var ErrNotFound = errors.New("cart: key not found")

// ErrConflict is returned by an AtomicKV that kept losing an update to
// concurrent writers.
var ErrConflict = errors.New("cart: concurrent update conflict")

// KV is the byte store carts are persisted in.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Del(ctx context.Context, key string) error
}

// AtomicKV is a KV that can apply a read-modify-write to one key without
// losing concurrent writes. fn may be called more than once; a nil result
// deletes the key.
type AtomicKV interface {
	KV
	Update(ctx context.Context, key string, fn func(current []byte, found bool) ([]byte, error)) error
}

type persisted struct {
	Items []LineItem `json:"items"`
}

// Persister loads and saves carts under "<storeName>:<cartID>".
type Persister struct {
	kv        KV
	storeName string
}

// NewPersister creates a persister writing to kv
func NewPersister(kv KV, storeName string) *Persister {
	return &Persister{kv: kv, storeName: storeName}
}

// Key returns the storage key of a cart.
func (p *Persister) Key(cartID string) string {
	return fmt.Sprintf("%s:%s", p.storeName, cartID)
}

// Load returns the stored cart, or an empty one if none exists.
func (p *Persister) Load(ctx context.Context, cartID string) (*Store, error) {
	raw, err := p.kv.Get(ctx, p.Key(cartID))
	if errors.Is(err, ErrNotFound) {
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	return decode(raw)
}

// Save writes items, deleting the key when the cart is empty.
func (p *Persister) Save(ctx context.Context, cartID string, items []LineItem) error {
	if len(items) == 0 {
		if err := p.kv.Del(ctx, p.Key(cartID)); err != nil {
			return fmt.Errorf("failed to delete cart: %w", err)
		}
		return nil
	}

	raw, err := encode(items)
	if err != nil {
		return err
	}
	if err := p.kv.Set(ctx, p.Key(cartID), raw); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// Mutate applies fn to the stored cart and persists the result. When the
// KV is an AtomicKV, concurrent mutations of one cart are serialized and fn
// is re-run against the newer cart if another writer got there first.
func (p *Persister) Mutate(ctx context.Context, cartID string, fn func(*Store)) (*Store, error) {
	akv, ok := p.kv.(AtomicKV)
	if !ok {
		sess, err := p.Open(ctx, cartID)
		if err != nil {
			return nil, err
		}
		fn(sess.Store)
		if err := sess.Close(); err != nil {
			return nil, err
		}
		return sess.Store, nil
	}

	var result *Store
	err := akv.Update(ctx, p.Key(cartID), func(current []byte, found bool) ([]byte, error) {
		store := NewStore()
		if found {
			loaded, err := decode(current)
			if err != nil {
				return nil, err
			}
			store = loaded
		}
		fn(store)
		result = store

		items := store.Items()
		if len(items) == 0 {
			return nil, nil
		}
		return encode(items)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update cart: %w", err)
	}
	return result, nil
}

func encode(items []LineItem) ([]byte, error) {
	raw, err := json.Marshal(persisted{Items: items})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cart: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (*Store, error) {
	var doc persisted
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cart: %w", err)
	}
	return NewStore(doc.Items...), nil
}

// Session ties a loaded Store to its persisted copy: every mutation is
// written through until Close.
type Session struct {
	Store *Store

	mu          sync.Mutex
	err         error
	unsubscribe func()
}

// Open loads the cart and subscribes a write-through saver to it.
func (p *Persister) Open(ctx context.Context, cartID string) (*Session, error) {
	store, err := p.Load(ctx, cartID)
	if err != nil {
		return nil, err
	}

	sess := &Session{Store: store}
	sess.unsubscribe = store.Subscribe(func(items []LineItem) {
		err := p.Save(ctx, cartID, items)

		sess.mu.Lock()
		defer sess.mu.Unlock()
		if err != nil && sess.err == nil {
			sess.err = err
		}
	})
	return sess, nil
}

// Close stops write-through and returns the first save failure, if any.
func (s *Session) Close() error {
	s.unsubscribe()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}
