package cart

import (
	"sync"

	"github.com/shopspring/decimal"
)

// LineItem is one entry of a shopping cart
type LineItem struct {
	ItemID       string          `json:"itemId"`
	Title        string          `json:"title"`
	ThumbnailURL *string         `json:"thumbnailUrl"`
	UnitPrice    decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
}

// Candidate is the item data captured when a customer adds to the cart
type Candidate struct {
	ItemID       string
	Title        string
	ThumbnailURL *string
	UnitPrice    decimal.Decimal
}

// Listener receives a snapshot of the cart after every mutation
type Listener func(items []LineItem)

// Store holds the line items of one cart. At most one entry exists per
// item id and every stored quantity is at least 1.
type Store struct {
	mu        sync.Mutex
	items     []LineItem
	listeners []subscription
	nextID    int
}

type subscription struct {
	id int
	fn Listener
}

// NewStore creates a store seeded with items. Entries with a non-positive
// quantity or a duplicate id are dropped.
func NewStore(items ...LineItem) *Store {
	s := &Store{}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.Quantity < 1 || seen[it.ItemID] {
			continue
		}
		seen[it.ItemID] = true
		s.items = append(s.items, it)
	}
	return s
}

// Subscribe registers fn for change notifications and returns a function
// that removes it. Listeners run in subscription order while the store is
// locked and must not call back into the store.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// AddItem increments the quantity of an existing entry or appends a new
// entry with quantity 1. Title and price of an existing entry are kept.
func (s *Store) AddItem(c Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(c.ItemID); i >= 0 {
		s.items[i].Quantity++
	} else {
		s.items = append(s.items, LineItem{
			ItemID:       c.ItemID,
			Title:        c.Title,
			ThumbnailURL: c.ThumbnailURL,
			UnitPrice:    c.UnitPrice,
			Quantity:     1,
		})
	}
	s.notify()
}

// RemoveItem drops the entry for itemID if present.
func (s *Store) RemoveItem(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(itemID)
}

// UpdateQuantity sets the quantity of itemID. A quantity of zero or less
// removes the entry.
func (s *Store) UpdateQuantity(itemID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.remove(itemID)
		return
	}
	if i := s.indexOf(itemID); i >= 0 {
		s.items[i].Quantity = quantity
	}
	s.notify()
}

// ClearCart empties the cart.
func (s *Store) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.notify()
}

// Items returns a copy of the current entries in insertion order.
func (s *Store) Items() []LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Total returns the cart value rounded to cents, halves away from zero.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, it := range s.items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total.Round(2)
}

// ItemCount returns the sum of all quantities.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

func (s *Store) remove(itemID string) {
	if i := s.indexOf(itemID); i >= 0 {
		s.items = append(s.items[:i:i], s.items[i+1:]...)
	}
	s.notify()
}

func (s *Store) indexOf(itemID string) int {
	for i := range s.items {
		if s.items[i].ItemID == itemID {
			return i
		}
	}
	return -1
}

func (s *Store) snapshot() []LineItem {
	out := make([]LineItem, len(s.items))
	copy(out, s.items)
	return out
}

// notify must be called with s.mu held.
func (s *Store) notify() {
	if len(s.listeners) == 0 {
		return
	}
	items := s.snapshot()
	for _, sub := range s.listeners {
		sub.fn(items)
	}
}
