// Package sharedstate provides the small set of globally visible reactive
// cells every loaded module can read and write: user, theme, settings,
// cart, and notifications.
//
// Cells are process-wide singletons constructed once at startup and passed
// by reference into the capability bundle. Access is unrestricted and
// unlocked from the modules' point of view; concurrent writers to the same
// cell must go through Update (read-modify-write under the cell lock) and
// accept last-writer-wins semantics. That race is documented and accepted,
// not transactionally resolved.
package sharedstate

import (
	"sync"
	"time"

	"github.com/fyrsmithlabs/mfeshell/internal/auth"
)

// Cell is a single reactive value. Subscribers are notified synchronously
// after every Set or Update, outside the cell lock.
type Cell[T any] struct {
	mu     sync.RWMutex
	value  T
	nextID int
	subs   map[int]func(T)
}

// NewCell creates a cell holding initial.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value: initial,
		subs:  make(map[int]func(T)),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value and notifies subscribers.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	subs := c.subscribersLocked()
	c.mu.Unlock()

	for _, fn := range subs {
		fn(value)
	}
}

// Update applies fn to the current value under the cell lock and stores
// the result, then notifies subscribers. This is the read-modify-write
// helper concurrent writers must use; interleaved Updates serialize, but
// independent Set calls still race as last-writer-wins.
func (c *Cell[T]) Update(fn func(T) T) T {
	c.mu.Lock()
	c.value = fn(c.value)
	value := c.value
	subs := c.subscribersLocked()
	c.mu.Unlock()

	for _, s := range subs {
		s(value)
	}
	return value
}

// Subscribe registers fn to run after every change. The returned function
// cancels the subscription.
func (c *Cell[T]) Subscribe(fn func(T)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Cell[T]) subscribersLocked() []func(T) {
	subs := make([]func(T), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return subs
}

// CartItem is one line in the shared cart.
type CartItem struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Notification is one entry in the shared notification list.
type Notification struct {
	ID      string    `json:"id"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Store holds the shared reactive cells.
type Store struct {
	User          *Cell[auth.User]
	Theme         *Cell[string]
	Settings      *Cell[map[string]any]
	Cart          *Cell[[]CartItem]
	Notifications *Cell[[]Notification]
}

// NewStore creates the shared state store with the given initial theme.
func NewStore(theme string) *Store {
	return &Store{
		User:          NewCell(auth.User{}),
		Theme:         NewCell(theme),
		Settings:      NewCell(map[string]any{}),
		Cart:          NewCell([]CartItem{}),
		Notifications: NewCell([]Notification{}),
	}
}

// AddToCart merges item into the cart by SKU, summing quantities.
func (s *Store) AddToCart(item CartItem) {
	s.Cart.Update(func(items []CartItem) []CartItem {
		for i, existing := range items {
			if existing.SKU == item.SKU {
				next := make([]CartItem, len(items))
				copy(next, items)
				next[i].Quantity += item.Quantity
				return next
			}
		}
		return append(items[:len(items):len(items)], item)
	})
}

// PushNotification appends a notification.
func (s *Store) PushNotification(n Notification) {
	s.Notifications.Update(func(list []Notification) []Notification {
		return append(list[:len(list):len(list)], n)
	})
}

// DismissNotification removes the notification with the given id, if present.
func (s *Store) DismissNotification(id string) {
	s.Notifications.Update(func(list []Notification) []Notification {
		next := make([]Notification, 0, len(list))
		for _, n := range list {
			if n.ID != id {
				next = append(next, n)
			}
		}
		return next
	})
}
