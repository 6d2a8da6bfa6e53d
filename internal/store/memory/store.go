// Package memory is an in-process implementation of the host order
// collaborators, used by the development server and tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/checkout-gateway/internal/order"
)

type attrKey struct {
	orderID int64
	key     string
}

// Store implements order.Store, order.Processing and order.Attributes.
type Store struct {
	mu     sync.RWMutex
	nextID int64
	orders map[int64]order.Order
	byGUID map[uuid.UUID]int64
	notes  map[int64][]order.Note
	attrs  map[attrKey]string
	now    func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orders: make(map[int64]order.Order),
		byGUID: make(map[uuid.UUID]int64),
		notes:  make(map[int64][]order.Note),
		attrs:  make(map[attrKey]string),
		now:    time.Now,
	}
}

// Insert adds an order, assigning an ID and GUID when they are zero, and
// returns the stored copy.
func (s *Store) Insert(o order.Order) order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.ID == 0 {
		s.nextID++
		o.ID = s.nextID
	} else if o.ID > s.nextID {
		s.nextID = o.ID
	}
	if o.OrderGUID == uuid.Nil {
		o.OrderGUID = uuid.New()
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = order.PaymentStatusPending
	}
	if o.CreatedOnUTC.IsZero() {
		o.CreatedOnUTC = s.now().UTC()
	}
	s.orders[o.ID] = o
	s.byGUID[o.OrderGUID] = o.ID
	return o
}

// GetByGUID implements order.Store. The returned order is a copy.
func (s *Store) GetByGUID(_ context.Context, guid uuid.UUID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byGUID[guid]
	if !ok {
		return nil, order.ErrNotFound
	}
	o := s.orders[id]
	return &o, nil
}

// GetByID returns a copy of the order with id.
func (s *Store) GetByID(_ context.Context, id int64) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}

// Update implements order.Store. The payment status is owned by MarkAsPaid
// and is not overwritten here.
func (s *Store) Update(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("memory: update order %d: %w", o.ID, order.ErrNotFound)
	}
	updated := *o
	updated.PaymentStatus = cur.PaymentStatus
	s.orders[o.ID] = updated
	return nil
}

// InsertNote implements order.Store.
func (s *Store) InsertNote(_ context.Context, n order.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[n.OrderID]; !ok {
		return fmt.Errorf("memory: insert note for order %d: %w", n.OrderID, order.ErrNotFound)
	}
	if n.CreatedOnUTC.IsZero() {
		n.CreatedOnUTC = s.now().UTC()
	}
	s.notes[n.OrderID] = append(s.notes[n.OrderID], n)
	return nil
}

// Notes returns the notes of an order in insertion order.
func (s *Store) Notes(orderID int64) []order.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]order.Note(nil), s.notes[orderID]...)
}

// MarkAsPaid implements order.Processing.
func (s *Store) MarkAsPaid(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[o.ID]
	if !ok {
		return fmt.Errorf("memory: mark order %d paid: %w", o.ID, order.ErrNotFound)
	}
	if cur.IsPaid() {
		return order.ErrAlreadyPaid
	}
	cur.PaymentStatus = order.PaymentStatusPaid
	s.orders[o.ID] = cur
	o.PaymentStatus = order.PaymentStatusPaid
	return nil
}

// GetAttribute implements order.Attributes. A missing attribute is "".
func (s *Store) GetAttribute(_ context.Context, orderID int64, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attrs[attrKey{orderID, key}], nil
}

// SaveAttribute implements order.Attributes.
func (s *Store) SaveAttribute(_ context.Context, orderID int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := attrKey{orderID, key}
	if value == "" {
		delete(s.attrs, k)
		return nil
	}
	s.attrs[k] = value
	return nil
}

// HasAttribute reports whether the attribute is set.
func (s *Store) HasAttribute(orderID int64, key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.attrs[attrKey{orderID, key}]
	return ok
}
