package store

import (
	"context"
	"sync"
	"time"

	"github.com/example/commerce-core/internal/inventory"
)

// MemoryInventoryStore is an in-memory implementation of inventory.Store
// with the same transactional semantics as the Postgres store: writes made
// inside WithinTx are discarded when the callback errors. Used by tests and
// local runs without a database.
type MemoryInventoryStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	variants     map[string]*inventory.Variant
	reservations map[string]*inventory.Reservation
	movements    []*inventory.Movement
}

func NewMemoryInventoryStore() *MemoryInventoryStore {
	return &MemoryInventoryStore{data: newMemData()}
}

func newMemData() *memData {
	return &memData{
		variants:     make(map[string]*inventory.Variant),
		reservations: make(map[string]*inventory.Reservation),
		movements:    make([]*inventory.Movement, 0),
	}
}

// AddVariant seeds a variant. Intended for tests and local bootstrapping.
func (s *MemoryInventoryStore) AddVariant(v *inventory.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.data.variants[v.ID] = &cp
}

func (s *MemoryInventoryStore) GetVariant(ctx context.Context, variantID string) (*inventory.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getVariant(variantID), nil
}

func (s *MemoryInventoryStore) UpdateVariantStock(ctx context.Context, variantID string, newStock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.updateVariantStock(variantID, newStock)
}

func (s *MemoryInventoryStore) ListVariants(ctx context.Context, storeID string) ([]*inventory.Variant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.listVariants(storeID), nil
}

func (s *MemoryInventoryStore) ActiveReservedQuantity(ctx context.Context, variantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.activeReservedQuantity(variantID), nil
}

func (s *MemoryInventoryStore) InsertReservation(ctx context.Context, r *inventory.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.insertReservation(r)
	return nil
}

func (s *MemoryInventoryStore) GetReservation(ctx context.Context, reservationID string) (*inventory.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getReservation(reservationID), nil
}

func (s *MemoryInventoryStore) MarkReservationReleased(ctx context.Context, reservationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.markReservationReleased(reservationID), nil
}

func (s *MemoryInventoryStore) ReservationsByOrder(ctx context.Context, orderID string) ([]*inventory.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.reservationsByOrder(orderID), nil
}

func (s *MemoryInventoryStore) InsertMovement(ctx context.Context, m *inventory.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.insertMovement(m)
	return nil
}

func (s *MemoryInventoryStore) MovementsByVariant(ctx context.Context, variantID, storeID string, limit int) ([]*inventory.Movement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.movementsByVariant(variantID, storeID, limit), nil
}

// WithinTx runs fn against a cloned view of the data and swaps it in only if
// fn succeeds, giving rollback-on-error semantics.
func (s *MemoryInventoryStore) WithinTx(ctx context.Context, fn func(tx inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := s.data.clone()
	if err := fn(&memTx{data: clone}); err != nil {
		return err
	}
	s.data = clone
	return nil
}

// memTx exposes the cloned data without locking; the owning store's mutex is
// held for the duration of the transaction.
type memTx struct {
	data *memData
}

func (t *memTx) GetVariant(ctx context.Context, variantID string) (*inventory.Variant, error) {
	return t.data.getVariant(variantID), nil
}

func (t *memTx) UpdateVariantStock(ctx context.Context, variantID string, newStock int) error {
	return t.data.updateVariantStock(variantID, newStock)
}

func (t *memTx) ListVariants(ctx context.Context, storeID string) ([]*inventory.Variant, error) {
	return t.data.listVariants(storeID), nil
}

func (t *memTx) ActiveReservedQuantity(ctx context.Context, variantID string) (int, error) {
	return t.data.activeReservedQuantity(variantID), nil
}

func (t *memTx) InsertReservation(ctx context.Context, r *inventory.Reservation) error {
	t.data.insertReservation(r)
	return nil
}

func (t *memTx) GetReservation(ctx context.Context, reservationID string) (*inventory.Reservation, error) {
	return t.data.getReservation(reservationID), nil
}

func (t *memTx) MarkReservationReleased(ctx context.Context, reservationID string) (bool, error) {
	return t.data.markReservationReleased(reservationID), nil
}

func (t *memTx) ReservationsByOrder(ctx context.Context, orderID string) ([]*inventory.Reservation, error) {
	return t.data.reservationsByOrder(orderID), nil
}

func (t *memTx) InsertMovement(ctx context.Context, m *inventory.Movement) error {
	t.data.insertMovement(m)
	return nil
}

func (t *memTx) MovementsByVariant(ctx context.Context, variantID, storeID string, limit int) ([]*inventory.Movement, error) {
	return t.data.movementsByVariant(variantID, storeID, limit), nil
}

// WithinTx joins the enclosing transaction.
func (t *memTx) WithinTx(ctx context.Context, fn func(tx inventory.Store) error) error {
	return fn(t)
}

// data operations

func (d *memData) getVariant(variantID string) *inventory.Variant {
	v, ok := d.variants[variantID]
	if !ok {
		return nil
	}
	cp := *v
	return &cp
}

func (d *memData) updateVariantStock(variantID string, newStock int) error {
	v, ok := d.variants[variantID]
	if !ok {
		return nil
	}
	v.StockQuantity = newStock
	v.UpdatedAt = time.Now().UTC()
	return nil
}

func (d *memData) listVariants(storeID string) []*inventory.Variant {
	out := make([]*inventory.Variant, 0)
	for _, v := range d.variants {
		if v.StoreID == storeID {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}

func (d *memData) activeReservedQuantity(variantID string) int {
	total := 0
	for _, r := range d.reservations {
		if r.ProductVariantID == variantID && !r.Released() {
			total += r.Quantity
		}
	}
	return total
}

func (d *memData) insertReservation(r *inventory.Reservation) {
	cp := *r
	d.reservations[r.ID] = &cp
}

func (d *memData) getReservation(reservationID string) *inventory.Reservation {
	r, ok := d.reservations[reservationID]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

func (d *memData) markReservationReleased(reservationID string) bool {
	r, ok := d.reservations[reservationID]
	if !ok || r.Released() {
		return false
	}
	now := time.Now().UTC()
	r.ReleasedAt = &now
	return true
}

func (d *memData) reservationsByOrder(orderID string) []*inventory.Reservation {
	out := make([]*inventory.Reservation, 0)
	for _, r := range d.reservations {
		if r.OrderID == orderID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out
}

func (d *memData) insertMovement(m *inventory.Movement) {
	cp := *m
	d.movements = append(d.movements, &cp)
}

func (d *memData) movementsByVariant(variantID, storeID string, limit int) []*inventory.Movement {
	out := make([]*inventory.Movement, 0)
	// Movements are appended chronologically; walk backwards for newest-first.
	for i := len(d.movements) - 1; i >= 0 && len(out) < limit; i-- {
		m := d.movements[i]
		if m.ProductVariantID == variantID && m.StoreID == storeID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out
}

func (d *memData) clone() *memData {
	c := newMemData()
	for id, v := range d.variants {
		cp := *v
		c.variants[id] = &cp
	}
	for id, r := range d.reservations {
		cp := *r
		c.reservations[id] = &cp
	}
	c.movements = make([]*inventory.Movement, len(d.movements))
	for i, m := range d.movements {
		cp := *m
		c.movements[i] = &cp
	}
	return c
}
