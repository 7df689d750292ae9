package inventory

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/example/commerce-core/internal/apperror"
)

const (
	// DefaultMovementLimit applies when a history query has no explicit limit.
	DefaultMovementLimit = 50
	// MaxMovementLimit is the largest page a history query may request.
	MaxMovementLimit = 500
	// DefaultLowStockThreshold flags variants at or below this availability.
	DefaultLowStockThreshold = 10
)

// Ledger maintains a consistent view of stock vs. commitments: stock-level
// computation, the reservation lifecycle, manual adjustments and the movement
// audit trail. Reservation creation is serialized per variant so concurrent
// reservations cannot oversell. Errors from the ledger propagate to the
// caller unmodified; it has no retry logic of its own.
type Ledger struct {
	store     Store
	publisher Publisher
	locks     *keyedLocks
}

// NewLedger creates a ledger over the given store. publisher may be nil, in
// which case no events are emitted.
func NewLedger(store Store, publisher Publisher) *Ledger {
	return &Ledger{
		store:     store,
		publisher: publisher,
		locks:     newKeyedLocks(),
	}
}

// GetStockLevel computes the derived stock view for a variant: raw stock,
// the sum of active reservations and available = max(0, current - reserved).
// No side effects.
func (l *Ledger) GetStockLevel(ctx context.Context, variantID string) (*StockLevel, error) {
	return stockLevel(ctx, l.store, variantID)
}

func stockLevel(ctx context.Context, s Store, variantID string) (*StockLevel, error) {
	variant, err := s.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		return nil, apperror.NotFound("product variant", variantID)
	}

	reserved, err := s.ActiveReservedQuantity(ctx, variantID)
	if err != nil {
		return nil, err
	}

	available := variant.StockQuantity - reserved
	if available < 0 {
		available = 0
	}

	return &StockLevel{
		VariantID:        variant.ID,
		SKU:              variant.SKU,
		CurrentStock:     variant.StockQuantity,
		ReservedQuantity: reserved,
		AvailableStock:   available,
	}, nil
}

// ReserveStock creates one reservation per item for an order, all or
// nothing: the whole call runs in a single transaction and any item failing
// rolls the earlier ones back. Items are processed sequentially in the order
// given, each availability check recomputed freshly, so a later line sees an
// earlier line's claim on the same variant within the same call.
func (l *Ledger) ReserveStock(ctx context.Context, orderID string, items []ReserveItem, storeID string) ([]*Reservation, error) {
	if len(items) == 0 {
		return nil, apperror.Validation("at least one item is required")
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, apperror.Validation("quantity must be positive")
		}
	}

	unlock := l.locks.lockAll(distinctSorted(items))
	defer unlock()

	now := time.Now().UTC()
	created := make([]*Reservation, 0, len(items))
	lines := make([]StockReservedLine, 0, len(items))

	err := l.store.WithinTx(ctx, func(tx Store) error {
		for _, item := range items {
			level, err := stockLevel(ctx, tx, item.VariantID)
			if err != nil {
				return err
			}
			if item.Quantity > level.AvailableStock {
				return apperror.InsufficientStock(level.SKU, level.AvailableStock, item.Quantity)
			}

			r := newReservation(orderID, item.VariantID, item.Quantity, now)
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}

			m := newMovement(item.VariantID, storeID, MovementOut, -item.Quantity, ReasonOrderReservation, orderID, now)
			if err := tx.InsertMovement(ctx, m); err != nil {
				return err
			}

			created = append(created, r)
			lines = append(lines, StockReservedLine{
				ReservationID: r.ID,
				VariantID:     item.VariantID,
				Quantity:      item.Quantity,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.publish(ctx, orderID, EventStockReserved, StockReservedEvent{
		OrderID: orderID,
		StoreID: storeID,
		Lines:   lines,
	})

	return created, nil
}

// ReleaseReservation stamps released_at on an active reservation and logs a
// compensating "in" movement. Releasing twice is an error, not a no-op.
func (l *Ledger) ReleaseReservation(ctx context.Context, reservationID, storeID string) error {
	var released *Reservation

	err := l.store.WithinTx(ctx, func(tx Store) error {
		r, err := tx.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if r == nil {
			return apperror.NotFound("reservation", reservationID)
		}
		if r.Released() {
			return apperror.Validation("reservation has already been released")
		}

		ok, err := tx.MarkReservationReleased(ctx, reservationID)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with a concurrent release.
			return apperror.Validation("reservation has already been released")
		}

		m := newMovement(r.ProductVariantID, storeID, MovementIn, r.Quantity, ReasonReservationRelease, reservationID, time.Now().UTC())
		if err := tx.InsertMovement(ctx, m); err != nil {
			return err
		}

		released = r
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, released.ProductVariantID, EventReservationReleased, ReservationReleasedEvent{
		ReservationID: reservationID,
		VariantID:     released.ProductVariantID,
		StoreID:       storeID,
		Quantity:      released.Quantity,
	})

	return nil
}

// AdjustStock applies a signed manual correction to a variant's raw stock.
// The result is clamped at zero: a large negative adjustment floors silently
// rather than erroring. A zero change is rejected.
func (l *Ledger) AdjustStock(ctx context.Context, variantID, storeID string, quantityChange int, reason string) error {
	if quantityChange == 0 {
		return apperror.Validation("quantity change cannot be zero")
	}

	lock := l.locks.get(variantID)
	lock.Lock()
	defer lock.Unlock()

	var newStock int

	err := l.store.WithinTx(ctx, func(tx Store) error {
		variant, err := tx.GetVariant(ctx, variantID)
		if err != nil {
			return err
		}
		if variant == nil {
			return apperror.NotFound("product variant", variantID)
		}

		newStock = variant.StockQuantity + quantityChange
		if newStock < 0 {
			newStock = 0
		}
		if err := tx.UpdateVariantStock(ctx, variantID, newStock); err != nil {
			return err
		}

		typ := MovementIn
		if quantityChange < 0 {
			typ = MovementOut
		}
		m := newMovement(variantID, storeID, typ, quantityChange, reason, "", time.Now().UTC())
		return tx.InsertMovement(ctx, m)
	})
	if err != nil {
		return err
	}

	l.publish(ctx, variantID, EventStockAdjusted, StockAdjustedEvent{
		VariantID:      variantID,
		StoreID:        storeID,
		QuantityChange: quantityChange,
		NewStock:       newStock,
		Reason:         reason,
	})

	return nil
}

// GetOrderReservations returns every reservation for an order, released and
// active alike.
func (l *Ledger) GetOrderReservations(ctx context.Context, orderID string) ([]*Reservation, error) {
	return l.store.ReservationsByOrder(ctx, orderID)
}

// GetMovementHistory returns movements for a (variant, store) pair, newest
// first. A non-positive limit falls back to DefaultMovementLimit.
func (l *Ledger) GetMovementHistory(ctx context.Context, variantID, storeID string, limit int) ([]*Movement, error) {
	if limit <= 0 {
		limit = DefaultMovementLimit
	}
	variant, err := l.store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		return nil, apperror.NotFound("product variant", variantID)
	}
	return l.store.MovementsByVariant(ctx, variantID, storeID, limit)
}

// CheckLowStock returns the stock level of every variant in the store whose
// availability is at or below the threshold. This is a per-variant scan, one
// lookup each, which grows linearly with catalog size.
func (l *Ledger) CheckLowStock(ctx context.Context, storeID string, threshold int) ([]*StockLevel, error) {
	variants, err := l.store.ListVariants(ctx, storeID)
	if err != nil {
		return nil, err
	}

	low := make([]*StockLevel, 0)
	for _, v := range variants {
		level, err := stockLevel(ctx, l.store, v.ID)
		if err != nil {
			return nil, err
		}
		if level.AvailableStock <= threshold {
			low = append(low, level)
		}
	}
	return low, nil
}

func (l *Ledger) publish(ctx context.Context, key, eventType string, data any) {
	if l.publisher == nil {
		return
	}
	if err := l.publisher.Publish(ctx, key, newEnvelope(eventType, data)); err != nil {
		log.Printf("[Ledger] failed to publish %s: %v", eventType, err)
	}
}

func distinctSorted(items []ReserveItem) []string {
	seen := make(map[string]struct{}, len(items))
	keys := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.VariantID]; ok {
			continue
		}
		seen[item.VariantID] = struct{}{}
		keys = append(keys, item.VariantID)
	}
	sort.Strings(keys)
	return keys
}
