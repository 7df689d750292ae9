package inventory

import "context"

// Store is the persistence contract the ledger depends on. Lookups return
// nil without error when the row is absent; the ledger owns error
// construction.
type Store interface {
	// GetVariant returns the variant or nil when it does not exist.
	GetVariant(ctx context.Context, variantID string) (*Variant, error)
	// UpdateVariantStock persists a new raw stock value and refreshes the
	// variant's updated timestamp.
	UpdateVariantStock(ctx context.Context, variantID string, newStock int) error
	// ListVariants returns every variant belonging to a store.
	ListVariants(ctx context.Context, storeID string) ([]*Variant, error)

	// ActiveReservedQuantity sums quantity over the variant's reservations
	// where released_at is null. Zero when there are none.
	ActiveReservedQuantity(ctx context.Context, variantID string) (int, error)
	InsertReservation(ctx context.Context, r *Reservation) error
	// GetReservation returns the reservation or nil when it does not exist.
	GetReservation(ctx context.Context, reservationID string) (*Reservation, error)
	// MarkReservationReleased stamps released_at on a still-active
	// reservation. Returns false when the row was already released.
	MarkReservationReleased(ctx context.Context, reservationID string) (bool, error)
	ReservationsByOrder(ctx context.Context, orderID string) ([]*Reservation, error)

	InsertMovement(ctx context.Context, m *Movement) error
	// MovementsByVariant returns movements for a (variant, store) pair,
	// newest first, capped at limit.
	MovementsByVariant(ctx context.Context, variantID, storeID string, limit int) ([]*Movement, error)

	// WithinTx runs fn against a transactional view of the store. An error
	// from fn rolls back every write made through it.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Publisher emits ledger events to the event stream. Delivery is
// best-effort; the ledger logs publish failures and keeps going.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
