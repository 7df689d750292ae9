package inventory

import (
	"time"

	"github.com/google/uuid"
)

// MovementType records the direction of a stock-affecting event.
type MovementType string

const (
	MovementIn  MovementType = "in"
	MovementOut MovementType = "out"
)

// Reasons recorded on movements created by the ledger itself. Manual
// adjustments carry the caller-supplied reason instead.
const (
	ReasonOrderReservation   = "order_reservation"
	ReasonReservationRelease = "reservation_release"
)

// Variant is the stock-bearing row the ledger reads and adjusts. Reservations
// never mutate StockQuantity directly; only manual adjustments do.
type Variant struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	SKU           string    `json:"sku"`
	StockQuantity int       `json:"stock_quantity"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StockLevel is the derived view of a variant: raw stock, the sum of active
// reservations, and what remains sellable.
type StockLevel struct {
	VariantID        string `json:"variant_id"`
	SKU              string `json:"sku"`
	CurrentStock     int    `json:"current_stock"`
	ReservedQuantity int    `json:"reserved_quantity"`
	AvailableStock   int    `json:"available_stock"`
}

// Reservation is a claim against a variant's stock tied to an order.
// ReleasedAt is stamped exactly once; a released reservation is immutable and
// excluded from active reservation sums.
type Reservation struct {
	ID               string     `json:"id"`
	OrderID          string     `json:"order_id"`
	ProductVariantID string     `json:"product_variant_id"`
	Quantity         int        `json:"quantity"`
	ReservedAt       time.Time  `json:"reserved_at"`
	ReleasedAt       *time.Time `json:"released_at,omitempty"`
}

// Released reports whether the reservation has been released.
func (r *Reservation) Released() bool {
	return r.ReleasedAt != nil
}

// Movement is an append-only audit record of a stock-affecting event.
type Movement struct {
	ID               string       `json:"id"`
	ProductVariantID string       `json:"product_variant_id"`
	StoreID          string       `json:"store_id"`
	Type             MovementType `json:"type"`
	Quantity         int          `json:"quantity"`
	Reason           string       `json:"reason"`
	ReferenceID      string       `json:"reference_id,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// ReserveItem is one order line in a ReserveStock call.
type ReserveItem struct {
	VariantID string
	Quantity  int
}

func newReservation(orderID, variantID string, quantity int, at time.Time) *Reservation {
	return &Reservation{
		ID:               uuid.NewString(),
		OrderID:          orderID,
		ProductVariantID: variantID,
		Quantity:         quantity,
		ReservedAt:       at,
	}
}

func newMovement(variantID, storeID string, typ MovementType, quantity int, reason, referenceID string, at time.Time) *Movement {
	return &Movement{
		ID:               uuid.NewString(),
		ProductVariantID: variantID,
		StoreID:          storeID,
		Type:             typ,
		Quantity:         quantity,
		Reason:           reason,
		ReferenceID:      referenceID,
		CreatedAt:        at,
	}
}
