package inventory

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventStockReserved       = "StockReserved"
	EventReservationReleased = "ReservationReleased"
	EventStockAdjusted       = "StockAdjusted"
)

// Envelope wraps every event published to the inventory stream.
type Envelope struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

type StockReservedEvent struct {
	OrderID string              `json:"order_id"`
	StoreID string              `json:"store_id"`
	Lines   []StockReservedLine `json:"lines"`
}

type StockReservedLine struct {
	ReservationID string `json:"reservation_id"`
	VariantID     string `json:"variant_id"`
	Quantity      int    `json:"quantity"`
}

type ReservationReleasedEvent struct {
	ReservationID string `json:"reservation_id"`
	VariantID     string `json:"variant_id"`
	StoreID       string `json:"store_id"`
	Quantity      int    `json:"quantity"`
}

type StockAdjustedEvent struct {
	VariantID      string `json:"variant_id"`
	StoreID        string `json:"store_id"`
	QuantityChange int    `json:"quantity_change"`
	NewStock       int    `json:"new_stock"`
	Reason         string `json:"reason"`
}

func newEnvelope(eventType string, data any) Envelope {
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}
