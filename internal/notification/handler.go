package notification

import (
	"context"
	"encoding/json"
	"log"

	"github.com/example/commerce-core/internal/inventory"
	"github.com/example/commerce-core/internal/webhook"
)

// Handler fans inventory events out to webhook subscribers. Each consumed
// event becomes one delivery attempt series per subscriber URL; outcomes are
// logged, not retried beyond what the dispatcher itself does.
type Handler struct {
	dispatcher *webhook.Dispatcher
	urls       []string
}

func NewHandler(dispatcher *webhook.Dispatcher, subscriberURLs []string) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		urls:       subscriberURLs,
	}
}

// streamEvent mirrors inventory.Envelope with the payload left raw.
type streamEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

// HandleEvent processes one event from the inventory stream.
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event streamEvent
	if err := json.Unmarshal(value, &event); err != nil {
		log.Printf("[Notifier] Failed to unmarshal event: %v", err)
		return err
	}

	switch event.EventType {
	case inventory.EventStockReserved,
		inventory.EventReservationReleased,
		inventory.EventStockAdjusted:
	default:
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		log.Printf("[Notifier] Failed to unmarshal %s payload: %v", event.EventType, err)
		return err
	}

	for _, url := range h.urls {
		result := h.dispatcher.Dispatch(ctx, webhook.Event{
			ID:      event.EventID,
			Type:    event.EventType,
			URL:     url,
			Payload: payload,
		})
		if result.Success {
			log.Printf("[Notifier] Delivered %s to %s (status %d, attempt %d)",
				event.EventType, url, result.StatusCode, result.Attempt)
		} else {
			log.Printf("[Notifier] Delivery of %s to %s failed: %s (attempt %d)",
				event.EventType, url, result.Error, result.Attempt)
		}
	}

	return nil
}
