package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/example/commerce-core/internal/apperror"
	"github.com/example/commerce-core/internal/inventory"
	"github.com/example/commerce-core/internal/webhook"
)

type Handlers struct {
	ledger     *inventory.Ledger
	dispatcher *webhook.Dispatcher
	validate   *validator.Validate
}

func NewHandlers(ledger *inventory.Ledger, dispatcher *webhook.Dispatcher) *Handlers {
	return &Handlers{
		ledger:     ledger,
		dispatcher: dispatcher,
		validate:   validator.New(),
	}
}

// Request bodies, validated before they reach the core.

type reserveItemRequest struct {
	VariantID string `json:"product_variant_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type reserveRequest struct {
	OrderID string               `json:"order_id" validate:"required"`
	Items   []reserveItemRequest `json:"items" validate:"required,min=1,dive"`
}

type releaseRequest struct {
	ReservationID string `json:"reservation_id" validate:"required"`
}

type adjustRequest struct {
	VariantID      string `json:"product_variant_id" validate:"required"`
	QuantityChange int    `json:"quantity_change"`
	Reason         string `json:"reason" validate:"required"`
}

type webhookTestRequest struct {
	ID       string         `json:"id"`
	Type     string         `json:"type" validate:"required"`
	URL      string         `json:"url" validate:"required,url"`
	Payload  map[string]any `json:"payload" validate:"required"`
	Metadata map[string]any `json:"metadata"`
}

// GetInventory returns the stock level for a variant.
func (h *Handlers) GetInventory(w http.ResponseWriter, r *http.Request, storeID, variantID string) {
	level, err := h.ledger.GetStockLevel(r.Context(), variantID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"stock_level": level,
	})
}

func (h *Handlers) ReserveStock(w http.ResponseWriter, r *http.Request, storeID string) {
	var req reserveRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, err)
		return
	}

	items := make([]inventory.ReserveItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = inventory.ReserveItem{VariantID: item.VariantID, Quantity: item.Quantity}
	}

	reservations, err := h.ledger.ReserveStock(r.Context(), req.OrderID, items, storeID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusCreated, map[string]any{
		"reservations": reservations,
		"message":      fmt.Sprintf("Successfully reserved stock for %d items", len(reservations)),
	})
}

func (h *Handlers) ReleaseReservation(w http.ResponseWriter, r *http.Request, storeID string) {
	var req releaseRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.ledger.ReleaseReservation(r.Context(), req.ReservationID, storeID); err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"message": "Reservation released",
	})
}

func (h *Handlers) AdjustStock(w http.ResponseWriter, r *http.Request, storeID string) {
	var req adjustRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if err := h.ledger.AdjustStock(r.Context(), req.VariantID, storeID, req.QuantityChange, req.Reason); err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Inventory adjusted by %d units", req.QuantityChange),
	})
}

func (h *Handlers) GetMovements(w http.ResponseWriter, r *http.Request, storeID string) {
	variantID := r.URL.Query().Get("variant_id")
	if variantID == "" {
		respondError(w, apperror.Validation("variant_id query parameter is required"))
		return
	}

	limit := inventory.DefaultMovementLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > inventory.MaxMovementLimit {
			respondError(w, apperror.Validation(
				fmt.Sprintf("limit must be an integer between 1 and %d", inventory.MaxMovementLimit)))
			return
		}
		limit = parsed
	}

	movements, err := h.ledger.GetMovementHistory(r.Context(), variantID, storeID, limit)
	if err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"movements": movements,
	})
}

func (h *Handlers) GetLowStock(w http.ResponseWriter, r *http.Request, storeID string) {
	threshold := inventory.DefaultLowStockThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, apperror.Validation("threshold must be a non-negative integer"))
			return
		}
		threshold = parsed
	}

	alerts, err := h.ledger.CheckLowStock(r.Context(), storeID, threshold)
	if err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"threshold": threshold,
		"variants":  alerts,
	})
}

func (h *Handlers) GetOrderReservations(w http.ResponseWriter, r *http.Request, orderID string) {
	reservations, err := h.ledger.GetOrderReservations(r.Context(), orderID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondData(w, http.StatusOK, map[string]any{
		"reservations": reservations,
	})
}

// DispatchTestWebhook delivers a caller-supplied event through the retry
// loop and returns the delivery result. The result is data, not an error:
// a failed delivery still responds 200.
func (h *Handlers) DispatchTestWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookTestRequest
	if err := h.decode(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	result := h.dispatcher.Dispatch(r.Context(), webhook.Event{
		ID:       req.ID,
		Type:     req.Type,
		URL:      req.URL,
		Payload:  req.Payload,
		Metadata: req.Metadata,
	})

	respondData(w, http.StatusOK, result)
}

// decode parses and validates a JSON request body.
func (h *Handlers) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.Validation("invalid JSON body")
	}
	if err := h.validate.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}
