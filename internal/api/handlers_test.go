package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/commerce-core/internal/api/middleware"
	"github.com/example/commerce-core/internal/infrastructure/store"
	"github.com/example/commerce-core/internal/inventory"
	"github.com/example/commerce-core/internal/webhook"
)

const testStoreID = "store-1"

func newTestServer(t *testing.T) (http.Handler, *store.MemoryInventoryStore) {
	t.Helper()

	st := store.NewMemoryInventoryStore()
	ledger := inventory.NewLedger(st, nil)
	dispatcher := webhook.New(webhook.Config{
		MaxRetries:   1,
		InitialDelay: 1 * time.Millisecond,
		Timeout:      2 * time.Second,
	})
	handlers := NewHandlers(ledger, dispatcher)

	limiter := middleware.NewRateLimiterStore()
	router := NewRouter(handlers, limiter, middleware.RateLimitConfig{
		MaxTokens:  1000,
		RefillRate: 1000,
	})
	return router, st
}

func seedVariant(st *store.MemoryInventoryStore, id, sku string, quantity int) {
	st.AddVariant(&inventory.Variant{
		ID:            id,
		StoreID:       testStoreID,
		SKU:           sku,
		StockQuantity: quantity,
		UpdatedAt:     time.Now(),
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "response has no error object: %s", rec.Body.String())
	code, _ := errObj["code"].(string)
	return code
}

// ============================================
// Inventory Endpoint Tests
// ============================================

func TestGetInventory(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 25)

	rec := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/variant-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])

	level := body["data"].(map[string]any)["stock_level"].(map[string]any)
	assert.Equal(t, float64(25), level["current_stock"])
	assert.Equal(t, float64(0), level["reserved_quantity"])
	assert.Equal(t, float64(25), level["available_stock"])
}

func TestGetInventory_NotFound(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/missing", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RES_001", errorCode(t, rec))
}

func TestReserveStock(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 10)

	rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/reserve", map[string]any{
		"order_id": "order-1",
		"items": []map[string]any{
			{"product_variant_id": "variant-1", "quantity": 4},
		},
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	reservations := data["reservations"].([]any)
	require.Len(t, reservations, 1)

	first := reservations[0].(map[string]any)
	assert.Equal(t, "order-1", first["order_id"])
	assert.Equal(t, "variant-1", first["product_variant_id"])
	assert.Equal(t, float64(4), first["quantity"])
	assert.NotEmpty(t, first["id"])

	level := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/variant-1", nil)
	stock := decodeBody(t, level)["data"].(map[string]any)["stock_level"].(map[string]any)
	assert.Equal(t, float64(6), stock["available_stock"])
	assert.Equal(t, float64(4), stock["reserved_quantity"])
}

func TestReserveStock_Insufficient(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 3)

	rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/reserve", map[string]any{
		"order_id": "order-1",
		"items": []map[string]any{
			{"product_variant_id": "variant-1", "quantity": 5},
		},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INV_002", errObj["code"])

	ctx := errObj["context"].(map[string]any)
	assert.Equal(t, float64(3), ctx["available"])
	assert.Equal(t, float64(5), ctx["requested"])
}

func TestReserveStock_ValidationFailures(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 10)

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing order_id", map[string]any{
			"items": []map[string]any{{"product_variant_id": "variant-1", "quantity": 1}},
		}},
		{"empty items", map[string]any{
			"order_id": "order-1",
			"items":    []map[string]any{},
		}},
		{"zero quantity", map[string]any{
			"order_id": "order-1",
			"items":    []map[string]any{{"product_variant_id": "variant-1", "quantity": 0}},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/reserve", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VAL_001", errorCode(t, rec))
		})
	}
}

func TestReleaseReservation(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 10)

	rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/reserve", map[string]any{
		"order_id": "order-1",
		"items":    []map[string]any{{"product_variant_id": "variant-1", "quantity": 6}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	reservations := decodeBody(t, rec)["data"].(map[string]any)["reservations"].([]any)
	reservationID := reservations[0].(map[string]any)["id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/release", map[string]any{
		"reservation_id": reservationID,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	level := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/variant-1", nil)
	stock := decodeBody(t, level)["data"].(map[string]any)["stock_level"].(map[string]any)
	assert.Equal(t, float64(10), stock["available_stock"])

	// Releasing the same reservation again must fail.
	rec = doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/release", map[string]any{
		"reservation_id": reservationID,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL_001", errorCode(t, rec))
}

func TestReleaseReservation_NotFound(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/release", map[string]any{
		"reservation_id": "nope",
	})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RES_001", errorCode(t, rec))
}

func TestAdjustStock(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 10)

	rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/adjust", map[string]any{
		"product_variant_id": "variant-1",
		"quantity_change":    -4,
		"reason":             "damage",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	level := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/variant-1", nil)
	stock := decodeBody(t, level)["data"].(map[string]any)["stock_level"].(map[string]any)
	assert.Equal(t, float64(6), stock["current_stock"])
}

func TestAdjustStock_ZeroChangeRejected(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 10)

	rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/adjust", map[string]any{
		"product_variant_id": "variant-1",
		"quantity_change":    0,
		"reason":             "noop",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL_001", errorCode(t, rec))
}

func TestGetMovements(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 50)

	for i := 0; i < 3; i++ {
		rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/adjust", map[string]any{
			"product_variant_id": "variant-1",
			"quantity_change":    -1,
			"reason":             "shrinkage",
		})
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/movements?variant_id=variant-1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	movements := decodeBody(t, rec)["data"].(map[string]any)["movements"].([]any)
	assert.Len(t, movements, 2)
}

func TestGetMovements_Validation(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/movements", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL_001", errorCode(t, rec))

	rec = doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/movements?variant_id=v1&limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/movements?variant_id=v1&limit=501", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLowStock(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 3)
	seedVariant(st, "variant-2", "SKU-2", 100)

	rec := doJSON(t, router, http.MethodGet, "/stores/store-1/inventory/low-stock?threshold=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, float64(5), data["threshold"])
	variants := data["variants"].([]any)
	require.Len(t, variants, 1)
	assert.Equal(t, "variant-1", variants[0].(map[string]any)["variant_id"])
}

func TestGetOrderReservations(t *testing.T) {
	router, st := newTestServer(t)
	seedVariant(st, "variant-1", "SKU-1", 10)
	seedVariant(st, "variant-2", "SKU-2", 10)

	rec := doJSON(t, router, http.MethodPost, "/stores/store-1/inventory/reserve", map[string]any{
		"order_id": "order-9",
		"items": []map[string]any{
			{"product_variant_id": "variant-1", "quantity": 2},
			{"product_variant_id": "variant-2", "quantity": 3},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/orders/order-9/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	reservations := decodeBody(t, rec)["data"].(map[string]any)["reservations"].([]any)
	assert.Len(t, reservations, 2)
}

// ============================================
// Webhook Endpoint Tests
// ============================================

func TestDispatchTestWebhook(t *testing.T) {
	router, _ := newTestServer(t)

	received := make(chan *http.Request, 1)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Clone(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	rec := doJSON(t, router, http.MethodPost, "/webhooks/test", map[string]any{
		"type":    "inventory.stock_adjusted",
		"url":     target.URL,
		"payload": map[string]any{"hello": "world"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	result := body["data"].(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, float64(http.StatusOK), result["status_code"])

	select {
	case r := <-received:
		assert.Equal(t, "inventory.stock_adjusted", r.Header.Get("X-Webhook-Type"))
		assert.NotEmpty(t, r.Header.Get("X-Webhook-ID"))
	default:
		t.Fatal("webhook target was never called")
	}
}

func TestDispatchTestWebhook_FailureStillResponds200(t *testing.T) {
	router, _ := newTestServer(t)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer target.Close()

	rec := doJSON(t, router, http.MethodPost, "/webhooks/test", map[string]any{
		"type":    "inventory.stock_adjusted",
		"url":     target.URL,
		"payload": map[string]any{"probe": true},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody(t, rec)["data"].(map[string]any)
	assert.Equal(t, false, result["success"])
	assert.Equal(t, float64(http.StatusBadRequest), result["status_code"])
}

func TestDispatchTestWebhook_Validation(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/webhooks/test", map[string]any{
		"type": "inventory.stock_adjusted",
		"url":  "not a url",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL_001", errorCode(t, rec))
}

// ============================================
// Routing Tests
// ============================================

func TestRouter_UnknownPaths(t *testing.T) {
	router, _ := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/stores/store-1/unknown/x", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/orders/order-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/webhooks/test", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
