package api

import (
	"log"
	"net/http"
	"strings"

	"github.com/example/commerce-core/internal/api/middleware"
)

// NewRouter wires the inventory and webhook endpoints behind the rate
// limiter.
func NewRouter(handlers *Handlers, limiter *middleware.RateLimiterStore, rateLimit middleware.RateLimitConfig) http.Handler {
	mux := http.NewServeMux()

	// Store-scoped inventory routes:
	//   GET  /stores/{storeID}/inventory/{variantID}
	//   POST /stores/{storeID}/inventory/reserve
	//   POST /stores/{storeID}/inventory/release
	//   POST /stores/{storeID}/inventory/adjust
	//   GET  /stores/{storeID}/inventory/movements
	//   GET  /stores/{storeID}/inventory/low-stock
	mux.HandleFunc("/stores/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/stores/"), "/")
		if len(parts) != 3 || parts[0] == "" || parts[1] != "inventory" || parts[2] == "" {
			http.NotFound(w, r)
			return
		}
		storeID := parts[0]

		switch {
		case parts[2] == "reserve" && r.Method == http.MethodPost:
			handlers.ReserveStock(w, r, storeID)
		case parts[2] == "release" && r.Method == http.MethodPost:
			handlers.ReleaseReservation(w, r, storeID)
		case parts[2] == "adjust" && r.Method == http.MethodPost:
			handlers.AdjustStock(w, r, storeID)
		case parts[2] == "movements" && r.Method == http.MethodGet:
			handlers.GetMovements(w, r, storeID)
		case parts[2] == "low-stock" && r.Method == http.MethodGet:
			handlers.GetLowStock(w, r, storeID)
		case r.Method == http.MethodGet:
			handlers.GetInventory(w, r, storeID, parts[2])
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Orders
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/orders/"), "/")
		switch {
		case len(parts) == 2 && parts[0] != "" && parts[1] == "reservations" && r.Method == http.MethodGet:
			handlers.GetOrderReservations(w, r, parts[0])
		default:
			http.NotFound(w, r)
		}
	})

	// Webhooks
	mux.HandleFunc("/webhooks/test", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.DispatchTestWebhook(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	limited := middleware.RateLimit(limiter, rateLimit)(mux)
	return withLogging(limited)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Println("[API]", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
