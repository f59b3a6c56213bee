/**
 * @description
 * This file sets up the HTTP router for the settlement-service. It defines
 * the API endpoints, associates them with their corresponding handlers, and
 * applies middleware for logging, recovery, and internal authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SettlementRoutes creates and returns a new router for the settlement service.
func SettlementRoutes(h *SettlementHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Public waitlist signup, kept from the original landing page.
	r.Post("/waitlist", h.JoinWaitlistHandler)

	// Settlement endpoints are internal: the CMS layer has already
	// authenticated and authorized the end user before calling us.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Post("/settlements/initiate", h.InitiateTransferHandler)
		r.Post("/settlements/{transactionID}/complete", h.CompleteTransferHandler)
	})

	return r
}
