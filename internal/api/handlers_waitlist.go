package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/paylinehq/settlement-service/internal/app"
	"github.com/paylinehq/settlement-service/internal/store"
)

type joinWaitlistRequest struct {
	Email string `json:"email"`
}

// JoinWaitlistHandler records an email address on the launch waitlist.
// Duplicate signups answer 409, matching the original landing page behavior.
func (h *SettlementHandlers) JoinWaitlistHandler(w http.ResponseWriter, r *http.Request) {
	var req joinWaitlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, err := h.service.JoinWaitlist(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, app.ErrInvalidEmail) {
			h.writeError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		if errors.Is(err, store.ErrAlreadyWaitlisted) {
			h.writeError(w, http.StatusConflict, "Already subscribed")
			return
		}
		log.Printf("level=error component=api endpoint=waitlist msg=\"signup failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	log.Printf("level=info component=api endpoint=waitlist msg=\"email added\" email=%s", entry.Email)
	h.writeJSON(w, http.StatusOK, entry)
}
