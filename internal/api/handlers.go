/**
 * @description
 * This file contains the HTTP handlers for the settlement-service's API
 * endpoints. Handlers are responsible for parsing incoming requests, calling
 * the appropriate methods on the application service, and writing the HTTP
 * response. They act as the bridge between the web layer and the settlement
 * engine.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paylinehq/settlement-service/internal/app"
	"github.com/paylinehq/settlement-service/internal/domain"
	"github.com/paylinehq/settlement-service/internal/store"
)

// SettlementHandlers holds the application service that handlers will use.
type SettlementHandlers struct {
	service *app.Service
}

// NewSettlementHandlers creates a new instance of SettlementHandlers.
func NewSettlementHandlers(service *app.Service) *SettlementHandlers {
	return &SettlementHandlers{service: service}
}

// settlementResponse mirrors the shape the CMS workflow expects: the outcome
// of the leg plus the transaction as the engine now sees it.
type settlementResponse struct {
	TransactionID string `json:"transaction_id"`
	Outcome       string `json:"outcome"`
	Status        string `json:"status,omitempty"`
	Reason        string `json:"reason,omitempty"`
	Message       string `json:"message"`
}

func buildSettlementResponse(result *app.SettlementResult, message string) settlementResponse {
	return settlementResponse{
		TransactionID: result.Transaction.ID.String(),
		Outcome:       result.Outcome,
		Status:        result.Transaction.Status,
		Reason:        result.Reason,
		Message:       message,
	}
}

// InitiateTransferHandler handles requests to run the initiation leg of a
// settlement. The body is the transaction document as the CMS posts it;
// relationship fields may be bare ids or populated records. When the body
// carries only a transaction id, the authoritative record is loaded from the
// store instead.
func (h *SettlementHandlers) InitiateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		log.Printf("level=warn component=api endpoint=initiate outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if tx.ID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "Transaction id is required")
		return
	}

	// A body carrying nothing but the id means "settle the stored record".
	if tx.Amount == 0 && tx.From.ID == uuid.Nil {
		stored, err := h.service.FindTransaction(r.Context(), tx.ID)
		if err != nil {
			h.writeLookupError(w, "initiate", tx.ID, err)
			return
		}
		tx = *stored
	}

	result, err := h.service.InitiateTransfer(r.Context(), &tx)
	if err != nil {
		h.writeSettlementError(w, "initiate", tx.ID, err)
		return
	}

	if result.Rejected() {
		// A rejection is a normal terminal outcome, not a server fault.
		h.writeJSON(w, http.StatusOK, buildSettlementResponse(result, "Transfer rejected"))
		return
	}
	h.writeJSON(w, http.StatusOK, buildSettlementResponse(result, "Transfer initiated"))
}

// CompleteTransferHandler handles requests to run the completion leg for a
// previously initiated transfer, then records the terminal accepted status.
func (h *SettlementHandlers) CompleteTransferHandler(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuid.Parse(chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid transaction id")
		return
	}

	tx, err := h.service.FindTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeLookupError(w, "complete", transactionID, err)
		return
	}
	if tx.Status == domain.StatusRejected {
		h.writeError(w, http.StatusConflict, "Transaction was rejected at initiation")
		return
	}
	if tx.Status == domain.StatusAccepted {
		h.writeError(w, http.StatusConflict, "Transaction has already settled")
		return
	}

	result, err := h.service.CompleteTransfer(r.Context(), tx)
	if err != nil {
		h.writeSettlementError(w, "complete", transactionID, err)
		return
	}
	if err := h.service.MarkTransferAccepted(r.Context(), tx); err != nil {
		log.Printf("level=error component=api endpoint=complete msg=\"funds settled but status write failed\" tx_id=%s err=%v", transactionID, err)
		h.writeError(w, http.StatusInternalServerError, "Settlement completed but status update failed")
		return
	}

	h.writeJSON(w, http.StatusOK, buildSettlementResponse(result, "Transfer completed"))
}

func (h *SettlementHandlers) writeLookupError(w http.ResponseWriter, endpoint string, transactionID uuid.UUID, err error) {
	if errors.Is(err, store.ErrTransactionNotFound) {
		h.writeError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	log.Printf("level=error component=api endpoint=%s msg=\"transaction lookup failed\" tx_id=%s err=%v", endpoint, transactionID, err)
	h.writeError(w, http.StatusInternalServerError, "Internal server error")
}

func (h *SettlementHandlers) writeSettlementError(w http.ResponseWriter, endpoint string, transactionID uuid.UUID, err error) {
	log.Printf("level=warn component=api endpoint=%s outcome=failed tx_id=%s err=%v", endpoint, transactionID, err)

	switch {
	case errors.Is(err, app.ErrInvalidTransferAmount), errors.Is(err, app.ErrDestinationNotSet):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		h.writeError(w, http.StatusTooManyRequests, "Too many transfer initiations; slow down")
	case errors.Is(err, store.ErrUserNotFound), errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrClearingFundsShort):
		// Initiation reserves the funds, so this indicates an operational
		// problem with the clearing account rather than a caller mistake.
		h.writeError(w, http.StatusConflict, "Clearing account cannot cover this transfer")
	case errors.Is(err, app.ErrClearingUserNotFound), errors.Is(err, app.ErrClearingAccountNotFound):
		h.writeError(w, http.StatusInternalServerError, "Clearing account is not configured")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *SettlementHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *SettlementHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
