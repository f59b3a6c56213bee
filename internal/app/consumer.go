package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/paylinehq/settlement-service/internal/domain"
	"github.com/paylinehq/settlement-service/internal/store"
)

// CompletionConsumer drives the completion leg of settlements from
// `transfer.complete.requested` queue messages published by the CMS workflow.
// After a successful completion it records the terminal accepted status,
// which the engine itself never writes.
type CompletionConsumer struct {
	repo    store.Repository
	service *Service
}

// CompletionConsumer returns the queue consumer bound to this service.
func (s *Service) CompletionConsumer() *CompletionConsumer {
	return &CompletionConsumer{repo: s.repo, service: s}
}

// HandleMessage processes one queue delivery. Returning true acknowledges the
// message; returning false re-queues it for retry.
func (c *CompletionConsumer) HandleMessage(body []byte) bool {
	var event domain.CompletionRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("completion-consumer: failed to unmarshal payload: %v", err)
		return true
	}
	if event.TransactionID == uuid.Nil {
		log.Printf("completion-consumer: missing transaction id in event %+v", event)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	requeue, err := c.processEvent(ctx, event)
	if err != nil {
		log.Printf("completion-consumer: processing error for tx %s: %v", event.TransactionID, err)
		return !requeue
	}
	return true
}

func (c *CompletionConsumer) processEvent(ctx context.Context, event domain.CompletionRequestedEvent) (requeue bool, err error) {
	tx, err := c.repo.FindTransactionByID(ctx, event.TransactionID)
	if err != nil {
		if errors.Is(err, store.ErrTransactionNotFound) {
			log.Printf("completion-consumer: no transaction found for %s; acknowledging", event.TransactionID)
			return false, nil
		}
		return true, err
	}

	// Replay guard: a transaction that already settled must not move funds again.
	if tx.Status == domain.StatusAccepted {
		return false, nil
	}
	if tx.Status == domain.StatusRejected {
		log.Printf("completion-consumer: tx %s was rejected at initiation; dropping completion request", tx.ID)
		return false, nil
	}

	if _, err := c.service.CompleteTransfer(ctx, tx); err != nil {
		// Precondition failures are configuration or data-integrity problems;
		// re-queuing cannot fix them and would spin forever.
		if errors.Is(err, ErrDestinationNotSet) ||
			errors.Is(err, ErrClearingUserNotFound) ||
			errors.Is(err, ErrClearingAccountNotFound) {
			return false, err
		}
		return true, err
	}

	if err := c.service.MarkTransferAccepted(ctx, tx); err != nil {
		return true, err
	}
	return false, nil
}
