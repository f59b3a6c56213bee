package domain

import "github.com/google/uuid"

// CompletionRequestedEvent is the message payload consumed from the queue
// when the upstream workflow asks for the completion leg of a transfer to
// run. Initiation must already have populated the transaction's destination.
type CompletionRequestedEvent struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Reason        string    `json:"reason,omitempty"`
}
