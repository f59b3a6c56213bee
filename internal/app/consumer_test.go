package app

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/paylinehq/settlement-service/internal/domain"
)

func completionPayload(transactionID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(`{"transaction_id":%q}`, transactionID.String()))
}

func TestCompletionConsumerSettlesTransfer(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	dest := f.addReceiverAccount(0)
	f.clearing.Balance = 400
	destRef := domain.NewAccountRef(dest.ID)
	f.tx.To = &destRef
	f.tx.Status = domain.StatusPending

	consumer := f.service.CompletionConsumer()
	if ack := consumer.HandleMessage(completionPayload(f.tx.ID)); !ack {
		t.Fatal("expected ack on successful completion")
	}

	if got := f.repo.balance(dest.ID); got != 400 {
		t.Errorf("destination balance = %d, want 400", got)
	}
	if got := f.repo.balance(f.clearing.ID); got != 0 {
		t.Errorf("clearing balance = %d, want 0", got)
	}
	if f.tx.Status != domain.StatusAccepted {
		t.Errorf("transaction status = %q, want %q", f.tx.Status, domain.StatusAccepted)
	}
}

func TestCompletionConsumerAcksPoisonMessages(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	consumer := f.service.CompletionConsumer()

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte(`{not json`)},
		{"missing transaction id", []byte(`{"reason":"workflow"}`)},
		{"unknown transaction", completionPayload(uuid.New())},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if ack := consumer.HandleMessage(tc.body); !ack {
				t.Error("poison message must be acknowledged, not re-queued")
			}
			if f.repo.fromClearingCalls != 0 {
				t.Error("poison message must not move funds")
			}
		})
	}
}

func TestCompletionConsumerReplayGuards(t *testing.T) {
	for _, status := range []string{domain.StatusAccepted, domain.StatusRejected} {
		t.Run(status, func(t *testing.T) {
			f := newSettlementFixture(1000, 400)
			dest := f.addReceiverAccount(0)
			f.clearing.Balance = 400
			destRef := domain.NewAccountRef(dest.ID)
			f.tx.To = &destRef
			f.tx.Status = status

			consumer := f.service.CompletionConsumer()
			if ack := consumer.HandleMessage(completionPayload(f.tx.ID)); !ack {
				t.Fatal("replayed completion must be acknowledged")
			}
			if f.repo.fromClearingCalls != 0 {
				t.Error("replayed completion must not move funds again")
			}
			if got := f.repo.balance(dest.ID); got != 0 {
				t.Errorf("destination balance = %d, want 0", got)
			}
		})
	}
}

func TestCompletionConsumerDropsPreconditionFailures(t *testing.T) {
	// A transaction with no destination cannot be fixed by retrying; the
	// message must be dropped instead of spinning through the queue.
	f := newSettlementFixture(1000, 400)
	f.tx.Status = domain.StatusPending

	consumer := f.service.CompletionConsumer()
	if ack := consumer.HandleMessage(completionPayload(f.tx.ID)); !ack {
		t.Fatal("precondition failure must be acknowledged, not re-queued")
	}
	if f.tx.Status != domain.StatusPending {
		t.Errorf("transaction status = %q, want untouched %q", f.tx.Status, domain.StatusPending)
	}
}

func TestCompletionConsumerRequeuesTransientErrors(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	f.repo.findTransactionErr = errors.New("connection reset")

	consumer := f.service.CompletionConsumer()
	if ack := consumer.HandleMessage(completionPayload(f.tx.ID)); ack {
		t.Fatal("transient store error must re-queue the message")
	}
}
