package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/paylinehq/settlement-service/internal/domain"
	"github.com/paylinehq/settlement-service/internal/store"
)

func TestCompleteTransferReleasesStagedFunds(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	dest := f.addReceiverAccount(50)
	f.clearing.Balance = 400
	destRef := domain.NewAccountRef(dest.ID)
	f.tx.To = &destRef

	result, err := f.service.CompleteTransfer(context.Background(), f.tx)
	if err != nil {
		t.Fatalf("CompleteTransfer returned error: %v", err)
	}
	if result.Outcome != OutcomeAccepted {
		t.Fatalf("outcome = %q, want %q", result.Outcome, OutcomeAccepted)
	}

	if got := f.repo.balance(f.clearing.ID); got != 0 {
		t.Errorf("clearing balance = %d, want 0", got)
	}
	if got := f.repo.balance(dest.ID); got != 450 {
		t.Errorf("destination balance = %d, want 450", got)
	}
	if len(f.repo.statusWrites[f.tx.ID]) != 0 {
		t.Errorf("completion leg must not write a status itself, got %v", f.repo.statusWrites[f.tx.ID])
	}
}

func TestCompleteTransferRequiresDestination(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	f.clearing.Balance = 400

	_, err := f.service.CompleteTransfer(context.Background(), f.tx)
	if !errors.Is(err, ErrDestinationNotSet) {
		t.Fatalf("err = %v, want ErrDestinationNotSet", err)
	}
	if got := f.repo.balance(f.clearing.ID); got != 400 {
		t.Errorf("clearing balance changed on precondition failure: %d", got)
	}
}

func TestCompleteTransferFailsWhenClearingShort(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	dest := f.addReceiverAccount(0)
	f.clearing.Balance = 100
	destRef := domain.NewAccountRef(dest.ID)
	f.tx.To = &destRef

	_, err := f.service.CompleteTransfer(context.Background(), f.tx)
	if !errors.Is(err, store.ErrClearingFundsShort) {
		t.Fatalf("err = %v, want ErrClearingFundsShort", err)
	}
	if got := f.repo.balance(f.clearing.ID); got != 100 {
		t.Errorf("clearing balance = %d, want 100 untouched", got)
	}
	if got := f.repo.balance(dest.ID); got != 0 {
		t.Errorf("destination balance = %d, want 0 untouched", got)
	}
}

func TestCompleteTransferClearingPreconditions(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	dest := f.addReceiverAccount(0)
	f.clearing.Balance = 400
	destRef := domain.NewAccountRef(dest.ID)
	f.tx.To = &destRef
	delete(f.repo.users, f.clearingUser.ID)

	_, err := f.service.CompleteTransfer(context.Background(), f.tx)
	if !errors.Is(err, ErrClearingUserNotFound) {
		t.Fatalf("err = %v, want ErrClearingUserNotFound", err)
	}
	if f.repo.fromClearingCalls != 0 {
		t.Errorf("precondition failure must not attempt a funds move")
	}
}

func TestCompleteTransferUnknownDestination(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	f.clearing.Balance = 400
	missing := domain.NewAccountRef(uuid.New())
	f.tx.To = &missing

	_, err := f.service.CompleteTransfer(context.Background(), f.tx)
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

// TestSettlementConservesValue drives both legs back to back and checks that
// money only ever moves, never appears or disappears.
func TestSettlementConservesValue(t *testing.T) {
	f := newSettlementFixture(1000, 400)
	dest := f.addReceiverAccount(25)
	before := f.repo.totalBalance()

	if _, err := f.service.InitiateTransfer(context.Background(), f.tx); err != nil {
		t.Fatalf("InitiateTransfer returned error: %v", err)
	}
	if got := f.repo.totalBalance(); got != before {
		t.Fatalf("total balance after initiation = %d, want %d", got, before)
	}

	if _, err := f.service.CompleteTransfer(context.Background(), f.tx); err != nil {
		t.Fatalf("CompleteTransfer returned error: %v", err)
	}
	if got := f.repo.totalBalance(); got != before {
		t.Fatalf("total balance after completion = %d, want %d", got, before)
	}

	if got := f.repo.balance(f.source.ID); got != 600 {
		t.Errorf("source balance = %d, want 600", got)
	}
	if got := f.repo.balance(dest.ID); got != 425 {
		t.Errorf("destination balance = %d, want 425", got)
	}
	if got := f.repo.balance(f.clearing.ID); got != 0 {
		t.Errorf("clearing balance = %d, want 0", got)
	}
}

func TestMarkTransferAccepted(t *testing.T) {
	f := newSettlementFixture(1000, 400)

	if err := f.service.MarkTransferAccepted(context.Background(), f.tx); err != nil {
		t.Fatalf("MarkTransferAccepted returned error: %v", err)
	}
	if f.tx.Status != domain.StatusAccepted {
		t.Errorf("transaction status = %q, want %q", f.tx.Status, domain.StatusAccepted)
	}
	if writes := f.repo.statusWrites[f.tx.ID]; len(writes) != 1 || writes[0] != domain.StatusAccepted {
		t.Errorf("status writes = %v, want exactly [accepted]", writes)
	}
}
