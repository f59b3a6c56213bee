/**
 * @description
 * This file contains the core business logic for the settlement-service. The
 * `Service` struct owns the two-phase settlement of a transfer: the initiation
 * leg stages funds from the sender's account into the platform clearing
 * account, and the completion leg releases them to the receiver's account.
 *
 * Key features:
 * - Rejection rules (insufficient funds, unreachable receiver) are terminal
 *   business outcomes, not errors; they are recorded on the transaction and
 *   reported to the caller as a structured result.
 * - Both balance moves of a leg happen inside a single store transaction, so
 *   a crash mid-leg cannot create or destroy value.
 * - Publishes transfer lifecycle events to RabbitMQ for the CMS workflow.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/paylinehq/settlement-service/internal/domain"
	"github.com/paylinehq/settlement-service/internal/store"
	"github.com/paylinehq/settlement-service/pkg/rabbitmq"
)

// SettlementEventsExchange is the topic exchange all transfer lifecycle
// events are published to.
const SettlementEventsExchange = "settlement.events"

var (
	ErrInvalidTransferAmount   = errors.New("transfer amount must be positive")
	ErrDestinationNotSet       = errors.New("transaction has no destination account; initiation must run first")
	ErrClearingUserNotFound    = errors.New("clearing user not found")
	ErrClearingAccountNotFound = errors.New("clearing account not found")
	ErrRateLimited             = errors.New("too many transfer initiations")
)

// Settlement outcomes reported to the caller.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

// Rejection reasons recorded on the result when an initiation is rejected.
const (
	ReasonInsufficientFunds   = "insufficient_funds"
	ReasonReceiverUnreachable = "receiver_has_no_accounts"
)

// SettlementResult is the structured outcome of a settlement leg. A rejection
// is a successful response carrying a negative outcome, distinct from an
// error return.
type SettlementResult struct {
	Transaction *domain.Transaction `json:"transaction"`
	Outcome     string              `json:"outcome"`
	Reason      string              `json:"reason,omitempty"`
}

// Rejected reports whether the settlement leg ended in a business rejection.
func (r *SettlementResult) Rejected() bool {
	return r != nil && r.Outcome == OutcomeRejected
}

// InitiationRateLimiter limits how often a subject may initiate transfers
// within a rolling window.
type InitiationRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope string, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for settlements.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	clearingEmail string

	rateLimiter            InitiationRateLimiter
	initiateLimitPerMinute int
}

// NewService creates a new settlement service instance. The clearing email is
// the well-known identity of the system user whose account stages every
// transfer; it is injected here rather than re-discovered per call site.
func NewService(repo store.Repository, producer rabbitmq.Publisher, clearingEmail string) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		clearingEmail: clearingEmail,
	}
}

// SetInitiationRateLimiter enables per-sender rate limiting on the initiation
// leg. A nil limiter or non-positive limit disables it.
func (s *Service) SetInitiationRateLimiter(limiter InitiationRateLimiter, perMinute int) {
	s.rateLimiter = limiter
	s.initiateLimitPerMinute = perMinute
}

// InitiateTransfer attempts to move the transaction amount out of the
// sender's source account into the clearing account, and durably records the
// chosen destination account on the transaction.
//
// On rejection no balances are mutated and the transaction is marked
// rejected. On success exactly two balance writes occur (clearing credit and
// source debit, atomically) and the transaction's destination is set. The
// engine never writes any status other than rejected on this path; moving to
// pending/accepted belongs to the surrounding workflow.
func (s *Service) InitiateTransfer(ctx context.Context, tx *domain.Transaction) (*SettlementResult, error) {
	if tx.Amount <= 0 {
		return nil, ErrInvalidTransferAmount
	}

	if err := s.consumeInitiationBudget(ctx, tx); err != nil {
		return nil, err
	}

	log.Printf("InitiateTransfer: starting tx=%s from=%s receiver=%s amount=%d", tx.ID, tx.From.ID, tx.Receiver.ID, tx.Amount)

	source, err := s.resolveAccount(ctx, tx.From)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source account: %w", err)
	}
	receiver, err := s.resolveUser(ctx, tx.Receiver)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve receiver: %w", err)
	}

	receiverAccounts, err := s.repo.FindAccountsByOwner(ctx, receiver.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list receiver accounts: %w", err)
	}

	// Rejection test. The balance read here is a fast path; the authoritative
	// check happens on the locked row inside MoveFundsToClearing.
	if len(receiverAccounts) == 0 {
		return s.rejectTransfer(ctx, tx, ReasonReceiverUnreachable)
	}
	if source.Balance < tx.Amount {
		return s.rejectTransfer(ctx, tx, ReasonInsufficientFunds)
	}

	destination := selectDestination(receiver, receiverAccounts)
	clearing, err := s.clearingAccount(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTransactionDestination(ctx, tx.ID, destination.ID); err != nil {
		return nil, fmt.Errorf("failed to record destination account: %w", err)
	}
	destRef := domain.ResolvedAccountRef(destination)
	tx.To = &destRef

	if err := s.repo.MoveFundsToClearing(ctx, source.ID, clearing.ID, tx.Amount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			// A concurrent transfer drained the source between the fast-path
			// read and the locked check.
			return s.rejectTransfer(ctx, tx, ReasonInsufficientFunds)
		}
		return nil, fmt.Errorf("failed to stage funds: %w", err)
	}

	log.Printf("InitiateTransfer: staged tx=%s amount=%d destination=%s clearing=%s", tx.ID, tx.Amount, destination.ID, clearing.ID)
	s.publishTransferEvent(ctx, "transfer.initiated", tx, "")

	return &SettlementResult{Transaction: tx, Outcome: OutcomeAccepted}, nil
}

// CompleteTransfer moves the transaction amount out of the clearing account
// into the destination account recorded by a prior initiation. The clearing
// account is re-derived from the configured identity, not cached.
func (s *Service) CompleteTransfer(ctx context.Context, tx *domain.Transaction) (*SettlementResult, error) {
	if tx.Amount <= 0 {
		return nil, ErrInvalidTransferAmount
	}
	if tx.To == nil {
		return nil, ErrDestinationNotSet
	}

	destination, err := s.resolveAccount(ctx, *tx.To)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve destination account: %w", err)
	}
	clearing, err := s.clearingAccount(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.repo.MoveFundsFromClearing(ctx, clearing.ID, destination.ID, tx.Amount); err != nil {
		return nil, fmt.Errorf("failed to release staged funds: %w", err)
	}

	log.Printf("CompleteTransfer: released tx=%s amount=%d destination=%s clearing=%s", tx.ID, tx.Amount, destination.ID, clearing.ID)
	s.publishTransferEvent(ctx, "transfer.completed", tx, "")

	return &SettlementResult{Transaction: tx, Outcome: OutcomeAccepted}, nil
}

// MarkTransferAccepted records the terminal accepted status on a transaction.
// The settlement legs deliberately never write this status themselves; the
// workflow driving them (HTTP caller or queue consumer) calls it after a
// successful completion.
func (s *Service) MarkTransferAccepted(ctx context.Context, tx *domain.Transaction) error {
	if err := s.repo.UpdateTransactionStatus(ctx, tx.ID, domain.StatusAccepted); err != nil {
		return fmt.Errorf("failed to mark transaction accepted: %w", err)
	}
	tx.Status = domain.StatusAccepted
	return nil
}

// FindTransaction loads a transaction by id for the API and consumer layers.
func (s *Service) FindTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.repo.FindTransactionByID(ctx, id)
}

// rejectTransfer records the terminal rejected status and reports the
// rejection to the caller. No balances have been mutated on this path.
func (s *Service) rejectTransfer(ctx context.Context, tx *domain.Transaction, reason string) (*SettlementResult, error) {
	log.Printf("InitiateTransfer: rejected tx=%s reason=%s", tx.ID, reason)
	if err := s.repo.UpdateTransactionStatus(ctx, tx.ID, domain.StatusRejected); err != nil {
		return nil, fmt.Errorf("failed to record rejection: %w", err)
	}
	tx.Status = domain.StatusRejected
	s.publishTransferEvent(ctx, "transfer.rejected", tx, reason)
	return &SettlementResult{Transaction: tx, Outcome: OutcomeRejected, Reason: reason}, nil
}

// selectDestination picks the settlement target among the receiver's
// accounts: the preferred account when one is set, otherwise the oldest.
func selectDestination(receiver *domain.User, accounts []domain.Account) *domain.Account {
	if receiver.PreferredAccountID != nil {
		for i := range accounts {
			if accounts[i].ID == *receiver.PreferredAccountID {
				return &accounts[i]
			}
		}
		log.Printf("selectDestination: preferred account %s not owned by receiver %s; falling back to oldest", *receiver.PreferredAccountID, receiver.ID)
	}
	return &accounts[0]
}

// resolveAccount materializes an account reference, hitting the store only
// when the record was not already populated upstream.
func (s *Service) resolveAccount(ctx context.Context, ref domain.AccountRef) (*domain.Account, error) {
	if ref.Resolved() {
		return ref.Account, nil
	}
	return s.repo.FindAccountByID(ctx, ref.ID)
}

// resolveUser materializes a user reference.
func (s *Service) resolveUser(ctx context.Context, ref domain.UserRef) (*domain.User, error) {
	if ref.Resolved() {
		return ref.User, nil
	}
	return s.repo.FindUserByID(ctx, ref.ID)
}

func (s *Service) consumeInitiationBudget(ctx context.Context, tx *domain.Transaction) error {
	if s.rateLimiter == nil || s.initiateLimitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, "initiate", tx.Sender.ID.String(), s.initiateLimitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting is advisory; an unavailable limiter must not block settlements.
		log.Printf("InitiateTransfer: rate limiter unavailable, continuing: %v", err)
		return nil
	}
	if count > s.initiateLimitPerMinute {
		log.Printf("InitiateTransfer: rate limited sender=%s count=%d retry_after=%ds", tx.Sender.ID, count, retryAfter)
		return ErrRateLimited
	}
	return nil
}

func (s *Service) publishTransferEvent(ctx context.Context, routingKey string, tx *domain.Transaction, reason string) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.TransferEvent{
		TransactionID: tx.ID,
		SenderID:      tx.Sender.ID,
		ReceiverID:    tx.Receiver.ID,
		Amount:        tx.Amount,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, SettlementEventsExchange, routingKey, event); err != nil {
		log.Printf("WARN: failed to publish %s event for tx %s: %v", routingKey, tx.ID, err)
	}
}
