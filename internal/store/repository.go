/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract
 * for all data access operations required by the settlement-service. By
 * defining an interface, we decouple the settlement engine from the specific
 * database implementation (e.g., PostgreSQL), making the code more modular
 * and easier to test.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/paylinehq/settlement-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User and account lookups.
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)
	// FindAccountsByOwner returns the owner's accounts ordered by creation
	// time (oldest first), ties broken by id, so "first account" is stable.
	FindAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error)

	// Transaction methods.
	FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	UpdateTransactionDestination(ctx context.Context, transactionID uuid.UUID, accountID uuid.UUID) error
	UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error

	// Settlement moves. Each call debits one account and credits the other
	// inside a single database transaction; a conditional-debit failure
	// leaves both balances untouched.
	MoveFundsToClearing(ctx context.Context, fromAccountID, clearingAccountID uuid.UUID, amount int64) error
	MoveFundsFromClearing(ctx context.Context, clearingAccountID, toAccountID uuid.UUID, amount int64) error

	// Waitlist methods.
	CreateWaitlistEntry(ctx context.Context, email string) (*domain.WaitlistEntry, error)
}
