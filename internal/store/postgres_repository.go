/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. It contains all the SQL queries used by the settlement engine
 * against the users, accounts, transactions, and waitlist tables shared with
 * the CMS layer.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paylinehq/settlement-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrClearingFundsShort  = errors.New("clearing account balance below transfer amount")
	ErrAlreadyWaitlisted   = errors.New("email already waitlisted")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, lower(btrim(email)), preferred_account_id, created_at FROM users WHERE id = $1`
	err := r.db.QueryRow(ctx, query, userID).Scan(&user.ID, &user.Email, &user.PreferredAccountID, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail retrieves a user by their email address, case-insensitively.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	query := `SELECT id, lower(btrim(email)), preferred_account_id, created_at FROM users WHERE lower(btrim(email)) = lower(btrim($1))`
	err := r.db.QueryRow(ctx, query, email).Scan(&user.ID, &user.Email, &user.PreferredAccountID, &user.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindAccountByID retrieves a single account by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, owner_id, provider, balance, created_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(&account.ID, &account.OwnerID, &account.Provider, &account.Balance, &account.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountsByOwner retrieves every account owned by a user, oldest first.
// The ordering makes the "first account" destination fallback deterministic.
func (r *PostgresRepository) FindAccountsByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Account, error) {
	query := `
		SELECT id, owner_id, provider, balance, created_at
		FROM accounts
		WHERE owner_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.ID, &account.OwnerID, &account.Provider, &account.Balance, &account.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// FindTransactionByID retrieves a transaction record. Relationship fields come
// back as unresolved references; the engine materializes them on demand.
func (r *PostgresRepository) FindTransactionByID(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	var (
		tx       domain.Transaction
		senderID uuid.UUID
		fromID   uuid.UUID
		recvID   uuid.UUID
		toID     *uuid.UUID
	)
	query := `
		SELECT id, sender_id, from_account_id, receiver_id, to_account_id, amount, status, created_at, updated_at
		FROM transactions
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, transactionID).Scan(
		&tx.ID, &senderID, &fromID, &recvID, &toID, &tx.Amount, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	tx.Sender = domain.NewUserRef(senderID)
	tx.From = domain.NewAccountRef(fromID)
	tx.Receiver = domain.NewUserRef(recvID)
	if toID != nil {
		ref := domain.NewAccountRef(*toID)
		tx.To = &ref
	}
	return &tx, nil
}

// UpdateTransactionDestination records the chosen destination account on a transaction.
func (r *PostgresRepository) UpdateTransactionDestination(ctx context.Context, transactionID uuid.UUID, accountID uuid.UUID) error {
	query := `UPDATE transactions SET to_account_id = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, accountID, transactionID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// UpdateTransactionStatus sets the status of a transaction.
func (r *PostgresRepository) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status string) error {
	query := `UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.Exec(ctx, query, status, transactionID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MoveFundsToClearing atomically debits the source account and credits the
// clearing account. The debit is conditional on the locked balance, so a
// concurrent initiation that drains the source cannot overdraw it.
func (r *PostgresRepository) MoveFundsToClearing(ctx context.Context, fromAccountID, clearingAccountID uuid.UUID, amount int64) error {
	return r.moveFunds(ctx, fromAccountID, clearingAccountID, amount, ErrInsufficientFunds)
}

// MoveFundsFromClearing atomically debits the clearing account and credits
// the destination account. The conditional debit guards the clearing balance
// against replayed or out-of-order completions.
func (r *PostgresRepository) MoveFundsFromClearing(ctx context.Context, clearingAccountID, toAccountID uuid.UUID, amount int64) error {
	return r.moveFunds(ctx, clearingAccountID, toAccountID, amount, ErrClearingFundsShort)
}

// moveFunds locks both account rows inside one transaction, verifies the
// debit side covers the amount, then applies the two balance writes. Rows are
// locked in ascending id order so concurrent moves cannot deadlock.
func (r *PostgresRepository) moveFunds(ctx context.Context, debitID, creditID uuid.UUID, amount int64, shortErr error) error {
	if debitID == creditID {
		return fmt.Errorf("cannot move funds from an account to itself (%s)", debitID)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	balances := make(map[uuid.UUID]int64, 2)
	for _, id := range lockOrder(debitID, creditID) {
		var balance int64
		err := tx.QueryRow(ctx, "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE", id).Scan(&balance)
		if err != nil {
			if err == pgx.ErrNoRows {
				return ErrAccountNotFound
			}
			return err
		}
		balances[id] = balance
	}

	if balances[debitID] < amount {
		return shortErr
	}

	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance + $1, updated_at = NOW() WHERE id = $2", amount, creditID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, "UPDATE accounts SET balance = balance - $1, updated_at = NOW() WHERE id = $2", amount, debitID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// lockOrder returns the two account ids in ascending order.
func lockOrder(a, b uuid.UUID) [2]uuid.UUID {
	if strings.Compare(a.String(), b.String()) <= 0 {
		return [2]uuid.UUID{a, b}
	}
	return [2]uuid.UUID{b, a}
}

// CreateWaitlistEntry inserts an email on the waitlist, rejecting duplicates.
func (r *PostgresRepository) CreateWaitlistEntry(ctx context.Context, email string) (*domain.WaitlistEntry, error) {
	entry := domain.WaitlistEntry{ID: uuid.New()}
	query := `
		INSERT INTO waitlist_entries (id, email)
		VALUES ($1, lower(btrim($2)))
		RETURNING id, email, created_at
	`
	err := r.db.QueryRow(ctx, query, entry.ID, email).Scan(&entry.ID, &entry.Email, &entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrAlreadyWaitlisted
		}
		return nil, err
	}
	return &entry, nil
}
