package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/paylinehq/settlement-service/internal/domain"
	"github.com/paylinehq/settlement-service/internal/store"
)

// clearingAccount locates the platform's intermediary account: the user whose
// email matches the configured clearing identity, then that user's oldest
// account. Both lookups failing are configuration errors, not transient ones,
// so no retry is attempted. Exactly one clearing account is expected to
// exist; with more than one the oldest wins.
func (s *Service) clearingAccount(ctx context.Context) (*domain.Account, error) {
	user, err := s.repo.FindUserByEmail(ctx, s.clearingEmail)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrClearingUserNotFound
		}
		return nil, fmt.Errorf("failed to look up clearing user: %w", err)
	}

	accounts, err := s.repo.FindAccountsByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clearing accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrClearingAccountNotFound
	}

	return &accounts[0], nil
}
