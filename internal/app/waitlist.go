package app

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/paylinehq/settlement-service/internal/domain"
)

var ErrInvalidEmail = errors.New("invalid email address")

// JoinWaitlist validates and normalizes an email address, then records it on
// the launch waitlist. Duplicates surface as store.ErrAlreadyWaitlisted.
func (s *Service) JoinWaitlist(ctx context.Context, email string) (*domain.WaitlistEntry, error) {
	normalized, err := normalizeWaitlistEmail(email)
	if err != nil {
		return nil, err
	}
	return s.repo.CreateWaitlistEntry(ctx, normalized)
}

func normalizeWaitlistEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return addr.Address, nil
}
