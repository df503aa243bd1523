// Package ledger holds per-user credit balances.
package ledger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientCredits = errors.New("insufficient credits")
)

// InsufficientCreditsError reports what a debit needed and what was there.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// Ledger debits credits with a single conditional decrement. There is no
// credit path: balances are topped up by billing, outside this service.
type Ledger interface {
	Balance(ctx context.Context, userID string) (int, error)
	// Debit subtracts amount if the balance covers it and returns the new
	// balance. It never drives a balance negative.
	Debit(ctx context.Context, userID string, amount int) (int, error)
}

// CreditsRequired is the price of a bulk job with urlCount items.
func CreditsRequired(urlCount int) int {
	if urlCount <= 0 {
		return 0
	}
	return (urlCount + 1) / 2
}

const (
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)
