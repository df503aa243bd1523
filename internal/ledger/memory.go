package ledger

import (
	"context"
	"sync"
)

// MemoryLedger is a process-local ledger for development and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[string]int)}
}

// Set replaces a user's balance.
func (l *MemoryLedger) Set(userID string, balance int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = balance
}

func (l *MemoryLedger) Balance(ctx context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	return balance, nil
}

func (l *MemoryLedger) Debit(ctx context.Context, userID string, amount int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	if balance < amount {
		return balance, &InsufficientCreditsError{Required: amount, Available: balance}
	}
	l.balances[userID] = balance - amount
	return balance - amount, nil
}
