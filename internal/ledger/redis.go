package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const creditsKeyPrefix = "credits:"

// Returns {status, balance}: 1 debited, 0 insufficient, -1 unknown user.
var debitScript = redis.NewScript(`
local balance = redis.call('GET', KEYS[1])
if not balance then return {-1, 0} end
balance = tonumber(balance)
local amount = tonumber(ARGV[1])
if balance < amount then return {0, balance} end
local remaining = redis.call('DECRBY', KEYS[1], amount)
return {1, remaining}
`)

// RedisLedger stores each balance as an integer key.
type RedisLedger struct {
	rdb redis.UniversalClient
}

func NewRedisLedger(rdb redis.UniversalClient) *RedisLedger {
	return &RedisLedger{rdb: rdb}
}

func creditsKey(userID string) string {
	return creditsKeyPrefix + userID
}

// Set replaces a user's balance.
func (l *RedisLedger) Set(ctx context.Context, userID string, balance int) error {
	if err := l.rdb.Set(ctx, creditsKey(userID), balance, 0).Err(); err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (int, error) {
	v, err := l.rdb.Get(ctx, creditsKey(userID)).Result()
	if err == redis.Nil {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	balance, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("corrupt balance for %s: %w", userID, err)
	}
	return balance, nil
}

func (l *RedisLedger) Debit(ctx context.Context, userID string, amount int) (int, error) {
	res, err := debitScript.Run(ctx, l.rdb, []string{creditsKey(userID)}, amount).Int64Slice()
	if err != nil {
		return 0, fmt.Errorf("failed to debit credits: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected debit reply %v", res)
	}

	balance := int(res[1])
	switch res[0] {
	case -1:
		return 0, ErrUserNotFound
	case 0:
		return balance, &InsufficientCreditsError{Required: amount, Available: balance}
	}
	return balance, nil
}
