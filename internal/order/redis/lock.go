package redis

import (
	"context"
	"fmt"
	"time"

	"ms-registration/internal/logger"

	"github.com/go-redis/redis/v8"
)

const defaultGuardTTL = 2 * time.Minute

// releaseScript deletes the key only if it still holds our holder id, so an
// expired guard re-acquired by another request is never removed.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ChargeGuard stops a double-submitted payment form from creating two
// charges for the same order.
type ChargeGuard struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewChargeGuard(client *redis.Client, ttl time.Duration, log *logger.Logger) *ChargeGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &ChargeGuard{Client: client, TTL: ttl, Logger: log}
}

func guardKey(orderID int64) string {
	return fmt.Sprintf("charge_guard:%d", orderID)
}

// Acquire takes the guard for orderID on behalf of holder. It returns false
// when another submission holds it.
func (g *ChargeGuard) Acquire(ctx context.Context, orderID int64, holder string) (bool, error) {
	ok, err := g.Client.SetNX(ctx, guardKey(orderID), holder, g.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire charge guard: %w", err)
	}
	if !ok {
		g.Logger.Warn("REDIS", fmt.Sprintf("Charge for order %d already in progress", orderID))
	}
	return ok, nil
}

// Release frees the guard if holder still owns it.
func (g *ChargeGuard) Release(ctx context.Context, orderID int64, holder string) error {
	if err := releaseScript.Run(ctx, g.Client, []string{guardKey(orderID)}, holder).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release charge guard: %w", err)
	}
	return nil
}

// Held reports whether any submission currently holds the guard for orderID.
func (g *ChargeGuard) Held(ctx context.Context, orderID int64) (bool, error) {
	n, err := g.Client.Exists(ctx, guardKey(orderID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
