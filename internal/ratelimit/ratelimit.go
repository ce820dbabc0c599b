// Package ratelimit implements a Redis fixed-window request limiter.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-tracker/internal/auth"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

// Limiter counts hits per key in fixed windows.
type Limiter struct {
	redis  *redis.Client
	name   string
	limit  int64
	window time.Duration
	logger *zap.Logger
}

// New returns nil when client is nil or limit is not positive, which turns
// the middleware into a pass-through.
func New(client *redis.Client, name string, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	if client == nil || limit <= 0 {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{redis: client, name: name, limit: int64(limit), window: window, logger: logger}
}

// Allow registers a hit for key and reports whether it is within the limit.
// The counter and its expiry are set in one MULTI/EXEC so a window always
// ends. EXPIRE NX needs Redis 7.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("ratelimit:%s:%s", l.name, key)
	var count *redis.IntCmd
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return count.Val() <= l.limit, nil
}

// Middleware limits authenticated actors. Redis failures let the request
// through.
func (l *Limiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil {
			return c.Next()
		}
		actor, ok := auth.ActorFromContext(c)
		if !ok {
			return c.Next()
		}
		allowed, err := l.Allow(c.UserContext(), fmt.Sprintf("user:%d", actor.ID))
		if err != nil {
			l.logger.Warn("rate limiter unavailable", zap.String("limiter", l.name), zap.Error(err))
			return c.Next()
		}
		if !allowed {
			return apperrors.NewTooManyRequests("rate limit exceeded, try again later")
		}
		return c.Next()
	}
}
