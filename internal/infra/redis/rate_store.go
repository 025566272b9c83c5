package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"linkedin-autopilot/internal/domain/model"
	"linkedin-autopilot/internal/domain/ports/repository"
)

var _ repository.RateStore = (*RateStore)(nil)

// RateStore keeps per-kind budgets as counter keys that expire with the
// window, and cooldowns as separate TTL keys that override the window.
type RateStore struct {
	client RedisClient
}

func NewRateStore(client RedisClient) *RateStore {
	return &RateStore{client: client}
}

func windowKey(kind model.ActionKind) string   { return fmt.Sprintf("rate:window:%s", kind) }
func cooldownKey(kind model.ActionKind) string { return fmt.Sprintf("rate:cooldown:%s", kind) }

func (r *RateStore) TakeToken(ctx context.Context, kind model.ActionKind, limit int, window time.Duration) (bool, time.Duration, error) {
	// An active cooldown wins over any remaining window budget.
	if ttl, err := r.client.TTL(ctx, cooldownKey(kind)); err == nil && ttl > 0 {
		return false, ttl, nil
	}

	count, err := r.client.Incr(ctx, windowKey(kind))
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, windowKey(kind), window); err != nil {
			return false, 0, err
		}
	}
	if count > int64(limit) {
		ttl, err := r.client.TTL(ctx, windowKey(kind))
		if err != nil || ttl <= 0 {
			// Counter key lost its expiry; re-arm so the window can roll over.
			_ = r.client.Expire(ctx, windowKey(kind), window)
			ttl = window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}

func (r *RateStore) SetCooldown(ctx context.Context, kind model.ActionKind, cooldown time.Duration) error {
	// The window counter keeps its value and TTL: a short backoff must not
	// hand back tokens already spent inside the window.
	until := time.Now().Add(cooldown)
	return r.client.Set(ctx, cooldownKey(kind), until.Unix(), cooldown)
}

func (r *RateStore) Budget(ctx context.Context, kind model.ActionKind) (model.RateBudget, error) {
	b := model.RateBudget{Kind: kind}

	if v, err := r.client.Get(ctx, windowKey(kind)); err == nil {
		if n, err := strconv.Atoi(v); err == nil {
			b.Count = n
		}
	} else if !IsNil(err) {
		return b, err
	}
	if ttl, err := r.client.TTL(ctx, cooldownKey(kind)); err == nil && ttl > 0 {
		b.CooldownUntil = time.Now().Add(ttl)
	}
	return b, nil
}
