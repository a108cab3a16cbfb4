// Package portfolio tracks coarse open/closed position flags for the fund.
// Each protocol integration owns a single constant pointer; the flag says
// "the fund has an open position there", nothing finer.
package portfolio

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// Tracker is the portfolio-state collaborator surface.
type Tracker interface {
	// PositionOpened marks the pointer open; reports whether the flag flipped.
	PositionOpened(ctx context.Context, id common.Hash) (bool, error)
	// PositionClosed clears the pointer; reports whether the flag flipped.
	PositionClosed(ctx context.Context, id common.Hash) (bool, error)
	// HoldsPosition reads the current flag.
	HoldsPosition(ctx context.Context, id common.Hash) (bool, error)
}

type redisTracker struct {
	client *redis.Client
}

// NewRedisTracker returns the redis-backed tracker.
func NewRedisTracker(client *redis.Client) Tracker {
	return &redisTracker{client: client}
}

func key(id common.Hash) string {
	return "portfolio:position:" + id.Hex()
}

func (t *redisTracker) PositionOpened(ctx context.Context, id common.Hash) (bool, error) {
	set, err := t.client.SetNX(ctx, key(id), "1", 0).Result()
	if err != nil {
		return false, err
	}
	return set, nil
}

func (t *redisTracker) PositionClosed(ctx context.Context, id common.Hash) (bool, error) {
	n, err := t.client.Del(ctx, key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *redisTracker) HoldsPosition(ctx context.Context, id common.Hash) (bool, error) {
	n, err := t.client.Exists(ctx, key(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryTracker is an in-process Tracker for tests and single-node setups.
type MemoryTracker struct {
	open map[common.Hash]bool
}

// NewMemoryTracker returns an empty MemoryTracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{open: make(map[common.Hash]bool)}
}

// PositionOpened implements Tracker.
func (t *MemoryTracker) PositionOpened(_ context.Context, id common.Hash) (bool, error) {
	if t.open[id] {
		return false, nil
	}
	t.open[id] = true
	return true, nil
}

// PositionClosed implements Tracker.
func (t *MemoryTracker) PositionClosed(_ context.Context, id common.Hash) (bool, error) {
	if !t.open[id] {
		return false, nil
	}
	delete(t.open, id)
	return true, nil
}

// HoldsPosition implements Tracker.
func (t *MemoryTracker) HoldsPosition(_ context.Context, id common.Hash) (bool, error) {
	return t.open[id], nil
}
