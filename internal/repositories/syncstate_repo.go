package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	lastSyncKey     = "sync:last_synced_at"
	connectivityKey = "sync:connectivity"

	// Connectivity is a probe result, not a durable fact; let it expire so a
	// stale "online" never outlives the network by long.
	connectivityTTL = 30 * time.Second
)

type RedisSyncStateRepository struct {
	client *redis.Client
}

func NewRedisSyncStateRepository(client *redis.Client) *RedisSyncStateRepository {
	return &RedisSyncStateRepository{client: client}
}

func (r *RedisSyncStateRepository) SetLastSyncTime(ctx context.Context, t time.Time) error {
	err := r.client.Set(ctx, lastSyncKey, t.UTC().Format(time.RFC3339Nano), 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set last sync time: %w", err)
	}
	return nil
}

func (r *RedisSyncStateRepository) GetLastSyncTime(ctx context.Context) (time.Time, error) {
	value, err := r.client.Get(ctx, lastSyncKey).Result()
	if err == redis.Nil {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last sync time: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last sync time: %w", err)
	}
	return t, nil
}

func (r *RedisSyncStateRepository) SetConnectivity(ctx context.Context, online bool) error {
	value := "offline"
	if online {
		value = "online"
	}

	err := r.client.Set(ctx, connectivityKey, value, connectivityTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set connectivity: %w", err)
	}
	return nil
}

func (r *RedisSyncStateRepository) GetConnectivity(ctx context.Context) (bool, error) {
	value, err := r.client.Get(ctx, connectivityKey).Result()
	if err == redis.Nil {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to get connectivity: %w", err)
	}
	return value == "online", nil
}
