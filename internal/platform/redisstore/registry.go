// Package redisstore keeps server-side session records in Redis.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"hrportal/internal/domain/auth"
)

const DefaultPrefix = "hrportal:session:"

// Registry implements auth.SessionRegistry. Expiry is left to Redis TTLs, so
// there is nothing to sweep.
type Registry struct {
	client redis.UniversalClient
	prefix string
}

func NewRegistry(client redis.UniversalClient, prefix string) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Registry{client: client, prefix: prefix}
}

//nolint:ireturn // callers only need the universal client surface.
func Connect(ctx context.Context, rawURL string) (redis.UniversalClient, error) {
	uri := strings.TrimSpace(rawURL)
	if uri == "" {
		return nil, errors.New("redis url is required")
	}
	var client *redis.Client
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		opt, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: uri})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func (r *Registry) key(userID, idHash string) string {
	return r.prefix + userID + ":" + idHash
}

func (r *Registry) Create(ctx context.Context, record auth.SessionRecord) error {
	if record.ID == "" || record.UserID == "" {
		return errors.New("session record requires id and user id")
	}
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		return errors.New("session is expired")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	return r.client.Set(ctx, r.key(record.UserID, record.ID), data, ttl).Err()
}

func (r *Registry) Valid(ctx context.Context, userID, idHash string) (bool, error) {
	if userID == "" || idHash == "" {
		return false, nil
	}
	data, err := r.client.Get(ctx, r.key(userID, idHash)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get: %w", err)
	}
	var record auth.SessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return false, fmt.Errorf("unmarshal session: %w", err)
	}
	if !time.Now().Before(record.ExpiresAt) {
		return false, r.Revoke(ctx, userID, idHash)
	}
	return true, nil
}

func (r *Registry) Revoke(ctx context.Context, userID, idHash string) error {
	if userID == "" || idHash == "" {
		return nil
	}
	return r.client.Del(ctx, r.key(userID, idHash)).Err()
}

func (r *Registry) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
