package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix     = "authkeeper:rt:"
	redisUserPrefix = redisPrefix + "user:"

	// RedisGrace keeps a token key around this long past its expiry so a
	// late refresh still reports "expired" rather than "not found".
	RedisGrace = 24 * time.Hour

	maxWatchAttempts = 5
)

// RedisStore keeps one JSON record per token plus a per-user pointer key.
// Mutations use WATCH/MULTI on the user key, so concurrent writers for the
// same user retry while other users proceed independently.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	settings
}

type redisRecord struct {
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func NewRedisStore(client *redis.Client, ttl time.Duration, opts ...Option) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, settings: newSettings(opts)}
}

// DialRedis connects and pings with a short timeout.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, redisUnavailable(err)
	}
	return client, nil
}

func tokenKey(token string) string { return redisPrefix + token }

func userKey(userID string) string { return redisUserPrefix + userID }

func redisUnavailable(err error) error {
	return fmt.Errorf("redis error: %w: %w", common.ErrStoreUnavailable, err)
}

func (s *RedisStore) Issue(ctx context.Context, userID string) (*models.RefreshToken, error) {
	rt, err := s.mint(userID, s.ttl)
	if err != nil {
		return nil, redisUnavailable(err)
	}

	payload, err := json.Marshal(redisRecord{UserID: rt.UserID, ExpiresAt: rt.ExpiresAt, CreatedAt: rt.CreatedAt})
	if err != nil {
		return nil, fmt.Errorf("encode refresh token: %w", err)
	}

	retention := rt.ExpiresAt.Sub(rt.CreatedAt) + RedisGrace
	uk, tk := userKey(userID), tokenKey(rt.Token)

	err = s.watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, tk).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return common.ErrTokenCollision
		}

		old, err := tx.Get(ctx, uk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if old != "" {
				p.Del(ctx, tokenKey(old))
			}
			p.Set(ctx, tk, payload, retention)
			p.Set(ctx, uk, rt.Token, retention)
			return nil
		})
		return err
	}, uk, tk)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (s *RedisStore) Lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	raw, err := s.client.Get(ctx, tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, common.ErrRefreshTokenNotFound
		}
		return nil, redisUnavailable(err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode refresh token: %w", err)
	}
	return &models.RefreshToken{
		Token:     token,
		UserID:    rec.UserID,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

func (s *RedisStore) ValidateNotExpired(ctx context.Context, rt *models.RefreshToken, now time.Time) error {
	if !rt.ExpiredAt(now) {
		return nil
	}
	if err := s.remove(ctx, rt.UserID, rt.Token); err != nil {
		return err
	}
	return common.ErrRefreshTokenExpired
}

// remove deletes token and clears the user pointer if it still names it.
func (s *RedisStore) remove(ctx context.Context, userID, token string) error {
	uk := userKey(userID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, uk).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, tokenKey(token))
			if cur == token {
				p.Del(ctx, uk)
			}
			return nil
		})
		return err
	}, uk)
}

func (s *RedisStore) RevokeAll(ctx context.Context, userID string) error {
	uk := userKey(userID)
	return s.watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, uk).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Del(ctx, tokenKey(cur), uk)
			return nil
		})
		return err
	}, uk)
}

// DeleteExpired scans token keys. Keys past their grace period are already
// gone through Redis TTLs; this removes the ones inside the grace window.
func (s *RedisStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64

	iter := s.client.Scan(ctx, 0, redisPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasPrefix(key, redisUserPrefix) {
			continue
		}

		rt, err := s.Lookup(ctx, strings.TrimPrefix(key, redisPrefix))
		if errors.Is(err, common.ErrRefreshTokenNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if !rt.ExpiredAt(now) {
			continue
		}
		if err := s.remove(ctx, rt.UserID, rt.Token); err != nil {
			return n, err
		}
		n++
	}
	if err := iter.Err(); err != nil {
		return n, redisUnavailable(err)
	}
	return n, nil
}

// watch runs fn under WATCH keys, retrying when another writer touched
// them first. Domain errors from fn are returned unchanged.
func (s *RedisStore) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for range maxWatchAttempts {
		err = s.client.Watch(ctx, fn, keys...)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, common.ErrTokenCollision):
			return err
		default:
			return redisUnavailable(err)
		}
	}
	return redisUnavailable(err)
}
