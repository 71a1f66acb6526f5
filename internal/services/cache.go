// Package services holds the edge collaborators around the core: the redis
// cache, the websocket hub, the bus-to-hub relay, and the AI fill-team
// provider.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss marks an absent key so callers can fall through to the store
// without treating the miss as a failure.
var ErrCacheMiss = errors.New("cache: key not found")

type CacheService struct {
	client *redis.Client
	log    *logrus.Logger
}

func NewCacheService(client *redis.Client, log *logrus.Logger) *CacheService {
	return &CacheService{
		client: client,
		log:    log,
	}
}

// NewRedisClient builds a client from a redis URL or a bare host:port.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	return redis.NewClient(opts), nil
}

func (s *CacheService) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := s.client.Set(ctx, key, data, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	return nil
}

func (s *CacheService) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("failed to get cache: %w", err)
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return nil
}

func (s *CacheService) Delete(ctx context.Context, keys ...string) error {
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

func (s *CacheService) Exists(ctx context.Context, key string) (bool, error) {
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cache existence: %w", err)
	}
	return val > 0, nil
}

// Cache key generators
func LiveMatchCacheKey(matchID uint) string {
	return fmt.Sprintf("match:live:%d", matchID)
}

func StandingsCacheKey(division int, subdivision string) string {
	return fmt.Sprintf("standings:%d:%s", division, subdivision)
}

func TournamentCacheKey(tournamentID uint) string {
	return fmt.Sprintf("tournament:%d", tournamentID)
}

func SeasonCacheKey() string {
	return "season:current"
}

// SetWithRetry keeps cache writes best-effort: failures back off briefly and
// retry, and the last error is returned for the caller to log.
func (s *CacheService) SetWithRetry(ctx context.Context, key string, value interface{}, expiration time.Duration, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if err = s.Set(ctx, key, value, expiration); err == nil {
			return nil
		}
		s.log.WithError(err).Warnf("Cache set failed (attempt %d/%d)", i+1, maxRetries)
		time.Sleep(time.Millisecond * 100 * time.Duration(i+1))
	}
	return err
}
