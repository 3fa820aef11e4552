// Package cache is a Redis read-through cache for room sync snapshots, wrapped
// in a circuit breaker. All methods are nil-safe: a nil *Service means
// single-instance mode without Redis, and every operation degrades to a miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/scorecast/scorecast/internal/v1/metrics"
)

// snapshotTTL bounds staleness if an invalidation is ever lost. Mutations
// invalidate explicitly, so the TTL is a backstop, not the consistency story.
const snapshotTTL = 5 * time.Minute

// Service wraps the Redis client used for snapshot caching and as the rate
// limiter's shared store.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// NewService connects to Redis and verifies connectivity.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	slog.Info("Connected to Redis", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// NewServiceWithClient wraps an existing client. Tests use this with miniredis.
func NewServiceWithClient(client *redis.Client) *Service {
	return &Service{
		client: client,
		cb:     gobreaker.NewCircuitBreaker(gobreaker.Settings{Name: "redis"}),
	}
}

// Client exposes the underlying Redis client so the rate limiter can share
// the connection. Nil in single-instance mode.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

func snapshotKey(roomID string) string {
	return "scorecast:room:" + roomID + ":sync"
}

// GetSnapshot returns the cached sync snapshot for a room. A miss, a Redis
// failure, or an open breaker all return ok=false; the caller reads the
// store directly.
func (s *Service) GetSnapshot(ctx context.Context, roomID string) ([]byte, bool) {
	if s == nil || s.client == nil {
		return nil, false
	}

	res, err := s.cb.Execute(func() (interface{}, error) {
		data, err := s.client.Get(ctx, snapshotKey(roomID)).Bytes()
		if errors.Is(err, redis.Nil) {
			// A miss is a healthy answer. Surfacing redis.Nil here would
			// make the breaker count cold reads as failures and trip on
			// ordinary post-invalidation traffic.
			return nil, nil
		}
		return data, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		} else {
			slog.Warn("Redis snapshot read failed", "roomID", roomID, "error", err)
		}
		return nil, false
	}
	data, ok := res.([]byte)
	if !ok || data == nil {
		return nil, false
	}
	return data, true
}

// SetSnapshot stores a sync snapshot. Failures are dropped silently; the
// cache is an optimization, never a source of truth.
func (s *Service) SetSnapshot(ctx context.Context, roomID string, data []byte) {
	if s == nil || s.client == nil {
		return
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Set(ctx, snapshotKey(roomID), data, snapshotTTL).Err()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			return
		}
		slog.Warn("Redis snapshot write failed", "roomID", roomID, "error", err)
	}
}

// Invalidate drops a room's cached snapshot. Called on every room mutation.
func (s *Service) Invalidate(ctx context.Context, roomID string) {
	if s == nil || s.client == nil {
		return
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Del(ctx, snapshotKey(roomID)).Err()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			return
		}
		slog.Warn("Redis snapshot invalidation failed", "roomID", roomID, "error", err)
	}
}

// Ping checks Redis connectivity for readiness probes.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})
	if err != nil && errors.Is(err, gobreaker.ErrOpenState) {
		metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
	}
	return err
}

// Close shuts the Redis connection down.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
