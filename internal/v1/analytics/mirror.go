package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/quizhall/server/internal/v1/logging"
	"github.com/quizhall/server/internal/v1/metrics"
)

// Mirror pushes analytics events into Redis lists so an external
// aggregator can consume them. The circuit breaker keeps a flapping Redis
// from slowing down rooms: when open, events are dropped silently.
type Mirror struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// mirrorLine is the list entry layout: "quiz:analytics:{code}".
type mirrorLine struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewMirror connects to Redis and verifies the connection immediately.
func NewMirror(addr, password string) (*Mirror, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "analytics-redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
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

	logging.Info(context.Background(), "Analytics Redis mirror connected",
		zap.String("addr", addr))
	return &Mirror{client: rdb, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// Append pushes one event onto the room's analytics list. Nil mirrors and
// all failures degrade to a no-op; the in-memory store stays authoritative.
func (m *Mirror) Append(ctx context.Context, roomCode, kind string, payload any) {
	if m == nil || m.client == nil {
		return
	}

	_, err := m.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(mirrorLine{
			Kind:      kind,
			Timestamp: time.Now(),
			Payload:   payload,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal mirror line: %w", err)
		}
		key := fmt.Sprintf("quiz:analytics:%s", roomCode)
		return nil, m.client.RPush(ctx, key, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("analytics-redis").Inc()
			return
		}
		logging.Warn(ctx, "analytics mirror append failed",
			zap.String("roomCode", roomCode), zap.Error(err))
	}
}

// Ping verifies Redis connectivity for the readiness probe.
func (m *Mirror) Ping(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	_, err := m.cb.Execute(func() (interface{}, error) {
		return nil, m.client.Ping(ctx).Err()
	})
	if err == gobreaker.ErrOpenState {
		metrics.CircuitBreakerFailures.WithLabelValues("analytics-redis").Inc()
	}
	return err
}

// Client exposes the underlying connection for the rate limiter store.
func (m *Mirror) Client() *redis.Client {
	if m == nil {
		return nil
	}
	return m.client
}

// Close shuts the Redis connection down.
func (m *Mirror) Close() error {
	if m == nil || m.client == nil {
		return nil
	}
	return m.client.Close()
}
