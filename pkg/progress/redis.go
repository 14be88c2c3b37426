package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sujanshetty01/OMD/pkg/logging"
)

// RedisConfig configures the cross-instance relay.
type RedisConfig struct {
	// Address is the Redis server address (e.g., "localhost:6379")
	Address  string
	Password string
	Database int

	// Prefix is prepended to the session to form the channel name.
	Prefix string

	// Timeout bounds each publish.
	Timeout time.Duration
}

// DefaultRedisConfig returns sensible defaults.
func DefaultRedisConfig(address string) RedisConfig {
	return RedisConfig{
		Address: address,
		Prefix:  "omd:progress:",
		Timeout: 2 * time.Second,
	}
}

// RedisRelay fans progress events out over Redis pub/sub so the instance
// holding a session's websocket receives events published by any instance.
// Pub/sub keeps no backlog, which matches the hub's no-replay contract.
type RedisRelay struct {
	cfg    RedisConfig
	client *redis.Client
	hub    *Hub
	logger *slog.Logger
}

// NewRedisRelay connects to Redis and wraps hub.
func NewRedisRelay(ctx context.Context, cfg RedisConfig, hub *Hub, logger *slog.Logger) (*RedisRelay, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRelay{cfg: cfg, client: client, hub: hub, logger: logging.Or(logger)}, nil
}

// Publish sends ev on the session channel. If Redis is unavailable the
// event is delivered to the local hub directly.
func (r *RedisRelay) Publish(session string, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Debug("progress event not serializable", "session", session, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.cfg.Prefix+session, payload).Err(); err != nil {
		r.logger.Debug("redis publish failed, delivering locally", "session", session, "error", err)
		r.hub.Publish(session, ev)
	}
}

// Run subscribes to every session channel and forwards messages to the
// local hub until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.PSubscribe(ctx, r.cfg.Prefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Channel, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(channel, payload string) {
	session, ok := strings.CutPrefix(channel, r.cfg.Prefix)
	if !ok || session == "" {
		return
	}
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		r.logger.Debug("malformed relayed progress event", "channel", channel, "error", err)
		return
	}
	r.hub.Publish(session, ev)
}

// Close releases the Redis connection.
func (r *RedisRelay) Close() error {
	return r.client.Close()
}
