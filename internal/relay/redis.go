package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	dialTimeout  = 3 * time.Second
	readTimeout  = 2 * time.Second
	writeTimeout = 2 * time.Second
	pingTimeout  = 2 * time.Second
)

// Publisher is the subset of redis.Client the sink needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// RedisSink publishes messages on a Redis pub/sub channel.
type RedisSink struct {
	pub     Publisher
	channel string
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink wraps a connected client.
func NewRedisSink(pub Publisher, channel string) *RedisSink {
	return &RedisSink{pub: pub, channel: channel}
}

// Send ignores the key; pub/sub has no partitions.
func (s *RedisSink) Send(ctx context.Context, _ string, payload []byte) error {
	return s.pub.Publish(ctx, s.channel, payload).Err()
}

func (s *RedisSink) Close() error { return s.pub.Close() }

// NewRedisClient parses a Redis URL and returns a client that answered a ping.
func NewRedisClient(ctx context.Context, url string, log *zap.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	opts.PoolSize = 4
	opts.MinIdleConns = 1
	opts.DialTimeout = dialTimeout
	opts.ReadTimeout = readTimeout
	opts.WriteTimeout = writeTimeout

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	if log != nil {
		log.Info("redis client connected", zap.String("addr", opts.Addr))
	}
	return client, nil
}
