package shared

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// NewRedisClient constructs a go-redis client from Config
func NewRedisClient(cfg *Config) *redis.Client {
	if cfg == nil || cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		// Reasonable timeouts; stream reads block longer than ReadTimeout on purpose,
		// go-redis extends the deadline for blocking commands.
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// PingRedis validates the connection.
func PingRedis(client *redis.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Backends bundles the job store and queue chosen from configuration.
type Backends struct {
	DB    DatabaseClient
	Queue MessageQueueClient
	Redis *redis.Client
}

// NewBackends picks Redis implementations when RedisAddr is set, in-memory ones otherwise.
func NewBackends(cfg *Config, consumer string) (*Backends, error) {
	client := NewRedisClient(cfg)
	if client == nil {
		return &Backends{
			DB:    NewInMemoryDB(cfg.ResultTTL),
			Queue: NewInMemoryQueue(100),
		}, nil
	}
	if err := PingRedis(client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Backends{
		DB:    NewRedisDB(client, cfg.ResultTTL),
		Queue: NewRedisQueue(client, cfg.QueueName, cfg.QueueMaxLength).WithConsumer(consumer),
		Redis: client,
	}, nil
}

// Close releases the queue and the redis connection.
func (b *Backends) Close() {
	b.Queue.Close()
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
}
