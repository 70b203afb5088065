package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisQueue implements MessageQueueClient using Redis streams.
// Stream: cfg.QueueName; workers share one consumer group so each job is delivered once.
type RedisQueue struct {
	client   *redis.Client
	name     string
	group    string
	consumer string
	maxLen   int

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// DefaultConsumerGroup is the group all workers join
const DefaultConsumerGroup = "workers"

func NewRedisQueue(client *redis.Client, name string, maxLen int) *RedisQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisQueue{
		client: client,
		name:   name,
		group:  DefaultConsumerGroup,
		maxLen: maxLen,
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithConsumer names this process inside the consumer group.
func (q *RedisQueue) WithConsumer(name string) *RedisQueue {
	q.consumer = name
	return q
}

func (q *RedisQueue) Publish(message JobMessage) error {
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	ctx, cancel := context.WithTimeout(q.ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(message)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{Stream: q.name, Values: map[string]any{"data": b}}
	if q.maxLen > 0 {
		args.MaxLen = int64(q.maxLen)
		args.Approx = true
	}
	return q.client.XAdd(ctx, args).Err()
}

// ensureGroup creates the stream and consumer group if they do not exist yet.
func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.name, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (q *RedisQueue) Consume() (<-chan JobMessage, error) {
	out := make(chan JobMessage)
	if q.client == nil {
		close(out)
		return out, fmt.Errorf("redis client is nil")
	}
	if err := q.ensureGroup(q.ctx); err != nil {
		close(out)
		return out, fmt.Errorf("failed to create consumer group %s: %w", q.group, err)
	}
	consumer := q.consumer
	if consumer == "" {
		consumer = "worker"
	}
	go func() {
		defer close(out)
		for {
			res, err := q.client.XReadGroup(q.ctx, &redis.XReadGroupArgs{
				Group:    q.group,
				Consumer: consumer,
				Streams:  []string{q.name, ">"},
				Count:    10,
				Block:    5 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				if q.ctx.Err() != nil {
					return
				}
				log.Printf("WARN: Queue: read from %s failed: %v", q.name, err)
				select {
				case <-time.After(time.Second):
					continue
				case <-q.ctx.Done():
					return
				}
			}
			for _, stream := range res {
				for _, msg := range stream.Messages {
					jm, ok := decodeStreamMessage(msg)
					if !ok {
						log.Printf("WARN: Queue: dropping malformed message %s", msg.ID)
						_ = q.client.XAck(q.ctx, q.name, q.group, msg.ID).Err()
						continue
					}
					select {
					case out <- jm:
					case <-q.ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

func decodeStreamMessage(msg redis.XMessage) (JobMessage, bool) {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return JobMessage{}, false
	}
	var jm JobMessage
	if err := json.Unmarshal([]byte(raw), &jm); err != nil || jm.JobID == "" {
		return JobMessage{}, false
	}
	jm.DeliveryID = msg.ID
	return jm, true
}

func (q *RedisQueue) Ack(message JobMessage) error {
	if message.DeliveryID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return q.client.XAck(ctx, q.name, q.group, message.DeliveryID).Err()
}

func (q *RedisQueue) Close() {
	q.once.Do(q.cancel)
}
