package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic-lock retries when a key changes under WATCH
const maxUpdateRetries = 10

// RedisDB implements DatabaseClient using Redis as a key-value store
// Keys: job:<id> => JSON(Job); terminal jobs expire after the result TTL.
type RedisDB struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDB(client *redis.Client, resultTTL time.Duration) *RedisDB {
	return &RedisDB{client: client, ttl: resultTTL}
}

func (r *RedisDB) jobKey(id string) string { return fmt.Sprintf("job:%s", id) }

func (r *RedisDB) CreateJob(job *Job) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.jobKey(job.ID), b, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("job with ID %s: %w", job.ID, ErrJobExists)
	}
	return nil
}

func (r *RedisDB) GetJob(jobID string) (*Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return r.get(ctx, r.client, jobID)
}

func (r *RedisDB) get(ctx context.Context, c redis.Cmdable, jobID string) (*Job, error) {
	val, err := c.Get(ctx, r.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("job with ID %s: %w", jobID, ErrJobNotFound)
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	var j Job
	if err := json.Unmarshal(val, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateJob runs fn inside WATCH/MULTI so concurrent writers never lose each
// other's changes; a conflicting write makes the whole read-modify-write retry.
func (r *RedisDB) UpdateJob(jobID string, fn func(*Job) error) (*Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := r.jobKey(jobID)

	var updated *Job
	txf := func(tx *redis.Tx) error {
		job, err := r.get(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := fn(job); err != nil {
			return err
		}
		job.ID = jobID
		b, err := json.Marshal(job)
		if err != nil {
			return err
		}
		ttl := time.Duration(0)
		if job.Status.IsTerminal() {
			ttl = r.ttl
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, ttl)
			return nil
		})
		if err == nil {
			updated = job
		}
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("%w: update of job %s kept conflicting", ErrStoreUnavailable, jobID)
}
