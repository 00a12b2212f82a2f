package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"screening-pipeline/internal/config"
)

const (
	// completed records are kept for status polling, then expire
	completedRetention = 7 * 24 * time.Hour
	txMaxRetries       = 5
)

// claimScript pops the earliest due task from the ready set and parks it in the
// processing set under its lease deadline, in one step.
var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
redis.call('ZREM', KEYS[1], ids[1])
redis.call('ZADD', KEYS[2], ARGV[2], ids[1])
return ids[1]
`)

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisTaskStore implements TaskStore on Redis. Task records are JSON strings; scheduling
// uses three sorted sets: ready (score = due time), processing (score = lease deadline)
// and failed (score = failure time).
type RedisTaskStore struct {
	client *redis.Client
	prefix string
}

// NewRedisTaskStore connects to the configured Redis instance
func NewRedisTaskStore(ctx context.Context, cfg *config.Config) (*RedisTaskStore, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	opts.DialTimeout = cfg.Redis.Timeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	store := NewRedisTaskStoreFromClient(redis.NewClient(opts), cfg.Queue.KeyPrefix)
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return store, nil
}

// NewRedisTaskStoreFromClient wraps an existing client
func NewRedisTaskStoreFromClient(client *redis.Client, prefix string) *RedisTaskStore {
	if prefix == "" {
		prefix = "screening"
	}
	return &RedisTaskStore{client: client, prefix: prefix}
}

func (s *RedisTaskStore) taskKey(id string) string   { return s.prefix + ":task:" + id }
func (s *RedisTaskStore) jobKey(jobID string) string { return s.prefix + ":job:" + jobID }
func (s *RedisTaskStore) readyKey() string           { return s.prefix + ":ready" }
func (s *RedisTaskStore) processingKey() string      { return s.prefix + ":processing" }
func (s *RedisTaskStore) failedKey() string          { return s.prefix + ":failed" }

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (s *RedisTaskStore) Enqueue(ctx context.Context, task *PipelineTask) (*PipelineTask, bool, error) {
	jobKey := s.jobKey(task.JobID)

	var (
		stored   *PipelineTask
		existing bool
	)

	txf := func(tx *redis.Tx) error {
		currentID, err := tx.Get(ctx, jobKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if currentID != "" {
			if err := tx.Watch(ctx, s.taskKey(currentID)).Err(); err != nil {
				return err
			}
			current, err := s.load(ctx, tx, currentID)
			if err != nil && !errors.Is(err, ErrTaskNotFound) {
				return err
			}
			if current != nil && current.Status.Active() {
				stored, existing = current, true
				return nil
			}
		}

		data, err := json.Marshal(task)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.taskKey(task.ID), data, 0)
			pipe.Set(ctx, jobKey, task.ID, 0)
			pipe.ZRem(ctx, s.failedKey(), task.ID)
			pipe.ZAdd(ctx, s.readyKey(), redis.Z{Score: score(task.NextAttemptAt), Member: task.ID})
			return nil
		})
		if err == nil {
			stored, existing = task.Clone(), false
		}
		return err
	}

	for i := 0; i < txMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, jobKey)
		if err == nil {
			return stored, existing, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, false, taskKeyError("enqueue", task.JobID, err)
	}
	return nil, false, taskKeyError("enqueue", task.JobID, errors.New("too much contention"))
}

func (s *RedisTaskStore) Claim(ctx context.Context, now time.Time, lease time.Duration) (*PipelineTask, error) {
	leaseUntil := now.Add(lease)

	id, err := claimScript.Run(ctx, s.client,
		[]string{s.readyKey(), s.processingKey()},
		strconv.FormatInt(now.UnixMilli(), 10),
		strconv.FormatInt(leaseUntil.UnixMilli(), 10),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	task, err := s.load(ctx, s.client, id)
	if errors.Is(err, ErrTaskNotFound) {
		// record expired under us; drop the orphaned index entry
		s.client.ZRem(ctx, s.processingKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	task.Status = TaskStatusProcessing
	task.Attempts++
	task.UpdatedAt = now
	task.LeaseExpiresAt = leaseUntil

	if err := s.Save(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *RedisTaskStore) Save(ctx context.Context, task *PipelineTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return taskKeyError("encode", task.ID, err)
	}

	write := func(pipe redis.Pipeliner, _ *PipelineTask) error {
		return s.writeTask(ctx, pipe, task, data)
	}
	if task.Status == TaskStatusProcessing {
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error { return write(pipe, nil) })
	} else {
		err = s.withLease(ctx, task.ID, task.Attempts, write)
	}
	if err != nil {
		return taskKeyError("save", task.ID, err)
	}
	return nil
}

func (s *RedisTaskStore) Extend(ctx context.Context, taskID string, attempt int, now time.Time, lease time.Duration) error {
	err := s.withLease(ctx, taskID, attempt, func(pipe redis.Pipeliner, current *PipelineTask) error {
		if current.LeaseExpiresAt.Before(now) {
			return ErrLeaseLost
		}
		current.LeaseExpiresAt = now.Add(lease)
		data, err := json.Marshal(current)
		if err != nil {
			return err
		}
		return s.writeTask(ctx, pipe, current, data)
	})
	if err != nil {
		return taskKeyError("extend", taskID, err)
	}
	return nil
}

// withLease runs write in a transaction that commits only while taskID is still processing
// under attempt. A concurrent change to the record retries the check.
func (s *RedisTaskStore) withLease(ctx context.Context, taskID string, attempt int, write func(redis.Pipeliner, *PipelineTask) error) error {
	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !holdsLease(current, attempt) {
			return ErrLeaseLost
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return write(pipe, current)
		})
		return err
	}

	for i := 0; i < txMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, s.taskKey(taskID))
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.New("too much contention")
}

// writeTask queues the record write and the index moves for task's status on pipe
func (s *RedisTaskStore) writeTask(ctx context.Context, pipe redis.Pipeliner, task *PipelineTask, data []byte) error {
	switch task.Status {
	case TaskStatusQueued:
		pipe.Set(ctx, s.taskKey(task.ID), data, 0)
		pipe.ZRem(ctx, s.processingKey(), task.ID)
		pipe.ZRem(ctx, s.failedKey(), task.ID)
		pipe.ZAdd(ctx, s.readyKey(), redis.Z{Score: score(task.NextAttemptAt), Member: task.ID})
	case TaskStatusProcessing:
		pipe.Set(ctx, s.taskKey(task.ID), data, 0)
		pipe.ZAdd(ctx, s.processingKey(), redis.Z{Score: score(task.LeaseExpiresAt), Member: task.ID})
	case TaskStatusCompleted:
		pipe.Set(ctx, s.taskKey(task.ID), data, completedRetention)
		pipe.ZRem(ctx, s.processingKey(), task.ID)
		pipe.ZRem(ctx, s.readyKey(), task.ID)
	case TaskStatusFailed:
		pipe.Set(ctx, s.taskKey(task.ID), data, 0)
		pipe.ZRem(ctx, s.processingKey(), task.ID)
		pipe.ZRem(ctx, s.readyKey(), task.ID)
		pipe.ZAdd(ctx, s.failedKey(), redis.Z{Score: score(task.UpdatedAt), Member: task.ID})
	default:
		return fmt.Errorf("unknown task status %q", task.Status)
	}
	return nil
}

func (s *RedisTaskStore) Latest(ctx context.Context, jobID string) (*PipelineTask, error) {
	id, err := s.client.Get(ctx, s.jobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup task for job %s: %w", jobID, err)
	}
	return s.load(ctx, s.client, id)
}

func (s *RedisTaskStore) Failed(ctx context.Context) ([]*PipelineTask, error) {
	ids, err := s.client.ZRevRange(ctx, s.failedKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed tasks: %w", err)
	}
	return s.loadMany(ctx, ids)
}

func (s *RedisTaskStore) Expired(ctx context.Context, now time.Time) ([]*PipelineTask, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.processingKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired leases: %w", err)
	}
	return s.loadMany(ctx, ids)
}

func (s *RedisTaskStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisTaskStore) Close() error {
	return s.client.Close()
}

func (s *RedisTaskStore) load(ctx context.Context, c stringGetter, id string) (*PipelineTask, error) {
	raw, err := c.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, taskKeyError("load", id, err)
	}

	var task PipelineTask
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, taskKeyError("decode", id, err)
	}
	return &task, nil
}

func (s *RedisTaskStore) loadMany(ctx context.Context, ids []string) ([]*PipelineTask, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	tasks := make([]*PipelineTask, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var task PipelineTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return nil, taskKeyError("decode", ids[i], err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}

var _ TaskStore = (*RedisTaskStore)(nil)
