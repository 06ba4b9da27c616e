package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKey = "relay:deliveries"

// redisClaimScript pops the earliest due job atomically.
// KEYS[1] = sorted set key
// ARGV[1] = current unix milliseconds
var redisClaimScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, 1)
if #due == 0 then
    return false
end
redis.call("ZREM", KEYS[1], due[1])
return due[1]
`)

// RedisQueue implements Queue on a Redis sorted set: member = job JSON,
// score = eta in unix milliseconds. The claim is a single Lua round trip, so
// two workers never pop the same entry.
type RedisQueue struct {
	client *redis.Client
	key    string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client, key: defaultKey}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job, eta time.Time) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(eta.UnixMilli()),
		Member: string(payload),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, now time.Time) (*Job, error) {
	res, err := redisClaimScript.Run(ctx, q.client, []string{q.key}, now.UnixMilli()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	payload, ok := res.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected claim result type %T", res)
	}
	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("corrupt job payload: %w", err)
	}
	return &job, nil
}
