package notifysvc

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/dabestan/core"
	"github.com/trezcool/dabestan/core/gamification"
)

const levelUpQueueKey = "dabestan:levelups"

// NewRedisClient connects to redis. It returns nil when no address is configured.
func NewRedisClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	if conf.Address == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

type redisQueue struct {
	client *redis.Client
	key    string
}

var _ Queue = (*redisQueue)(nil) // interface compliance check

func NewRedisQueue(client *redis.Client) *redisQueue {
	return &redisQueue{client: client, key: levelUpQueueKey}
}

func (q *redisQueue) Push(ctx context.Context, lu gamification.LevelUp) error {
	b, err := json.Marshal(lu)
	if err != nil {
		return errors.Wrap(err, "encoding level-up")
	}
	return errors.Wrap(q.client.RPush(ctx, q.key, b).Err(), "pushing level-up")
}

func (q *redisQueue) Pop(ctx context.Context, n int) ([]gamification.LevelUp, error) {
	if n <= 0 {
		return nil, nil
	}

	var rng *redis.StringSliceCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		rng = pipe.LRange(ctx, q.key, 0, int64(n-1))
		pipe.LTrim(ctx, q.key, int64(n), -1)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "popping level-ups")
	}

	vals := rng.Val()
	lus := make([]gamification.LevelUp, 0, len(vals))
	for _, v := range vals {
		var lu gamification.LevelUp
		if err = json.Unmarshal([]byte(v), &lu); err != nil {
			// malformed entries are dropped
			continue
		}
		lus = append(lus, lu)
	}
	return lus, nil
}
