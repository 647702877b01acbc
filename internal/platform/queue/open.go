package queue

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	BackendRedis = "redis"
	BackendAMQP  = "amqp"
)

// Open returns the job queue for backend. The Redis client is only used by
// the redis backend.
func Open(backend, name string, rdb *redis.Client, amqpURL string, pollTimeout time.Duration) (JobQueue, error) {
	switch backend {
	case BackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis queue needs a redis client")
		}
		return NewRedisQueue(rdb, name, pollTimeout), nil
	case BackendAMQP:
		return NewAMQPQueue(amqpURL, name, pollTimeout)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", backend)
	}
}
