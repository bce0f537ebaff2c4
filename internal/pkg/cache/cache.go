package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/env"
	"github.com/redis/go-redis/v9"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// SetupCache initializes the connection to the Redis cache server
func SetupCache() {
	host := env.GetEnv("CACHE_HOST", "localhost")
	port := env.GetEnv("CACHE_PORT", "6379")

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       0, // use default DB
	})

	// Test the connection
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to Redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to Redis cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}

// AcquireLease claims a named lease for ttl using SET NX. It returns true
// when this process won the lease. Used to keep overlapping scheduler runs
// from double-billing the same batch.
func AcquireLease(name string, owner string, ttl time.Duration) (bool, error) {
	return GetClient().SetNX(ctx, "lease:"+name, owner, ttl).Result()
}

// ReleaseLease drops a lease if still held by owner. Expiry makes release
// best-effort; a stale delete of someone else's lease is avoided by the
// owner check.
func ReleaseLease(name string, owner string) error {
	const script = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	return GetClient().Eval(ctx, script, []string{"lease:" + name}, owner).Err()
}
