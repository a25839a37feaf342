package suite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/redis/go-redis/v9"
)

const (
	containerTTL = 120
	startTimeout = 120 * time.Second
)

var redisContainer = dockertest.RunOptions{
	Repository: "redis",
	Tag:        "alpine",
}

// Suite is the environment of a Redis-backed integration test.
type Suite struct {
	*testing.T
	Logger *slog.Logger

	Redis *redis.Client
	Addr  string
}

// New starts a Redis container for the test and skips it when docker is
// unavailable.
func New(t *testing.T) (context.Context, *Suite) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	t.Cleanup(cancel)

	pool, err := dockerPool()
	if err != nil {
		t.Skip(err)
	}

	resource, err := pool.RunWithOptions(&redisContainer, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("failed to start redis: %v", err)
	}

	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Errorf("failed to purge redis: %v", err)
		}
	})

	_ = resource.Expire(containerTTL)

	addr := resource.GetHostPort("6379/tcp")

	client, err := connect(ctx, pool, addr)
	if err != nil {
		t.Fatalf("failed to connect to redis at %s: %v", addr, err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return ctx, &Suite{
		T:      t,
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Redis:  client,
		Addr:   addr,
	}
}

func dockerPool() (*dockertest.Pool, error) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("docker is not available: %w", err)
	}

	if err = pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("docker is not reachable: %w", err)
	}

	pool.MaxWait = startTimeout

	return pool, nil
}

func connect(ctx context.Context, pool *dockertest.Pool, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := pool.Retry(func() error {
		return client.Ping(ctx).Err()
	}); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}
