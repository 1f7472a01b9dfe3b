package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/queue"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

type TestQueue struct {
	Queue     *queue.TaskQueue
	container *redis.RedisContainer
	Redis     *rdb.Client
	Inspector *asynq.Inspector // (this is for inspecting the queue in tests)
	Config    config.RedisConfig
}

func NewTestQueue(t *testing.T) *TestQueue {
	ctx := context.Background()

	redisContainer, err := redis.Run(ctx,
		"redis:7-alpine",
		testcontainers.WithReuseByName("tailingsiq-test-redis"),
		testcontainers.WithWaitStrategy(
			wait.ForAll(
				wait.ForLog("Ready to accept connections").
					WithStartupTimeout(30*time.Second),
				wait.ForListeningPort("6379/tcp").
					WithStartupTimeout(30*time.Second),
			),
		),
	)
	require.NoError(t, err, "Failed to start Redis container")

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err, "Failed to get redis connection string")

	appConfig := config.RedisConfig{
		Addr: endpoint,
	}

	taskQueue, err := queue.NewQueue(&appConfig)
	require.NoError(t, err, "Failed to create application queue wrapper")

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: endpoint})

	// direct access for auth state assertions
	redisClient := rdb.NewClient(&rdb.Options{
		Addr: endpoint,
	})

	return &TestQueue{
		Queue:     taskQueue,
		container: redisContainer,
		Redis:     redisClient,
		Inspector: inspector,
		Config:    appConfig,
	}
}

func (tQ *TestQueue) Enqueue(taskType string, data interface{}) (*asynq.TaskInfo, error) {
	return tQ.Queue.Enqueue(taskType, data)
}

// PendingEmails decodes the email tasks waiting on the critical queue.
func (tQ *TestQueue) PendingEmails(t *testing.T) []queue.EmailDeliveryPayload {
	t.Helper()
	tasks, err := tQ.Inspector.ListPendingTasks("critical")
	if err != nil {
		// queue does not exist until something was enqueued
		return nil
	}

	var out []queue.EmailDeliveryPayload
	for _, task := range tasks {
		if task.Type != queue.TypeEmailDelivery {
			continue
		}
		var p queue.EmailDeliveryPayload
		require.NoError(t, json.Unmarshal(task.Payload, &p))
		out = append(out, p)
	}
	return out
}

func (tQ *TestQueue) Cleanup(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := tQ.Redis.FlushDB(ctx).Err(); err != nil {
		t.Logf("WARNING: failed to flush Redis between tests: %v", err)
	}
}

func (tq *TestQueue) Close() {
	if tq.Queue != nil {
		tq.Queue.Close()
	}
	if tq.Inspector != nil {
		tq.Inspector.Close()
	}
	if tq.Redis != nil {
		tq.Redis.Close()
	}
}
