package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/tailingsiq/tailingsiq/internal/config"
	"github.com/tailingsiq/tailingsiq/internal/logging"
)

type TaskQueue struct {
	client *asynq.Client
}

func NewQueue(cfg *config.RedisConfig) (*TaskQueue, error) {
	client := asynq.NewClient(redisOpt(cfg))

	if err := client.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis queue: %w", err)
	}

	logging.Info("Connected to Redis task queue")

	return &TaskQueue{client: client}, nil
}

func (q *TaskQueue) Enqueue(taskType string, data interface{}) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}

	task := asynq.NewTask(taskType, payload, optionsFor(taskType)...)

	return q.client.Enqueue(task)
}

func (q *TaskQueue) Close() error {
	return q.client.Close()
}

const (
	TypeEmailDelivery = "email:delivery"
)

// password reset links expire, so mail goes on the critical queue
func optionsFor(taskType string) []asynq.Option {
	switch taskType {
	case TypeEmailDelivery:
		return []asynq.Option{asynq.Queue("critical"), asynq.MaxRetry(5)}
	default:
		return nil
	}
}

type EmailDeliveryPayload struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers a plain text message.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type Worker struct {
	server *asynq.Server
	sender EmailSender
}

func NewWorker(cfg *config.RedisConfig, sender EmailSender) *Worker {
	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				// payload holds mail bodies with reset links, keep it out of the log
				logging.Error("process task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	return &Worker{
		server: server,
		sender: sender,
	}
}

// Start processes tasks in the background.
func (w *Worker) Start() error {
	return w.server.Start(w.mux())
}

// Run processes tasks until SIGTERM or SIGINT.
func (w *Worker) Run() error {
	return w.server.Run(w.mux())
}

func (w *Worker) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, w.HandleEmailDelivery)
	return mux
}

func (w *Worker) Close() {
	if w.server != nil {
		w.server.Shutdown()
	}
}

func (w *Worker) HandleEmailDelivery(ctx context.Context, t *asynq.Task) error {
	var p EmailDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if p.To == "" {
		return fmt.Errorf("email task has no recipient: %w", asynq.SkipRetry)
	}

	logging.Info("Sending email", "to", p.To, "subject", p.Subject)
	if err := w.sender.SendEmail(ctx, p.To, p.Subject, p.Body); err != nil {
		return fmt.Errorf("sender.SendEmail failed: %w", err)
	}

	return nil
}

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
