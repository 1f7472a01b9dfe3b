package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	to, subject, body string
	err               error
	calls             int
}

func (s *recordingSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.calls++
	s.to, s.subject, s.body = to, subject, body
	return s.err
}

func emailTask(t *testing.T, p EmailDeliveryPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return asynq.NewTask(TypeEmailDelivery, raw)
}

func TestWorker_HandleEmailDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers payload", func(t *testing.T) {
		sender := &recordingSender{}
		w := &Worker{sender: sender}

		err := w.HandleEmailDelivery(ctx, emailTask(t, EmailDeliveryPayload{
			To:      "eor@example.com",
			Subject: "Reset",
			Body:    "link",
		}))

		require.NoError(t, err)
		assert.Equal(t, 1, sender.calls)
		assert.Equal(t, "eor@example.com", sender.to)
		assert.Equal(t, "Reset", sender.subject)
		assert.Equal(t, "link", sender.body)
	})

	t.Run("malformed payload is not retried", func(t *testing.T) {
		sender := &recordingSender{}
		w := &Worker{sender: sender}

		err := w.HandleEmailDelivery(ctx, asynq.NewTask(TypeEmailDelivery, []byte("{")))

		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Zero(t, sender.calls)
	})

	t.Run("missing recipient is not retried", func(t *testing.T) {
		sender := &recordingSender{}
		w := &Worker{sender: sender}

		err := w.HandleEmailDelivery(ctx, emailTask(t, EmailDeliveryPayload{Subject: "x"}))

		assert.ErrorIs(t, err, asynq.SkipRetry)
		assert.Zero(t, sender.calls)
	})

	t.Run("send failure is retried", func(t *testing.T) {
		sender := &recordingSender{err: errors.New("throttled")}
		w := &Worker{sender: sender}

		err := w.HandleEmailDelivery(ctx, emailTask(t, EmailDeliveryPayload{To: "a@example.com"}))

		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestOptionsFor(t *testing.T) {
	assert.Len(t, optionsFor(TypeEmailDelivery), 2)
	assert.Empty(t, optionsFor("unknown"))
}
