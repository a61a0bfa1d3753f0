// Package jobs moves fan-out events through the asynq queue: task
// construction on the producer side and the two handlers on the worker side.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"taskflow/api/internal/fanout"
)

const (
	TypeActivityLog        = "activity:log"
	TypeNotificationCreate = "notification:create"
)

func NewActivityTask(ev fanout.AuditEvent) (*asynq.Task, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeActivityLog, payload), nil
}

func NewNotificationTask(ev fanout.NotificationEvent) (*asynq.Task, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotificationCreate, payload), nil
}

// Payloads that cannot be decoded or validated will never succeed, so they
// are marked SkipRetry and go straight to the archive.
func decodeAuditEvent(t *asynq.Task) (fanout.AuditEvent, error) {
	var ev fanout.AuditEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if err := ev.Validate(); err != nil {
		return ev, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	return ev, nil
}

func decodeNotificationEvent(t *asynq.Task) (fanout.NotificationEvent, error) {
	var ev fanout.NotificationEvent
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return ev, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if err := ev.Validate(); err != nil {
		return ev, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return ev, nil
}

// Enqueuer is the boundary between the mutation side and the queue. It
// returns the queue-assigned job id.
type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task) (string, error)
}

type AsynqEnqueuer struct {
	client *asynq.Client
	opts   []asynq.Option
}

func NewAsynqEnqueuer(client *asynq.Client, queue string, maxRetry int, timeout time.Duration) *AsynqEnqueuer {
	opts := []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(maxRetry)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return &AsynqEnqueuer{client: client, opts: opts}
}

func (e *AsynqEnqueuer) Enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := e.client.EnqueueContext(ctx, task, e.opts...)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}
