package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/api/internal/fanout"
	"taskflow/shared/logx"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 5*time.Second, RetryDelay(0, nil, nil))
	assert.Equal(t, 5*time.Second, RetryDelay(1, nil, nil))
	assert.Equal(t, 20*time.Second, RetryDelay(2, nil, nil))
	assert.Equal(t, 45*time.Second, RetryDelay(3, nil, nil))
	assert.Equal(t, 5*time.Minute, RetryDelay(8, nil, nil))
	assert.Equal(t, 5*time.Minute, RetryDelay(100, nil, nil))
}

func TestServeMuxRoutesByType(t *testing.T) {
	store := newMemStore()
	store.addUser(1, 2)
	store.addSubject(fanout.SubjectTask, 5)
	mux := NewServeMux(
		&AuditHandler{Store: store, Logger: logx.Nop()},
		&NotificationHandler{Store: store, Logger: logx.Nop()},
	)

	audit := mustActivityTask(t, fanout.BuildAuditEvent(fanout.SubjectTask, 5, fanout.ActionCreated, 1, nil))
	notify := mustNotificationTask(t, fanout.NotificationEvent{RecipientUserID: 2, Kind: fanout.KindTaskAssigned, Message: "hi"})

	require.NoError(t, mux.ProcessTask(context.Background(), audit))
	require.NoError(t, mux.ProcessTask(context.Background(), notify))

	assert.Len(t, store.activities, 1)
	assert.Len(t, store.notifications, 1)
}

func TestServeMuxUnknownTypeFails(t *testing.T) {
	mux := NewServeMux(&AuditHandler{Logger: logx.Nop()}, &NotificationHandler{Logger: logx.Nop()})
	assert.Error(t, mux.ProcessTask(context.Background(), asynq.NewTask("email:send", nil)))
}

func TestInstrumentPassesErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	h := instrument(asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		markSkipped(ctx)
		return boom
	}))
	assert.ErrorIs(t, h.ProcessTask(context.Background(), asynq.NewTask(TypeActivityLog, nil)), boom)

	skip := instrument(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	}))
	assert.ErrorIs(t, skip.ProcessTask(context.Background(), asynq.NewTask(TypeActivityLog, nil)), asynq.SkipRetry)
}

func TestMarkSkippedWithoutMiddleware(t *testing.T) {
	assert.NotPanics(t, func() { markSkipped(context.Background()) })
}
