// Package activity turns committed project and task mutations into queued
// audit and notification jobs.
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"taskflow/api/internal/fanout"
	"taskflow/api/internal/jobs"
	"taskflow/shared/logx"
	"taskflow/shared/metricsx"
	"taskflow/shared/workflow"
)

var ErrInvalidEvent = errors.New("invalid event")

// Dispatch reports what was handed to the queue. Enqueue failures are
// counted here and logged; they never undo the mutation that caused them.
type Dispatch struct {
	JobIDs []string `json:"job_ids"`
	Failed int      `json:"enqueue_failures"`
}

type Recorder struct {
	enqueuer jobs.Enqueuer
	logger   logx.Logger
}

func NewRecorder(enqueuer jobs.Enqueuer, logger logx.Logger) *Recorder {
	return &Recorder{enqueuer: enqueuer, logger: logger}
}

// TaskUpdate describes a committed task edit. Task is the state after the
// edit. Status is the status the caller asked for, empty when unchanged.
type TaskUpdate struct {
	Actor            fanout.User
	Task             fanout.Task
	PreviousAssignee *fanout.User
	Status           string
}

func (r *Recorder) ProjectCreated(ctx context.Context, actor fanout.User, project fanout.Project) (Dispatch, error) {
	return r.Record(ctx, fanout.BuildAuditEvent(fanout.SubjectProject, project.ID, fanout.ActionCreated, actor.ID, nil))
}

func (r *Recorder) ProjectUpdated(ctx context.Context, actor fanout.User, project fanout.Project) (Dispatch, error) {
	return r.Record(ctx, fanout.BuildAuditEvent(fanout.SubjectProject, project.ID, fanout.ActionUpdated, actor.ID, nil))
}

func (r *Recorder) TaskCreated(ctx context.Context, actor fanout.User, task fanout.Task) (Dispatch, error) {
	md := map[string]any{"assignee_id": nil, "assignee_type": nil}
	if task.Assignee != nil && task.Assignee.ID != 0 {
		md["assignee_id"] = task.Assignee.ID
		md["assignee_type"] = "user"
	}
	audit := fanout.BuildAuditEvent(fanout.SubjectTask, task.ID, fanout.ActionCreated, actor.ID, md)
	return r.dispatch(ctx, audit, fanout.ComputeCreationNotifications(actor, task, task.Assignee))
}

func (r *Recorder) TaskUpdated(ctx context.Context, u TaskUpdate) (Dispatch, error) {
	if u.Status != "" {
		if err := workflow.ValidateTaskStatus(u.Status); err != nil {
			return Dispatch{}, err
		}
	}
	audit := fanout.BuildAuditEvent(fanout.SubjectTask, u.Task.ID, fanout.ActionUpdated, u.Actor.ID, nil)

	notes := fanout.ComputeReassignmentNotifications(u.Actor, u.Task, u.PreviousAssignee, u.Task.Assignee)
	if workflow.IsCompleted(u.Status) {
		notes = append(notes, fanout.ComputeCompletionNotifications(u.Actor, u.Task)...)
	}
	return r.dispatch(ctx, audit, notes)
}

// TaskStatusChanged accepts any valid status, including the current one.
func (r *Recorder) TaskStatusChanged(ctx context.Context, actor fanout.User, task fanout.Task, previousStatus string, newStatus string) (Dispatch, error) {
	if err := workflow.ValidateTaskStatus(newStatus); err != nil {
		return Dispatch{}, err
	}
	if !workflow.CanTransition(previousStatus, newStatus) {
		return Dispatch{}, fmt.Errorf("%w: cannot move from %q to %q", workflow.ErrInvalidStatus, previousStatus, newStatus)
	}
	audit := fanout.BuildAuditEvent(fanout.SubjectTask, task.ID, fanout.ActionStatusChanged, actor.ID, map[string]any{
		"old_status": previousStatus,
		"new_status": newStatus,
	})

	var notes []fanout.NotificationEvent
	if workflow.IsCompleted(newStatus) {
		notes = fanout.ComputeCompletionNotifications(actor, task)
	}
	return r.dispatch(ctx, audit, notes)
}

// Record enqueues a single audit event, e.g. for deletions.
func (r *Recorder) Record(ctx context.Context, ev fanout.AuditEvent) (Dispatch, error) {
	return r.dispatch(ctx, ev, nil)
}

func (r *Recorder) dispatch(ctx context.Context, audit fanout.AuditEvent, notes []fanout.NotificationEvent) (Dispatch, error) {
	if err := audit.Validate(); err != nil {
		return Dispatch{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	for _, n := range notes {
		if err := n.Validate(); err != nil {
			return Dispatch{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}

	d := Dispatch{JobIDs: []string{}}
	task, err := jobs.NewActivityTask(audit)
	r.enqueue(ctx, &d, jobs.TypeActivityLog, task, err,
		slog.String("subject", audit.Subject.String()),
		slog.String("action", string(audit.Action)),
	)
	for _, n := range notes {
		task, err := jobs.NewNotificationTask(n)
		r.enqueue(ctx, &d, jobs.TypeNotificationCreate, task, err,
			slog.Int64("recipient_user_id", n.RecipientUserID),
			slog.String("notification_kind", string(n.Kind)),
		)
	}
	return d, nil
}

func (r *Recorder) enqueue(ctx context.Context, d *Dispatch, taskType string, task *asynq.Task, buildErr error, attrs ...slog.Attr) {
	err := buildErr
	var id string
	if err == nil {
		id, err = r.enqueuer.Enqueue(ctx, task)
	}
	if err != nil {
		d.Failed++
		metricsx.IncEnqueueFailure(taskType)
		r.logger.Error(ctx, "enqueue_failed", "failed to enqueue job",
			append(attrs,
				slog.String("type", taskType),
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)...)
		return
	}
	metricsx.IncJobEnqueued(taskType)
	d.JobIDs = append(d.JobIDs, id)
}
