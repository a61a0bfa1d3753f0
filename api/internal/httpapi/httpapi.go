// Package httpapi exposes the mutation hooks, the notification inbox and the
// activity feed over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/fanout"
	"taskflow/api/internal/inbox"
	"taskflow/api/internal/models"
	"taskflow/shared/actorx"
	"taskflow/shared/httpx"
	"taskflow/shared/logx"
	"taskflow/shared/workflow"
)

// ActivityFeed is satisfied by *repos.ActivitiesRepo.
type ActivityFeed interface {
	ListBySubject(ctx context.Context, subject fanout.Subject, limit int) ([]models.Activity, error)
	ListRecent(ctx context.Context, limit int) ([]models.Activity, error)
}

type Handlers struct {
	Recorder *activity.Recorder
	Inbox    *inbox.Service
	Feed     ActivityFeed
	Logger   logx.Logger
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/mutations/projects/created", h.projectCreated)
	mux.HandleFunc("POST /api/v1/mutations/projects/updated", h.projectUpdated)
	mux.HandleFunc("POST /api/v1/mutations/tasks/created", h.taskCreated)
	mux.HandleFunc("POST /api/v1/mutations/tasks/updated", h.taskUpdated)
	mux.HandleFunc("POST /api/v1/mutations/tasks/status", h.taskStatus)
	mux.HandleFunc("POST /api/v1/mutations/audit", h.audit)

	mux.HandleFunc("GET /api/v1/notifications", h.listNotifications)
	mux.HandleFunc("GET /api/v1/notifications/unread-count", h.unreadCount)
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", h.markRead)
	mux.HandleFunc("POST /api/v1/notifications/read-all", h.markAllRead)

	mux.HandleFunc("GET /api/v1/activities", h.listActivities)
}

type projectRequest struct {
	Project fanout.Project `json:"project"`
}

type taskRequest struct {
	Task fanout.Task `json:"task"`
}

type taskUpdateRequest struct {
	Task             fanout.Task  `json:"task"`
	PreviousAssignee *fanout.User `json:"previous_assignee"`
	Status           string       `json:"status"`
}

type taskStatusRequest struct {
	Task           fanout.Task `json:"task"`
	PreviousStatus string      `json:"previous_status"`
	Status         string      `json:"status"`
}

type auditRequest struct {
	Subject  fanout.Subject `json:"subject"`
	Action   fanout.Action  `json:"action"`
	Metadata map[string]any `json:"metadata"`
}

func (h *Handlers) projectCreated(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	if req.Project.ID <= 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "project.id is required", nil)
		return
	}
	d, err := h.Recorder.ProjectCreated(r.Context(), actor, req.Project)
	h.writeDispatch(w, r, d, err)
}

func (h *Handlers) projectUpdated(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	if req.Project.ID <= 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "project.id is required", nil)
		return
	}
	d, err := h.Recorder.ProjectUpdated(r.Context(), actor, req.Project)
	h.writeDispatch(w, r, d, err)
}

func (h *Handlers) taskCreated(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	actor, ok := h.decode(w, r, &req)
	if !ok || !validTask(w, r, req.Task) {
		return
	}
	d, err := h.Recorder.TaskCreated(r.Context(), actor, req.Task)
	h.writeDispatch(w, r, d, err)
}

func (h *Handlers) taskUpdated(w http.ResponseWriter, r *http.Request) {
	var req taskUpdateRequest
	actor, ok := h.decode(w, r, &req)
	if !ok || !validTask(w, r, req.Task) {
		return
	}
	d, err := h.Recorder.TaskUpdated(r.Context(), activity.TaskUpdate{
		Actor:            actor,
		Task:             req.Task,
		PreviousAssignee: req.PreviousAssignee,
		Status:           req.Status,
	})
	h.writeDispatch(w, r, d, err)
}

func (h *Handlers) taskStatus(w http.ResponseWriter, r *http.Request) {
	var req taskStatusRequest
	actor, ok := h.decode(w, r, &req)
	if !ok || !validTask(w, r, req.Task) {
		return
	}
	d, err := h.Recorder.TaskStatusChanged(r.Context(), actor, req.Task, req.PreviousStatus, req.Status)
	h.writeDispatch(w, r, d, err)
}

func (h *Handlers) audit(w http.ResponseWriter, r *http.Request) {
	var req auditRequest
	actor, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	ev := fanout.BuildAuditEvent(req.Subject.Type, req.Subject.ID, req.Action, actor.ID, req.Metadata)
	d, err := h.Recorder.Record(r.Context(), ev)
	h.writeDispatch(w, r, d, err)
}

type notificationView struct {
	ID          int64           `json:"id"`
	Kind        string          `json:"notification_kind"`
	Message     string          `json:"message"`
	Read        bool            `json:"read"`
	Subject     *fanout.Subject `json:"subject,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	RecipientID int64           `json:"recipient_user_id"`
}

func toNotificationView(n models.Notification) notificationView {
	v := notificationView{
		ID:          n.NotificationID,
		Kind:        n.Kind,
		Message:     n.Message,
		Read:        n.Read,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
		RecipientID: n.RecipientUserID,
	}
	if n.SubjectType != nil && n.SubjectID != nil {
		v.Subject = &fanout.Subject{Type: fanout.SubjectType(*n.SubjectType), ID: *n.SubjectID}
	}
	return v
}

func (h *Handlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorx.FromContext(r.Context())
	if !ok {
		writeUnauthenticated(w, r)
		return
	}
	limit, err := httpx.QueryInt(r, "limit", 50)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}
	offset, err := httpx.QueryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "offset must be a non-negative integer", nil)
		return
	}
	unreadOnly := strings.EqualFold(r.URL.Query().Get("unread"), "true")

	items, err := h.Inbox.List(r.Context(), actor.UserID, inbox.ListOptions{UnreadOnly: unreadOnly, Limit: int(limit), Offset: int(offset)})
	if err != nil {
		h.internalError(w, r, "notifications_list_failed", err)
		return
	}
	views := make([]notificationView, 0, len(items))
	for _, n := range items {
		views = append(views, toNotificationView(n))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"notifications": views})
}

func (h *Handlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorx.FromContext(r.Context())
	if !ok {
		writeUnauthenticated(w, r)
		return
	}
	count, err := h.Inbox.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		h.internalError(w, r, "unread_count_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"unread_count": count})
}

func (h *Handlers) markRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorx.FromContext(r.Context())
	if !ok {
		writeUnauthenticated(w, r)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid notification id", nil)
		return
	}
	n, err := h.Inbox.MarkRead(r.Context(), actor.UserID, id)
	switch {
	case errors.Is(err, inbox.ErrNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "notification not found", nil)
	case errors.Is(err, inbox.ErrForbidden):
		httpx.WriteError(w, r, http.StatusForbidden, "FORBIDDEN", "not authorized to update this notification", nil)
	case err != nil:
		h.internalError(w, r, "notification_mark_read_failed", err)
	default:
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"notification": toNotificationView(n)})
	}
}

func (h *Handlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorx.FromContext(r.Context())
	if !ok {
		writeUnauthenticated(w, r)
		return
	}
	count, err := h.Inbox.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		h.internalError(w, r, "notification_mark_all_read_failed", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"marked_read": count})
}

type activityView struct {
	ID          int64           `json:"id"`
	Subject     fanout.Subject  `json:"subject"`
	Action      string          `json:"action"`
	ActorUserID int64           `json:"actor_user_id"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (h *Handlers) listActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := httpx.QueryInt(r, "limit", 50)
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return
	}

	var items []models.Activity
	subjectType := strings.TrimSpace(r.URL.Query().Get("subject_type"))
	if subjectType != "" {
		subjectID, err := httpx.QueryInt(r, "subject_id", 0)
		if err != nil || subjectID <= 0 {
			httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "subject_id is required with subject_type", nil)
			return
		}
		items, err = h.Feed.ListBySubject(r.Context(), fanout.Subject{Type: fanout.SubjectType(subjectType), ID: subjectID}, int(limit))
		if err != nil {
			h.internalError(w, r, "activities_list_failed", err)
			return
		}
	} else {
		items, err = h.Feed.ListRecent(r.Context(), int(limit))
		if err != nil {
			h.internalError(w, r, "activities_list_failed", err)
			return
		}
	}

	views := make([]activityView, 0, len(items))
	for _, a := range items {
		md := json.RawMessage(a.Metadata)
		if len(md) == 0 {
			md = json.RawMessage("{}")
		}
		views = append(views, activityView{
			ID:          a.ActivityID,
			Subject:     fanout.Subject{Type: fanout.SubjectType(a.SubjectType), ID: a.SubjectID},
			Action:      a.Action,
			ActorUserID: a.ActorUserID,
			Metadata:    md,
			CreatedAt:   a.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"activities": views})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) (fanout.User, bool) {
	actor, ok := actorx.FromContext(r.Context())
	if !ok {
		writeUnauthenticated(w, r)
		return fanout.User{}, false
	}
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
		return fanout.User{}, false
	}
	return fanout.User{ID: actor.UserID}, true
}

func validTask(w http.ResponseWriter, r *http.Request, task fanout.Task) bool {
	if task.ID <= 0 || task.Project.ID <= 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "task.id and task.project.id are required", nil)
		return false
	}
	return true
}

func (h *Handlers) writeDispatch(w http.ResponseWriter, r *http.Request, d activity.Dispatch, err error) {
	switch {
	case errors.Is(err, workflow.ErrInvalidStatus):
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_STATUS", err.Error(),
			map[string]any{"allowed": workflow.AllTaskStatuses()})
	case errors.Is(err, activity.ErrInvalidEvent):
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error(), nil)
	case err != nil:
		h.internalError(w, r, "dispatch_failed", err)
	default:
		httpx.WriteJSON(w, http.StatusAccepted, d)
	}
}

func (h *Handlers) internalError(w http.ResponseWriter, r *http.Request, event string, err error) {
	h.Logger.Error(r.Context(), event, "request failed",
		slog.String("error_code", "INTERNAL_ERROR"),
		slog.String("error", err.Error()),
	)
	httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
}

func writeUnauthenticated(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", "missing actor", nil)
}
