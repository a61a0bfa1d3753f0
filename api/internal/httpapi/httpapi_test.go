package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/api/internal/activity"
	"taskflow/api/internal/fanout"
	"taskflow/api/internal/inbox"
	"taskflow/api/internal/jobs"
	"taskflow/api/internal/middleware"
	"taskflow/api/internal/models"
	"taskflow/shared/logx"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, task *asynq.Task) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.tasks = append(f.tasks, task)
	return fmt.Sprintf("job-%d", len(f.tasks)), nil
}

type fakeInboxStore struct {
	rows map[int64]models.Notification
}

func (s *fakeInboxStore) ListForUser(_ context.Context, userID int64, unreadOnly bool, _ int, _ int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range s.rows {
		if n.RecipientUserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *fakeInboxStore) CountUnread(_ context.Context, userID int64) (int64, error) {
	var c int64
	for _, n := range s.rows {
		if n.RecipientUserID == userID && !n.Read {
			c++
		}
	}
	return c, nil
}

func (s *fakeInboxStore) GetByID(_ context.Context, id int64) (models.Notification, error) {
	n, ok := s.rows[id]
	if !ok {
		return models.Notification{}, inbox.ErrNotFound
	}
	return n, nil
}

func (s *fakeInboxStore) MarkRead(_ context.Context, id int64) (bool, error) {
	n := s.rows[id]
	n.Read = true
	s.rows[id] = n
	return true, nil
}

func (s *fakeInboxStore) MarkAllRead(_ context.Context, userID int64) (int64, error) {
	var c int64
	for id, n := range s.rows {
		if n.RecipientUserID == userID && !n.Read {
			n.Read = true
			s.rows[id] = n
			c++
		}
	}
	return c, nil
}

type fakeFeed struct {
	bySubject map[fanout.Subject][]models.Activity
	recent    []models.Activity
	err       error
}

func (f *fakeFeed) ListBySubject(_ context.Context, subject fanout.Subject, _ int) ([]models.Activity, error) {
	return f.bySubject[subject], f.err
}

func (f *fakeFeed) ListRecent(_ context.Context, _ int) ([]models.Activity, error) {
	return f.recent, f.err
}

type harness struct {
	handler  http.Handler
	enqueuer *fakeEnqueuer
	store    *fakeInboxStore
	feed     *fakeFeed
}

func newHarness() *harness {
	taskType := "task"
	taskID := int64(10)
	hs := &harness{
		enqueuer: &fakeEnqueuer{},
		store: &fakeInboxStore{rows: map[int64]models.Notification{
			1: {NotificationID: 1, RecipientUserID: 7, Kind: "task_assigned", Message: "assigned", SubjectType: &taskType, SubjectID: &taskID},
			2: {NotificationID: 2, RecipientUserID: 7, Kind: "task_completed", Message: "done", Read: true},
			3: {NotificationID: 3, RecipientUserID: 8, Kind: "task_assigned", Message: "other"},
		}},
		feed: &fakeFeed{
			bySubject: map[fanout.Subject][]models.Activity{
				{Type: fanout.SubjectTask, ID: 10}: {
					{ActivityID: 5, SubjectType: "task", SubjectID: 10, Action: "status_changed", ActorUserID: 7, Metadata: []byte(`{"old_status":"pending","new_status":"completed"}`), CreatedAt: time.Now()},
				},
			},
			recent: []models.Activity{{ActivityID: 9, SubjectType: "project", SubjectID: 1, Action: "created", ActorUserID: 7}},
		},
	}
	h := &Handlers{
		Recorder: activity.NewRecorder(hs.enqueuer, logx.Nop()),
		Inbox:    inbox.NewService(hs.store, nil, time.Minute, logx.Nop()),
		Feed:     hs.feed,
		Logger:   logx.Nop(),
	}
	mux := http.NewServeMux()
	h.Register(mux)
	hs.handler = middleware.ActorMiddleware{}.Wrap(mux)
	return hs
}

func (hs *harness) do(t *testing.T, method string, path string, userID string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
	}
	rec := httptest.NewRecorder()
	hs.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, rec)
	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "missing error envelope: %s", rec.Body.String())
	return e["code"].(string)
}

const taskJSON = `{"id":10,"title":"Ship it","status":"in_progress","project":{"id":100,"name":"Launch","owner_id":1},"assignee":{"id":2,"email":"ann@example.com"}}`

func TestTaskCreatedFansOut(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/created", "1", `{"task":`+taskJSON+`}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"job_ids":["job-1","job-2","job-3"],"enqueue_failures":0}`, rec.Body.String())
	require.Len(t, hs.enqueuer.tasks, 3)
	assert.Equal(t, jobs.TypeActivityLog, hs.enqueuer.tasks[0].Type())
}

func TestTaskStatusInvalid(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/status", "1",
		`{"task":`+taskJSON+`,"previous_status":"pending","status":"done"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_STATUS", errorCode(t, rec))
	assert.Contains(t, rec.Body.String(), `"allowed":["pending","in_progress","completed"]`)
	assert.Empty(t, hs.enqueuer.tasks)
}

func TestTaskStatusCompleted(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/status", "3",
		`{"task":`+taskJSON+`,"previous_status":"in_progress","status":"completed"}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Len(t, hs.enqueuer.tasks, 4)
}

func TestTaskUpdatedReassigns(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/updated", "1",
		`{"task":`+taskJSON+`,"previous_assignee":{"id":5}}`)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Len(t, hs.enqueuer.tasks, 3)
}

func TestProjectMutations(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/projects/created", "1", `{"project":{"id":100,"name":"Launch","owner_id":1}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/v1/mutations/projects/updated", "1", `{"project":{"id":100,"name":"Launch v2","owner_id":1}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/v1/mutations/projects/updated", "1", `{"project":{"name":"no id"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Len(t, hs.enqueuer.tasks, 2)
}

func TestAuditEndpoint(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/audit", "1", `{"subject":{"type":"task","id":10},"action":"deleted","metadata":{"title":"Ship it"}}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = hs.do(t, http.MethodPost, "/api/v1/mutations/audit", "1", `{"subject":{"type":"task","id":10},"action":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, rec))
}

func TestMutationRejectsBadBodies(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/created", "1", ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/created", "1", `{"task":`+taskJSON+`,"extra":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/created", "1", `{"task":{"id":10}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/v1/mutations/tasks/created", "", `{"task":`+taskJSON+`}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, hs.enqueuer.tasks)
}

func TestEnqueueFailureStillAccepted(t *testing.T) {
	hs := newHarness()
	hs.enqueuer.err = errors.New("redis down")

	rec := hs.do(t, http.MethodPost, "/api/v1/mutations/projects/created", "1", `{"project":{"id":100,"name":"Launch","owner_id":1}}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"job_ids":[],"enqueue_failures":1}`, rec.Body.String())
}

func TestNotificationsList(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodGet, "/api/v1/notifications?unread=true", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Notifications []notificationView `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Notifications, 1)
	n := body.Notifications[0]
	assert.EqualValues(t, 1, n.ID)
	assert.Equal(t, "task_assigned", n.Kind)
	require.NotNil(t, n.Subject)
	assert.Equal(t, fanout.Subject{Type: fanout.SubjectTask, ID: 10}, *n.Subject)

	rec = hs.do(t, http.MethodGet, "/api/v1/notifications?limit=abc", "7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnreadCountAndMarkRead(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"unread_count":1}`, rec.Body.String())

	rec = hs.do(t, http.MethodPost, "/api/v1/notifications/1/read", "7", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"read":true`)

	rec = hs.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "7", "")
	assert.JSONEq(t, `{"unread_count":0}`, rec.Body.String())
}

func TestMarkReadErrors(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/notifications/3/read", "7", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/v1/notifications/404/read", "7", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = hs.do(t, http.MethodPost, "/api/v1/notifications/abc/read", "7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkAllRead(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodPost, "/api/v1/notifications/read-all", "8", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"marked_read":1}`, rec.Body.String())
	assert.False(t, hs.store.rows[1].Read, "other users are untouched")
}

func TestActivitiesFeed(t *testing.T) {
	hs := newHarness()

	rec := hs.do(t, http.MethodGet, "/api/v1/activities?subject_type=task&subject_id=10", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"metadata":{"old_status":"pending","new_status":"completed"}`)

	rec = hs.do(t, http.MethodGet, "/api/v1/activities", "7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"metadata":{}`)

	rec = hs.do(t, http.MethodGet, "/api/v1/activities?subject_type=task", "7", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivitiesFeedStorageError(t *testing.T) {
	hs := newHarness()
	hs.feed.err = errors.New("db down")

	rec := hs.do(t, http.MethodGet, "/api/v1/activities", "7", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}
