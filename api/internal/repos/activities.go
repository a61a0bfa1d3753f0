package repos

import (
	"context"
	"encoding/json"

	"taskflow/api/internal/fanout"
	"taskflow/api/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type ActivitiesRepo struct {
	db DBTX
}

func NewActivitiesRepo(db DBTX) *ActivitiesRepo {
	return &ActivitiesRepo{db: db}
}

func (r *ActivitiesRepo) InsertActivity(ctx context.Context, ev fanout.AuditEvent) (models.Activity, error) {
	metadata, err := encodeMetadata(ev.Metadata)
	if err != nil {
		return models.Activity{}, err
	}
	var a models.Activity
	err = r.db.QueryRow(ctx, `
		INSERT INTO activities (subject_type, subject_id, action, actor_user_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING activity_id, subject_type, subject_id, action, actor_user_id, metadata, created_at
	`, string(ev.Subject.Type), ev.Subject.ID, string(ev.Action), ev.ActorUserID, metadata).
		Scan(&a.ActivityID, &a.SubjectType, &a.SubjectID, &a.Action, &a.ActorUserID, &a.Metadata, &a.CreatedAt)
	return a, err
}

func (r *ActivitiesRepo) ListBySubject(ctx context.Context, subject fanout.Subject, limit int) ([]models.Activity, error) {
	return r.list(ctx, `
		SELECT activity_id, subject_type, subject_id, action, actor_user_id, metadata, created_at
		FROM activities
		WHERE subject_type = $1 AND subject_id = $2
		ORDER BY created_at DESC, activity_id DESC
		LIMIT $3
	`, string(subject.Type), subject.ID, clampLimit(limit))
}

func (r *ActivitiesRepo) ListRecent(ctx context.Context, limit int) ([]models.Activity, error) {
	return r.list(ctx, `
		SELECT activity_id, subject_type, subject_id, action, actor_user_id, metadata, created_at
		FROM activities
		ORDER BY created_at DESC, activity_id DESC
		LIMIT $1
	`, clampLimit(limit))
}

func (r *ActivitiesRepo) list(ctx context.Context, query string, args ...any) ([]models.Activity, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []models.Activity{}
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ActivityID, &a.SubjectType, &a.SubjectID, &a.Action, &a.ActorUserID, &a.Metadata, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

func encodeMetadata(md map[string]any) ([]byte, error) {
	if md == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(md)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
