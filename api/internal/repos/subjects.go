package repos

import (
	"context"
	"fmt"

	"taskflow/api/internal/fanout"
)

// LookupFunc reports whether the entity with the given id still exists.
type LookupFunc func(ctx context.Context, id int64) (bool, error)

// SubjectRegistry resolves polymorphic {type, id} references. Types are
// registered up front; it is not safe to Register while lookups run.
type SubjectRegistry struct {
	lookups map[fanout.SubjectType]LookupFunc
}

func NewSubjectRegistry() *SubjectRegistry {
	return &SubjectRegistry{lookups: map[fanout.SubjectType]LookupFunc{}}
}

// NewDefaultSubjectRegistry knows about projects and tasks.
func NewDefaultSubjectRegistry(db DBTX) *SubjectRegistry {
	reg := NewSubjectRegistry()
	reg.Register(fanout.SubjectProject, func(ctx context.Context, id int64) (bool, error) {
		return rowExists(ctx, db, `SELECT EXISTS (SELECT 1 FROM projects WHERE project_id = $1)`, id)
	})
	reg.Register(fanout.SubjectTask, func(ctx context.Context, id int64) (bool, error) {
		return rowExists(ctx, db, `SELECT EXISTS (SELECT 1 FROM tasks WHERE task_id = $1)`, id)
	})
	return reg
}

func (r *SubjectRegistry) Register(t fanout.SubjectType, fn LookupFunc) {
	r.lookups[t] = fn
}

func (r *SubjectRegistry) Known(t fanout.SubjectType) bool {
	_, ok := r.lookups[t]
	return ok
}

func (r *SubjectRegistry) Exists(ctx context.Context, s fanout.Subject) (bool, error) {
	fn, ok := r.lookups[s.Type]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownSubjectType, s.Type)
	}
	return fn(ctx, s.ID)
}
