// Package workflow holds the task status vocabulary shared by the mutation
// layer and the fan-out policy.
//
// Any valid status may follow any other, including the current one; only
// membership in the valid set is checked.
package workflow

import (
	"errors"
	"fmt"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

var ErrInvalidStatus = errors.New("invalid task status")

var validTaskStatuses = map[string]struct{}{
	TaskStatusPending:    {},
	TaskStatusInProgress: {},
	TaskStatusCompleted:  {},
}

func IsValidTaskStatus(status string) bool {
	_, ok := validTaskStatuses[status]
	return ok
}

// ValidateTaskStatus returns an error wrapping ErrInvalidStatus for anything
// outside the valid set.
func ValidateTaskStatus(status string) error {
	if !IsValidTaskStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return nil
}

// CanTransition reports whether a task may move from one status to another.
// The from status is not consulted.
func CanTransition(_ string, toStatus string) bool {
	return IsValidTaskStatus(toStatus)
}

func IsCompleted(status string) bool {
	return status == TaskStatusCompleted
}

func AllTaskStatuses() []string {
	return []string{
		TaskStatusPending,
		TaskStatusInProgress,
		TaskStatusCompleted,
	}
}
