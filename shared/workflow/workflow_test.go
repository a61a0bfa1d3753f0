package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateTaskStatus(t *testing.T) {
	for _, status := range AllTaskStatuses() {
		assert.NoError(t, ValidateTaskStatus(status), status)
	}

	for _, status := range []string{"archived", "", "Completed", " pending", "done"} {
		err := ValidateTaskStatus(status)
		assert.True(t, errors.Is(err, ErrInvalidStatus), "expected %q to be rejected", status)
	}
}

func TestCanTransitionIgnoresOrdering(t *testing.T) {
	for _, from := range AllTaskStatuses() {
		for _, to := range AllTaskStatuses() {
			assert.True(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, CanTransition(TaskStatusCompleted, TaskStatusCompleted))
	assert.False(t, CanTransition(TaskStatusPending, "archived"))
}
