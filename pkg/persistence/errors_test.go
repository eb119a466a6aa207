package persistence_test

import (
	"errors"
	"testing"

	"github.com/storycut/storycut/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestWorkflowErrorWrapsSentinel(t *testing.T) {
	err := persistence.NewWorkflowError("GetByID", "wf-1", persistence.ErrWorkflowNotFound)

	assert.True(t, persistence.IsWorkflowNotFound(err))
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
	assert.Contains(t, err.Error(), "GetByID")
	assert.Contains(t, err.Error(), "wf-1")
}

func TestTemplateErrorWrapsSentinel(t *testing.T) {
	err := persistence.NewTemplateError("Delete", "tpl-1", persistence.ErrTemplateInUse)

	assert.ErrorIs(t, err, persistence.ErrTemplateInUse)
	assert.False(t, persistence.IsTemplateNotFound(err))
}

func TestExecutionErrorUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := persistence.NewExecutionError("Save", "exec-1", cause)

	assert.ErrorIs(t, err, cause)
	assert.False(t, persistence.IsExecutionNotFound(err))
	assert.Contains(t, err.Error(), "exec-1")
}
