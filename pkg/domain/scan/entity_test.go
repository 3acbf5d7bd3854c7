package scan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/pkg/domain/shared"
)

func newQueuedJob() *Job {
	return NewJob(shared.NewID(), shared.NewID(), shared.NewID(), TriggerWebhook, TypeIncremental)
}

func TestJob_Lifecycle(t *testing.T) {
	j := newQueuedJob()
	require.Equal(t, StatusQueued, j.Status())
	require.Nil(t, j.StartedAt())

	require.NoError(t, j.Start())
	assert.Equal(t, StatusRunning, j.Status())
	require.NotNil(t, j.StartedAt())

	require.NoError(t, j.Complete())
	assert.Equal(t, StatusCompleted, j.Status())
	require.NotNil(t, j.CompletedAt())
	require.NotNil(t, j.DurationSeconds())
	assert.GreaterOrEqual(t, *j.DurationSeconds(), 0)
	assert.True(t, j.Status().IsTerminal())
}

func TestJob_FailIncrementsRetryCount(t *testing.T) {
	j := newQueuedJob()
	require.NoError(t, j.Start())
	require.NoError(t, j.Fail("clone failed: auth"))

	assert.Equal(t, StatusFailed, j.Status())
	assert.Equal(t, 1, j.RetryCount())
	assert.Equal(t, "clone failed: auth", j.ErrorMessage())
	assert.NotNil(t, j.CompletedAt())
	assert.True(t, j.CanRetry())
}

func TestJob_RetryExhaustion(t *testing.T) {
	j := newQueuedJob()
	for i := 0; i < MaxRetries; i++ {
		assert.True(t, i == 0 || j.CanRetry())
		j.status = StatusRunning
		require.NoError(t, j.Fail("analyzer crash"))
	}
	assert.Equal(t, MaxRetries, j.RetryCount())
	assert.False(t, j.CanRetry())
}

func TestJob_CancelFromQueuedAndRunning(t *testing.T) {
	t.Run("queued", func(t *testing.T) {
		j := newQueuedJob()
		require.NoError(t, j.Cancel())
		assert.Equal(t, StatusCancelled, j.Status())
		assert.Nil(t, j.StartedAt())
	})

	t.Run("running", func(t *testing.T) {
		j := newQueuedJob()
		require.NoError(t, j.Start())
		require.NoError(t, j.Cancel())
		assert.Equal(t, StatusCancelled, j.Status())
	})

	t.Run("idempotent", func(t *testing.T) {
		j := newQueuedJob()
		require.NoError(t, j.Cancel())
		require.NoError(t, j.Cancel())
		assert.Equal(t, StatusCancelled, j.Status())
	})
}

func TestJob_IllegalTransitions(t *testing.T) {
	t.Run("complete from queued", func(t *testing.T) {
		j := newQueuedJob()
		err := j.Complete()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})

	t.Run("fail from queued", func(t *testing.T) {
		j := newQueuedJob()
		require.Error(t, j.Fail("x"))
	})

	t.Run("start from completed", func(t *testing.T) {
		j := newQueuedJob()
		require.NoError(t, j.Start())
		require.NoError(t, j.Complete())
		require.Error(t, j.Start())
	})

	t.Run("cancel from completed", func(t *testing.T) {
		j := newQueuedJob()
		require.NoError(t, j.Start())
		require.NoError(t, j.Complete())
		require.Error(t, j.Cancel())
	})

	t.Run("start twice", func(t *testing.T) {
		j := newQueuedJob()
		require.NoError(t, j.Start())
		require.Error(t, j.Start())
	})
}

func TestJob_SetCounters(t *testing.T) {
	j := newQueuedJob()
	j.SetCounters(5, 2, 1, 2)
	assert.Equal(t, 5, j.FindingsCount())
	assert.Equal(t, 2, j.TruePositivesCount())
	assert.Equal(t, 1, j.FalsePositivesCount())
	assert.Equal(t, 2, j.AutoFilteredCount())
}

func TestParseTriggerType(t *testing.T) {
	for _, valid := range []string{"webhook", "manual", "schedule", " WEBHOOK "} {
		_, err := ParseTriggerType(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParseTriggerType("cron")
	assert.Error(t, err)
}

func TestParseType(t *testing.T) {
	for _, valid := range []string{"full", "incremental", "pr", "initial"} {
		_, err := ParseType(valid)
		assert.NoError(t, err, valid)
	}
	_, err := ParseType("diff")
	assert.Error(t, err)
}
