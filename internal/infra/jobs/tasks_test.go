package jobs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScanTask(t *testing.T) {
	pr := 42
	payload := ScanTaskPayload{
		JobID:        "5f1c9e6a-3a8c-4c43-91b4-6e60a25d9e11",
		RepoID:       "0b54f1a2-9d6a-4b13-a9e5-2a1f59c7b8d3",
		Trigger:      "webhook",
		ScanType:     "pr",
		CommitSHA:    "abc123",
		Branch:       "feature/x",
		PRNumber:     &pr,
		ChangedFiles: []string{"src/app.py"},
		EnqueuedAt:   time.Now().UTC(),
	}

	task, err := NewScanTask(payload)
	require.NoError(t, err)
	assert.Equal(t, TypeScanRun, task.Type())

	var decoded ScanTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, payload.JobID, decoded.JobID)
	assert.Equal(t, payload.ScanType, decoded.ScanType)
	require.NotNil(t, decoded.PRNumber)
	assert.Equal(t, 42, *decoded.PRNumber)
}

func TestNewScanTaskRequiresJobID(t *testing.T) {
	_, err := NewScanTask(ScanTaskPayload{RepoID: "r"})
	assert.Error(t, err)
}

func TestScanRetryDelaySchedule(t *testing.T) {
	assert.Equal(t, 10*time.Second, scanRetryDelay(0, nil, nil))
	assert.Equal(t, 30*time.Second, scanRetryDelay(1, nil, nil))
	assert.Equal(t, 60*time.Second, scanRetryDelay(2, nil, nil))
	// Past the schedule the last delay repeats.
	assert.Equal(t, 60*time.Second, scanRetryDelay(7, nil, nil))
	assert.Equal(t, 10*time.Second, scanRetryDelay(-1, nil, nil))
}
