package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

func newScanServiceForTest(t *testing.T) (*ScanService, *fakeScanRepo, *fakeRepoRepo, *fakeEnqueuer) {
	t.Helper()
	scans := newFakeScanRepo()
	repos := newFakeRepoRepo()
	enqueuer := &fakeEnqueuer{}
	svc := NewScanService(scans, repos, enqueuer, logger.NewNop())
	return svc, scans, repos, enqueuer
}

func TestEnqueueScan(t *testing.T) {
	svc, _, repos, enqueuer := newScanServiceForTest(t)
	teamID := shared.NewID()
	r := testRepo(teamID)
	require.NoError(t, repos.Create(context.Background(), r))

	job, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID:    r.ID().String(),
		Trigger:   "manual",
		ScanType:  "full",
		CommitSHA: "abc123",
	})
	require.NoError(t, err)

	assert.Equal(t, scan.StatusQueued, job.Status())
	assert.True(t, job.TeamID().Equals(teamID))
	require.Len(t, enqueuer.messages, 1)
	assert.Equal(t, job.ID().String(), enqueuer.messages[0].JobID)
	// Branch defaults to the repository's default branch.
	assert.Equal(t, "main", job.Branch())
}

func TestEnqueueScanRejectsSecondActive(t *testing.T) {
	svc, _, repos, _ := newScanServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	_, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "manual", ScanType: "full",
	})
	require.NoError(t, err)

	_, err = svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "manual", ScanType: "full",
	})
	assert.ErrorIs(t, err, scan.ErrActiveScanExists)
}

func TestEnqueueScanPerPRAdmission(t *testing.T) {
	svc, _, repos, _ := newScanServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	pr7, pr8 := 7, 8
	_, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "webhook", ScanType: "pr", PRNumber: &pr7,
	})
	require.NoError(t, err)

	// A different PR is admitted alongside.
	_, err = svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "webhook", ScanType: "pr", PRNumber: &pr8,
	})
	require.NoError(t, err)

	// The same PR is not.
	_, err = svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "webhook", ScanType: "pr", PRNumber: &pr7,
	})
	assert.ErrorIs(t, err, scan.ErrActiveScanExists)
}

func TestEnqueueScanPRRequiresNumber(t *testing.T) {
	svc, _, repos, _ := newScanServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	_, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "webhook", ScanType: "pr",
	})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestEnqueueScanInactiveRepo(t *testing.T) {
	svc, _, repos, _ := newScanServiceForTest(t)
	r := testRepo(shared.NewID())
	r.Deactivate()
	require.NoError(t, repos.Create(context.Background(), r))

	_, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "manual", ScanType: "full",
	})
	assert.Error(t, err)
}

func TestEnqueueScanCancelsRowWhenPublishFails(t *testing.T) {
	scans := newFakeScanRepo()
	repos := newFakeRepoRepo()
	enqueuer := &fakeEnqueuer{err: assert.AnError}
	svc := NewScanService(scans, repos, enqueuer, logger.NewNop())

	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	_, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "manual", ScanType: "full",
	})
	require.Error(t, err)

	// The orphaned row must not block the next admission.
	job2, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "manual", ScanType: "full",
	})
	if assert.Error(t, err) {
		// Publish still fails, but admission got past the active check.
		assert.NotErrorIs(t, err, scan.ErrActiveScanExists)
	}
	assert.Nil(t, job2)
}

func TestCancelScan(t *testing.T) {
	svc, scans, repos, _ := newScanServiceForTest(t)
	teamID := shared.NewID()
	r := testRepo(teamID)
	require.NoError(t, repos.Create(context.Background(), r))

	job, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "manual", ScanType: "full",
	})
	require.NoError(t, err)

	cancelled, err := svc.CancelScan(context.Background(), job.ID().String(), teamID.String())
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, cancelled.Status())

	stored, err := scans.GetByID(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, stored.Status())
}

func TestCancelScanWrongTeam(t *testing.T) {
	svc, _, repos, _ := newScanServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	job, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "manual", ScanType: "full",
	})
	require.NoError(t, err)

	_, err = svc.CancelScan(context.Background(), job.ID().String(), shared.NewID().String())
	assert.ErrorIs(t, err, scan.ErrScanNotFound)
}

func TestCancelActiveScansForPR(t *testing.T) {
	svc, scans, repos, _ := newScanServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	pr := 42
	job, err := svc.EnqueueScan(context.Background(), EnqueueScanInput{
		RepoID: r.ID().String(), Trigger: "webhook", ScanType: "pr", PRNumber: &pr,
	})
	require.NoError(t, err)

	n, err := svc.CancelActiveScansForPR(context.Background(), r.ID(), pr)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err := scans.GetByID(context.Background(), job.ID())
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, stored.Status())

	// Idempotent on re-run.
	n, err = svc.CancelActiveScansForPR(context.Background(), r.ID(), pr)
	require.NoError(t, err)
	assert.Zero(t, n)
}
