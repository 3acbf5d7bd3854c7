package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

func newWebhookServiceForTest(t *testing.T) (*WebhookService, *fakeScanRepo, *fakeRepoRepo) {
	t.Helper()
	scans := newFakeScanRepo()
	repos := newFakeRepoRepo()
	scanSvc := NewScanService(scans, repos, &fakeEnqueuer{}, logger.NewNop())
	cipher, err := crypto.NewCipher(make([]byte, 32))
	require.NoError(t, err)
	return NewWebhookService(repos, scanSvc, cipher, logger.NewNop()), scans, repos
}

func TestHandlePushEnqueuesScan(t *testing.T) {
	svc, _, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	r.MarkInitialScanDone()
	require.NoError(t, repos.Create(context.Background(), r))

	job, err := svc.HandlePush(context.Background(), PushEvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Branch:         "main",
		CommitSHA:      "abc123",
		ChangedFiles:   []string{"src/app.py"},
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, scan.TypeIncremental, job.ScanType())
	assert.Equal(t, scan.TriggerWebhook, job.Trigger())
	assert.Equal(t, []string{"src/app.py"}, job.ChangedFiles())
}

func TestHandlePushBeforeInitialScanIsFull(t *testing.T) {
	svc, _, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	job, err := svc.HandlePush(context.Background(), PushEvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Branch:         "main",
		CommitSHA:      "abc123",
		ChangedFiles:   []string{"src/app.py"},
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, scan.TypeInitial, job.ScanType())
	assert.Empty(t, job.ChangedFiles())
}

func TestHandlePushNonDefaultBranchIsNoop(t *testing.T) {
	svc, _, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	job, err := svc.HandlePush(context.Background(), PushEvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Branch:         "feature/x",
		CommitSHA:      "abc123",
	})
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestHandlePushUnknownRepoIsNoop(t *testing.T) {
	svc, _, _ := newWebhookServiceForTest(t)

	job, err := svc.HandlePush(context.Background(), PushEvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "99999",
		Branch:         "main",
	})
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestHandlePushActiveScanIsNoop(t *testing.T) {
	svc, _, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	r.MarkInitialScanDone()
	require.NoError(t, repos.Create(context.Background(), r))

	event := PushEvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Branch:         "main",
		CommitSHA:      "abc123",
	}
	first, err := svc.HandlePush(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := svc.HandlePush(context.Background(), event)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestHandlePullRequestSynchronizeSupersedes(t *testing.T) {
	svc, scans, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	opened, err := svc.HandlePullRequest(context.Background(), PREvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Action:         PRActionOpened,
		PRNumber:       7,
		SourceBranch:   "feature/x",
		CommitSHA:      "sha-1",
	})
	require.NoError(t, err)
	require.NotNil(t, opened)
	assert.Equal(t, scan.TypePR, opened.ScanType())

	synced, err := svc.HandlePullRequest(context.Background(), PREvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Action:         PRActionSynchronized,
		PRNumber:       7,
		SourceBranch:   "feature/x",
		CommitSHA:      "sha-2",
	})
	require.NoError(t, err)
	require.NotNil(t, synced)
	assert.Equal(t, "sha-2", synced.CommitSHA())

	// The first scan was superseded, the second is the only live one.
	old, err := scans.GetByID(context.Background(), opened.ID())
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, old.Status())

	active, err := scans.ListActiveForPR(context.Background(), r.ID(), 7)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.True(t, active[0].ID().Equals(synced.ID()))
}

func TestHandlePullRequestClosedCancels(t *testing.T) {
	svc, scans, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	opened, err := svc.HandlePullRequest(context.Background(), PREvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Action:         PRActionOpened,
		PRNumber:       7,
		CommitSHA:      "sha-1",
	})
	require.NoError(t, err)
	require.NotNil(t, opened)

	job, err := svc.HandlePullRequest(context.Background(), PREvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Action:         PRActionClosed,
		PRNumber:       7,
	})
	require.NoError(t, err)
	assert.Nil(t, job)

	stored, err := scans.GetByID(context.Background(), opened.ID())
	require.NoError(t, err)
	assert.Equal(t, scan.StatusCancelled, stored.Status())
}

func TestHandlePullRequestUnknownActionIsNoop(t *testing.T) {
	svc, _, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	job, err := svc.HandlePullRequest(context.Background(), PREvent{
		Platform:       repo.PlatformGitHub,
		PlatformRepoID: "12345",
		Action:         PRAction("labeled"),
		PRNumber:       7,
	})
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestWebhookSecretRoundTrip(t *testing.T) {
	scans := newFakeScanRepo()
	repos := newFakeRepoRepo()
	scanSvc := NewScanService(scans, repos, &fakeEnqueuer{}, logger.NewNop())
	cipher, err := crypto.NewCipher(make([]byte, 32))
	require.NoError(t, err)
	svc := NewWebhookService(repos, scanSvc, cipher, logger.NewNop())

	r := testRepo(shared.NewID())
	enc, err := cipher.EncryptString("hunter2")
	require.NoError(t, err)
	r.SetWebhookSecretEnc(enc)
	require.NoError(t, repos.Create(context.Background(), r))

	secret, err := svc.WebhookSecret(context.Background(), repo.PlatformGitHub, "12345")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", secret)
}

func TestInstallationLifecycle(t *testing.T) {
	svc, _, repos := newWebhookServiceForTest(t)
	r := testRepo(shared.NewID())
	require.NoError(t, repos.Create(context.Background(), r))

	err := svc.HandleInstallationCreated(context.Background(), 555, []InstallationRepo{
		{PlatformRepoID: "12345", FullName: "acme/widgets"},
		{PlatformRepoID: "unknown", FullName: "acme/other"},
	})
	require.NoError(t, err)

	stored, err := repos.GetByID(context.Background(), r.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(555), stored.InstallationID())

	require.NoError(t, svc.HandleInstallationDeleted(context.Background(), 555))

	stored, err = repos.GetByID(context.Background(), r.ID())
	require.NoError(t, err)
	assert.False(t, stored.IsActive())
	assert.Zero(t, stored.InstallationID())
}
