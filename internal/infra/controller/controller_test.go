package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/scan"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

type stubRepos struct {
	repo.Repo
	active []*repo.Repository
}

func (s *stubRepos) ListActive(_ context.Context) ([]*repo.Repository, error) {
	return s.active, nil
}

type stubEnqueuer struct {
	inputs   []app.EnqueueScanInput
	conflict map[string]bool
}

func (s *stubEnqueuer) EnqueueScan(_ context.Context, input app.EnqueueScanInput) (*scan.Job, error) {
	if s.conflict[input.RepoID] {
		return nil, scan.ErrActiveScanExists
	}
	s.inputs = append(s.inputs, input)
	return nil, nil
}

func mustRepo(t *testing.T) *repo.Repository {
	t.Helper()
	r, err := repo.NewRepository(
		shared.NewID(),
		shared.NewID(),
		repo.PlatformGitHub,
		"4242",
		"acme/widgets",
		"https://github.com/acme/widgets.git",
		"main",
	)
	require.NoError(t, err)
	return r
}

func TestScheduledScanSweep(t *testing.T) {
	busy := mustRepo(t)
	idle := mustRepo(t)
	repos := &stubRepos{active: []*repo.Repository{busy, idle}}
	enqueuer := &stubEnqueuer{conflict: map[string]bool{busy.ID().String(): true}}

	c, err := NewScheduledScanController(repos, enqueuer, &ScheduledScanControllerConfig{
		CronSpec: "* * * * *",
	})
	require.NoError(t, err)

	// Pretend the schedule fired since the last check.
	c.lastCheck = time.Now().Add(-2 * time.Minute)

	count, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count, "busy repo is skipped, idle repo enqueued")

	require.Len(t, enqueuer.inputs, 1)
	got := enqueuer.inputs[0]
	assert.Equal(t, idle.ID().String(), got.RepoID)
	assert.Equal(t, idle.TeamID().String(), got.TeamID)
	assert.Equal(t, string(scan.TriggerSchedule), got.Trigger)
	assert.Equal(t, string(scan.TypeFull), got.ScanType)
	assert.Equal(t, "main", got.Branch)
}

func TestScheduledScanNotDue(t *testing.T) {
	repos := &stubRepos{active: []*repo.Repository{mustRepo(t)}}
	enqueuer := &stubEnqueuer{}

	// Weekly schedule that cannot have fired within the last instant.
	c, err := NewScheduledScanController(repos, enqueuer, &ScheduledScanControllerConfig{
		CronSpec: "0 3 * * 0",
	})
	require.NoError(t, err)

	count, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, enqueuer.inputs)
}

func TestScheduledScanBadCronSpec(t *testing.T) {
	_, err := NewScheduledScanController(nil, nil, &ScheduledScanControllerConfig{
		CronSpec: "not a cron spec",
	})
	require.Error(t, err)
}

type stubScanRepo struct {
	scan.Repository
	stuck   int64
	expired int64
}

func (s *stubScanRepo) FailStuckRunning(_ context.Context, _ time.Time) (int64, error) {
	return s.stuck, nil
}

func (s *stubScanRepo) ExpireQueued(_ context.Context, _ time.Time) (int64, error) {
	return s.expired, nil
}

func TestScanRecoveryCountsBothSweeps(t *testing.T) {
	c := NewScanRecoveryController(&stubScanRepo{stuck: 2, expired: 3}, nil)

	count, err := c.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestManagerRunsControllerOnStart(t *testing.T) {
	fired := make(chan struct{}, 1)
	m := NewManager(nil, logger.NewNop())
	m.Register(funcController{fire: fired})

	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not run on start")
	}
}

type funcController struct {
	fire chan struct{}
}

func (f funcController) Name() string            { return "test" }
func (f funcController) Interval() time.Duration { return time.Hour }

func (f funcController) Reconcile(_ context.Context) (int, error) {
	select {
	case f.fire <- struct{}{}:
	default:
	}
	return 0, nil
}
