package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/internal/infra/scm"
	"github.com/vexguard/api/pkg/domain/patchpr"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

const patchCompletion = `{"patch": "--- a/src/db.py\n+++ b/src/db.py\n@@ -10,1 +10,1 @@\n-db.execute(q)\n+db.execute(q, params)", "explanation": "Parameterize the query."}`

type patchHarness struct {
	svc     *PatchPRService
	patches *fakePatchRepo
	vulns   *fakeVulnRepo
	repos   *fakeRepoRepo
	client  *fakeSCMClient
	llm     *fakeLLMProvider
}

func newPatchHarness(t *testing.T) *patchHarness {
	t.Helper()
	h := &patchHarness{
		patches: newFakePatchRepo(),
		vulns:   newFakeVulnRepo(),
		repos:   newFakeRepoRepo(),
		client:  &fakeSCMClient{},
		llm:     &fakeLLMProvider{content: patchCompletion},
	}
	h.svc = NewPatchPRService(
		h.patches, h.vulns, h.repos,
		&fakeSCMFactory{client: h.client},
		h.llm, logger.NewNop(),
	)
	return h
}

func (h *patchHarness) seedFinding(t *testing.T) (shared.ID, *vulnerability.Vulnerability) {
	t.Helper()
	teamID := shared.NewID()
	r := testRepo(teamID)
	require.NoError(t, h.repos.Create(context.Background(), r))

	v := vulnerability.NewVulnerability(
		shared.NewID(), r.ID(), shared.NewID(),
		"sql.injection", vulnerability.SeverityHigh, "sql",
		"src/db.py", 10, 12, "db.execute(q)", "tainted query", nil,
	)
	require.NoError(t, h.vulns.Update(context.Background(), v))
	return teamID, v
}

func TestCreatePatchPR(t *testing.T) {
	h := newPatchHarness(t)
	teamID, v := h.seedFinding(t)

	record, err := h.svc.CreatePatchPR(context.Background(), teamID.String(), v.ID().String())
	require.NoError(t, err)

	assert.Equal(t, 1, record.PRNumber())
	assert.Contains(t, record.BranchName(), "vexguard/fix-")
	assert.Contains(t, record.PatchDiff(), "db.execute(q, params)")

	// The branch carries the suggested patch verbatim as a file.
	require.Len(t, h.client.commits, 1)
	commit := h.client.commits[0]
	assert.Equal(t, record.BranchName(), commit.Branch)
	assert.Equal(t, []byte(record.PatchDiff()), commit.Content)
	assert.Contains(t, commit.Path, v.ID().String())
}

func TestCreatePatchPRDuplicate(t *testing.T) {
	h := newPatchHarness(t)
	teamID, v := h.seedFinding(t)

	_, err := h.svc.CreatePatchPR(context.Background(), teamID.String(), v.ID().String())
	require.NoError(t, err)

	_, err = h.svc.CreatePatchPR(context.Background(), teamID.String(), v.ID().String())
	assert.ErrorIs(t, err, patchpr.ErrPatchPRExists)
}

func TestCreatePatchPRRetriesCommitConflictOnce(t *testing.T) {
	h := newPatchHarness(t)
	teamID, v := h.seedFinding(t)

	// First PUT hits a stale blob id; the second attempt re-reads and
	// succeeds.
	h.client.commitErrs = []error{&scm.Error{Kind: scm.KindConflict, Message: "stale blob"}}

	record, err := h.svc.CreatePatchPR(context.Background(), teamID.String(), v.ID().String())
	require.NoError(t, err)
	require.Len(t, h.client.commits, 1)
	assert.Equal(t, []byte(record.PatchDiff()), h.client.commits[0].Content)
}

func TestCreatePatchPRConflictTwiceFails(t *testing.T) {
	h := newPatchHarness(t)
	teamID, v := h.seedFinding(t)

	conflict := &scm.Error{Kind: scm.KindConflict, Message: "stale blob"}
	h.client.commitErrs = []error{conflict, conflict}

	_, err := h.svc.CreatePatchPR(context.Background(), teamID.String(), v.ID().String())
	require.Error(t, err)
	assert.Equal(t, scm.KindConflict, scm.KindOf(err))
	assert.Empty(t, h.client.commits)
}

func TestCreatePatchPRWrongTeam(t *testing.T) {
	h := newPatchHarness(t)
	_, v := h.seedFinding(t)

	_, err := h.svc.CreatePatchPR(context.Background(), shared.NewID().String(), v.ID().String())
	assert.ErrorIs(t, err, vulnerability.ErrVulnerabilityNotFound)
}

func TestCreatePatchPRWithoutProvider(t *testing.T) {
	h := newPatchHarness(t)
	teamID, v := h.seedFinding(t)
	h.svc = NewPatchPRService(h.patches, h.vulns, h.repos, &fakeSCMFactory{client: h.client}, nil, logger.NewNop())

	_, err := h.svc.CreatePatchPR(context.Background(), teamID.String(), v.ID().String())
	require.Error(t, err)
}
