package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/pkg/crypto"
	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/logger"
)

// countingRepoStore records every lookup so tests can assert that
// unauthenticated deliveries never reach the repository layer.
type countingRepoStore struct {
	calls int
}

func (s *countingRepoStore) Create(context.Context, *repo.Repository) error {
	s.calls++
	return nil
}

func (s *countingRepoStore) GetByID(context.Context, repo.ID) (*repo.Repository, error) {
	s.calls++
	return nil, repo.ErrRepositoryNotFound
}

func (s *countingRepoStore) GetByPlatformID(context.Context, repo.Platform, string) (*repo.Repository, error) {
	s.calls++
	return nil, repo.ErrRepositoryNotFound
}

func (s *countingRepoStore) ListByInstallation(context.Context, int64) ([]*repo.Repository, error) {
	s.calls++
	return nil, nil
}

func (s *countingRepoStore) ListActive(context.Context) ([]*repo.Repository, error) {
	s.calls++
	return nil, nil
}

func (s *countingRepoStore) List(context.Context, repo.Filter) (repo.ListResult, error) {
	s.calls++
	return repo.ListResult{}, nil
}

func (s *countingRepoStore) Update(context.Context, *repo.Repository) error {
	s.calls++
	return nil
}

func (s *countingRepoStore) Delete(context.Context, repo.ID) error {
	s.calls++
	return nil
}

type identityCipher struct{}

func (identityCipher) EncryptString(s string) (string, error) { return s, nil }
func (identityCipher) DecryptString(s string) (string, error) { return s, nil }

const githubWebhookSecret = "webhook-test-secret"

func newWebhookHarness(logs *bytes.Buffer) (*WebhookHandler, *countingRepoStore) {
	store := &countingRepoStore{}
	log := logger.New(logger.Config{Level: "debug", Format: "json", Output: logs})
	// The scan service is never reached on the rejection path.
	ws := app.NewWebhookService(store, nil, identityCipher{}, log)
	return NewWebhookHandler(ws, githubWebhookSecret, log), store
}

func githubPushRequest(body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", "sha256="+signature)
	}
	return req
}

func TestGitHubWebhookBadSignatureRejected(t *testing.T) {
	// The commit SHA doubles as a canary: it must never surface in logs
	// for a delivery that failed authentication.
	const marker = "deadbeefcafef00d0123456789abcdef01234567"
	body := []byte(`{"ref":"refs/heads/main","after":"` + marker + `","repository":{"id":42},"commits":[{"added":["src/app.py"]}]}`)

	var logs bytes.Buffer
	h, store := newWebhookHarness(&logs)

	// A truncated HMAC is well-formed hex but fails verification.
	truncated := crypto.SignHMAC256([]byte(githubWebhookSecret), body)[:16]
	rec := httptest.NewRecorder()
	h.GitHub(rec, githubPushRequest(body, truncated))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, store.calls, "rejected delivery must not touch storage")
	assert.NotContains(t, logs.String(), marker, "rejected payload must not be logged")
}

func TestGitHubWebhookMissingSignatureRejected(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main","after":"abc123","repository":{"id":42}}`)

	var logs bytes.Buffer
	h, store := newWebhookHarness(&logs)

	rec := httptest.NewRecorder()
	h.GitHub(rec, githubPushRequest(body, ""))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, store.calls)
}

func TestGitHubWebhookValidSignatureUnknownRepo(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main","after":"abc123","repository":{"id":42},"commits":[]}`)

	var logs bytes.Buffer
	h, store := newWebhookHarness(&logs)

	sig := crypto.SignHMAC256([]byte(githubWebhookSecret), body)
	rec := httptest.NewRecorder()
	h.GitHub(rec, githubPushRequest(body, sig))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Equal(t, 1, store.calls, "authenticated delivery resolves the repository")
}

func TestGitHubWebhookPingAuthenticated(t *testing.T) {
	body := []byte(`{"zen":"keep it logically awesome"}`)

	var logs bytes.Buffer
	h, store := newWebhookHarness(&logs)

	sig := crypto.SignHMAC256([]byte(githubWebhookSecret), body)
	req := githubPushRequest(body, sig)
	req.Header.Set("X-GitHub-Event", "ping")
	rec := httptest.NewRecorder()
	h.GitHub(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "pong"))
	assert.Equal(t, 0, store.calls)
}
