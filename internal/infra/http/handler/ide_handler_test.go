package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/internal/app"
	"github.com/vexguard/api/internal/infra/http/middleware"
	"github.com/vexguard/api/pkg/apierror"
	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
	"github.com/vexguard/api/pkg/validator"
)

type stubPatternRepo struct {
	patterns []*fppattern.Pattern
}

func (s *stubPatternRepo) Create(context.Context, *fppattern.Pattern) error { return nil }
func (s *stubPatternRepo) GetByID(context.Context, fppattern.ID, fppattern.ID) (*fppattern.Pattern, error) {
	return nil, fppattern.ErrPatternNotFound
}
func (s *stubPatternRepo) ListActive(_ context.Context, teamID fppattern.ID) ([]*fppattern.Pattern, error) {
	var out []*fppattern.Pattern
	for _, p := range s.patterns {
		if p.TeamID().Equals(teamID) && p.IsActive() {
			out = append(out, p)
		}
	}
	return out, nil
}
func (s *stubPatternRepo) List(context.Context, fppattern.ID, bool) ([]*fppattern.Pattern, error) {
	return s.patterns, nil
}
func (s *stubPatternRepo) Update(context.Context, *fppattern.Pattern) error { return nil }
func (s *stubPatternRepo) ListLogsByScanJob(context.Context, fppattern.ID) ([]*fppattern.Log, error) {
	return nil, nil
}
func (s *stubPatternRepo) DeleteLogsOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func ideTeamRequest(method, target, teamID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return req.WithContext(context.WithValue(req.Context(), middleware.TeamIDKey, teamID))
}

func TestFalsePositivePatternsETagRoundTrip(t *testing.T) {
	teamID := shared.NewID()
	p, err := fppattern.NewPattern(shared.NewID(), teamID, "sql.injection", "src/**", "orm noise")
	require.NoError(t, err)

	ide := app.NewIDEService(nil, &stubPatternRepo{patterns: []*fppattern.Pattern{p}}, nil, nil, nil, nil, logger.NewNop())
	h := NewIDEHandler(ide, validator.New(), logger.NewNop())

	rec := httptest.NewRecorder()
	h.FalsePositivePatterns(rec, ideTeamRequest(http.MethodGet, "/ide/false-positive-patterns", teamID.String()))

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	var body struct {
		Patterns []struct {
			RuleID string `json:"rule_id"`
		} `json:"patterns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Patterns, 1)
	assert.Equal(t, "sql.injection", body.Patterns[0].RuleID)

	// Replaying the tag short-circuits with 304 and no body.
	req := ideTeamRequest(http.MethodGet, "/ide/false-positive-patterns", teamID.String())
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.FalsePositivePatterns(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
	assert.Equal(t, etag, rec.Header().Get("ETag"))
}

func TestFalsePositivePatternsStaleETagReturnsBody(t *testing.T) {
	teamID := shared.NewID()
	ide := app.NewIDEService(nil, &stubPatternRepo{}, nil, nil, nil, nil, logger.NewNop())
	h := NewIDEHandler(ide, validator.New(), logger.NewNop())

	req := ideTeamRequest(http.MethodGet, "/ide/false-positive-patterns", teamID.String())
	req.Header.Set("If-None-Match", "stale")
	rec := httptest.NewRecorder()
	h.FalsePositivePatterns(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContentTooLargeMapsToBadRequest(t *testing.T) {
	apiErr := toAPIError(app.ErrContentTooLarge)

	// Oversized snippets are a validation failure, not a transport one.
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, apierror.CodeContentTooLarge, apiErr.Code)
}
