package scm

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeResponse(status int, headers map[string]string) *http.Response {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(strings.NewReader(`{"message":"nope"}`)),
	}
}

func TestErrorFromResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		wantKind ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, nil, KindAuthFailed},
		{"forbidden", http.StatusForbidden, nil, KindAuthFailed},
		{"forbidden rate limit", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, KindRateLimited},
		{"not found", http.StatusNotFound, nil, KindNotFound},
		{"conflict", http.StatusConflict, nil, KindConflict},
		{"unprocessable", http.StatusUnprocessableEntity, nil, KindConflict},
		{"too many requests", http.StatusTooManyRequests, nil, KindRateLimited},
		{"server error", http.StatusInternalServerError, nil, KindTransient},
		{"bad gateway", http.StatusBadGateway, nil, KindTransient},
		{"teapot", http.StatusTeapot, nil, KindPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := errorFromResponse(makeResponse(tt.status, tt.headers), "op")
			require.NotNil(t, err)
			assert.Equal(t, tt.wantKind, err.Kind)
		})
	}
}

func TestErrorRetryAfter(t *testing.T) {
	err := errorFromResponse(makeResponse(http.StatusTooManyRequests,
		map[string]string{"Retry-After": "42"}), "op")
	assert.Equal(t, 42*time.Second, err.RetryAfter)
	assert.True(t, err.Retryable())
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, IsNotFound(newError(KindNotFound, "gone")))
	assert.True(t, IsAuthFailed(newError(KindAuthFailed, "denied")))
	assert.True(t, IsRetryable(newError(KindTransient, "flaky")))
	assert.False(t, IsRetryable(newError(KindPermanent, "broken")))
	assert.Equal(t, KindPermanent, KindOf(io.EOF))
}

func TestSplitFullName(t *testing.T) {
	owner, name, err := splitFullName("acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", name)

	_, _, err = splitFullName("no-slash")
	assert.Error(t, err)
	_, _, err = splitFullName("/leading")
	assert.Error(t, err)
}
