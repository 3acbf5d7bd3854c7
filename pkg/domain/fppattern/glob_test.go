package fppattern

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vexguard/api/pkg/domain/shared"
)

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"tests/**", "tests/test_a.py", true},
		{"tests/**", "tests/unit/test_a.py", true},
		{"tests/**", "tests", true}, // ** spans zero segments
		{"tests/**", "src/app.py", false},
		{"**/test_*.py", "test_a.py", true},
		{"**/test_*.py", "tests/test_a.py", true},
		{"**/test_*.py", "a/b/c/test_d.py", true},
		{"**/test_*.py", "tests/helper.py", false},
		{"*.go", "main.go", true},
		{"*.go", "cmd/main.go", false},
		{"src/*/handler.go", "src/http/handler.go", true},
		{"src/*/handler.go", "src/http/v2/handler.go", false},
		{"src/**/handler.go", "src/http/v2/handler.go", true},
		{"src/**/handler.go", "src/handler.go", true},
		{"**", "anything/at/all.txt", true},
		{"**", "", true},
		{"file?.txt", "file1.txt", true},
		{"file?.txt", "file12.txt", false},
		{"a/b.c", "a/b.c", true},
		{"a/b.c", "a/b_c", false},
		{"vendor/**/*.js", "vendor/lib/min.js", true},
		{"vendor/**/*.js", "vendor/min.js", true},
		{"vendor/**/*.js", "vendor/lib/min.ts", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, GlobMatch(tt.pattern, tt.path))
		})
	}
}

func TestPattern_Matches(t *testing.T) {
	p, err := NewPattern(shared.NewID(), shared.NewID(), "generic.secrets", "tests/**", "")
	assert.NoError(t, err)

	assert.True(t, p.Matches("generic.secrets", "tests/test_a.py"))
	assert.False(t, p.Matches("generic.secrets", "src/app.py"))
	assert.False(t, p.Matches("sql.injection", "tests/test_a.py"))

	// No glob means every path for the rule matches.
	anyPath, err := NewPattern(shared.NewID(), shared.NewID(), "generic.secrets", "", "")
	assert.NoError(t, err)
	assert.True(t, anyPath.Matches("generic.secrets", "src/app.py"))
}

func TestPattern_SoftDeleteIdempotent(t *testing.T) {
	p, err := NewPattern(shared.NewID(), shared.NewID(), "generic.secrets", "", "")
	assert.NoError(t, err)

	p.Deactivate()
	assert.False(t, p.IsActive())
	p.Deactivate()
	assert.False(t, p.IsActive())

	p.Restore()
	assert.True(t, p.IsActive())
	p.Restore()
	assert.True(t, p.IsActive())
}
