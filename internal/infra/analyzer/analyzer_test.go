package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexguard/api/pkg/logger"
)

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(Options{}, logger.NewNop())
	assert.Error(t, err)

	r, err := NewRunner(Options{BinaryPath: "/usr/local/bin/engine"}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultBatchTimeout, r.opts.Timeout)
	assert.Equal(t, DefaultMaxFileSize, r.opts.MaxFileSize)
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantFindings int
		wantErrors   int
		wantErr      bool
	}{
		{
			name: "findings present",
			input: `{"findings":[
				{"rule_id":"generic.secrets","severity":"high","file_path":"src/app.py",
				 "start_line":10,"end_line":12,"code_snippet":"token = ...",
				 "message":"hardcoded credential","cwe":["CWE-798"]}
			]}`,
			wantFindings: 1,
		},
		{
			name:         "clean output",
			input:        `{"findings":[]}`,
			wantFindings: 0,
		},
		{
			name:         "empty stdout",
			input:        "",
			wantFindings: 0,
		},
		{
			name:         "rule errors alongside findings",
			input:        `{"findings":[{"rule_id":"a","severity":"low","file_path":"f","start_line":1,"end_line":1,"code_snippet":"","message":""}],"errors":[{"rule_id":"b","message":"bad regex"}]}`,
			wantFindings: 1,
			wantErrors:   1,
		},
		{
			name:    "malformed json",
			input:   `{"findings":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseOutput([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, result.Findings)
			assert.Len(t, result.Findings, tt.wantFindings)
			assert.Len(t, result.RuleErrors, tt.wantErrors)
		})
	}
}

func TestParseOutputFindingFields(t *testing.T) {
	result, err := parseOutput([]byte(`{"findings":[
		{"rule_id":"python.sql-injection","severity":"critical","file_path":"db/query.py",
		 "start_line":44,"end_line":45,"code_snippet":"cur.execute(q)",
		 "message":"string-built SQL","cwe":["CWE-89"]}
	]}`))
	require.NoError(t, err)
	require.Len(t, result.Findings, 1)

	f := result.Findings[0]
	assert.Equal(t, "python.sql-injection", f.RuleID)
	assert.Equal(t, "critical", f.Severity)
	assert.Equal(t, "db/query.py", f.FilePath)
	assert.Equal(t, 44, f.StartLine)
	assert.Equal(t, 45, f.EndLine)
	assert.Equal(t, []string{"CWE-89"}, f.CWEIDs)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
