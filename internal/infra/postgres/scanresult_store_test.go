package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/shared"
)

func TestMatchDeltas(t *testing.T) {
	patternA := shared.NewID()
	patternB := shared.NewID()
	jobID := shared.NewID()
	now := time.Now()

	logs := []*fppattern.Log{
		fppattern.NewLog(shared.NewID(), patternA, jobID, "sql.injection", "a.py", 1, now),
		fppattern.NewLog(shared.NewID(), patternA, jobID, "sql.injection", "b.py", 7, now),
		fppattern.NewLog(shared.NewID(), patternB, jobID, "xss.reflected", "c.py", 3, now),
	}

	deltas := matchDeltas(logs)

	// Each pattern's increment equals the number of log rows committed
	// for it in the same transaction, never an absolute count.
	assert.Equal(t, int64(2), deltas[patternA.String()])
	assert.Equal(t, int64(1), deltas[patternB.String()])
	assert.Len(t, deltas, 2)
}

func TestMatchDeltasEmpty(t *testing.T) {
	assert.Empty(t, matchDeltas(nil))
}
