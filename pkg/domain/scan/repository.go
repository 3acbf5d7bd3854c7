package scan

import (
	"context"
	"time"
)

// Filter narrows scan listings.
type Filter struct {
	RepoID  *ID
	TeamID  *ID
	Status  *Status
	Page    int
	PerPage int
}

// ListResult is a paginated scan listing.
type ListResult struct {
	Data       []*Job
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

// Repository defines scan job persistence. The active-scan queries are
// backed by a partial index over non-terminal statuses.
type Repository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id ID) (*Job, error)
	List(ctx context.Context, filter Filter) (ListResult, error)
	Update(ctx context.Context, job *Job) error

	// HasActiveScan reports whether the repository has a queued or
	// running non-PR scan.
	HasActiveScan(ctx context.Context, repoID ID) (bool, error)
	// ListActiveForPR returns non-terminal jobs for one pull request.
	ListActiveForPR(ctx context.Context, repoID ID, prNumber int) ([]*Job, error)

	// FailStuckRunning fails running jobs with no progress since the
	// cutoff. Covers workers that died mid-scan without a terminal write.
	FailStuckRunning(ctx context.Context, cutoff time.Time) (int64, error)
	// ExpireQueued fails jobs queued before the cutoff that never
	// started, so orphaned rows do not hold the active-scan slot forever.
	ExpireQueued(ctx context.Context, cutoff time.Time) (int64, error)
}
