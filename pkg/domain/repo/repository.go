package repo

import "context"

// Filter narrows repository listings.
type Filter struct {
	TeamID   *ID
	Platform *Platform
	IsActive *bool
	Search   string
	Page     int
	PerPage  int
}

// ListResult is a paginated repository listing.
type ListResult struct {
	Data       []*Repository
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

// Repo defines repository persistence. Named Repo rather than Repository
// to keep it apart from the entity.
type Repo interface {
	Create(ctx context.Context, r *Repository) error
	GetByID(ctx context.Context, id ID) (*Repository, error)
	// GetByPlatformID resolves a webhook's repository identity.
	GetByPlatformID(ctx context.Context, platform Platform, platformRepoID string) (*Repository, error)
	ListByInstallation(ctx context.Context, installationID int64) ([]*Repository, error)
	ListActive(ctx context.Context) ([]*Repository, error)
	List(ctx context.Context, filter Filter) (ListResult, error)
	Update(ctx context.Context, r *Repository) error
	// Delete hard-deletes the repository and cascades scans, findings,
	// and patch PRs.
	Delete(ctx context.Context, id ID) error
}
