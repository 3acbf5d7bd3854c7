package patchpr

import "context"

// Repository defines patch PR persistence. The vulnerability_id unique
// constraint makes Create fail with ErrPatchPRExists on duplicates.
type Repository interface {
	Create(ctx context.Context, p *PatchPR) error
	GetByID(ctx context.Context, id ID) (*PatchPR, error)
	GetByVulnerability(ctx context.Context, vulnerabilityID ID) (*PatchPR, error)
	ListByRepo(ctx context.Context, repoID ID) ([]*PatchPR, error)
	Update(ctx context.Context, p *PatchPR) error
}
