package team

import "context"

// Repository defines team persistence.
type Repository interface {
	Create(ctx context.Context, t *Team) error
	GetByID(ctx context.Context, id ID) (*Team, error)
	GetBySlug(ctx context.Context, slug string) (*Team, error)
	Update(ctx context.Context, t *Team) error
	// Delete removes the team and cascades to all scoped entities.
	Delete(ctx context.Context, id ID) error
}
