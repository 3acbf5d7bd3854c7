package notification

import "context"

// Repository defines notification config persistence.
type Repository interface {
	Create(ctx context.Context, c *Config) error
	GetByID(ctx context.Context, id, teamID ID) (*Config, error)
	ListActiveByTeam(ctx context.Context, teamID ID) ([]*Config, error)
	Update(ctx context.Context, c *Config) error
	Delete(ctx context.Context, id, teamID ID) error
}
