package fppattern

import (
	"context"
	"time"
)

// Repository defines pattern persistence. Counter updates and log
// appends from the scan pipeline go through the scan result transaction;
// this interface covers the management surface and reads.
type Repository interface {
	Create(ctx context.Context, p *Pattern) error
	GetByID(ctx context.Context, id, teamID ID) (*Pattern, error)
	// ListActive returns active patterns for a team in insertion order.
	ListActive(ctx context.Context, teamID ID) ([]*Pattern, error)
	List(ctx context.Context, teamID ID, includeInactive bool) ([]*Pattern, error)
	Update(ctx context.Context, p *Pattern) error

	ListLogsByScanJob(ctx context.Context, scanJobID ID) ([]*Log, error)
	// DeleteLogsOlderThan prunes filter log rows past the retention window.
	DeleteLogsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
