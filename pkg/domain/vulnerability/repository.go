package vulnerability

import "context"

// Filter narrows vulnerability listings.
type Filter struct {
	RepoID    *ID
	ScanJobID *ID
	Severity  *Severity
	Status    *Status
	Page      int
	PerPage   int
}

// ListResult is a paginated vulnerability listing.
type ListResult struct {
	Data       []*Vulnerability
	Total      int64
	Page       int
	PerPage    int
	TotalPages int
}

// Repository defines vulnerability persistence. Bulk writes happen
// through the scan result transaction, not here.
type Repository interface {
	GetByID(ctx context.Context, id ID) (*Vulnerability, error)
	ListByScanJob(ctx context.Context, scanJobID ID) ([]*Vulnerability, error)
	List(ctx context.Context, filter Filter) (ListResult, error)
	Update(ctx context.Context, v *Vulnerability) error
}
