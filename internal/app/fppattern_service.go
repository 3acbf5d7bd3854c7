package app

import (
	"context"
	"fmt"

	"github.com/vexguard/api/pkg/domain/fppattern"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/logger"
)

// FPPatternService manages false-positive suppression patterns. Pattern
// changes take effect on the next scan; already-persisted findings are
// untouched.
type FPPatternService struct {
	repo   fppattern.Repository
	logger *logger.Logger
}

// NewFPPatternService creates a new FPPatternService.
func NewFPPatternService(repo fppattern.Repository, log *logger.Logger) *FPPatternService {
	return &FPPatternService{
		repo:   repo,
		logger: log.With("service", "fppattern"),
	}
}

// CreatePatternInput represents input for creating a pattern.
type CreatePatternInput struct {
	TeamID      string `json:"team_id" validate:"required,uuid"`
	RuleID      string `json:"rule_id" validate:"required,max=255"`
	FileGlob    string `json:"file_glob" validate:"max=512"`
	Description string `json:"description" validate:"max=1000"`
}

// CreatePattern creates an active suppression pattern.
func (s *FPPatternService) CreatePattern(ctx context.Context, input CreatePatternInput) (*fppattern.Pattern, error) {
	teamID, err := shared.IDFromString(input.TeamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}

	p, err := fppattern.NewPattern(shared.NewID(), teamID, input.RuleID, input.FileGlob, input.Description)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("fp pattern created",
		"pattern_id", p.ID().String(),
		"team_id", input.TeamID,
		"rule_id", input.RuleID,
		"file_glob", input.FileGlob,
	)
	return p, nil
}

// GetPattern returns one pattern scoped to a team.
func (s *FPPatternService) GetPattern(ctx context.Context, patternID, teamID string) (*fppattern.Pattern, error) {
	id, tid, err := parseScopedIDs(patternID, teamID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id, tid)
}

// ListPatterns returns a team's patterns in insertion order, the order
// the filter evaluates them in.
func (s *FPPatternService) ListPatterns(ctx context.Context, teamID string, includeInactive bool) ([]*fppattern.Pattern, error) {
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	return s.repo.List(ctx, tid, includeInactive)
}

// DeactivatePattern soft-deletes a pattern. Counters and logs remain.
func (s *FPPatternService) DeactivatePattern(ctx context.Context, patternID, teamID string) (*fppattern.Pattern, error) {
	id, tid, err := parseScopedIDs(patternID, teamID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(ctx, id, tid)
	if err != nil {
		return nil, err
	}

	p.Deactivate()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("deactivate pattern: %w", err)
	}

	s.logger.Info("fp pattern deactivated", "pattern_id", patternID, "team_id", teamID)
	return p, nil
}

// RestorePattern revives a deactivated pattern with its history intact.
func (s *FPPatternService) RestorePattern(ctx context.Context, patternID, teamID string) (*fppattern.Pattern, error) {
	id, tid, err := parseScopedIDs(patternID, teamID)
	if err != nil {
		return nil, err
	}

	p, err := s.repo.GetByID(ctx, id, tid)
	if err != nil {
		return nil, err
	}

	p.Restore()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("restore pattern: %w", err)
	}

	s.logger.Info("fp pattern restored", "pattern_id", patternID, "team_id", teamID)
	return p, nil
}

// ListFilterLogs returns the suppression log for one scan: which pattern
// filtered which finding, in filter order.
func (s *FPPatternService) ListFilterLogs(ctx context.Context, scanJobID string) ([]*fppattern.Log, error) {
	id, err := shared.IDFromString(scanJobID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid scan ID", shared.ErrValidation)
	}
	return s.repo.ListLogsByScanJob(ctx, id)
}

// parseScopedIDs parses an (entity, team) id pair off the request path.
func parseScopedIDs(entityID, teamID string) (shared.ID, shared.ID, error) {
	id, err := shared.IDFromString(entityID)
	if err != nil {
		return shared.ID{}, shared.ID{}, fmt.Errorf("%w: invalid ID", shared.ErrValidation)
	}
	tid, err := shared.IDFromString(teamID)
	if err != nil {
		return shared.ID{}, shared.ID{}, fmt.Errorf("%w: invalid team ID", shared.ErrValidation)
	}
	return id, tid, nil
}
