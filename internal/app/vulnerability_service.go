package app

import (
	"context"
	"fmt"

	"github.com/vexguard/api/pkg/domain/repo"
	"github.com/vexguard/api/pkg/domain/shared"
	"github.com/vexguard/api/pkg/domain/vulnerability"
	"github.com/vexguard/api/pkg/logger"
)

// VulnerabilityService reads and triages persisted findings.
type VulnerabilityService struct {
	vulns  vulnerability.Repository
	repos  repo.Repo
	logger *logger.Logger
}

// NewVulnerabilityService creates a new VulnerabilityService.
func NewVulnerabilityService(vulns vulnerability.Repository, repos repo.Repo, log *logger.Logger) *VulnerabilityService {
	return &VulnerabilityService{
		vulns:  vulns,
		repos:  repos,
		logger: log.With("service", "vulnerability"),
	}
}

// GetVulnerability returns one finding scoped to a team.
func (s *VulnerabilityService) GetVulnerability(ctx context.Context, vulnID, teamID string) (*vulnerability.Vulnerability, error) {
	vid, tid, err := parseScopedIDs(vulnID, teamID)
	if err != nil {
		return nil, err
	}

	v, err := s.vulns.GetByID(ctx, vid)
	if err != nil {
		return nil, err
	}
	if err := s.checkTeam(ctx, v, tid); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVulnerabilitiesInput represents input for listing findings.
type ListVulnerabilitiesInput struct {
	TeamID   string `json:"team_id" validate:"required,uuid"`
	RepoID   string `json:"repo_id" validate:"required,uuid"`
	Severity string `json:"severity"`
	Status   string `json:"status"`
	Page     int    `json:"page" validate:"min=0"`
	PerPage  int    `json:"per_page" validate:"min=0,max=100"`
}

// ListVulnerabilities returns a page of findings for one repository.
func (s *VulnerabilityService) ListVulnerabilities(ctx context.Context, input ListVulnerabilitiesInput) (vulnerability.ListResult, error) {
	rid, tid, err := parseScopedIDs(input.RepoID, input.TeamID)
	if err != nil {
		return vulnerability.ListResult{}, err
	}

	r, err := s.repos.GetByID(ctx, rid)
	if err != nil {
		return vulnerability.ListResult{}, err
	}
	if !r.TeamID().Equals(tid) {
		return vulnerability.ListResult{}, repo.ErrRepositoryNotFound
	}

	filter := vulnerability.Filter{
		RepoID:  &rid,
		Page:    input.Page,
		PerPage: input.PerPage,
	}
	if input.Severity != "" {
		sev, err := vulnerability.ParseSeverity(input.Severity)
		if err != nil {
			return vulnerability.ListResult{}, err
		}
		filter.Severity = &sev
	}
	if input.Status != "" {
		status := vulnerability.Status(input.Status)
		filter.Status = &status
	}
	return s.vulns.List(ctx, filter)
}

// ResolveVulnerability moves a finding to a terminal triage state.
func (s *VulnerabilityService) ResolveVulnerability(ctx context.Context, vulnID, teamID, status string) (*vulnerability.Vulnerability, error) {
	vid, tid, err := parseScopedIDs(vulnID, teamID)
	if err != nil {
		return nil, err
	}

	v, err := s.vulns.GetByID(ctx, vid)
	if err != nil {
		return nil, err
	}
	if err := s.checkTeam(ctx, v, tid); err != nil {
		return nil, err
	}

	if err := v.Resolve(vulnerability.Status(status)); err != nil {
		return nil, err
	}
	if err := s.vulns.Update(ctx, v); err != nil {
		return nil, fmt.Errorf("update vulnerability: %w", err)
	}

	s.logger.Info("vulnerability resolved",
		"vulnerability_id", vulnID,
		"team_id", teamID,
		"status", status,
	)
	return v, nil
}

// ExportOpenFindings returns every open finding for one repository, in
// detection order, along with the repository itself. Backs report
// export, so it pages through the store instead of returning one page.
func (s *VulnerabilityService) ExportOpenFindings(ctx context.Context, teamID, repoID string) ([]*vulnerability.Vulnerability, *repo.Repository, error) {
	rid, tid, err := parseScopedIDs(repoID, teamID)
	if err != nil {
		return nil, nil, err
	}

	r, err := s.repos.GetByID(ctx, rid)
	if err != nil {
		return nil, nil, err
	}
	if !r.TeamID().Equals(tid) {
		return nil, nil, repo.ErrRepositoryNotFound
	}

	status := vulnerability.StatusOpen
	var all []*vulnerability.Vulnerability
	for page := 1; ; page++ {
		res, err := s.vulns.List(ctx, vulnerability.Filter{
			RepoID:  &rid,
			Status:  &status,
			Page:    page,
			PerPage: 100,
		})
		if err != nil {
			return nil, nil, err
		}
		all = append(all, res.Data...)
		if len(res.Data) == 0 || page >= res.TotalPages {
			break
		}
	}
	return all, r, nil
}

// checkTeam verifies the finding's repository belongs to the team.
func (s *VulnerabilityService) checkTeam(ctx context.Context, v *vulnerability.Vulnerability, teamID shared.ID) error {
	r, err := s.repos.GetByID(ctx, v.RepoID())
	if err != nil {
		return err
	}
	if !r.TeamID().Equals(teamID) {
		return vulnerability.ErrVulnerabilityNotFound
	}
	return nil
}
