package main

import (
	"github.com/vexguard/api/internal/infra/postgres"
)

// Repositories bundles every persistence adapter the service uses.
type Repositories struct {
	Teams         *postgres.TeamRepository
	Repos         *postgres.RepoRepository
	Scans         *postgres.ScanRepository
	Vulns         *postgres.VulnerabilityRepository
	Patterns      *postgres.FPPatternRepository
	APIKeys       *postgres.APIKeyRepository
	Notifications *postgres.NotificationRepository
	PatchPRs      *postgres.PatchPRRepository
	Results       *postgres.ScanResultStore
}

// NewRepositories creates all repositories over one connection pool.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Teams:         postgres.NewTeamRepository(db),
		Repos:         postgres.NewRepoRepository(db),
		Scans:         postgres.NewScanRepository(db),
		Vulns:         postgres.NewVulnerabilityRepository(db),
		Patterns:      postgres.NewFPPatternRepository(db),
		APIKeys:       postgres.NewAPIKeyRepository(db),
		Notifications: postgres.NewNotificationRepository(db),
		PatchPRs:      postgres.NewPatchPRRepository(db),
		Results:       postgres.NewScanResultStore(db),
	}
}
