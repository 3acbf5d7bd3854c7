// Package patchpr records remediation pull requests opened on the origin
// platform. Exactly one PatchPR may exist per vulnerability.
package patchpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/vexguard/api/pkg/domain/shared"
)

// ID is a type alias for shared.ID.
type ID = shared.ID

// State mirrors the platform-side lifecycle of the remediation PR.
type State string

const (
	StateCreated  State = "created"
	StateMerged   State = "merged"
	StateClosed   State = "closed"
	StateRejected State = "rejected"
)

// ParseState parses a patch PR state string.
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case StateCreated, StateMerged, StateClosed, StateRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown patch pr state %q", shared.ErrValidation, s)
}

// PatchPR records one remediation merge request.
type PatchPR struct {
	id              ID
	vulnerabilityID ID
	repoID          ID
	prNumber        int
	prURL           string
	branchName      string
	patchDiff       string
	description     string
	state           State
	createdAt       time.Time
	updatedAt       time.Time
}

// NewPatchPR records a freshly opened remediation PR.
func NewPatchPR(id, vulnerabilityID, repoID ID, prNumber int, prURL, branchName, patchDiff, description string) *PatchPR {
	now := time.Now()
	return &PatchPR{
		id:              id,
		vulnerabilityID: vulnerabilityID,
		repoID:          repoID,
		prNumber:        prNumber,
		prURL:           prURL,
		branchName:      branchName,
		patchDiff:       patchDiff,
		description:     description,
		state:           StateCreated,
		createdAt:       now,
		updatedAt:       now,
	}
}

// Reconstruct creates a PatchPR from stored data.
func Reconstruct(
	id, vulnerabilityID, repoID ID,
	prNumber int,
	prURL, branchName, patchDiff, description string,
	state State,
	createdAt, updatedAt time.Time,
) *PatchPR {
	return &PatchPR{
		id:              id,
		vulnerabilityID: vulnerabilityID,
		repoID:          repoID,
		prNumber:        prNumber,
		prURL:           prURL,
		branchName:      branchName,
		patchDiff:       patchDiff,
		description:     description,
		state:           state,
		createdAt:       createdAt,
		updatedAt:       updatedAt,
	}
}

func (p *PatchPR) ID() ID                { return p.id }
func (p *PatchPR) VulnerabilityID() ID   { return p.vulnerabilityID }
func (p *PatchPR) RepoID() ID            { return p.repoID }
func (p *PatchPR) PRNumber() int         { return p.prNumber }
func (p *PatchPR) PRURL() string         { return p.prURL }
func (p *PatchPR) BranchName() string    { return p.branchName }
func (p *PatchPR) PatchDiff() string     { return p.patchDiff }
func (p *PatchPR) Description() string   { return p.description }
func (p *PatchPR) State() State          { return p.state }
func (p *PatchPR) CreatedAt() time.Time  { return p.createdAt }
func (p *PatchPR) UpdatedAt() time.Time  { return p.updatedAt }

// SetState records the platform-side state observed via webhook or poll.
func (p *PatchPR) SetState(state State) error {
	if _, err := ParseState(string(state)); err != nil {
		return err
	}
	p.state = state
	p.updatedAt = time.Now()
	return nil
}

var (
	ErrPatchPRNotFound = fmt.Errorf("%w: patch pr not found", shared.ErrNotFound)
	ErrPatchPRExists   = fmt.Errorf("%w: vulnerability already has a patch pr", shared.ErrAlreadyExists)
)
