package dto

import "time"

// ConflictDescriptor is the API projection of a stored conflict.
type ConflictDescriptor struct {
	ID          string    `json:"id"`
	PlanID      string    `json:"planId"`
	Type        string    `json:"type"`
	Severity    int       `json:"severity"`
	Blocking    bool      `json:"blocking"`
	Description string    `json:"description"`
	SlotID      *string   `json:"slotId,omitempty"`
	SessionIDs  []string  `json:"sessionIds"`
	DetectedAt  time.Time `json:"detectedAt"`
}

// ResolutionOutcome reports what happened to a single conflict.
type ResolutionOutcome struct {
	ConflictID string `json:"conflictId"`
	Type       string `json:"type"`
	Resolved   bool   `json:"resolved"`
	Remedy     string `json:"remedy,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// ResolveAllResponse summarises a resolve-all pass over a plan.
type ResolveAllResponse struct {
	PlanID        string              `json:"planId"`
	ResolvedCount int                 `json:"resolvedCount"`
	FailedCount   int                 `json:"failedCount"`
	Outcomes      []ResolutionOutcome `json:"outcomes"`
}

// ApplyRemedyRequest applies one remedy to one conflict.
type ApplyRemedyRequest struct {
	ConflictID string            `json:"conflictId" validate:"required"`
	RemedyType string            `json:"remedyType" validate:"required"`
	RemedyData map[string]string `json:"remedyData"`
}

// RemedyProposal describes a candidate fix, ordered by ascending rank.
type RemedyProposal struct {
	Type        string            `json:"type"`
	Rank        int               `json:"rank"`
	Description string            `json:"description"`
	Data        map[string]string `json:"data,omitempty"`
	Degraded    bool              `json:"degraded,omitempty"`
}
