package dto

import "time"

// GeneratePlanRequest asks the planner to allocate the week starting at WeekStart.
type GeneratePlanRequest struct {
	WeekStart string `json:"weekStart" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name"`
}

// SessionPlacement describes where a session landed and which resources the
// planner picked for it.
type SessionPlacement struct {
	SessionID string  `json:"sessionId"`
	SlotID    string  `json:"slotId"`
	Date      string  `json:"date"`
	Weekday   string  `json:"weekday"`
	StartTime string  `json:"startTime"`
	EndTime   string  `json:"endTime"`
	TrainerID *string `json:"trainerId,omitempty"`
	RoomID    *string `json:"roomId,omitempty"`
	Score     float64 `json:"score"`
	Relaxed   bool    `json:"relaxed"`
}

// PlannerStats summarises a planner run.
type PlannerStats struct {
	GreedyAssigned    int `json:"greedyAssigned"`
	RetryAssigned     int `json:"retryAssigned"`
	RetryIterations   int `json:"retryIterations"`
	SwapCount         int `json:"swapCount"`
	LocalSearchPasses int `json:"localSearchPasses"`
}

// GeneratePlanResponse returns the allocation result.
type GeneratePlanResponse struct {
	PlanID        string             `json:"planId"`
	WeekStart     string             `json:"weekStart"`
	Placements    []SessionPlacement `json:"placements"`
	UnassignedIDs []string           `json:"unassignedSessionIds"`
	GlobalScore   float64            `json:"globalScore"`
	ConflictCount int                `json:"conflictCount"`
	Stats         PlannerStats       `json:"stats"`
}

// SeedSlotsRequest persists the generator's candidate windows for a week.
type SeedSlotsRequest struct {
	WeekStart string `json:"weekStart" validate:"required,datetime=2006-01-02"`
}

// SeedSlotsResponse reports how many windows were stored.
type SeedSlotsResponse struct {
	WeekStart string `json:"weekStart"`
	Created   int    `json:"created"`
}

// PlanQuery filters weekly plans.
type PlanQuery struct {
	Status string `form:"status" json:"status"`
	Page   int    `form:"page" json:"page"`
	Limit  int    `form:"limit" json:"limit"`
}

// PlanSummary is the cached per-plan conflict digest.
type PlanSummary struct {
	PlanID      string         `json:"planId"`
	Total       int            `json:"total"`
	Blocking    int            `json:"blocking"`
	ByType      map[string]int `json:"byType"`
	BySeverity  map[string]int `json:"bySeverity"`
	GeneratedAt time.Time      `json:"generatedAt"`
}
