package models

import "time"

// PlanStatus tracks the lifecycle of a weekly plan.
type PlanStatus string

const (
	PlanStatusInProgress PlanStatus = "IN_PROGRESS"
	PlanStatusValidated  PlanStatus = "VALIDATED"
	PlanStatusPublished  PlanStatus = "PUBLISHED"
)

// WeeklyPlan groups the sessions of a single calendar week.
// WeekStart is always a Monday.
type WeeklyPlan struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	WeekStart   time.Time  `db:"week_start" json:"week_start"`
	Status      PlanStatus `db:"status" json:"status"`
	GlobalScore float64    `db:"global_score" json:"global_score"`
	ValidatedBy *string    `db:"validated_by" json:"validated_by,omitempty"`
	ValidatedAt *time.Time `db:"validated_at" json:"validated_at,omitempty"`
	PublishedAt *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
