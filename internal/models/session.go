package models

import "time"

// SessionStatus tracks a training session through its lifecycle.
type SessionStatus string

const (
	SessionStatusDraft      SessionStatus = "DRAFT"
	SessionStatusConflicted SessionStatus = "CONFLICTED"
	SessionStatusValid      SessionStatus = "VALID"
	SessionStatusScheduled  SessionStatus = "SCHEDULED"
	SessionStatusOngoing    SessionStatus = "ONGOING"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
)

// Session is a teaching event that consumes a trainer, a room, a group
// and optionally equipment across one or more time slots. DurationMinutes is
// the teaching time one slot must provide; the planner only considers
// candidate windows at least that long.
type Session struct {
	ID              string        `db:"id" json:"id"`
	PlanID          string        `db:"plan_id" json:"plan_id"`
	Title           string        `db:"title" json:"title"`
	TrainerID       *string       `db:"trainer_id" json:"trainer_id,omitempty"`
	RoomID          *string       `db:"room_id" json:"room_id,omitempty"`
	GroupID         *string       `db:"group_id" json:"group_id,omitempty"`
	DurationMinutes int           `db:"duration_minutes" json:"duration_minutes"`
	Status          SessionStatus `db:"status" json:"status"`
	HasConflicts    bool          `db:"has_conflicts" json:"has_conflicts"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// SessionDetail aggregates a session with its slots and equipment bookings.
type SessionDetail struct {
	Session
	Slots        []TimeSlot `json:"slots"`
	EquipmentIDs []string   `json:"equipment_ids"`
}

// TimeSlot is a dated occupation window. Times use HH:MM, the weekday label
// is canonical English uppercase and must match the calendar date.
type TimeSlot struct {
	ID              string    `db:"id" json:"id"`
	SessionID       *string   `db:"session_id" json:"session_id,omitempty"`
	Date            time.Time `db:"slot_date" json:"date"`
	Weekday         string    `db:"weekday" json:"weekday"`
	StartTime       string    `db:"start_time" json:"start_time"`
	EndTime         string    `db:"end_time" json:"end_time"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
