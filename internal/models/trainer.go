package models

import "time"

// Trainer represents a member of the teaching staff.
type Trainer struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FullName  string    `db:"full_name" json:"full_name"`
	Specialty string    `db:"specialty" json:"specialty,omitempty"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AvailabilityWindow declares when a trainer can (or cannot) teach.
// StartTime and EndTime are wall-clock values formatted as HH:MM.
type AvailabilityWindow struct {
	ID        string    `db:"id" json:"id"`
	TrainerID string    `db:"trainer_id" json:"trainer_id"`
	Weekday   string    `db:"weekday" json:"weekday"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Available bool      `db:"available" json:"available"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PreferenceType enumerates the supported preference dimensions.
type PreferenceType string

const (
	PreferenceDay       PreferenceType = "DAY"
	PreferenceTimeRange PreferenceType = "TIME_RANGE"
	PreferenceRoom      PreferenceType = "ROOM"
)

// Preference is a weighted wish attached to a trainer or group member.
// Priority runs from 1 (mild) to 5 (strong).
type Preference struct {
	ID        string         `db:"id" json:"id"`
	OwnerID   string         `db:"owner_id" json:"owner_id"`
	Type      PreferenceType `db:"type" json:"type"`
	Value     string         `db:"value" json:"value"`
	Priority  int            `db:"priority" json:"priority"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
