package models

import "time"

// ConflictType enumerates the detectable scheduling conflicts.
type ConflictType string

const (
	ConflictTrainerClash        ConflictType = "TRAINER_CLASH"
	ConflictRoomClash           ConflictType = "ROOM_CLASH"
	ConflictGroupClash          ConflictType = "GROUP_CLASH"
	ConflictEquipmentOverbook   ConflictType = "EQUIPMENT_OVERBOOK"
	ConflictConstraintViolation ConflictType = "CONSTRAINT_VIOLATION"
	ConflictSessionOverlap      ConflictType = "SESSION_OVERLAP"
)

// Severity levels. 5 blocks hardest, 2 and below are warnings.
const (
	SeverityAvailability  = 5
	SeverityOverbooking   = 4
	SeverityDoubleBooking = 3
	SeverityWarning       = 2
	SeverityResidual      = 1
)

// Conflict records a detected violation. It is deleted once resolved.
type Conflict struct {
	ID          string       `db:"id" json:"id"`
	PlanID      string       `db:"plan_id" json:"plan_id"`
	Type        ConflictType `db:"type" json:"type"`
	Severity    int          `db:"severity" json:"severity"`
	Description string       `db:"description" json:"description"`
	SlotID      *string      `db:"slot_id" json:"slot_id,omitempty"`
	Blocking    bool         `db:"blocking" json:"blocking"`
	DetectedAt  time.Time    `db:"detected_at" json:"detected_at"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}

// ConflictDetail attaches the sessions participating in a conflict.
type ConflictDetail struct {
	Conflict
	SessionIDs []string `json:"session_ids"`
}

// IsBlocking reports whether a severity level invalidates a session.
func IsBlocking(severity int) bool {
	return severity > SeverityWarning
}
