package dto

// SlotRequest declares a dated occupation window for a session.
type SlotRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Weekday   string `json:"weekday" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

// CreateSessionRequest creates a session inside a weekly plan. Constraint
// violations do not reject the write; the session is stored and flagged.
// DurationMinutes defaults to the longest declared slot when omitted.
type CreateSessionRequest struct {
	PlanID          string        `json:"planId" validate:"required"`
	Title           string        `json:"title" validate:"required"`
	TrainerID       *string       `json:"trainerId"`
	RoomID          *string       `json:"roomId"`
	GroupID         *string       `json:"groupId"`
	DurationMinutes int           `json:"durationMinutes" validate:"omitempty,gte=0,lte=240"`
	EquipmentIDs    []string      `json:"equipmentIds"`
	Slots           []SlotRequest `json:"slots" validate:"omitempty,dive"`
}

// UpdateSessionRequest mutates session resources and re-runs detection.
type UpdateSessionRequest struct {
	Title           string        `json:"title" validate:"required"`
	TrainerID       *string       `json:"trainerId"`
	RoomID          *string       `json:"roomId"`
	GroupID         *string       `json:"groupId"`
	DurationMinutes int           `json:"durationMinutes" validate:"omitempty,gte=0,lte=240"`
	EquipmentIDs    []string      `json:"equipmentIds"`
	Slots           []SlotRequest `json:"slots" validate:"omitempty,dive"`
}

// SessionQuery filters plan sessions.
type SessionQuery struct {
	PlanID string `form:"planId" json:"planId"`
	Status string `form:"status" json:"status"`
	Page   int    `form:"page" json:"page"`
	Limit  int    `form:"limit" json:"limit"`
}
