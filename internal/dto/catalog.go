package dto

// CreateTrainerRequest registers a trainer.
type CreateTrainerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FullName  string `json:"fullName" validate:"required"`
	Specialty string `json:"specialty"`
}

// UpdateTrainerRequest mutates trainer attributes.
type UpdateTrainerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FullName  string `json:"fullName" validate:"required"`
	Specialty string `json:"specialty"`
	Active    *bool  `json:"active"`
}

// AvailabilityWindowRequest declares one weekly availability window.
type AvailabilityWindowRequest struct {
	Weekday   string `json:"weekday" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	Available bool   `json:"available"`
}

// ReplaceAvailabilityRequest swaps a trainer's full availability declaration.
type ReplaceAvailabilityRequest struct {
	Windows []AvailabilityWindowRequest `json:"windows" validate:"required,dive"`
}

// PreferenceRequest attaches a weighted wish to a trainer or group member.
type PreferenceRequest struct {
	Type     string `json:"type" validate:"required,oneof=DAY TIME_RANGE ROOM"`
	Value    string `json:"value" validate:"required"`
	Priority int    `json:"priority" validate:"required,min=1,max=5"`
}

// CreateRoomRequest registers a room.
type CreateRoomRequest struct {
	Name     string `json:"name" validate:"required"`
	Building string `json:"building"`
	Capacity int    `json:"capacity" validate:"required,min=1"`
}

// CreateEquipmentRequest registers an equipment pool.
type CreateEquipmentRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,min=0"`
}

// CreateGroupRequest registers a student group.
type CreateGroupRequest struct {
	Name string `json:"name" validate:"required"`
	Size int    `json:"size" validate:"required,min=1"`
}
