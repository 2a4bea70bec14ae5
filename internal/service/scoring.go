package service

import (
	"strings"

	"github.com/planforma/planforma-api/internal/models"
)

// Weighting of the four scoring dimensions.
const (
	weightPreference   = 0.4
	weightAvailability = 0.3
	weightCapacity     = 0.2
	weightBalance      = 0.1
)

type trainerSnapshot struct {
	Trainer models.Trainer
	Windows []models.AvailabilityWindow
	Prefs   []models.Preference
}

type groupSnapshot struct {
	Group models.StudentGroup
	Prefs []models.Preference
}

// planningContext is the read-only resource snapshot a planner run scores
// against. It is built once per run outside any transaction. trainerIDs and
// roomIDs keep a sorted order so candidate enumeration is deterministic.
type planningContext struct {
	trainers   map[string]*trainerSnapshot
	rooms      map[string]models.Room
	equipment  map[string]models.Equipment
	groups     map[string]*groupSnapshot
	trainerIDs []string
	roomIDs    []string
}

// trainerCandidates returns the trainers a session may be taught by: the
// fixed one when set, every known trainer otherwise. A nil entry stands for
// "no trainer" when none exist.
func (p *planningContext) trainerCandidates(session models.Session) []*string {
	if session.TrainerID != nil {
		return []*string{session.TrainerID}
	}
	if len(p.trainerIDs) == 0 {
		return []*string{nil}
	}
	out := make([]*string, 0, len(p.trainerIDs))
	for i := range p.trainerIDs {
		out = append(out, &p.trainerIDs[i])
	}
	return out
}

// roomCandidates mirrors trainerCandidates for rooms.
func (p *planningContext) roomCandidates(session models.Session) []*string {
	if session.RoomID != nil {
		return []*string{session.RoomID}
	}
	if len(p.roomIDs) == 0 {
		return []*string{nil}
	}
	out := make([]*string, 0, len(p.roomIDs))
	for i := range p.roomIDs {
		out = append(out, &p.roomIDs[i])
	}
	return out
}

// scoreAssignment rates placing the session into the window.
func (p *planningContext) scoreAssignment(session models.Session, window candidateWindow) float64 {
	return weightPreference*p.preferenceScore(session, window) +
		weightAvailability*p.availabilityScore(session, window) +
		weightCapacity*p.capacityScore(session) +
		weightBalance*balanceScore(window)
}

// preferenceScore starts neutral at 0.5 and climbs with each satisfied wish.
// Trainer wishes weigh twice as much as group wishes. Capped at 1.0.
func (p *planningContext) preferenceScore(session models.Session, window candidateWindow) float64 {
	score := 0.5
	if session.TrainerID != nil {
		if trainer, ok := p.trainers[*session.TrainerID]; ok {
			for _, pref := range trainer.Prefs {
				if preferenceMatches(pref, session, window) {
					score += 0.1 * float64(pref.Priority) / 5.0
				}
			}
		}
	}
	if session.GroupID != nil {
		if group, ok := p.groups[*session.GroupID]; ok {
			for _, pref := range group.Prefs {
				if preferenceMatches(pref, session, window) {
					score += 0.05 * float64(pref.Priority) / 5.0
				}
			}
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

// availabilityScore rewards windows fully covered by an available
// declaration, rejects windows covered by an unavailable one, and stays
// cautious everywhere else. A trainer without any declaration scores 0.5.
func (p *planningContext) availabilityScore(session models.Session, window candidateWindow) float64 {
	if session.TrainerID == nil {
		return 0.5
	}
	trainer, ok := p.trainers[*session.TrainerID]
	if !ok || len(trainer.Windows) == 0 {
		return 0.5
	}
	for _, decl := range trainer.Windows {
		if !strings.EqualFold(decl.Weekday, window.Weekday) {
			continue
		}
		declStart := minutesOfDay(decl.StartTime)
		declEnd := minutesOfDay(decl.EndTime)
		if declStart < 0 || declEnd < 0 {
			continue
		}
		if declStart <= window.Start && declEnd >= window.End {
			if decl.Available {
				return 1.0
			}
			return 0.0
		}
	}
	return 0.3
}

// capacityScore rates room fill. Over capacity is disqualifying, a
// comfortably full room is ideal, an oversized one wastes space.
func (p *planningContext) capacityScore(session models.Session) float64 {
	if session.RoomID == nil || session.GroupID == nil {
		return 0.5
	}
	room, okRoom := p.rooms[*session.RoomID]
	group, okGroup := p.groups[*session.GroupID]
	if !okRoom || !okGroup || room.Capacity <= 0 {
		return 0.5
	}
	if group.Group.Size > room.Capacity {
		return 0.0
	}
	fill := float64(group.Group.Size) / float64(room.Capacity)
	switch {
	case fill >= 0.7:
		return 1.0
	case fill >= 0.5:
		return 0.8
	default:
		return 0.5
	}
}

// balanceScore nudges sessions toward mid-week, mid-day windows.
func balanceScore(window candidateWindow) float64 {
	midweek := window.Weekday == "TUESDAY" || window.Weekday == "WEDNESDAY" || window.Weekday == "THURSDAY"
	if midweek {
		if window.Start >= 10*60 && window.Start <= 15*60 {
			return 1.0
		}
		return 0.9
	}
	return 0.7
}

// preferenceMatches checks one wish against a placement.
func preferenceMatches(pref models.Preference, session models.Session, window candidateWindow) bool {
	switch pref.Type {
	case models.PreferenceDay:
		return strings.EqualFold(strings.TrimSpace(pref.Value), window.Weekday)
	case models.PreferenceTimeRange:
		parts := strings.SplitN(pref.Value, "-", 2)
		if len(parts) != 2 {
			return false
		}
		rangeStart := minutesOfDay(parts[0])
		rangeEnd := minutesOfDay(parts[1])
		if rangeStart < 0 || rangeEnd < 0 {
			return false
		}
		return rangeStart <= window.Start && rangeEnd >= window.End
	case models.PreferenceRoom:
		return session.RoomID != nil && *session.RoomID == strings.TrimSpace(pref.Value)
	default:
		return false
	}
}

// scarceEquipmentCount counts booked pools with fewer than three units.
func (p *planningContext) scarceEquipmentCount(equipmentIDs []string) int {
	count := 0
	for _, id := range equipmentIDs {
		if eq, ok := p.equipment[id]; ok && eq.Quantity < 3 {
			count++
		}
	}
	return count
}

// groupSize returns the cohort size, zero when the session has no group.
func (p *planningContext) groupSize(session models.Session) int {
	if session.GroupID == nil {
		return 0
	}
	if group, ok := p.groups[*session.GroupID]; ok {
		return group.Group.Size
	}
	return 0
}
