package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Candidate windows span Monday to Friday, start on fixed anchors and never
// run past 19:00.
var (
	windowStartMinutes = []int{8 * 60, 10 * 60, 13 * 60, 15 * 60, 17 * 60}
	windowDurations    = []int{60, 120, 180, 240}
)

const dayEndMinutes = 19 * 60

var weekdayLabels = map[time.Weekday]string{
	time.Monday:    "MONDAY",
	time.Tuesday:   "TUESDAY",
	time.Wednesday: "WEDNESDAY",
	time.Thursday:  "THURSDAY",
	time.Friday:    "FRIDAY",
	time.Saturday:  "SATURDAY",
	time.Sunday:    "SUNDAY",
}

var weekdayOffsets = map[string]int{
	"MONDAY":    0,
	"TUESDAY":   1,
	"WEDNESDAY": 2,
	"THURSDAY":  3,
	"FRIDAY":    4,
	"SATURDAY":  5,
	"SUNDAY":    6,
}

// weekdayLabel maps a calendar date onto its canonical uppercase label.
func weekdayLabel(date time.Time) string {
	return weekdayLabels[date.Weekday()]
}

// weekdayOffset returns the days from Monday for a label, -1 when unknown.
func weekdayOffset(label string) int {
	offset, ok := weekdayOffsets[strings.ToUpper(strings.TrimSpace(label))]
	if !ok {
		return -1
	}
	return offset
}

// normalizeWeekday uppercases a label without validating it. Unknown labels
// are stored as sent and flagged by detection.
func normalizeWeekday(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}

// minutesOfDay parses HH:MM into minutes since midnight, -1 on bad input.
func minutesOfDay(hhmm string) int {
	parts := strings.SplitN(strings.TrimSpace(hhmm), ":", 2)
	if len(parts) != 2 {
		return -1
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 || hours > 23 {
		return -1
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return -1
	}
	return hours*60 + minutes
}

// formatMinutes renders minutes since midnight as HH:MM.
func formatMinutes(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// overlapsStrict reports a true overlap: shared boundaries do not count.
func overlapsStrict(start1, end1, start2, end2 int) bool {
	return start1 < end2 && end1 > start2
}

// overlapsInclusive counts touching boundaries as overlap. The heuristic
// reservation set uses this stricter reading to keep back-to-back bookings
// of one resource out of a single run.
func overlapsInclusive(start1, end1, start2, end2 int) bool {
	return start1 <= end2 && end1 >= start2
}

// candidateWindow is an in-memory slot candidate produced by the generator.
type candidateWindow struct {
	Date     time.Time
	Weekday  string
	Start    int
	End      int
	Duration int
}

// StartTime renders the window start as HH:MM.
func (w candidateWindow) StartTime() string { return formatMinutes(w.Start) }

// EndTime renders the window end as HH:MM.
func (w candidateWindow) EndTime() string { return formatMinutes(w.End) }

// generateWeekWindows enumerates every candidate window of the week starting
// at weekStart (a Monday): five working days, five anchors, four durations,
// windows ending after 19:00 dropped.
func generateWeekWindows(weekStart time.Time) []candidateWindow {
	windows := make([]candidateWindow, 0, 5*len(windowStartMinutes)*len(windowDurations))
	for day := 0; day < 5; day++ {
		date := weekStart.AddDate(0, 0, day)
		label := weekdayLabel(date)
		for _, start := range windowStartMinutes {
			for _, duration := range windowDurations {
				end := start + duration
				if end > dayEndMinutes {
					continue
				}
				windows = append(windows, candidateWindow{
					Date:     date,
					Weekday:  label,
					Start:    start,
					End:      end,
					Duration: duration,
				})
			}
		}
	}
	return windows
}

// isMonday reports whether the date falls on a Monday.
func isMonday(date time.Time) bool {
	return date.Weekday() == time.Monday
}
