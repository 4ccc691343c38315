// Package roster merges a course roster with the day's attendance events into
// one present/absent list.
package roster

import (
	"fmt"
	"time"

	"rollcall/internal/normalize"
)

// Status of one roster entry.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

// SourceRoster labels absent entries, which only the roster vouches for.
const SourceRoster = "roster"

// Entry is one entity's line in a reconciled roster.
type Entry struct {
	EntityID    normalize.ID         `json:"entity_id"`
	DisplayName string               `json:"display_name"`
	Email       string               `json:"email"`
	Status      Status               `json:"status"`
	StatusTime  *normalize.Timestamp `json:"status_time"`
	Source      string               `json:"source"`
}

// Roster is the result of one reconciliation pass.
type Roster struct {
	CourseID string  `json:"course_id"`
	Date     string  `json:"date"`
	Entries  []Entry `json:"entries"`

	// NoAttendanceRecorded separates "nothing was recorded for the date" from
	// "attendance was recorded but nobody on the roster matched".
	NoAttendanceRecorded bool `json:"no_attendance_recorded"`

	PresentCount int `json:"present_count"`
	AbsentCount  int `json:"absent_count"`
	// RawPresentCount counts distinct attendance ids, including ones that are
	// not on the roster.
	RawPresentCount int            `json:"raw_present_count"`
	Unmatched       []normalize.ID `json:"unmatched"`
	Generated       time.Time      `json:"generated_at"`
}

// IDs returns the entity ids of the roster in output order.
func (r *Roster) IDs() []normalize.ID {
	out := make([]normalize.ID, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.EntityID)
	}
	return out
}

// TransportError reports that a backend call needed for the whole pass failed.
// No partial roster accompanies it.
type TransportError struct {
	Op       string
	CourseID string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s for course %s: %v", e.Op, e.CourseID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
