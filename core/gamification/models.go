package gamification

import "time"

// EventDefinition is used to create an EventType the first time its code is awarded.
type EventDefinition struct {
	Code        string
	Name        string
	Description string
	Points      int
}

var (
	AttendOnTime = EventDefinition{
		Code:        "attend_on_time",
		Name:        "To be present",
		Description: "Student attended in school.",
		Points:      5,
	}
	AttendOnTimeNote = "Attending in school"

	Score20 = EventDefinition{
		Code:        "score_20",
		Name:        "Excellent Score",
		Description: "Student got a full score.",
		Points:      10,
	}
	Score20Note = "Got full score in exam"
)

type EventType struct {
	ID          string `json:"id" db:"id"`
	Code        string `json:"code" db:"code"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
	Points      int    `json:"points" db:"points"`
}

// StudentEvent is an immutable ledger entry.
type StudentEvent struct {
	ID          string    `json:"id" db:"id"`
	ProfileID   string    `json:"student_profile_id" db:"student_profile_id"`
	EventTypeID string    `json:"event_type_id" db:"event_type_id"`
	Note        string    `json:"note" db:"note"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	// read only, joined from the event type
	Code   string `json:"code,omitempty" db:"code"`
	Points int    `json:"points" db:"points"`
}

type StudentProfile struct {
	ID          string `json:"id" db:"id"`
	StudentID   string `json:"student_id" db:"student_id"`
	TotalPoints int    `json:"total_points" db:"total_points"`
	Level       int    `json:"level" db:"level"`
}

type LevelThreshold struct {
	Level     int `json:"level" db:"level" validate:"required,gte=2"`
	MinPoints int `json:"min_points" db:"min_points" validate:"gte=0"`
}

// Result is the outcome of an award or a recalculation.
type Result struct {
	Event         *StudentEvent  `json:"event,omitempty"`
	EventType     *EventType     `json:"event_type,omitempty"`
	Profile       StudentProfile `json:"profile"`
	PreviousLevel int            `json:"previous_level"`
}

func (r Result) LeveledUp() bool {
	return r.Profile.Level > r.PreviousLevel
}

type ProfileFilter struct {
	StudentID      string `query:"student_id"`
	Level          *int   `query:"level"`
	MinTotalPoints *int   `query:"min_total_points"`
	MaxTotalPoints *int   `query:"max_total_points"`
}

type UpdateEventType struct {
	Code        string `json:"code" validate:"required,max=50"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Points      int    `json:"points" validate:"gte=0"`
}

// LevelUp is announced after a committed award raised a student's level.
type LevelUp struct {
	StudentID     string
	PreviousLevel int
	Level         int
	TotalPoints   int
}
