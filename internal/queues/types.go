package queues

import (
	"time"

	"github.com/chatdesk/chatdesk/internal/schedule"
)

// Queue is a named service bucket with its own business-hours window and
// canned replies. Start/End are "HH:MM" strings, nullable together; WorkDays
// maps weekday index (0 = Sunday) to availability.
type Queue struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Color           string       `json:"color"`
	GreetingMessage string       `json:"greeting_message"`
	AbsenceMessage  string       `json:"absence_message"`
	StartWork       *string      `json:"start_work"`
	EndWork         *string      `json:"end_work"`
	WorkDays        map[int]bool `json:"work_days"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Hours returns the queue's schedule configuration for evaluation.
func (q Queue) Hours() schedule.Hours {
	return schedule.Hours{
		Start:    q.StartWork,
		End:      q.EndWork,
		WorkDays: q.WorkDays,
	}
}
