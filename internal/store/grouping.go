package store

import (
	"time"

	"chat-engine/internal/models"
)

// Row is a message with its display grouping.
type Row struct {
	Message models.Message `json:"message"`
	// Grouped suppresses the repeated sender header.
	Grouped bool `json:"grouped"`
	// DateSeparator is set when the calendar day changed since the
	// previous message.
	DateSeparator *time.Time `json:"date_separator,omitempty"`
}

// GroupRows marks consecutive messages from the same sender within window
// of each other as grouped and inserts a separator whenever the calendar
// day in loc changes between consecutive messages.
func GroupRows(msgs []models.Message, window time.Duration, loc *time.Location) []Row {
	if loc == nil {
		loc = time.Local
	}
	rows := make([]Row, 0, len(msgs))
	for i, m := range msgs {
		row := Row{Message: m}
		if i > 0 {
			prev := msgs[i-1]
			if !sameDay(prev.CreatedAt, m.CreatedAt, loc) {
				day := startOfDay(m.CreatedAt, loc)
				row.DateSeparator = &day
			} else if prev.UserID == m.UserID && !prev.SystemFlag && !m.SystemFlag {
				gap := m.CreatedAt.Sub(prev.CreatedAt)
				row.Grouped = gap >= 0 && gap <= window
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
