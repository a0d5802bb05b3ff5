package model

import "time"

// DateLayout is the format of Cursor.DateStamp.
const DateLayout = "2006-01-02"

// Cursor is the persisted resume point. Every queue index below LastIndex has
// been attempted exactly once.
type Cursor struct {
	LastIndex      int      `json:"lastIndex"`
	SentRecipients []string `json:"sentRecipients"`
	DateStamp      string   `json:"dateStamp"`
}

func FreshCursor(now time.Time) Cursor {
	return Cursor{
		LastIndex:      0,
		SentRecipients: []string{},
		DateStamp:      now.Format(DateLayout),
	}
}

// IsFrom reports whether the cursor was stamped on the same calendar day as now.
func (c Cursor) IsFrom(now time.Time) bool {
	return c.DateStamp == now.Format(DateLayout)
}

func (c Cursor) Clone() Cursor {
	out := c
	out.SentRecipients = append([]string{}, c.SentRecipients...)
	return out
}
