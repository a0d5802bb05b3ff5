package model

type Stats struct {
	Sent    int `json:"sent"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
}

// Processed is the number of recipients that reached an outcome.
func (s Stats) Processed() int {
	return s.Sent + s.Errored + s.Skipped
}

type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}
