package model

import (
	"errors"
	"strings"
)

var ErrNoMessage = errors.New("no message configured")

// MessageSet holds the primary text and its variants. One of them is picked at
// random for every send.
type MessageSet struct {
	Primary  string   `json:"primary" yaml:"primary"`
	Variants []string `json:"variants" yaml:"variants"`
}

// Candidates returns every non-blank message, primary first.
func (m MessageSet) Candidates() []string {
	out := make([]string, 0, 1+len(m.Variants))
	for _, s := range append([]string{m.Primary}, m.Variants...) {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func (m MessageSet) Validate() error {
	if strings.TrimSpace(m.Primary) == "" {
		return ErrNoMessage
	}
	return nil
}
