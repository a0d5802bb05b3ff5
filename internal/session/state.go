package session

import (
	"time"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

type State string

const (
	Idle           State = "idle"
	Running        State = "running"
	PausedHours    State = "paused_hours"
	PausedCooldown State = "paused_cooldown"
	Finished       State = "finished"
	Stopped        State = "stopped"
	Aborted        State = "aborted"
)

func (s State) Terminal() bool {
	switch s {
	case Finished, Stopped, Aborted:
		return true
	}
	return false
}

// Reason qualifies a terminal state.
type Reason string

const (
	ReasonExhausted    Reason = "exhausted"
	ReasonCapped       Reason = "capped"
	ReasonStopped      Reason = "stopped"
	ReasonDisconnected Reason = "disconnected"
	ReasonFailure      Reason = "failure"
)

// Result describes how a run ended. Cursor points at the next unprocessed
// recipient.
type Result struct {
	RunID     string       `json:"runId"`
	State     State        `json:"state"`
	Reason    Reason       `json:"reason"`
	Stats     model.Stats  `json:"stats"`
	Cursor    model.Cursor `json:"cursor"`
	StartedAt time.Time    `json:"startedAt"`
	EndedAt   time.Time    `json:"endedAt"`
}
