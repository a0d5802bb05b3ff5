package model

import "time"

type Status string

const (
	Sent    Status = "ENVIADO"
	Skipped Status = "PULADO"
	Errored Status = "ERRO"
	Fatal   Status = "ERRO_FATAL"
)

// SystemRecipient marks audit entries that are not tied to a recipient.
const SystemRecipient = "SISTEMA"

type Outcome struct {
	RunID     string    `json:"runId"`
	Index     int       `json:"index"`
	Recipient string    `json:"recipient"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}
