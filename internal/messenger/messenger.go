package messenger

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrDisconnected = errors.New("chat client disconnected")
	ErrNotReady     = errors.New("chat client is not ready")
)

// Collaborator is the chat client surface the send loop depends on.
type Collaborator interface {
	IsRegistered(ctx context.Context, recipient string) (bool, error)
	Send(ctx context.Context, recipient, text string) error
}

// IDSender is implemented by collaborators that report the id the chat
// service assigned to a sent message. The id is kept in the audit detail.
type IDSender interface {
	SendWithID(ctx context.Context, recipient, text string) (string, error)
}

// Presence is optional. Calls are best-effort: the loop logs and ignores
// their errors.
type Presence interface {
	MarkSeen(ctx context.Context, recipient string) error
	SetTyping(ctx context.Context, recipient string) error
	ClearTyping(ctx context.Context, recipient string) error
}

// SendError carries the detail string reported by the chat client.
type SendError struct {
	Recipient string
	Detail    string
	Err       error
}

func (e *SendError) Error() string {
	if e.Detail == "" && e.Err != nil {
		return fmt.Sprintf("send to %s: %v", e.Recipient, e.Err)
	}
	return fmt.Sprintf("send to %s: %s", e.Recipient, e.Detail)
}

func (e *SendError) Unwrap() error { return e.Err }
