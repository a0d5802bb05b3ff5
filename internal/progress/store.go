package progress

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

// Store persists the cursor. Load returns a zero Cursor when nothing is stored
// or the stored value cannot be decoded; only backend failures are errors.
type Store interface {
	Load(ctx context.Context) (model.Cursor, error)
	Save(ctx context.Context, c model.Cursor) error
}

func decodeCursor(raw []byte, backend string) model.Cursor {
	var c model.Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		log.Warn().Err(err).Str("backend", backend).Msg("discarding unreadable progress cursor")
		return model.Cursor{}
	}
	return c
}

func encodeCursor(c model.Cursor) ([]byte, error) {
	if c.SentRecipients == nil {
		c.SentRecipients = []string{}
	}
	return json.MarshalIndent(c, "", "  ")
}
