package progress

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/LeventeLantos/pacedsend/internal/clock"
	"github.com/LeventeLantos/pacedsend/internal/model"
)

// Tracker owns the in-memory copy of the cursor and writes it through to the
// Store after every change.
type Tracker struct {
	store Store
	clock clock.Clock
	loc   *time.Location

	mu  sync.Mutex
	cur model.Cursor
}

func NewTracker(store Store, clk clock.Clock, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{store: store, clock: clk, loc: loc}
}

// Load reads the stored cursor. A cursor from another day, or none at all,
// is replaced by a fresh one and persisted.
func (t *Tracker) Load(ctx context.Context) (model.Cursor, error) {
	c, err := t.store.Load(ctx)
	if err != nil {
		return model.Cursor{}, fmt.Errorf("load progress: %w", err)
	}

	now := t.clock.Now().In(t.loc)
	if !c.IsFrom(now) {
		if c.DateStamp != "" {
			log.Info().
				Str("stamp", c.DateStamp).
				Int("last_index", c.LastIndex).
				Msg("progress cursor is from another day, starting over")
		}
		c = model.FreshCursor(now)
		if err := t.store.Save(ctx, c); err != nil {
			return model.Cursor{}, fmt.Errorf("save progress: %w", err)
		}
	}
	if c.SentRecipients == nil {
		c.SentRecipients = []string{}
	}
	if c.LastIndex < 0 {
		c.LastIndex = 0
	}

	t.mu.Lock()
	t.cur = c
	t.mu.Unlock()
	return c.Clone(), nil
}

// Advance marks index as processed. sentTo is appended to the sent list when
// non-empty. The cursor is persisted before Advance returns.
func (t *Tracker) Advance(ctx context.Context, index int, sentTo string) error {
	t.mu.Lock()
	t.cur.LastIndex = index + 1
	if sentTo != "" {
		t.cur.SentRecipients = append(t.cur.SentRecipients, sentTo)
	}
	snapshot := t.cur.Clone()
	t.mu.Unlock()

	if err := t.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Replace persists c as the current cursor.
func (t *Tracker) Replace(ctx context.Context, c model.Cursor) error {
	if c.SentRecipients == nil {
		c.SentRecipients = []string{}
	}
	if err := t.store.Save(ctx, c); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	t.mu.Lock()
	t.cur = c.Clone()
	t.mu.Unlock()
	return nil
}

func (t *Tracker) Reset(ctx context.Context) error {
	return t.Replace(ctx, model.FreshCursor(t.clock.Now().In(t.loc)))
}

func (t *Tracker) Current() model.Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur.Clone()
}
