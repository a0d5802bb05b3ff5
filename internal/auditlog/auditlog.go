package auditlog

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

// Sink records one line per recipient outcome.
type Sink interface {
	Append(ctx context.Context, o model.Outcome) error
}

// Lister is implemented by sinks that can page back through outcomes.
type Lister interface {
	List(ctx context.Context, limit, offset int) ([]model.Outcome, error)
}

// Multi writes to a primary sink and best-effort mirrors. Only the primary's
// error is returned; mirror failures are logged.
type Multi struct {
	primary Sink
	mirrors []Sink
}

func NewMulti(primary Sink, mirrors ...Sink) *Multi {
	return &Multi{primary: primary, mirrors: mirrors}
}

func (m *Multi) Append(ctx context.Context, o model.Outcome) error {
	var err error
	if m.primary != nil {
		err = m.primary.Append(ctx, o)
	}
	for _, s := range m.mirrors {
		if merr := s.Append(ctx, o); merr != nil {
			log.Warn().Err(merr).Str("recipient", o.Recipient).Msg("audit mirror append failed")
		}
	}
	return err
}

// List delegates to the first sink that supports listing.
func (m *Multi) List(ctx context.Context, limit, offset int) ([]model.Outcome, error) {
	for _, s := range append([]Sink{m.primary}, m.mirrors...) {
		if l, ok := s.(Lister); ok {
			return l.List(ctx, limit, offset)
		}
	}
	return nil, ErrListingUnsupported
}

var ErrListingUnsupported = errors.New("outcome listing requires the postgres audit mirror")
