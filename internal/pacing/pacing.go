package pacing

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

const (
	// MinCharDelay is the floor for a single simulated keystroke.
	MinCharDelay = 35 * time.Millisecond
	charJitter   = 0.4
)

// Settings is the per-run pacing configuration. It is not changed while a run
// is in progress.
type Settings struct {
	DelayMin        time.Duration
	DelayMax        time.Duration
	TypingDelayMin  time.Duration
	TypingDelayMax  time.Duration
	CharacterTyping bool

	MaxPerSession  int
	LongPauseEvery int
	LongPauseMin   time.Duration
	LongPauseMax   time.Duration

	HourStart int
	HourEnd   int

	ErrorBackoffMin   time.Duration
	ErrorBackoffMax   time.Duration
	HoursPollInterval time.Duration

	Location *time.Location
}

// Defaults mirror the values the tool has always shipped with.
func Defaults() Settings {
	return Settings{
		DelayMin:          45 * time.Second,
		DelayMax:          180 * time.Second,
		TypingDelayMin:    3 * time.Second,
		TypingDelayMax:    8 * time.Second,
		MaxPerSession:     40,
		LongPauseEvery:    10,
		LongPauseMin:      5 * time.Minute,
		LongPauseMax:      10 * time.Minute,
		HourStart:         8,
		HourEnd:           20,
		ErrorBackoffMin:   30 * time.Second,
		ErrorBackoffMax:   60 * time.Second,
		HoursPollInterval: time.Minute,
		Location:          time.Local,
	}
}

func (s Settings) Validate() error {
	var errs []error

	band := func(name string, lo, hi time.Duration) {
		if lo < 0 {
			errs = append(errs, fmt.Errorf("%s min must be >= 0", name))
		}
		if hi < lo {
			errs = append(errs, fmt.Errorf("%s max (%s) must be >= min (%s)", name, hi, lo))
		}
	}
	band("delay", s.DelayMin, s.DelayMax)
	band("typing delay", s.TypingDelayMin, s.TypingDelayMax)
	band("long pause", s.LongPauseMin, s.LongPauseMax)
	band("error backoff", s.ErrorBackoffMin, s.ErrorBackoffMax)

	if s.MaxPerSession <= 0 {
		errs = append(errs, errors.New("max per session must be > 0"))
	}
	if s.LongPauseEvery < 0 {
		errs = append(errs, errors.New("long pause interval must be >= 0"))
	}
	if s.HourStart < 0 || s.HourEnd > 24 || s.HourStart >= s.HourEnd {
		errs = append(errs, fmt.Errorf("operating hours must satisfy 0 <= start < end <= 24, got %d-%d", s.HourStart, s.HourEnd))
	}
	if s.HoursPollInterval <= 0 {
		errs = append(errs, errors.New("operating hours poll interval must be > 0"))
	}
	return errors.Join(errs...)
}

// Policy draws the randomized waits used by the send loop. It is safe for
// concurrent use.
type Policy struct {
	s Settings

	mu  sync.Mutex
	rng *rand.Rand
}

// New validates s. A nil rng is replaced by a randomly seeded one.
func New(s Settings, rng *rand.Rand) (*Policy, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if s.Location == nil {
		s.Location = time.Local
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Policy{s: s, rng: rng}, nil
}

func (p *Policy) Settings() Settings { return p.s }

func (p *Policy) InterMessageDelay() time.Duration {
	return p.between(p.s.DelayMin, p.s.DelayMax)
}

func (p *Policy) TypingDelay() time.Duration {
	return p.between(p.s.TypingDelayMin, p.s.TypingDelayMax)
}

func (p *Policy) LongPauseDuration() time.Duration {
	return p.between(p.s.LongPauseMin, p.s.LongPauseMax)
}

// ErrorBackoff is the extra wait after a failed send.
func (p *Policy) ErrorBackoff() time.Duration {
	return p.between(p.s.ErrorBackoffMin, p.s.ErrorBackoffMax)
}

func (p *Policy) LongPauseDue(sentThisSession int) bool {
	return p.s.LongPauseEvery > 0 && sentThisSession > 0 && sentThisSession%p.s.LongPauseEvery == 0
}

func (p *Policy) CapReached(sentThisSession int) bool {
	return sentThisSession >= p.s.MaxPerSession
}

func (p *Policy) WithinOperatingHours(now time.Time) bool {
	h := now.In(p.s.Location).Hour()
	return h >= p.s.HourStart && h < p.s.HourEnd
}

// TypingCadence splits a typing budget across the characters of text. Each
// keystroke gets max(35ms, total/n) with ±40% jitter and never less than 35ms.
func (p *Policy) TypingCadence(text string, total time.Duration) []time.Duration {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil
	}

	base := total / time.Duration(n)
	if base < MinCharDelay {
		base = MinCharDelay
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]time.Duration, n)
	for i := range out {
		f := 1 + (p.rng.Float64()*2-1)*charJitter
		d := time.Duration(float64(base) * f)
		if d < MinCharDelay {
			d = MinCharDelay
		}
		out[i] = d
	}
	return out
}

// PickMessage returns one of the non-blank messages uniformly at random.
func (p *Policy) PickMessage(set model.MessageSet) string {
	c := set.Candidates()
	if len(c) == 0 {
		return set.Primary
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return c[p.rng.IntN(len(c))]
}

// between draws uniformly from the closed interval [lo, hi].
func (p *Policy) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rng.Int64N(int64(hi-lo)+1))
}
