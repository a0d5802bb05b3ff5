package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Kind string

const (
	Info    Kind = "info"
	Success Kind = "success"
	Error   Kind = "error"
	Warning Kind = "warning"
	Pause   Kind = "pause"

	// Structured updates for the console; not part of the human log.
	QR    Kind = "qr"
	State Kind = "state"
	Stats Kind = "stats"
)

const DefaultHistory = 200

type Event struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
	At      time.Time `json:"at"`
}

// Bus fans events out to subscribers and mirrors human-readable ones into the
// process logger. Slow subscribers lose events instead of blocking the sender.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	history []Event
	limit   int
	now     func() time.Time
}

func NewBus(historySize int) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistory
	}
	return &Bus{
		subs:  map[int]chan Event{},
		limit: historySize,
		now:   time.Now,
	}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = b.now()
	}
	logEvent(e)

	b.mu.Lock()
	defer b.mu.Unlock()

	if e.Kind.isLog() {
		b.history = append(b.history, e)
		if over := len(b.history) - b.limit; over > 0 {
			b.history = append(b.history[:0:0], b.history[over:]...)
		}
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *Bus) Emit(kind Kind, format string, args ...any) {
	b.Publish(Event{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

func (b *Bus) Infof(format string, args ...any)    { b.Emit(Info, format, args...) }
func (b *Bus) Successf(format string, args ...any) { b.Emit(Success, format, args...) }
func (b *Bus) Errorf(format string, args ...any)   { b.Emit(Error, format, args...) }
func (b *Bus) Warnf(format string, args ...any)    { b.Emit(Warning, format, args...) }
func (b *Bus) Pausef(format string, args ...any)   { b.Emit(Pause, format, args...) }

// Subscribe returns a channel of future events and a func that detaches it.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// History returns the most recent log events, oldest first.
func (b *Bus) History() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event{}, b.history...)
}

func (k Kind) isLog() bool {
	switch k {
	case Info, Success, Error, Warning, Pause:
		return true
	}
	return false
}

func logEvent(e Event) {
	var level zerolog.Level
	switch e.Kind {
	case Error:
		level = zerolog.ErrorLevel
	case Warning:
		level = zerolog.WarnLevel
	case Info, Success, Pause:
		level = zerolog.InfoLevel
	default:
		level = zerolog.DebugLevel
	}
	ev := log.WithLevel(level).Str("kind", string(e.Kind))
	if e.Kind == QR {
		ev.Msg("qr code received")
		return
	}
	if e.Data != nil {
		ev = ev.Interface("data", e.Data)
	}
	ev.Msg(e.Message)
}
