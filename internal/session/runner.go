package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/LeventeLantos/pacedsend/internal/auditlog"
	"github.com/LeventeLantos/pacedsend/internal/clock"
	"github.com/LeventeLantos/pacedsend/internal/events"
	"github.com/LeventeLantos/pacedsend/internal/messenger"
	"github.com/LeventeLantos/pacedsend/internal/model"
	"github.com/LeventeLantos/pacedsend/internal/pacing"
	"github.com/LeventeLantos/pacedsend/internal/progress"
	"github.com/LeventeLantos/pacedsend/internal/queue"
)

var ErrAlreadyRan = errors.New("runner has already been started")

// errInterrupted marks a wait or call cut short by the run context.
var errInterrupted = errors.New("interrupted")

// Config is everything one run needs. Queue and Messages are snapshots taken
// before the run and are not re-read while it is in progress.
type Config struct {
	Queue     []string
	Messages  model.MessageSet
	Policy    *pacing.Policy
	Tracker   *progress.Tracker
	Messenger messenger.Collaborator
	Audit     auditlog.Sink
	Bus       *events.Bus
	Clock     clock.Clock
}

// Runner executes the send loop once. Its getters are safe to call from other
// goroutines while Run is in progress.
type Runner struct {
	queue     []string
	messages  model.MessageSet
	policy    *pacing.Policy
	tracker   *progress.Tracker
	messenger messenger.Collaborator
	presence  messenger.Presence
	idSender  messenger.IDSender
	audit     auditlog.Sink
	bus       *events.Bus
	clock     clock.Clock
	runID     string

	onOutcome func(model.Outcome)
	onState   func(State)

	started atomic.Bool

	mu    sync.RWMutex
	state State
	stats model.Stats
	index int
}

func NewRunner(cfg Config) (*Runner, error) {
	if len(cfg.Queue) == 0 {
		return nil, queue.ErrEmptyQueue
	}
	if err := cfg.Messages.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy == nil {
		return nil, errors.New("pacing policy must not be nil")
	}
	if cfg.Tracker == nil {
		return nil, errors.New("progress tracker must not be nil")
	}
	if cfg.Messenger == nil {
		return nil, errors.New("messenger must not be nil")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(events.DefaultHistory)
	}

	r := &Runner{
		queue:     append([]string(nil), cfg.Queue...),
		messages:  cfg.Messages,
		policy:    cfg.Policy,
		tracker:   cfg.Tracker,
		messenger: cfg.Messenger,
		audit:     cfg.Audit,
		bus:       cfg.Bus,
		clock:     cfg.Clock,
		runID:     uuid.NewString(),
		state:     Idle,
	}
	if p, ok := cfg.Messenger.(messenger.Presence); ok {
		r.presence = p
	}
	if s, ok := cfg.Messenger.(messenger.IDSender); ok {
		r.idSender = s
	}
	return r, nil
}

// WithHooks registers observers for outcomes and state transitions. They run
// on the loop goroutine and must not block.
func (r *Runner) WithHooks(onOutcome func(model.Outcome), onState func(State)) *Runner {
	r.onOutcome = onOutcome
	r.onState = onState
	return r
}

func (r *Runner) RunID() string { return r.runID }

func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *Runner) Stats() model.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *Runner) Progress() model.Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return model.Progress{Current: r.index, Total: len(r.queue)}
}

// Run processes the queue from the stored cursor until it is exhausted, the
// session cap is hit, or ctx is cancelled. A ctx cancelled with cause
// messenger.ErrDisconnected ends the run as Aborted and returns that cause.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	if !r.started.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyRan
	}
	res.RunID = r.runID
	res.StartedAt = r.clock.Now()

	defer func() {
		if p := recover(); p != nil {
			log.Error().
				Str("run_id", r.runID).
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Msg("send loop panic recovered")
			r.appendAudit(ctx, model.Outcome{
				RunID:     r.runID,
				Index:     -1,
				Recipient: model.SystemRecipient,
				Status:    model.Fatal,
				Detail:    fmt.Sprint(p),
				At:        r.clock.Now(),
			})
			err = fmt.Errorf("send loop panic: %v", p)
			res = r.finish(res, Aborted, ReasonFailure)
		}
	}()

	cur, err := r.tracker.Load(ctx)
	if err != nil {
		return r.finish(res, Aborted, ReasonFailure), err
	}
	r.setIndex(cur.LastIndex)
	r.setRemaining(cur.LastIndex)
	r.setState(Running)

	s := r.policy.Settings()
	r.bus.Infof("run started at %d/%d (limit %d per session)", cur.LastIndex, len(r.queue), s.MaxPerSession)
	r.bus.Infof("delay between messages: %s - %s", s.DelayMin, s.DelayMax)

	state, reason, err := r.loop(ctx, cur.LastIndex)
	return r.finish(res, state, reason), err
}

// setRemaining sets Stats.Total to the entries left from start.
func (r *Runner) setRemaining(start int) {
	r.mu.Lock()
	r.stats.Total = max(len(r.queue)-start, 0)
	r.mu.Unlock()
}

func (r *Runner) loop(ctx context.Context, start int) (State, Reason, error) {
	for i := start; i < len(r.queue); i++ {
		if ctx.Err() != nil {
			return r.interrupted(ctx)
		}
		if r.policy.CapReached(r.Stats().Sent) {
			r.bus.Warnf("limit of %d messages per session reached", r.policy.Settings().MaxPerSession)
			r.bus.Infof("start again later to continue where this run stopped")
			return Finished, ReasonCapped, nil
		}
		if err := r.awaitOperatingHours(ctx); err != nil {
			return r.interrupted(ctx)
		}

		r.setIndex(i)
		if err := r.process(ctx, i, r.queue[i]); err != nil {
			if errors.Is(err, errInterrupted) {
				return r.interrupted(ctx)
			}
			r.bus.Errorf("run aborted: %v", err)
			return Aborted, ReasonFailure, err
		}
	}
	return Finished, ReasonExhausted, nil
}

// process handles one queue entry. It returns errInterrupted when ctx ended
// before the item reached an outcome, or a persistence error.
func (r *Runner) process(ctx context.Context, i int, recipient string) error {
	if recipient == "" {
		return r.advance(ctx, i, "")
	}
	r.bus.Infof("[%d/%d] processing %s", i+1, len(r.queue), recipient)

	registered, err := r.messenger.IsRegistered(ctx, recipient)
	if err != nil {
		return r.failed(ctx, i, recipient, err)
	}
	if !registered {
		r.bus.Warnf("%s is not registered, skipping", recipient)
		return r.record(ctx, i, recipient, model.Skipped, "recipient not registered")
	}

	text := r.policy.PickMessage(r.messages)
	if err := r.simulateTyping(ctx, recipient, text); err != nil {
		return errInterrupted
	}
	msgID, err := r.send(ctx, recipient, text)
	if err != nil {
		return r.failed(ctx, i, recipient, err)
	}

	n := r.Stats().Sent + 1
	r.bus.Successf("message sent to %s (%d/%d)", recipient, n, r.policy.Settings().MaxPerSession)
	detail := fmt.Sprintf("session msg #%d", n)
	if msgID != "" {
		detail += " id=" + msgID
	}
	if err := r.record(ctx, i, recipient, model.Sent, detail); err != nil {
		return err
	}

	if r.policy.LongPauseDue(n) {
		d := r.policy.LongPauseDuration()
		r.setState(PausedCooldown)
		r.bus.Pausef("long pause of %.1f minutes", d.Minutes())
		if err := r.clock.Sleep(ctx, d); err != nil {
			return errInterrupted
		}
		r.setState(Running)
	}

	if i < len(r.queue)-1 {
		d := r.policy.InterMessageDelay()
		r.bus.Infof("waiting %s before the next message", d.Round(time.Second))
		if err := r.clock.Sleep(ctx, d); err != nil {
			return errInterrupted
		}
	}
	return nil
}

func (r *Runner) send(ctx context.Context, recipient, text string) (string, error) {
	if r.idSender != nil {
		return r.idSender.SendWithID(ctx, recipient, text)
	}
	return "", r.messenger.Send(ctx, recipient, text)
}

// failed records a collaborator failure and waits out the error backoff. A
// failure caused by the run being cancelled is not recorded.
func (r *Runner) failed(ctx context.Context, i int, recipient string, cause error) error {
	if ctx.Err() != nil {
		return errInterrupted
	}

	detail := cause.Error()
	var se *messenger.SendError
	if errors.As(cause, &se) && se.Detail != "" {
		detail = se.Detail
	}
	r.bus.Errorf("failed to send to %s: %s", recipient, detail)
	if err := r.record(ctx, i, recipient, model.Errored, detail); err != nil {
		return err
	}

	d := r.policy.ErrorBackoff()
	r.bus.Warnf("waiting %s after error", d.Round(time.Second))
	if err := r.clock.Sleep(ctx, d); err != nil {
		return errInterrupted
	}
	return nil
}

func (r *Runner) simulateTyping(ctx context.Context, recipient, text string) error {
	if r.presence != nil {
		r.bestEffort(ctx, "mark seen", r.presence.MarkSeen, recipient)
		r.bestEffort(ctx, "set typing", r.presence.SetTyping, recipient)
		defer r.bestEffort(context.WithoutCancel(ctx), "clear typing", r.presence.ClearTyping, recipient)
	}

	total := r.policy.TypingDelay()
	if !r.policy.Settings().CharacterTyping {
		r.bus.Infof("typing for %.1fs", total.Seconds())
		return r.clock.Sleep(ctx, total)
	}

	cadence := r.policy.TypingCadence(text, total)
	r.bus.Infof("typing %d characters", len(cadence))
	for _, d := range cadence {
		if err := r.clock.Sleep(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) bestEffort(ctx context.Context, what string, fn func(context.Context, string) error, recipient string) {
	if err := fn(ctx, recipient); err != nil {
		log.Debug().Err(err).Str("recipient", recipient).Msgf("%s failed", what)
	}
}

func (r *Runner) awaitOperatingHours(ctx context.Context) error {
	if r.policy.WithinOperatingHours(r.clock.Now()) {
		return nil
	}

	s := r.policy.Settings()
	r.setState(PausedHours)
	r.bus.Pausef("outside sending hours (%dh - %dh), waiting", s.HourStart, s.HourEnd)
	for !r.policy.WithinOperatingHours(r.clock.Now()) {
		if err := r.clock.Sleep(ctx, s.HoursPollInterval); err != nil {
			return err
		}
	}
	r.setState(Running)
	r.bus.Infof("sending hours open, resuming")
	return nil
}

// record counts the outcome, audits it and advances the cursor.
func (r *Runner) record(ctx context.Context, i int, recipient string, status model.Status, detail string) error {
	o := model.Outcome{
		RunID:     r.runID,
		Index:     i,
		Recipient: recipient,
		Status:    status,
		Detail:    detail,
		At:        r.clock.Now(),
	}

	r.mu.Lock()
	switch status {
	case model.Sent:
		r.stats.Sent++
	case model.Skipped:
		r.stats.Skipped++
	case model.Errored:
		r.stats.Errored++
	}
	r.mu.Unlock()

	r.appendAudit(ctx, o)
	if r.onOutcome != nil {
		r.onOutcome(o)
	}

	sentTo := ""
	if status == model.Sent {
		sentTo = recipient
	}
	return r.advance(ctx, i, sentTo)
}

// advance persists the cursor past i. Persistence ignores cancellation so a
// completed item is never lost to a concurrent stop.
func (r *Runner) advance(ctx context.Context, i int, sentTo string) error {
	if err := r.tracker.Advance(context.WithoutCancel(ctx), i, sentTo); err != nil {
		return err
	}
	r.setIndex(i + 1)
	r.bus.Publish(events.Event{Kind: events.Stats, Data: r.Stats()})
	return nil
}

func (r *Runner) appendAudit(ctx context.Context, o model.Outcome) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Append(context.WithoutCancel(ctx), o); err != nil {
		log.Error().Err(err).Str("recipient", o.Recipient).Msg("audit append failed")
	}
}

func (r *Runner) interrupted(ctx context.Context) (State, Reason, error) {
	cause := context.Cause(ctx)
	if errors.Is(cause, messenger.ErrDisconnected) || errors.Is(cause, messenger.ErrNotReady) {
		r.bus.Errorf("chat client disconnected, run aborted")
		return Aborted, ReasonDisconnected, cause
	}
	r.bus.Warnf("run stopped")
	r.bus.Infof("progress was saved, start again to continue")
	return Stopped, ReasonStopped, nil
}

func (r *Runner) finish(res Result, state State, reason Reason) Result {
	r.setState(state)

	res.State = state
	res.Reason = reason
	res.Stats = r.Stats()
	res.Cursor = r.tracker.Current()
	res.EndedAt = r.clock.Now()

	summary := fmt.Sprintf("session ended (%s): %d sent, %d errored, %d skipped",
		reason, res.Stats.Sent, res.Stats.Errored, res.Stats.Skipped)
	switch state {
	case Finished:
		r.bus.Successf("%s", summary)
	case Stopped:
		r.bus.Warnf("%s", summary)
	default:
		r.bus.Errorf("%s", summary)
	}
	r.bus.Publish(events.Event{Kind: events.Stats, Data: res.Stats})
	return res
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	changed := r.state != s
	r.state = s
	r.mu.Unlock()

	if !changed {
		return
	}
	r.bus.Publish(events.Event{Kind: events.State, Message: string(s), Data: s})
	if r.onState != nil {
		r.onState(s)
	}
}

func (r *Runner) setIndex(i int) {
	r.mu.Lock()
	r.index = i
	r.mu.Unlock()
}
