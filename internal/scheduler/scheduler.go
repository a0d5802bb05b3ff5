package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/LeventeLantos/pacedsend/internal/model"
	"github.com/LeventeLantos/pacedsend/internal/session"
)

var ErrAlreadyRunning = errors.New("a run is already in progress")

// PrepareFunc builds the runner for a new run. Input errors returned here
// keep the run from starting.
type PrepareFunc func(ctx context.Context) (*session.Runner, error)

// WatchFunc derives the run context, typically one that is cancelled when the
// chat client disconnects.
type WatchFunc func(parent context.Context) (context.Context, context.CancelFunc)

// Scheduler owns the single active run.
type Scheduler struct {
	prepare  PrepareFunc
	watch    WatchFunc
	onFinish func(session.Result, error)

	running atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	stateMu sync.RWMutex
	current *session.Runner
	last    *session.Result
	lastErr error
}

func New(prepare PrepareFunc, watch WatchFunc) (*Scheduler, error) {
	if prepare == nil {
		return nil, errors.New("prepare must not be nil")
	}
	done := make(chan struct{})
	close(done)
	return &Scheduler{
		prepare: prepare,
		watch:   watch,
		done:    done,
	}, nil
}

// OnFinish registers fn to be called after every run with its result.
func (s *Scheduler) OnFinish(fn func(session.Result, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinish = fn
}

// Start prepares a run synchronously and executes it in the background.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	stopWatch := func() {}
	if s.watch != nil {
		ctx, stopWatch = s.watch(ctx)
		if ctx.Err() != nil {
			err := context.Cause(ctx)
			stopWatch()
			cancel()
			return err
		}
	}

	runner, err := s.prepare(ctx)
	if err != nil {
		stopWatch()
		cancel()
		return err
	}

	s.stateMu.Lock()
	s.current = runner
	s.stateMu.Unlock()

	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running.Store(true)
	onFinish := s.onFinish

	go func() {
		defer close(done)
		defer s.running.Store(false)
		defer cancel()
		defer stopWatch()

		start := time.Now()
		log.Info().Str("run_id", runner.RunID()).Msg("run started")

		res, err := s.safeRun(ctx, runner)

		s.stateMu.Lock()
		s.last = &res
		s.lastErr = err
		s.stateMu.Unlock()

		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Str("run_id", res.RunID).
			Str("state", string(res.State)).
			Str("reason", string(res.Reason)).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("run completed")

		if onFinish != nil {
			onFinish(res, err)
		}
	}()

	return nil
}

// Stop cancels the active run and waits for the loop to exit. It reports
// whether a run was active.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done

	log.Info().Msg("run stopped")
	return true
}

// Wait blocks until the current run, if any, has finished.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// WhileIdle calls fn with runs held off: Start blocks until fn returns. If a
// run is active fn is not called and ErrAlreadyRunning is returned.
func (s *Scheduler) WhileIdle(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrAlreadyRunning
	}
	return fn()
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// State is the loop state of the current or most recent run.
func (s *Scheduler) State() session.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.current == nil {
		return session.Idle
	}
	return s.current.State()
}

func (s *Scheduler) Stats() model.Stats {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.current == nil {
		return model.Stats{}
	}
	return s.current.Stats()
}

func (s *Scheduler) Progress() model.Progress {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.current == nil {
		return model.Progress{}
	}
	return s.current.Progress()
}

// LastResult returns the outcome of the most recently finished run.
func (s *Scheduler) LastResult() (session.Result, bool) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	if s.last == nil {
		return session.Result{}, false
	}
	return *s.last, true
}

// LastError is the error the most recent run ended with, if any.
func (s *Scheduler) LastError() error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.lastErr
}

func (s *Scheduler) safeRun(ctx context.Context, r *session.Runner) (res session.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("run panic recovered")
			res = session.Result{RunID: r.RunID(), State: session.Aborted, Reason: session.ReasonFailure, Stats: r.Stats()}
			err = fmt.Errorf("run panic: %v", p)
		}
	}()
	return r.Run(ctx)
}

// AutoStart calls Start on every activation of the cron spec. An activation
// while a run is active is logged and skipped.
func (s *Scheduler) AutoStart(spec string, loc *time.Location) (stop func(), err error) {
	if loc == nil {
		loc = time.Local
	}
	c := cron.New(cron.WithLocation(loc))
	if _, err := c.AddFunc(spec, s.autoStart); err != nil {
		return nil, fmt.Errorf("invalid autostart schedule %q: %w", spec, err)
	}
	c.Start()
	log.Info().Str("spec", spec).Str("tz", loc.String()).Msg("autostart scheduled")

	return func() { <-c.Stop().Done() }, nil
}

func (s *Scheduler) autoStart() {
	err := s.Start()
	switch {
	case err == nil:
		log.Info().Msg("autostart launched a run")
	case errors.Is(err, ErrAlreadyRunning):
		log.Info().Msg("autostart skipped, a run is already in progress")
	default:
		log.Warn().Err(err).Msg("autostart could not start a run")
	}
}
