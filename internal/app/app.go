package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/LeventeLantos/pacedsend/internal/auditlog"
	"github.com/LeventeLantos/pacedsend/internal/clock"
	"github.com/LeventeLantos/pacedsend/internal/config"
	"github.com/LeventeLantos/pacedsend/internal/events"
	"github.com/LeventeLantos/pacedsend/internal/messenger"
	"github.com/LeventeLantos/pacedsend/internal/messenger/webhook"
	"github.com/LeventeLantos/pacedsend/internal/messenger/whatsapp"
	"github.com/LeventeLantos/pacedsend/internal/metrics"
	"github.com/LeventeLantos/pacedsend/internal/model"
	"github.com/LeventeLantos/pacedsend/internal/pacing"
	"github.com/LeventeLantos/pacedsend/internal/progress"
	"github.com/LeventeLantos/pacedsend/internal/queue"
	"github.com/LeventeLantos/pacedsend/internal/scheduler"
	"github.com/LeventeLantos/pacedsend/internal/session"
)

// ErrRunActive is returned by operations that must not race the send loop.
var ErrRunActive = errors.New("not allowed while a run is in progress")

// Connector brings the chat client to the ready state.
type Connector interface {
	Connect(ctx context.Context) error
}

// Deps are the backends App is assembled from. New opens them from the
// configuration; tests pass fakes.
type Deps struct {
	Store     progress.Store
	Audit     auditlog.Sink
	Messenger messenger.Collaborator
	Connector Connector
	Conn      *messenger.Connection
	Clock     clock.Clock
	Rand      *rand.Rand
	Closers   []io.Closer
}

// App is the run context shared by the CLI and the HTTP console.
type App struct {
	cfg *config.Config

	Queue     *queue.FileQueue
	Tracker   *progress.Tracker
	Audit     auditlog.Sink
	Bus       *events.Bus
	Metrics   *metrics.Metrics
	Conn      *messenger.Connection
	Messenger messenger.Collaborator
	Scheduler *scheduler.Scheduler

	connector Connector
	clock     clock.Clock
	rng       *rand.Rand
	closers   []io.Closer
}

// New opens every backend named by cfg. qrOut receives terminal QR codes
// while pairing the WhatsApp client; it may be nil.
func New(ctx context.Context, cfg *config.Config, qrOut io.Writer) (*App, error) {
	var d Deps
	fail := func(err error) (*App, error) {
		closeAll(d.Closers)
		return nil, err
	}

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	d.Store = store
	if closer != nil {
		d.Closers = append(d.Closers, closer)
	}

	audit, closer, err := openAudit(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	d.Audit = audit
	if closer != nil {
		d.Closers = append(d.Closers, closer)
	}

	d.Conn = messenger.NewConnection()
	switch cfg.Messenger.Kind {
	case config.MessengerWebhook:
		d.Messenger = webhook.NewClient(cfg.Messenger.WebhookURL)
		d.Connector = gatewayConnector{conn: d.Conn}
	default:
		wa, err := whatsapp.Open(cfg.Messenger.WhatsAppStore, d.Conn, qrOut)
		if err != nil {
			return fail(err)
		}
		d.Messenger = wa
		d.Connector = wa
		d.Closers = append(d.Closers, closerFunc(func() error { wa.Close(); return nil }))
	}

	return Assemble(cfg, d)
}

func Assemble(cfg *config.Config, d Deps) (*App, error) {
	if d.Store == nil || d.Messenger == nil {
		return nil, errors.New("progress store and messenger are required")
	}
	if d.Conn == nil {
		d.Conn = messenger.NewConnection()
	}
	if d.Connector == nil {
		d.Connector = gatewayConnector{conn: d.Conn}
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}

	a := &App{
		cfg:       cfg,
		Queue:     queue.NewFileQueue(cfg.Recipients.File, cfg.Recipients.Normalize),
		Tracker:   progress.NewTracker(d.Store, d.Clock, cfg.Pacing.Location),
		Audit:     d.Audit,
		Bus:       events.NewBus(events.DefaultHistory),
		Metrics:   metrics.New(),
		Conn:      d.Conn,
		Messenger: d.Messenger,
		connector: d.Connector,
		clock:     d.Clock,
		rng:       d.Rand,
		closers:   d.Closers,
	}

	sched, err := scheduler.New(a.prepare, a.Conn.Watch)
	if err != nil {
		return nil, err
	}
	sched.OnFinish(func(res session.Result, err error) {
		a.Metrics.ObserveResult(res)
	})
	a.Scheduler = sched

	a.Conn.OnChange(a.publishConnection)
	return a, nil
}

func (a *App) Config() *config.Config { return a.cfg }

// Connect starts the chat client session. Readiness arrives asynchronously
// through Conn.
func (a *App) Connect(ctx context.Context) error {
	if a.Conn.State() == messenger.Ready {
		return nil
	}
	a.Bus.Infof("connecting chat client")
	return a.connector.Connect(ctx)
}

func (a *App) Close() error {
	a.Scheduler.Stop()
	return closeAll(a.closers)
}

func (a *App) prepare(ctx context.Context) (*session.Runner, error) {
	entries, err := a.Queue.Load()
	if err != nil {
		return nil, err
	}
	set, err := config.LoadMessages(a.cfg.Messages.File)
	if err != nil {
		return nil, err
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}

	var rng *rand.Rand
	if a.rng != nil {
		rng = rand.New(rand.NewPCG(a.rng.Uint64(), a.rng.Uint64()))
	}
	policy, err := pacing.New(a.cfg.Pacing, rng)
	if err != nil {
		return nil, err
	}

	r, err := session.NewRunner(session.Config{
		Queue:     entries,
		Messages:  set,
		Policy:    policy,
		Tracker:   a.Tracker,
		Messenger: a.Messenger,
		Audit:     a.Audit,
		Bus:       a.Bus,
		Clock:     a.clock,
	})
	if err != nil {
		return nil, err
	}
	r.WithHooks(a.Metrics.ObserveOutcome, a.Metrics.ObserveState)

	a.Bus.Infof("%d recipients loaded, %d message variants", len(entries), len(set.Candidates()))
	return r, nil
}

func (a *App) publishConnection(s messenger.State, ev messenger.Event) {
	switch ev.Type {
	case messenger.EventQR:
		a.Bus.Publish(events.Event{Kind: events.QR, Data: ev.Payload})
		a.Bus.Infof("scan the QR code with the phone to log in")
	case messenger.EventAuthenticated:
		a.Bus.Successf("chat client authenticated")
	case messenger.EventReady:
		a.Bus.Successf("chat client connected and ready")
	case messenger.EventAuthFailure:
		a.Bus.Errorf("authentication failed: %s", ev.Payload)
	case messenger.EventDisconnected:
		a.Bus.Errorf("disconnected: %s", ev.Payload)
	}
	a.Bus.Publish(events.Event{Kind: events.State, Message: "connection", Data: s})
}

// Messages returns the configured message set.
func (a *App) Messages() (model.MessageSet, error) {
	return config.LoadMessages(a.cfg.Messages.File)
}

func (a *App) SaveMessages(set model.MessageSet) error {
	if err := set.Validate(); err != nil {
		return err
	}
	if err := config.SaveMessages(a.cfg.Messages.File, set); err != nil {
		return err
	}
	a.Bus.Successf("messages saved (%d variants)", len(set.Candidates()))
	return nil
}

// SaveRecipients replaces the queue file and returns the parsed entry count.
func (a *App) SaveRecipients(raw string) (int, error) {
	var n int
	err := a.whileIdle(func() error {
		if err := a.Queue.SaveRaw(raw); err != nil {
			return err
		}
		n = len(queue.Parse(raw, a.cfg.Recipients.Normalize))
		return nil
	})
	if err != nil {
		return 0, err
	}
	a.Bus.Successf("%d recipients saved", n)
	return n, nil
}

// RemoveRecipient drops the entry at index and re-indexes the cursor so it
// keeps pointing at the same next recipient. Entries that normalize to empty
// do not survive the rewrite, so they are removed the same way.
func (a *App) RemoveRecipient(ctx context.Context, index int) (string, error) {
	var removed string
	err := a.whileIdle(func() error {
		entries, err := a.Queue.Load()
		if err != nil {
			return err
		}
		cur, err := a.Tracker.Load(ctx)
		if err != nil {
			return err
		}

		kept, err := queue.RemoveAt(entries, index, &cur)
		if err != nil {
			return err
		}
		removed = entries[index]
		for i := len(kept) - 1; i >= 0; i-- {
			if kept[i] == "" {
				kept, _ = queue.RemoveAt(kept, i, &cur)
			}
		}

		if err := a.Queue.Save(kept); err != nil {
			return err
		}
		return a.Tracker.Replace(ctx, cur)
	})
	if err != nil {
		return "", err
	}
	a.Bus.Infof("recipient %s removed", removed)
	return removed, nil
}

// Progress loads the cursor, applying the daily reset, and pairs it with the
// current queue length. During a run it reports the run's view instead.
func (a *App) Progress(ctx context.Context) (model.Cursor, int, error) {
	var (
		cur   model.Cursor
		total int
	)
	err := a.whileIdle(func() error {
		var err error
		cur, err = a.Tracker.Load(ctx)
		if err != nil {
			return err
		}
		entries, err := a.Queue.Load()
		if err != nil && !errors.Is(err, queue.ErrEmptyQueue) {
			return err
		}
		total = len(entries)
		return nil
	})
	if errors.Is(err, ErrRunActive) {
		return a.Tracker.Current(), a.Scheduler.Progress().Total, nil
	}
	if err != nil {
		return model.Cursor{}, 0, err
	}
	return cur, total, nil
}

func (a *App) ResetProgress(ctx context.Context) error {
	err := a.whileIdle(func() error {
		return a.Tracker.Reset(ctx)
	})
	if err != nil {
		return err
	}
	a.Bus.Successf("progress reset")
	return nil
}

// whileIdle runs an edit of the queue or cursor with runs held off.
func (a *App) whileIdle(fn func() error) error {
	err := a.Scheduler.WhileIdle(fn)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		return ErrRunActive
	}
	return err
}

func (a *App) Outcomes(ctx context.Context, limit, offset int) ([]model.Outcome, error) {
	l, ok := a.Audit.(auditlog.Lister)
	if !ok {
		return nil, auditlog.ErrListingUnsupported
	}
	return l.List(ctx, limit, offset)
}

func openStore(ctx context.Context, cfg *config.Config) (progress.Store, io.Closer, error) {
	switch cfg.Progress.Backend {
	case config.ProgressBolt:
		s, err := progress.NewBoltStore(cfg.Progress.BoltPath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.ProgressRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		return progress.NewRedisStore(rdb, progress.DefaultRedisKey, cfg.Redis.TTL), rdb, nil
	default:
		return progress.NewFileStore(cfg.Progress.File), nil, nil
	}
}

func openAudit(ctx context.Context, cfg *config.Config) (auditlog.Sink, io.Closer, error) {
	file := auditlog.NewFileSink(cfg.Audit.File, cfg.Pacing.Location)
	if cfg.Audit.PostgresURL == "" {
		return file, nil, nil
	}

	pg, err := auditlog.OpenPostgres(ctx, cfg.Audit.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Msg("postgres audit mirror enabled")
	return auditlog.NewMulti(file, pg), pg, nil
}

// gatewayConnector is used when the chat session lives outside this process:
// the gateway is considered ready as soon as it is asked to connect.
type gatewayConnector struct {
	conn *messenger.Connection
}

func (g gatewayConnector) Connect(ctx context.Context) error {
	g.conn.Handle(messenger.Event{Type: messenger.EventAuthenticated})
	g.conn.Handle(messenger.Event{Type: messenger.EventReady})
	return nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func closeAll(cs []io.Closer) error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
