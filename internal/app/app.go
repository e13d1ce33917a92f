// Package app wires the reminder bot: storage, timers, the notification
// pipeline, the ledger, the Telegram transport and the HTTP listener.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"remindbot/internal/catalog"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/ledger"
	"remindbot/internal/notifier"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/server"
	"remindbot/internal/storage"
	"remindbot/internal/task/engine"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   *storage.Store
	catalog *catalog.Loader
	adapter *telegram.Adapter
	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	ledger  *ledger.Dispatcher
	rem     *reminder.Engine
	router  *router.Router
	http    *server.Server

	updates chan kit.Update
}

// NewApp loads the config at cfgPath (empty: environment only) and builds
// every component. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	return New(config.NewConfigManager(cfgPath))
}

func New(cfgm *config.ConfigManager) (*App, error) {
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	adCfg, err := mapAdapterConfig(cfg)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(adCfg, logx.NewConsole("INFO"))
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	settings, err := mapReminderSettings(cfg)
	if err != nil {
		return nil, err
	}
	stCfg, err := mapStorageConfig(cfg, settings.Location)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(stCfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.Storage.ResetOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := store.Reset(ctx)
		cancel()
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("storage reset: %w", err)
		}
		appLog.Warn("storage reset on start")
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	eng := engine.New(engCfg, log, bus)
	sched := scheduler.New(scheduler.Config{Timezone: settings.Location.String()}, eng, log)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log, bus, store)

	disp, err := newLedger(cfg, settings.Location, log, bus)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cat := catalog.NewLoader(cfg.Catalog.TasksFile, cfg.Catalog.SpecialistsFile, log)
	rem := reminder.New(settings, reminder.Deps{
		Store:    store,
		Catalog:  cat,
		Timers:   sched,
		Notifier: reminder.NewChatNotifier(notif),
		Ledger:   disp,
		Bus:      bus,
		Log:      log,
	})

	a := &App{
		cfgm:    cfgm,
		log:     appLog,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		catalog: cat,
		adapter: ad,
		engine:  eng,
		sched:   sched,
		notif:   notif,
		ledger:  disp,
		rem:     rem,
		updates: make(chan kit.Update, 256),
	}

	a.router = router.New(log, ad, cfg.Telegram.Workers)
	h := &router.Handlers{Engine: rem, Roster: cat, Status: a.statusLines, Timeout: 30 * time.Second}
	a.router.SetUnknownReply(router.UnknownText)
	a.router.SetRegistry(h.Commands(), h.Callbacks())

	if addr := cfg.ListenAddr(); addr != "" {
		srvCfg := server.Config{Addr: addr, Pprof: cfg.HTTP.Pprof, PprofToken: cfg.HTTP.PprofToken}
		var webhook http.Handler
		if cfg.WebhookMode() {
			webhook = ad.Handler()
			srvCfg.WebhookPath = webhookPath(cfg.Telegram.WebhookURL)
		}
		a.http = server.New(srvCfg, server.NewRouter(srvCfg, a.health, webhook), log)
	}
	return a, nil
}

// newLedger builds the dispatcher. A ledger that cannot be constructed is
// logged and disabled rather than failing startup.
func newLedger(cfg *config.Config, loc *time.Location, log logx.Logger, bus eventbus.Bus) (*ledger.Dispatcher, error) {
	sc, timeout, err := mapLedgerConfig(cfg, loc)
	if err != nil {
		return nil, err
	}
	d := ledger.NewDispatcher(nil, timeout, log, bus)
	if !cfg.Ledger.Enabled {
		return d, nil
	}
	// Token refreshes reuse this context, so it must outlive startup.
	sh, err := ledger.NewSheets(context.Background(), sc)
	if err != nil {
		log.Error("ledger disabled", logx.String("comp", "ledger"), logx.Err(err))
		return d, nil
	}
	d.SetRecorder(sh, timeout)
	return d, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.engine.Start(c)
	a.sched.Start(c)
	a.notif.Start(c)
	a.ledger.Start(c)

	if n, err := a.rem.Resume(c); err != nil {
		a.log.Warn("session resume failed", logx.Err(err))
	} else if n > 0 {
		a.log.Info("sessions resumed", logx.Int("count", n))
	}

	// The listener comes up before the webhook is registered so Telegram's
	// first delivery has somewhere to land.
	if a.http != nil {
		if err := a.http.Start(c); err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
	}
	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}

	a.sup.Go("telegram.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("eventbus.log", a.logEvents)
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("mode", a.adapter.Mode()),
		logx.String("timezone", a.rem.Settings().Location.String()),
	)
	return nil
}

func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// Each step is bounded so one stuck component cannot stall the rest.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < limit {
			limit = time.Until(dl)
		}
		if limit > 0 {
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()
		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 3*time.Second, a.adapter.Stop)
	step("http", 2*time.Second, func(c context.Context) error {
		if a.http == nil {
			return nil
		}
		return a.http.Stop(c)
	})
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("ledger", 3*time.Second, func(c context.Context) error { a.ledger.Stop(c); return nil })
	step("supervisor", 2*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// health backs /healthz.
func (a *App) health() (bool, map[string]any) {
	sessions := a.rem.Snapshot()
	active := 0
	for _, s := range sessions {
		if s.State == reminder.StateActive {
			active++
		}
	}
	es := a.engine.Snapshot()
	return true, map[string]any{
		"mode":            a.adapter.Mode(),
		"sessions":        len(sessions),
		"active_sessions": active,
		"timers":          len(a.sched.Snapshot().Schedules),
		"task_queue":      es.QueueLen,
		"notify_queue":    a.notif.QueueLen(),
		"ledger":          a.ledger.Enabled(),
	}
}

// statusLines extends the /health reply.
func (a *App) statusLines() []string {
	es := a.engine.Snapshot()
	ss := a.sched.Snapshot()
	return []string{
		fmt.Sprintf("timers: %d (%s)", len(ss.Schedules), ss.Timezone),
		fmt.Sprintf("tasks: queue %d/%d, in flight %d, skipped %d, dropped %d", es.QueueLen, es.QueueCap, es.InFlight, es.Skipped, es.Dropped),
		fmt.Sprintf("notifier: queue %d", a.notif.QueueLen()),
		fmt.Sprintf("ledger: %s", onOff(a.ledger.Enabled())),
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (a *App) reloadLoop(c context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// keep only the latest of a burst
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
			if restart := config.RestartRequired(sections); len(restart) > 0 {
				a.log.Warn("config change requires restart", logx.String("sections", strings.Join(restart, ",")))
			}
			if lastApplied != nil && (lastApplied.Telegram.Token != newCfg.Telegram.Token || lastApplied.Telegram.Mode != newCfg.Telegram.Mode) {
				a.log.Warn("telegram token or mode changed; restart required")
			}
			a.applyConfig(c, newCfg)
			lastApplied = newCfg

			if len(sections) > 0 {
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			} else {
				a.log.Info("config reloaded (no changes)")
			}
		}
	}
}

// applyConfig pushes the live-tunable sections into running components.
func (a *App) applyConfig(c context.Context, cfg *config.Config) {
	a.logs.Apply(mapLoggingConfig(cfg))
	a.catalog.SetPaths(cfg.Catalog.TasksFile, cfg.Catalog.SpecialistsFile)

	if s, err := mapReminderSettings(cfg); err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(scheduler.Config{Timezone: s.Location.String()})
		a.rem.Apply(s)
	}
	if ec, err := mapTaskEngineConfig(cfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(c, ec)
	}
	if nc, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(nc)
		if nc.Enabled {
			a.notif.Start(c)
		} else {
			stopCtx, cancel := context.WithTimeout(c, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		}
	}

	loc := a.rem.Settings().Location
	sc, timeout, err := mapLedgerConfig(cfg, loc)
	switch {
	case err != nil:
		a.log.Warn("invalid ledger config; keeping previous", logx.Err(err))
	case !cfg.Ledger.Enabled:
		a.ledger.SetRecorder(nil, timeout)
	default:
		sh, err := ledger.NewSheets(context.Background(), sc)
		if err != nil {
			a.log.Warn("ledger reconfigure failed; keeping previous", logx.Err(err))
			break
		}
		a.ledger.SetRecorder(sh, timeout)
	}
}
