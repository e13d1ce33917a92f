package ledger

import (
	"context"
	"sync"
	"time"

	"remindbot/internal/eventbus"
	rtsup "remindbot/internal/runtime/supervisor"
	logx "remindbot/pkg/logx"
)

// RecordEvent is published after each ledger write attempt.
type RecordEvent struct {
	DisplayName string `json:"display_name"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Dispatcher performs ledger writes off the caller's path.
type Dispatcher struct {
	mu      sync.Mutex
	rec     Recorder
	timeout time.Duration
	log     logx.Logger
	bus     eventbus.Bus
	sup     *rtsup.Supervisor
}

// NewDispatcher returns a dispatcher. A nil recorder makes Dispatch a no-op.
func NewDispatcher(rec Recorder, timeout time.Duration, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{rec: rec, timeout: timeout, log: log.With(logx.String("comp", "ledger")), bus: bus}
}

// Start binds in-flight writes to ctx. Dispatch before Start uses a
// background context.
func (d *Dispatcher) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sup != nil {
		return
	}
	d.sup = rtsup.New(ctx, rtsup.WithLogger(d.log), rtsup.WithCancelOnError(false))
}

// Stop waits for in-flight writes until ctx expires, then cancels them.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	sup := d.sup
	d.sup = nil
	d.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Wait(ctx); err != nil && ctx.Err() != nil {
		d.log.Warn("ledger writes still running at shutdown", logx.Err(err))
	}
	sup.Cancel()
}

// SetRecorder swaps the recorder used by subsequent writes.
func (d *Dispatcher) SetRecorder(rec Recorder, timeout time.Duration) {
	d.mu.Lock()
	d.rec = rec
	if timeout > 0 {
		d.timeout = timeout
	}
	d.mu.Unlock()
}

func (d *Dispatcher) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rec != nil
}

// Dispatch schedules one write and returns immediately.
func (d *Dispatcher) Dispatch(e Entry) {
	d.mu.Lock()
	rec := d.rec
	timeout := d.timeout
	if d.sup == nil {
		d.sup = rtsup.New(context.Background(), rtsup.WithLogger(d.log), rtsup.WithCancelOnError(false))
	}
	sup := d.sup
	d.mu.Unlock()

	if rec == nil {
		d.log.Debug("ledger disabled, entry skipped", logx.String("name", e.DisplayName), logx.String("status", e.Status))
		return
	}
	sup.Go0("ledger.record", func(ctx context.Context) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		ev := RecordEvent{DisplayName: e.DisplayName, Status: e.Status}
		if err := rec.Record(cctx, e); err != nil {
			ev.Error = err.Error()
			d.log.Error("ledger write failed", logx.String("name", e.DisplayName), logx.String("status", e.Status), logx.Err(err))
			eventbus.Publish(d.bus, eventbus.LedgerFailed, ev)
			return
		}
		d.log.Debug("ledger row appended", logx.String("name", e.DisplayName), logx.String("status", e.Status))
		eventbus.Publish(d.bus, eventbus.LedgerRecorded, ev)
	})
}
