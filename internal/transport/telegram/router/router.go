package router

import (
	"context"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

type Command struct {
	Name        string // without the leading slash
	Description string // shown in the Telegram command menu; empty hides it
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline-button data of the form "scope:action[:payload]".
type CallbackRoute struct {
	Scope   string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	MessageID    int // message carrying the pressed button (callbacks)
	Command      string
	Args         []string
	ReqID        string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}

// Router turns adapter updates into handler calls on a bounded worker pool.
type Router struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]map[string]CallbackRoute
	unknown   string

	log     logx.Logger
	adapter kit.Adapter
	workers int

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	jobs    chan func()
}

func New(log logx.Logger, adapter kit.Adapter, workers int) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &Router{
		commands:  map[string]Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		workers:   workers,
		jobs:      make(chan func(), 256),
	}
}

// SetUnknownReply sets the reply for unrecognized commands; empty ignores them.
func (r *Router) SetUnknownReply(text string) {
	r.mu.Lock()
	r.unknown = text
	r.mu.Unlock()
}

// SetRegistry replaces the routes and refreshes the Telegram command menu
// in the background.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	commands := make(map[string]Command, len(cmds))
	menu := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			continue
		}
		commands[name] = c
		if c.Description != "" {
			menu = append(menu, kit.BotCommand{Command: name, Description: c.Description})
		}
	}
	callbacks := map[string]map[string]CallbackRoute{}
	for _, cb := range cbs {
		s, a := strings.TrimSpace(cb.Scope), strings.TrimSpace(cb.Action)
		if s == "" || a == "" || cb.Handle == nil {
			continue
		}
		if callbacks[s] == nil {
			callbacks[s] = map[string]CallbackRoute{}
		}
		callbacks[s][a] = cb
	}

	r.mu.Lock()
	r.commands = commands
	r.callbacks = callbacks
	r.mu.Unlock()

	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok || len(menu) == 0 {
		return
	}
	run := func(parent context.Context) {
		ctx, cancel := context.WithTimeout(parent, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(ctx, menu); err != nil {
			r.log.Warn("menu update failed", logx.Err(err))
		}
	}
	r.runMu.Lock()
	sup := r.sup
	r.runMu.Unlock()
	if sup != nil {
		sup.Go0("telegram.menu.update", run)
		return
	}
	go run(context.Background())
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	jobs := r.jobs
	r.runMu.Lock()
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers))

	defer func() {
		r.runMu.Lock()
		r.running = false
		r.runMu.Unlock()
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.runMu.Lock()
		r.sup = nil
		r.runMu.Unlock()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			switch up.Kind {
			case kit.UpdateMessage:
				r.routeMessage(ctx, up)
			case kit.UpdateCallback:
				r.routeCallback(ctx, up)
			}
		}
	}
}

func (r *Router) tryEnqueue(fn func()) bool {
	r.runMu.Lock()
	running := r.running
	r.runMu.Unlock()
	if !running {
		return false
	}
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	fields := strings.Fields(text)
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	cmd, ok := r.commands[name]
	unknown := r.unknown
	r.mu.RUnlock()
	if !ok {
		if unknown != "" {
			_, _ = r.adapter.SendText(ctx, chat, unknown, nil)
		}
		return
	}

	rid := newReqID()
	req := &Request{
		Update:       up,
		Chat:         chat,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Command:      name,
		Args:         fields[1:],
		ReqID:        rid,
		Adapter:      r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", name),
		),
	}
	final := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(cmd.Timeout))
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = r.adapter.SendText(ctx, chat, "Бот занят, попробуй ещё раз чуть позже.", nil)
	}
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	r.mu.RLock()
	route, found := r.callbacks[scope][action]
	r.mu.RUnlock()
	if !found {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	key := "cb:" + scope + ":" + action
	rid := newReqID()
	req := &Request{
		Update:    up,
		Chat:      kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:    cb.FromID,
		MessageID: cb.MessageID,
		Command:   key,
		ReqID:     rid,
		Adapter:   r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cmd", key),
		),
	}
	h := func(ctx context.Context, req *Request) error { return route.Handle(ctx, req, payload) }
	final := Chain(h, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(route.Timeout))
	if !r.tryEnqueue(func() {
		_ = final(ctx, req)
		// stops the button's loading spinner
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Бот занят")
	}
}
