package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remindbot/internal/catalog"
	"remindbot/internal/reminder"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/tgui"
)

const (
	WelcomeText = "ПРИВЕТ!😊\nТебе на помощь спешит бот, который будет напоминать выполнять рутину по контексту💪✨\n\n🗓️ Если нужно что-то изменить или добавить, в конце месяца соберу ОС! 🌟"
	PickText    = "Теперь выбери свою фамилию"
	StopText    = "Вы отключены от бота. Если захотите снова подключиться, просто напишите /start."
	UnknownText = "Неизвестная команда. Напиши /start, чтобы подключиться, или /stop, чтобы отключиться."

	notOnboardedText   = "Сначала выбери свою фамилию: /start"
	specialistGoneText = "Фамилия не найдена в списке. Напиши /start ещё раз."
	emptyRosterText    = "Список специалистов пуст."

	callbackScope = "specialist"
	callbackPick  = "pick"
	// Telegram rejects callback data longer than this many bytes.
	callbackDataLimit = 64
	buttonTextLimit   = 48
)

type Engine interface {
	Onboard(ctx context.Context, o reminder.Onboarding) (reminder.Session, error)
	Offboard(ctx context.Context, subjectID int64, displayName string) error
	SendReminderList(ctx context.Context, subjectID int64) error
	SendNearest(ctx context.Context, subjectID int64) error
	Snapshot() []reminder.Session
}

type Roster interface {
	Specialists() []catalog.Specialist
}

// Handlers implements the bot's conversation: /start, specialist pick,
// /stop, /health, /list and /next.
type Handlers struct {
	Engine Engine
	Roster Roster
	// Status adds extra lines to /health; optional.
	Status  func() []string
	Timeout time.Duration
}

func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "start", Description: "подключиться и выбрать фамилию", Timeout: h.Timeout, Handle: h.start},
		{Name: "stop", Description: "отключиться от напоминаний", Timeout: h.Timeout, Handle: h.stop},
		{Name: "list", Description: "список напоминаний", Timeout: h.Timeout, Handle: h.list},
		{Name: "next", Description: "ближайшее напоминание", Timeout: h.Timeout, Handle: h.next},
		{Name: "health", Timeout: h.Timeout, Handle: h.health},
	}
}

func (h *Handlers) Callbacks() []CallbackRoute {
	return []CallbackRoute{
		{Scope: callbackScope, Action: callbackPick, Timeout: h.Timeout, Handle: h.pick},
	}
}

func (h *Handlers) start(ctx context.Context, req *Request) error {
	if err := req.Reply(ctx, WelcomeText, nil); err != nil {
		return err
	}
	roster := h.Roster.Specialists()
	if len(roster) == 0 {
		return req.Reply(ctx, emptyRosterText, nil)
	}
	return req.Reply(ctx, PickText, &kit.SendOptions{Keyboard: SpecialistKeyboard(roster)})
}

// SpecialistKeyboard renders one button per specialist. Surnames too long
// for callback data are addressed by roster position instead.
func SpecialistKeyboard(roster []catalog.Specialist) kit.Keyboard {
	kb := make(kit.Keyboard, 0, len(roster))
	for i, s := range roster {
		data := tgui.Data(callbackScope, callbackPick, s.Surname)
		if len(data) > callbackDataLimit {
			data = tgui.Data(callbackScope, callbackPick, "#"+strconv.Itoa(i))
		}
		kb = append(kb, []kit.Button{{Text: tgui.TruncRunes(s.Surname, buttonTextLimit), Data: data}})
	}
	return kb
}

func resolveSpecialist(roster []catalog.Specialist, payload string) (catalog.Specialist, bool) {
	if idx, ok := strings.CutPrefix(payload, "#"); ok {
		if i, err := strconv.Atoi(idx); err == nil && i >= 0 && i < len(roster) {
			return roster[i], true
		}
		return catalog.Specialist{}, false
	}
	for _, s := range roster {
		if s.Surname == payload {
			return s, true
		}
	}
	return catalog.Specialist{}, false
}

// ProjectsText renders the numbered project list shown after a pick.
func ProjectsText(projects []string) string {
	var b strings.Builder
	b.WriteString(tgui.B("ТВОИ ПРОЕКТЫ:").String())
	for i, p := range projects {
		fmt.Fprintf(&b, "\n%d. %s", i+1, tgui.Esc(p))
	}
	return b.String()
}

func (h *Handlers) pick(ctx context.Context, req *Request, payload string) error {
	spec, ok := resolveSpecialist(h.Roster.Specialists(), payload)
	if !ok {
		return req.Reply(ctx, specialistGoneText, nil)
	}
	ref := kit.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: req.MessageID}
	if err := req.Adapter.EditText(ctx, ref, ProjectsText(spec.Projects), &kit.SendOptions{ParseMode: "HTML"}); err != nil {
		req.Logger.Warn("project list edit failed", logx.Err(err))
	}
	_, err := h.Engine.Onboard(ctx, reminder.Onboarding{SubjectID: req.FromID, ChatID: req.Chat.ChatID, Specialist: spec})
	return err
}

func (h *Handlers) stop(ctx context.Context, req *Request) error {
	if err := h.Engine.Offboard(ctx, req.FromID, ""); err != nil {
		return err
	}
	return req.Reply(ctx, StopText, nil)
}

func (h *Handlers) list(ctx context.Context, req *Request) error {
	return h.notOnboarded(ctx, req, h.Engine.SendReminderList(ctx, req.FromID))
}

func (h *Handlers) next(ctx context.Context, req *Request) error {
	return h.notOnboarded(ctx, req, h.Engine.SendNearest(ctx, req.FromID))
}

func (h *Handlers) notOnboarded(ctx context.Context, req *Request, err error) error {
	if errors.Is(err, reminder.ErrUnknownSubject) {
		return req.Reply(ctx, notOnboardedText, nil)
	}
	return err
}

func (h *Handlers) health(ctx context.Context, req *Request) error {
	active := 0
	sessions := h.Engine.Snapshot()
	for _, s := range sessions {
		if s.State == reminder.StateActive {
			active++
		}
	}
	lines := []string{"OK", fmt.Sprintf("sessions: %d (active %d)", len(sessions), active)}
	if h.Status != nil {
		lines = append(lines, h.Status()...)
	}
	return req.Reply(ctx, strings.Join(lines, "\n"), &kit.SendOptions{DisablePreview: true})
}
