package reminder

import (
	"context"

	kit "remindbot/internal/transport"
)

// Queue accepts outgoing notifications; notifier.Service implements it.
type Queue interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// ChatNotifier renders reminders and hands them to the notification queue.
// Its notifications skip dedup: a repeated reminder text is a new due task.
type ChatNotifier struct {
	q       Queue
	channel string
}

func NewChatNotifier(q Queue) *ChatNotifier {
	return &ChatNotifier{q: q, channel: "telegram"}
}

func (n *ChatNotifier) SendReminder(ctx context.Context, r Reminder) error {
	return n.send(ctx, r.ChatID, ReminderText(r), 5)
}

func (n *ChatNotifier) SendText(ctx context.Context, chatID int64, text string) error {
	return n.send(ctx, chatID, text, 1)
}

func (n *ChatNotifier) send(ctx context.Context, chatID int64, text string, prio int) error {
	if text == "" {
		return nil
	}
	return n.q.Notify(ctx, kit.Notification{
		Channel:  n.channel,
		Priority: prio,
		Target:   kit.ChatTarget{ChatID: chatID},
		Text:     text,
		Options:  &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
		NoDedup:  true,
	})
}
