package adapter

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"

	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	if got := splitText("short", 10, ""); len(got) != 1 || got[0] != "short" {
		t.Fatalf("got %q", got)
	}

	long := strings.Repeat("строка\n", 50)
	chunks := splitText(long, 60, "")
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	for _, c := range chunks {
		if utf8.RuneCountInString(c) > 60 {
			t.Fatalf("chunk too long: %d", utf8.RuneCountInString(c))
		}
		if strings.HasSuffix(c, "\n") || strings.HasPrefix(c, "\n") {
			t.Fatalf("chunk keeps newline padding: %q", c)
		}
	}
}

func TestSplitTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 18) + "<b>bold</b>"
	chunks := splitText(s, 20, "HTML")
	if len(chunks) < 2 || strings.Contains(chunks[0], "<") {
		t.Fatalf("chunks = %q", chunks)
	}
}

func TestInlineMarkup(t *testing.T) {
	t.Parallel()
	if inlineMarkup(nil) != nil {
		t.Fatal("empty keyboard must produce no markup")
	}
	rm := inlineMarkup(kit.Keyboard{{{Text: "Иванов", Data: "specialist:pick:Иванов"}}, {{Text: "Петров", Data: "specialist:pick:Петров"}}})
	if len(rm.InlineKeyboard) != 2 || rm.InlineKeyboard[1][0].Data != "specialist:pick:Петров" {
		t.Fatalf("markup = %+v", rm.InlineKeyboard)
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		err         error
		unreachable bool
	}{
		{"blocked", tele.ErrBlockedByUser, true},
		{"deactivated", tele.ErrUserIsDeactivated, true},
		{"chat not found", tele.ErrChatNotFound, true},
		{"other", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		if got := errors.Is(mapError(tt.err), kit.ErrRecipientUnreachable); got != tt.unreachable {
			t.Fatalf("%s: unreachable = %v", tt.name, got)
		}
	}
	if mapError(nil) != nil {
		t.Fatal("nil stays nil")
	}
}

func TestWebhookHandlerGuards(t *testing.T) {
	t.Parallel()
	a, err := New(Config{Token: "123:abc", Mode: ModeWebhook, WebhookURL: "https://example.org/webhook", SecretToken: "s3cret", Offline: true}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h := a.Handler()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("missing secret: code = %d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	req.Header.Set(secretHeader, "s3cret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("before start: code = %d", rr.Code)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("empty token must fail")
	}
	if _, err := New(Config{Token: "1:x", Mode: ModeWebhook, Offline: true}, logx.Nop()); err == nil {
		t.Fatal("webhook without url must fail")
	}
}
