package tgui

import "testing"

func TestHTMLHelpers(t *testing.T) {
	t.Parallel()
	if got := B("a<b>"); got != "<b>a&lt;b&gt;</b>" {
		t.Fatalf("B = %q", got)
	}
	if got := JoinH("\n", B("x"), Esc("  "), Esc("y&z")); got != "<b>x</b>\ny&amp;z" {
		t.Fatalf("JoinH = %q", got)
	}
	if got := JoinH(","); got != "" {
		t.Fatalf("empty JoinH = %q", got)
	}
}

func TestCallbackData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		data                   string
		scope, action, payload string
		ok                     bool
	}{
		{Data("specialist", "pick", "Иванов"), "specialist", "pick", "Иванов", true},
		{Data("specialist", "pick", "a:b"), "specialist", "pick", "a:b", true},
		{Data("s", "a", ""), "s", "a", "", true},
		{"nocolon", "", "", "", false},
		{":pick:x", "", "", "", false},
	}
	for _, tt := range tests {
		scope, action, payload, ok := ParseData(tt.data)
		if ok != tt.ok || scope != tt.scope || action != tt.action || payload != tt.payload {
			t.Fatalf("ParseData(%q) = %q %q %q %v", tt.data, scope, action, payload, ok)
		}
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Иванов", 10, "Иванов"},
		{"Иванов", 6, "Иванов"},
		{"Иванов", 4, "Ива…"},
		{"abc", 1, "…"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := TruncRunes(tt.in, tt.n); got != tt.want {
			t.Fatalf("TruncRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
