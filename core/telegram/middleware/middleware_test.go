package middleware

import (
	"errors"
	"testing"
	"time"

	tghelpers "github.com/m3rciful/callerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	return b
}

func message(id int, chatID int64, text string) tele.Update {
	return tele.Update{ID: id, Message: &tele.Message{
		Chat:   &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
		Sender: &tele.User{ID: chatID},
		Text:   text,
	}}
}

func membership(id int, chatID int64) tele.Update {
	return tele.Update{ID: id, MyChatMember: &tele.ChatMemberUpdate{
		Chat:          &tele.Chat{ID: chatID, Type: tele.ChatPrivate},
		NewChatMember: &tele.ChatMember{Role: tele.Kicked},
	}}
}

func TestRateLimitPerChat(t *testing.T) {
	b := offlineBot(t)
	clock := time.Unix(1000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Exclude:   map[string]struct{}{"membership": {}},
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return clock },
	})
	handled := 0
	h := mw(func(tele.Context) error { handled++; return nil })

	_ = h(b.NewContext(message(1, 42, "/start")))
	_ = h(b.NewContext(message(2, 42, "/login")))
	_ = h(b.NewContext(message(3, 43, "/start")))
	_ = h(b.NewContext(membership(4, 42)))
	clock = clock.Add(time.Second)
	_ = h(b.NewContext(message(5, 42, "/info")))

	if handled != 4 || limited != 1 {
		t.Fatalf("handled = %d limited = %d", handled, limited)
	}
}

func TestRecoverMiddlewareReturnsPanicAsError(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(b.NewContext(message(1, 42, "x"))); err == nil {
		t.Fatal("expected panic to surface as an error")
	}

	want := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return want })
	if err := h(b.NewContext(message(2, 42, "x"))); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoggerMiddlewareStoresContext(t *testing.T) {
	b := offlineBot(t)
	c := b.NewContext(message(7, 42, "hello"))
	var rid string
	h := LoggerMiddleware(func(c tele.Context) error {
		rid, _ = c.Get("rid").(string)
		if _, ok := tghelpers.ContextFrom(c); !ok {
			t.Fatal("context not stored")
		}
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rid == "" {
		t.Fatal("rid not set")
	}
}

func TestUpdateKind(t *testing.T) {
	if got := UpdateKind(message(1, 1, "x")); got != "message" {
		t.Fatalf("kind = %q", got)
	}
	if got := UpdateKind(membership(1, 1)); got != "membership" {
		t.Fatalf("kind = %q", got)
	}
	if got := UpdateKind(tele.Update{}); got != "other" {
		t.Fatalf("kind = %q", got)
	}
}

func TestMetricsCountsSends(t *testing.T) {
	c := &sendCountingContext{Context: offlineBot(t).NewContext(message(1, 42, "x"))}
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		_ = c.Send("one")
		_ = c.Send("two")
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := GetCounters(c); got != 2 {
		t.Fatalf("messages = %d", got)
	}
}

// sendCountingContext swallows sends so no network call is made.
type sendCountingContext struct {
	tele.Context
}

func (sendCountingContext) Send(interface{}, ...interface{}) error { return nil }
