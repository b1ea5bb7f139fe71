package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"github.com/m3rciful/callerbot/bot/config"
	"github.com/m3rciful/callerbot/bot/session"
	coreconfig "github.com/m3rciful/callerbot/core/config"
	coretelegram "github.com/m3rciful/callerbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

func providerServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/sendOnboardingOtp", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":1,"message":"Sent","requestId":"req-1","tokenTtl":300}`))
	})
	mux.HandleFunc("/v1/verifyOnboardingOtp", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":2,"installationId":"inst-1","ttl":3600}`))
	})
	mux.HandleFunc("/v2/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer inst-1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":40101,"message":"Unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"name":"Jane Roe","phones":[{"e164Format":"+14155552671","countryCode":"US"}]}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, runMode string) *config.Config {
	t.Helper()
	srv := providerServer(t)
	cfg := &config.Config{
		Config: coreconfig.Config{
			Telegram: coreconfig.TelegramConfig{Token: "123:abc", RunMode: runMode},
			Webhook:  coreconfig.WebhookConfig{Port: 8080, SecretToken: "s3cret"},
		},
		Provider: config.ProviderConfig{AuthURL: srv.URL, SearchURL: srv.URL},
	}
	if err := config.Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	off := false
	cfg.Notify.Typing = &off
	return cfg
}

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Offline: true})
	if err != nil {
		t.Fatalf("bot: %v", err)
	}
	return b
}

func newApp(t *testing.T, cfg *config.Config, deps Deps) *App {
	t.Helper()
	if deps.Bot == nil {
		deps.Bot = offlineBot(t)
	}
	a, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = a.stop(context.Background(), coretelegram.Runtime{}) })
	return a
}

func deliver(t *testing.T, h http.Handler, path, text string) map[string]any {
	t.Helper()
	body := `{"update_id":1,"message":{"message_id":1,"date":1,"from":{"id":7,"is_bot":false,"first_name":"A"},"chat":{"id":42,"type":"private"},"text":` + quote(text) + `}}`
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("%q: status = %d", text, rec.Code)
	}
	if rec.Body.Len() == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%q: decode %q: %v", text, rec.Body.String(), err)
	}
	return out
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestWebhookConversationEndToEnd(t *testing.T) {
	cfg := testConfig(t, coreconfig.RunModeWebhook)
	a := newApp(t, cfg, Deps{})
	srv := a.WebhookServer()
	gin.SetMode(gin.TestMode)
	h := srv.Handler()
	path := cfg.Webhook.Path

	steps := []struct {
		text string
		want string
	}{
		{"/start", "Welcome!"},
		{"/login", "phone number"},
		{"+447911123456", "OTP"},
		{"123456", "logged in"},
		{"+14155552671", "Jane Roe"},
	}
	for _, step := range steps {
		out := deliver(t, h, path, step.text)
		if out == nil {
			t.Fatalf("%q: empty reply", step.text)
		}
		if out["method"] != "sendMessage" || out["chat_id"] != float64(42) {
			t.Fatalf("%q: reply = %v", step.text, out)
		}
		if got, _ := out["text"].(string); !strings.Contains(got, step.want) {
			t.Fatalf("%q: text = %q, want to contain %q", step.text, got, step.want)
		}
	}

	removed := `{"update_id":2,"my_chat_member":{"chat":{"id":42,"type":"private"},"date":1,` +
		`"old_chat_member":{"user":{"id":1,"is_bot":true,"first_name":"bot"},"status":"member"},` +
		`"new_chat_member":{"user":{"id":1,"is_bot":true,"first_name":"bot"},"status":"kicked"}}}`
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(removed))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("removal: status = %d body = %q", rec.Code, rec.Body.String())
	}
	if out := deliver(t, h, path, "/info"); !strings.Contains(out["text"].(string), "logged\\_out") {
		t.Fatalf("session survived removal: %v", out)
	}
}

func TestTelegramRunOptionsByMode(t *testing.T) {
	webhookApp := newApp(t, testConfig(t, coreconfig.RunModeWebhook), Deps{})
	opts, err := webhookApp.TelegramRunOptions()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Serve == nil || len(opts.Routes) != 0 || opts.Bot == nil {
		t.Fatalf("webhook options = %+v", opts)
	}

	pollApp := newApp(t, testConfig(t, coreconfig.RunModeLongpoll), Deps{})
	opts, err = pollApp.TelegramRunOptions()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Serve != nil || len(opts.Routes) == 0 || len(opts.Middlewares) == 0 {
		t.Fatalf("longpoll options = %+v", opts)
	}
}

func TestRegistryMenu(t *testing.T) {
	a := newApp(t, testConfig(t, coreconfig.RunModeWebhook), Deps{})
	visible := a.Registry().ListCommands(true)
	var names []string
	for _, c := range visible {
		names = append(names, c.Text)
	}
	if strings.Join(names, ",") != "info,installation_id,login,logout,start" {
		t.Fatalf("menu = %v", names)
	}
	if len(a.Registry().Commands()) != 7 {
		t.Fatalf("commands = %d", len(a.Registry().Commands()))
	}
}

func TestRedisStoreWiring(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, coreconfig.RunModeWebhook)
	cfg.Store.Driver = config.StoreRedis
	cfg.Store.Redis.Addr = mr.Addr()
	cfg.Store.Redis.KeyPrefix = "test:"

	a := newApp(t, cfg, Deps{})
	deliver(t, a.WebhookServer().Handler(), cfg.Webhook.Path, "/login")

	raw, err := mr.Get("test:42")
	if err != nil {
		t.Fatalf("session not stored in redis: %v", err)
	}
	sess, err := session.Unmarshal(42, []byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sess.Status() != session.StatusAwaitingPhoneNo {
		t.Fatalf("status = %s", sess.Status())
	}
}

func TestRedisUnreachable(t *testing.T) {
	cfg := testConfig(t, coreconfig.RunModeWebhook)
	cfg.Store.Driver = config.StoreRedis
	cfg.Store.Redis.Addr = "127.0.0.1:1"
	if _, err := New(cfg, Deps{Bot: offlineBot(t)}); err == nil {
		t.Fatal("expected redis ping failure")
	}
}
