// Package notify delivers the engine's fire-and-forget side effects: typing
// indicators, analytics pings and operator incident reports.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/m3rciful/callerbot/bot/flow"
	"github.com/m3rciful/callerbot/core/logger"
	"github.com/m3rciful/callerbot/core/telegram/sender"

	slackapi "github.com/slack-go/slack"
	tele "gopkg.in/telebot.v4"
)

// TelegramAPI is the part of *tele.Bot used here.
type TelegramAPI interface {
	Notify(to tele.Recipient, action tele.ChatAction, threadID ...int) error
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// SlackPoster is the part of *slack.Client used for incident reports.
type SlackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Options wires a Notifier. Every sink is optional.
type Options struct {
	Dispatcher   *sender.Dispatcher
	Bot          TelegramAPI
	Typing       bool
	AdminChatID  int64
	AnalyticsURL string
	HTTPClient   *http.Client
	Slack        SlackPoster
	SlackChannel string
}

// Notifier implements flow.Notifier on top of the async dispatcher.
type Notifier struct {
	disp         *sender.Dispatcher
	bot          TelegramAPI
	typing       bool
	adminChatID  int64
	analyticsURL string
	http         *http.Client
	slack        SlackPoster
	slackChannel string
}

var _ flow.Notifier = (*Notifier)(nil)

// New returns a Notifier. A nil dispatcher disables every sink.
func New(opts Options) *Notifier {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &Notifier{
		disp:         opts.Dispatcher,
		bot:          opts.Bot,
		typing:       opts.Typing,
		adminChatID:  opts.AdminChatID,
		analyticsURL: opts.AnalyticsURL,
		http:         client,
		slack:        opts.Slack,
		slackChannel: opts.SlackChannel,
	}
}

// Typing shows the typing indicator in chatID.
func (n *Notifier) Typing(ctx context.Context, chatID int64) {
	if !n.typing || n.bot == nil {
		return
	}
	n.enqueue(ctx, "notify.typing", "sendChatAction", func() error {
		return n.bot.Notify(tele.ChatID(chatID), tele.Typing)
	})
}

type trackPayload struct {
	ChatID    int64  `json:"chat_id"`
	Event     string `json:"event"`
	Timestamp int64  `json:"ts"`
}

// Track posts an analytics event.
func (n *Notifier) Track(ctx context.Context, chatID int64, event string) {
	if n.analyticsURL == "" {
		return
	}
	body, err := json.Marshal(trackPayload{ChatID: chatID, Event: event, Timestamp: time.Now().Unix()})
	if err != nil {
		return
	}
	n.enqueue(ctx, "notify.track", "analytics", func() error {
		req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, n.analyticsURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.http.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return &sender.StatusError{Service: "analytics", Code: resp.StatusCode}
		}
		return nil
	})
}

// Report sends an incident to the operator chat and, when configured, Slack.
func (n *Notifier) Report(ctx context.Context, inc flow.Incident) {
	if n.bot != nil && n.adminChatID != 0 {
		text := FormatIncident(inc)
		n.enqueue(ctx, "notify.report", "sendMessage", func() error {
			_, err := n.bot.Send(tele.ChatID(n.adminChatID), text, &tele.SendOptions{
				ParseMode:             tele.ModeMarkdownV2,
				DisableWebPagePreview: true,
			})
			return err
		})
	}
	if n.slack != nil && n.slackChannel != "" {
		summary, att := SlackIncident(inc)
		n.enqueue(ctx, "notify.report", "slack.postMessage", func() error {
			_, _, err := n.slack.PostMessageContext(context.WithoutCancel(ctx), n.slackChannel,
				slackapi.MsgOptionText(summary, false),
				slackapi.MsgOptionAttachments(att),
			)
			return err
		})
	}
}

func (n *Notifier) enqueue(ctx context.Context, action, endpoint string, run func() error) {
	if n.disp == nil {
		return
	}
	// Jobs outlive the request; keep its values but not its cancellation.
	jobCtx := context.WithoutCancel(ctx)
	if err := n.disp.Enqueue(jobCtx, action, endpoint, run); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, sender.ErrQueueClosed) {
			level = slog.LevelDebug
		}
		logger.Event(ctx, "notify", level, "notify.drop",
			slog.String("action", action),
			slog.String("endpoint", endpoint),
			slog.String("err", err.Error()),
		)
	}
}
