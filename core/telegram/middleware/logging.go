package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/callerbot/core/logger"
	tghelpers "github.com/m3rciful/callerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// LoggerMiddleware logs a single receipt line per update and sets rid.
// It deduplicates by update_id because routes wrap it again under the global chain.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		chatID, userID := tghelpers.ChatAndUser(c)

		if _, ok := tghelpers.ContextFrom(c); !ok {
			rid := logger.BuildRID(upd.ID, chatID, userID)
			c.Set("rid", rid)
			c.Set("update_start", time.Now())

			ctx := logger.WithRID(logger.Background(), rid)
			ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
			tghelpers.StoreContext(c, ctx)
		}

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			ctx := tghelpers.BuildContext(c)
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("rid", logger.RIDFrom(ctx)),
				slog.Int("update_id", upd.ID),
				slog.String("kind", UpdateKind(upd)),
			}
			if chat := c.Chat(); chat != nil {
				attrs = append(attrs,
					slog.Int64("chat_id", chatID),
					slog.String("chat_type", string(chat.Type)),
				)
			}
			if user := c.Sender(); user != nil {
				attrs = append(attrs, slog.Int64("user_id", userID))
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}

			switch {
			case upd.MyChatMember != nil && upd.MyChatMember.NewChatMember != nil:
				attrs = append(attrs, slog.String("member_status", string(upd.MyChatMember.NewChatMember.Role)))
			case upd.Message != nil:
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.String("payload", logger.MaskDigits(logger.SanitizeLimit(t, 256))))
				}
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}

		return next(c)
	}
}

// UpdateKind names the update for rate limiting and logs.
func UpdateKind(upd tele.Update) string {
	switch {
	case upd.Message != nil:
		return "message"
	case upd.MyChatMember != nil:
		return "membership"
	default:
		return "other"
	}
}
