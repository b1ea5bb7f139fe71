package webhook

import (
	"github.com/m3rciful/callerbot/bot/flow"

	tele "gopkg.in/telebot.v4"
)

// EventFromUpdate reduces a Telegram update to an engine event. ok is false
// for updates the bot does not act on (edits, callbacks, joins, ...).
func EventFromUpdate(u tele.Update) (flow.Event, bool) {
	switch {
	case u.MyChatMember != nil:
		m := u.MyChatMember
		if m.Chat == nil || m.NewChatMember == nil {
			return flow.Event{}, false
		}
		switch m.NewChatMember.Role {
		case tele.Kicked, tele.Left:
		default:
			return flow.Event{}, false
		}
		ev := flow.Event{UpdateID: u.ID, ChatID: m.Chat.ID, Removed: true}
		if m.Sender != nil {
			ev.UserID = m.Sender.ID
		}
		return ev, true
	case u.Message != nil:
		msg := u.Message
		if msg.Chat == nil {
			return flow.Event{}, false
		}
		ev := flow.Event{UpdateID: u.ID, ChatID: msg.Chat.ID, Text: msg.Text}
		if msg.Sender != nil {
			ev.UserID = msg.Sender.ID
		}
		return ev, true
	}
	return flow.Event{}, false
}
