package app

import (
	"github.com/m3rciful/callerbot/bot/flow"
	"github.com/m3rciful/callerbot/bot/webhook"
	coretelegram "github.com/m3rciful/callerbot/core/telegram"
	"github.com/m3rciful/callerbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/callerbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

type menuEntry struct {
	description string
	hidden      bool
}

// menu describes the commands in the Telegram command list. /stop and
// /search are routed but not advertised.
var menu = map[flow.Command]menuEntry{
	flow.CmdStart:          {description: "How to log in"},
	flow.CmdLogin:          {description: "Log in with your phone number"},
	flow.CmdInstallationID: {description: "Log in with an installation id"},
	flow.CmdInfo:           {description: "Show the current session"},
	flow.CmdLogout:         {description: "Forget the current session"},
	flow.CmdStop:           {description: "Stop the bot", hidden: true},
	flow.CmdSearch:         {description: "Look up a number", hidden: true},
}

func buildRegistry(handler tele.HandlerFunc) *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	for _, cmd := range flow.Commands {
		entry := menu[cmd]
		reg.RegisterCommand(string(cmd), commands.Command{
			Handler:     handler,
			Description: entry.description,
			Hidden:      entry.hidden,
		})
	}
	return reg
}

// handle feeds a long-polled update through the engine and sends the reply.
func (a *App) handle(c tele.Context) error {
	ev, ok := webhook.EventFromUpdate(c.Update())
	if !ok {
		return nil
	}
	reply := a.engine.Process(tghelpers.BuildContext(c), ev)
	if reply.Empty() {
		return nil
	}
	return tghelpers.SendWithMode(c, reply.Text, tele.ParseMode(reply.ParseMode))
}
