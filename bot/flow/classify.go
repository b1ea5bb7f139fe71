package flow

import "strings"

// Command is a recognised bot command.
type Command string

// Recognised commands.
const (
	CmdStart          Command = "/start"
	CmdLogin          Command = "/login"
	CmdInstallationID Command = "/installation_id"
	CmdLogout         Command = "/logout"
	CmdStop           Command = "/stop"
	CmdInfo           Command = "/info"
	CmdSearch         Command = "/search"
)

// Commands lists every recognised command in menu order.
var Commands = []Command{CmdStart, CmdLogin, CmdInstallationID, CmdInfo, CmdLogout, CmdStop, CmdSearch}

func (c Command) known() bool {
	for _, k := range Commands {
		if k == c {
			return true
		}
	}
	return false
}

// Kind is the classification of an inbound event.
type Kind int

// Event kinds in classifier priority order.
const (
	KindPurge Kind = iota
	KindEmpty
	KindCommand
	KindReply
	KindUnhandled
)

func (k Kind) String() string {
	switch k {
	case KindPurge:
		return "purge"
	case KindEmpty:
		return "empty"
	case KindCommand:
		return "command"
	case KindReply:
		return "reply"
	case KindUnhandled:
		return "unhandled"
	}
	return "unknown"
}

// Classify maps an event to its kind. For KindCommand the matched command is
// returned with any @botname suffix removed.
func Classify(ev Event) (Kind, Command) {
	if ev.Removed {
		return KindPurge, ""
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return KindEmpty, ""
	}
	if !strings.HasPrefix(text, "/") {
		return KindReply, ""
	}
	cmd := Command(text)
	if at := strings.IndexByte(text, '@'); at > 0 && !strings.ContainsAny(text, " \t\n") {
		cmd = Command(text[:at])
	}
	if cmd.known() {
		return KindCommand, cmd
	}
	return KindUnhandled, ""
}
