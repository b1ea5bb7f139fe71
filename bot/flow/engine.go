// Package flow implements the per-chat authentication state machine and the
// lookup step that follows it.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/m3rciful/callerbot/bot/provider"
	"github.com/m3rciful/callerbot/bot/session"
	"github.com/m3rciful/callerbot/core/logger"
)

// ParseModeMarkdownV2 is the Telegram parse mode used by rich replies.
const ParseModeMarkdownV2 = "MarkdownV2"

// Event is one inbound chat update reduced to what the state machine needs.
type Event struct {
	UpdateID int
	ChatID   int64
	UserID   int64
	Text     string
	// Removed is set when the bot was blocked or removed from the chat.
	Removed bool
}

// Reply is the single answer to an event. The zero Reply means no message.
type Reply struct {
	Text      string
	ParseMode string
}

// Empty reports whether r sends nothing.
func (r Reply) Empty() bool { return r.Text == "" }

func plain(text string) Reply { return Reply{Text: text} }

func markdown(text string) Reply { return Reply{Text: text, ParseMode: ParseModeMarkdownV2} }

// Incident describes a failed invocation for the operator report.
type Incident struct {
	ChatID   int64
	UpdateID int
	Text     string
	Err      error
	Stack    []byte
}

// Notifier receives the fire-and-forget side effects of the engine. None of
// its methods may block on network I/O.
type Notifier interface {
	Typing(ctx context.Context, chatID int64)
	Track(ctx context.Context, chatID int64, event string)
	Report(ctx context.Context, inc Incident)
}

type nopNotifier struct{}

func (nopNotifier) Typing(context.Context, int64)        {}
func (nopNotifier) Track(context.Context, int64, string) {}
func (nopNotifier) Report(context.Context, Incident)     {}

// Options wires an Engine.
type Options struct {
	Store    session.Store
	Auth     provider.Auth
	Lookup   provider.Lookup
	Notifier Notifier
	// Locks serializes events of the same chat when set.
	Locks *session.ChatLocks
}

// Engine applies events to sessions.
type Engine struct {
	store    session.Store
	auth     provider.Auth
	lookup   provider.Lookup
	notifier Notifier
	locks    *session.ChatLocks
}

// NewEngine validates opts and returns an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("flow: store is required")
	}
	if opts.Auth == nil || opts.Lookup == nil {
		return nil, errors.New("flow: auth and lookup providers are required")
	}
	n := opts.Notifier
	if n == nil {
		n = nopNotifier{}
	}
	return &Engine{
		store:    opts.Store,
		auth:     opts.Auth,
		lookup:   opts.Lookup,
		notifier: n,
		locks:    opts.Locks,
	}, nil
}

// outcome is the result of one transition. It is applied by Handle: the next
// record is persisted before the analytics event and the reply go out.
type outcome struct {
	next   session.State
	delete bool
	track  Command
	reply  Reply
}

// Handle runs one event through the state machine. Errors are infrastructure
// or unexpected provider failures; user mistakes are answered with a reply.
func (e *Engine) Handle(ctx context.Context, ev Event) (Reply, error) {
	kind, cmd := Classify(ev)
	if kind == KindEmpty {
		logger.Debug(ctx, "flow", "event.skip", slog.String("reason", "empty_text"))
		return Reply{}, nil
	}
	if ev.ChatID == 0 {
		return Reply{}, session.ErrInvalidChatID
	}
	if e.locks != nil {
		unlock := e.locks.Lock(ev.ChatID)
		defer unlock()
	}

	if kind == KindPurge {
		if err := e.store.Delete(ctx, ev.ChatID); err != nil {
			return Reply{}, err
		}
		e.notifier.Track(ctx, ev.ChatID, string(CmdStop))
		logger.Info(ctx, "flow", "session.purge", slog.String("outcome", "purged"))
		return Reply{}, nil
	}

	e.notifier.Typing(ctx, ev.ChatID)

	sess, err := e.load(ctx, ev)
	if err != nil {
		return Reply{}, err
	}

	var out outcome
	switch kind {
	case KindCommand:
		out = e.command(sess, cmd)
	case KindReply:
		out, err = e.reply(ctx, sess, strings.TrimSpace(ev.Text))
		if err != nil {
			return Reply{}, err
		}
	default:
		out = outcome{reply: plain(msgUnhandled)}
	}

	if err := e.apply(ctx, sess, out); err != nil {
		return Reply{}, err
	}
	return out.reply, nil
}

// load reads the chat's session. A record that no longer decodes is reported
// and replaced by a fresh logged_out session, so commands keep working and the
// next write overwrites it.
func (e *Engine) load(ctx context.Context, ev Event) (session.Session, error) {
	sess, err := e.store.Get(ctx, ev.ChatID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, session.ErrInvalidRecord) {
		return session.Session{}, err
	}
	logger.Warn(ctx, "flow", "session.corrupt",
		slog.String("outcome", "reset"),
		slog.String("err", err.Error()),
	)
	e.notifier.Report(ctx, Incident{ChatID: ev.ChatID, UpdateID: ev.UpdateID, Text: ev.Text, Err: err})
	return session.New(ev.ChatID), nil
}

func (e *Engine) apply(ctx context.Context, sess session.Session, out outcome) error {
	from := sess.Status()
	switch {
	case out.delete:
		if err := e.store.Delete(ctx, sess.ChatID); err != nil {
			return err
		}
		logTransition(ctx, from, session.StatusLoggedOut)
	case out.next != nil:
		if err := e.store.Set(ctx, sess.With(out.next)); err != nil {
			return err
		}
		logTransition(ctx, from, out.next.Status())
	default:
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "flow", "session.keep",
				slog.String("from_state", string(from)),
				slog.String("outcome", "unchanged"),
			)
		}
	}
	if out.track != "" {
		e.notifier.Track(ctx, sess.ChatID, string(out.track))
	}
	return nil
}

func logTransition(ctx context.Context, from, to session.Status) {
	logger.Info(ctx, "flow", "session.transition",
		slog.String("from_state", string(from)),
		slog.String("to_state", string(to)),
		slog.String("outcome", "transition"),
	)
}

// Process is Handle with top-level error handling: any error or panic is
// logged, reported to the operator and answered with a generic reply, so the
// transport always gets exactly one well-formed answer.
func (e *Engine) Process(ctx context.Context, ev Event) (reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("flow: panic: %v", r)
			reply = e.fail(ctx, ev, err, debug.Stack())
		}
	}()
	r, err := e.Handle(ctx, ev)
	if err != nil {
		return e.fail(ctx, ev, err, nil)
	}
	return r
}

func (e *Engine) fail(ctx context.Context, ev Event, err error, stack []byte) Reply {
	logger.Error(ctx, "flow", "event.fail",
		slog.String("status", "fail"),
		slog.String("error", err.Error()),
	)
	inc := Incident{
		ChatID:   ev.ChatID,
		UpdateID: ev.UpdateID,
		Text:     ev.Text,
		Err:      err,
		Stack:    stack,
	}
	if inc.Stack == nil {
		var pe *provider.Error
		if !errors.As(err, &pe) {
			inc.Stack = debug.Stack()
		}
	}
	e.notifier.Report(ctx, inc)

	if ev.Removed || ev.ChatID == 0 {
		return Reply{}
	}
	msg := msgInternalError
	var pe *provider.Error
	if errors.As(err, &pe) && pe.UserMessage() != "" {
		msg = pe.UserMessage()
	}
	return plain(msg + " " + msgIncidentReported)
}
