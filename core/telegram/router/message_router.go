package router

import (
	"strings"
	"time"

	tg "github.com/m3rciful/callerbot/core/telegram"
	"github.com/m3rciful/callerbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// UpdateOptions supplies the handlers behind the text and membership routes.
type UpdateOptions struct {
	// Text handles plain text that is not a registered command.
	Text tele.HandlerFunc
	// Membership handles my_chat_member updates for the bot itself.
	Membership tele.HandlerFunc
}

// UpdateRoutes builds handlers for text and membership routing. Text that
// names a registered command is sent to that command's handler, since
// telebot only matches command endpoints on exact prefixes.
func UpdateRoutes(reg *tg.Registry, opts UpdateOptions) []tg.Route {
	var routes []tg.Route

	if opts.Text != nil {
		text := func(c tele.Context) error {
			start := time.Now()
			if reg != nil && strings.HasPrefix(c.Text(), "/") {
				if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
					return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
						return cmd.Handler(c)
					})
				}
			}
			return handleWithSummary(c, "text", start, func() error {
				return opts.Text(c)
			})
		}
		routes = append(routes, tg.Route{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(text)),
		})
	}

	if opts.Membership != nil {
		member := func(c tele.Context) error {
			return handleWithSummary(c, "membership", time.Now(), func() error {
				return opts.Membership(c)
			})
		}
		routes = append(routes, tg.Route{
			Endpoint: tele.OnMyChatMember,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(member)),
		})
	}

	return routes
}
