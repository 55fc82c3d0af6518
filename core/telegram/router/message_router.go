package router

import (
	"strings"
	"time"

	tg "github.com/projectnox/bookingbot/core/telegram"
	"github.com/projectnox/bookingbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Conversations defines the minimal interface for an in-progress dialog manager.
type Conversations interface {
	Active(userID int64) bool
	HandleText(c tele.Context) error
}

// TextOptions controls fallback behaviour for plain text updates.
type TextOptions struct {
	UnknownText    tele.HandlerFunc
	UnknownCommand tele.HandlerFunc
}

// TextRoutes builds the handler for free-form text routing. Text sent while a
// dialog is active feeds the dialog unless it starts with a command prefix:
// registered commands are dispatched, unregistered ones are rejected instead
// of being captured as dialog input.
func TextRoutes(conv Conversations, reg *tg.Registry, opts TextOptions) []tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		text := c.Text()

		if strings.HasPrefix(text, "/") {
			if reg != nil {
				if key, cmd, ok := reg.LookupCommand(text); ok && cmd.Handler != nil {
					name := normalizeHandlerName(key)
					return handleWithSummary(c, name, start, "", "", func() error {
						return cmd.Handler(c)
					})
				}
			}
			if opts.UnknownCommand != nil {
				return handleWithSummary(c, "unknown_command", start, "", "", func() error {
					return opts.UnknownCommand(c)
				})
			}
			logHandlerSummary(c, "unknown_command", start, "skip", "ok", nil)
			return nil
		}

		if conv != nil && c.Sender() != nil && conv.Active(c.Sender().ID) {
			return handleWithSummary(c, "dialog", start, "", "", func() error {
				return conv.HandleText(c)
			})
		}

		if fb := textFallback(reg); fb != nil {
			return handleWithSummary(c, "fallback", start, "", "", func() error {
				return fb(c)
			})
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, "", "", func() error {
				return opts.UnknownText(c)
			})
		}

		logHandlerSummary(c, "unknown_text", start, "skip", "ok", nil)
		return nil
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
	}
}

func textFallback(reg *tg.Registry) tele.HandlerFunc {
	if reg == nil {
		return nil
	}
	return reg.TextFallback()
}
