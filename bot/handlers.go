package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/projectnox/bookingbot/booking"
	"github.com/projectnox/bookingbot/core/logger"
	tghelpers "github.com/projectnox/bookingbot/core/telegram/helpers"
	tgstate "github.com/projectnox/bookingbot/core/telegram/state"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

const (
	msgBroadcastFailed = "Could not record the booking. Please try again later."
	msgIdleHint        = "Use /start to begin a new booking."
	msgUnknownCommand  = "Unknown command."

	helpText = "/start - start a new booking\n" +
		"/restart - restart from the beginning\n" +
		"/cancel - cancel the current booking\n" +
		"/help - show this message"
)

// outboundSender abstracts the two delivery directions of machine output.
type outboundSender struct {
	user      func(text string) error
	broadcast func(text string) error
}

// sendAll delivers messages in order, stopping at the first failure and
// reporting which target failed. The machine emits the broadcast summary
// before the user confirmation, so a failed broadcast suppresses the
// confirmation that would follow it.
func sendAll(s outboundSender, outs []booking.Outbound) (booking.Target, error) {
	for _, o := range outs {
		var err error
		switch o.Target {
		case booking.TargetBroadcast:
			err = s.broadcast(o.Text)
		default:
			err = s.user(o.Text)
		}
		if err != nil {
			return o.Target, err
		}
	}
	return booking.TargetUser, nil
}

func hasBroadcast(outs []booking.Outbound) bool {
	for _, o := range outs {
		if o.Target == booking.TargetBroadcast {
			return true
		}
	}
	return false
}

// Active reports whether the user has a booking in progress.
func (a *App) Active(userID int64) bool {
	return a.sessions.Active(userID)
}

// HandleText feeds one line of dialog text into the machine. On completion the
// summary goes to the broadcast chat before the user confirmation; when that
// broadcast fails, the session is restored so the user can resubmit, and the
// failure is reported in place of the success ack.
func (a *App) HandleText(c tele.Context) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	return a.advanceSession(ctx, user.ID, c.Text(), a.senderFor(c))
}

func (a *App) advanceSession(ctx context.Context, userID int64, text string, send outboundSender) error {
	return a.sessions.Do(userID, func(s *tgstate.Session) error {
		prevState, prevFields := s.State, s.Fields
		st, f, outs := booking.Advance(booking.State(s.State), booking.Fields(s.Fields), text)
		s.State, s.Fields = string(st), map[string]string(f)

		if failed, err := sendAll(send, outs); err != nil {
			// Only a failed broadcast rolls the session back for a retry. A
			// failed ack after a successful broadcast must not: the booking
			// is already posted, and a retry would post it twice.
			if failed == booking.TargetBroadcast {
				s.State, s.Fields = prevState, prevFields
				logger.Error(ctx, "booking", "summary.broadcast_failed",
					slog.String("broadcast_chat", a.cfg.Booking.BroadcastChat),
					slog.String("state", s.State),
					slog.String("err", err.Error()),
				)
				if uerr := send.user(msgBroadcastFailed); uerr != nil {
					logger.Warn(ctx, "booking", "failure_notice.send_failed",
						slog.String("err", uerr.Error()),
					)
				}
			}
			return err
		}

		if hasBroadcast(outs) {
			logger.Info(ctx, "booking", "booking.created",
				slog.String("broadcast_chat", a.cfg.Booking.BroadcastChat),
			)
		} else if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "booking", "dialog.step",
				slog.String("state", string(st)),
			)
		}
		return nil
	})
}

// runCommand applies a command transition under the per-user session lock.
func (a *App) runCommand(ctx context.Context, userID int64, send outboundSender,
	fn func(booking.State, booking.Fields) (booking.State, booking.Fields, []booking.Outbound),
) error {
	return a.sessions.Do(userID, func(s *tgstate.Session) error {
		st, f, outs := fn(booking.State(s.State), booking.Fields(s.Fields))
		s.State, s.Fields = string(st), map[string]string(f)
		if logger.ShouldSampleDebug() {
			logger.Debug(ctx, "booking", "command.applied",
				slog.String("state", string(st)),
			)
		}
		_, err := sendAll(send, outs)
		return err
	})
}

func (a *App) command(c tele.Context, name string,
	fn func(booking.State, booking.Fields) (booking.State, booking.Fields, []booking.Outbound),
) error {
	user := c.Sender()
	if user == nil {
		return nil
	}
	ctx := tghelpers.WithHandler(c, name)
	return a.runCommand(ctx, user.ID, a.senderFor(c), fn)
}

func (a *App) cmdStart(c tele.Context) error {
	return a.command(c, "start", booking.Start)
}

func (a *App) cmdRestart(c tele.Context) error {
	return a.command(c, "restart", booking.Restart)
}

func (a *App) cmdCancel(c tele.Context) error {
	return a.command(c, "cancel", booking.Cancel)
}

func (a *App) cmdHelp(c tele.Context) error {
	return tghelpers.SendMD(c, helpText)
}

func (a *App) cmdStatus(c tele.Context) error {
	var errs uint64
	if d := a.dispatcher.Load(); d != nil {
		errs = d.ErrorCount()
	}
	return tghelpers.SendText(c, fmt.Sprintf("sessions: %d\nsend errors: %d", a.sessions.Count(), errs))
}

func (a *App) onIdleText(c tele.Context) error {
	return tghelpers.SendText(c, msgIdleHint)
}

func (a *App) onUnknownCommand(c tele.Context) error {
	return tghelpers.SendText(c, msgUnknownCommand)
}

func (a *App) senderFor(c tele.Context) outboundSender {
	return outboundSender{
		user: func(text string) error {
			return tghelpers.SendText(c, text)
		},
		broadcast: func(text string) error {
			return a.sendBroadcast(c.Bot(), text)
		},
	}
}

// sendBroadcast posts the summary synchronously so completion ordering holds.
func (a *App) sendBroadcast(api tele.API, text string) error {
	timeout := a.sendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	done := make(chan error, 1)
	go func() {
		_, err := api.Send(a.broadcast, text)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("broadcast send to %s timed out after %s", a.broadcast.Recipient(), timeout)
	}
}
