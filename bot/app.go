package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	coreconfig "github.com/projectnox/bookingbot/core/config"
	"github.com/projectnox/bookingbot/core/logger"
	coretelegram "github.com/projectnox/bookingbot/core/telegram"
	"github.com/projectnox/bookingbot/core/telegram/commands"
	tgmiddleware "github.com/projectnox/bookingbot/core/telegram/middleware"
	tgrouter "github.com/projectnox/bookingbot/core/telegram/router"
	tgsender "github.com/projectnox/bookingbot/core/telegram/sender"
	tgstate "github.com/projectnox/bookingbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// App wires the booking conversation to the Telegram runtime.
type App struct {
	cfg         *coreconfig.Config
	sessions    tgstate.Manager
	broadcast   tele.Recipient
	sendTimeout time.Duration

	dispatcher atomic.Pointer[tgsender.Dispatcher]
}

// New initializes logging and builds the application.
func New(cfg *Config) (*App, error) {
	core := cfg.CoreConfig()
	if core == nil {
		return nil, fmt.Errorf("bot: nil config provided")
	}
	if err := logger.InitLogger(core); err != nil {
		return nil, fmt.Errorf("bot: logger init failed: %w", err)
	}

	return &App{
		cfg:         core,
		sessions:    tgstate.NewMemoryManager(),
		broadcast:   broadcastChat(core.Booking.BroadcastChat),
		sendTimeout: time.Duration(core.Booking.SendTimeoutSeconds) * time.Second,
	}, nil
}

// Bootstrap adapts New to the core cmd pipeline.
func Bootstrap(carrier interface{ CoreConfig() *coreconfig.Config }) (*App, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		cfg = &Config{Core: carrier.CoreConfig()}
	}
	return New(cfg)
}

// TelegramRunOptions assembles routes, middlewares, and lifecycle hooks.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.cmdStart,
		Description: "Start a new booking",
		Aliases:     []string{"tos"},
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     a.cmdCancel,
		Description: "Cancel the current booking",
		Aliases:     []string{"bach"},
	})
	reg.RegisterCommand("/restart", commands.Command{
		Handler:     a.cmdRestart,
		Description: "Restart the booking from the beginning",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.cmdHelp,
		Description: "Show available commands",
	})
	reg.RegisterCommand("/status", commands.Command{
		Handler:     a.cmdStatus,
		Description: "Show runtime counters",
		AdminOnly:   true,
		Hidden:      true,
	})

	reg.SetTextFallback(a.onIdleText)

	routes := tgrouter.CommandRoutes(reg, tgrouter.CommandRouteOptions{
		AdminID: a.cfg.Telegram.AdminID,
	})
	routes = append(routes, tgrouter.TextRoutes(a, reg, tgrouter.TextOptions{
		UnknownCommand: a.onUnknownCommand,
	})...)

	middlewares := []coretelegram.Middleware{
		{Name: "metrics", Use: tgmiddleware.MessageMetricsMiddleware},
	}
	if interval := a.cfg.RateLimit.Interval(); interval > 0 {
		middlewares = append(middlewares, coretelegram.Middleware{
			Name: "rate_limit",
			Use: tgmiddleware.RateLimitMiddleware(tgmiddleware.RateLimitOptions{
				Interval: interval,
				Exclude:  a.cfg.RateLimit.ExclusionSet(),
			}),
		})
	}

	return coretelegram.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.dispatcher.Store(rt.Dispatcher)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.dispatcher.Store(nil)
			return nil
		},
	}, nil
}

// broadcastChat is the fixed summary destination, either an @channel username
// or a numeric chat id in string form.
type broadcastChat string

func (b broadcastChat) Recipient() string { return string(b) }
