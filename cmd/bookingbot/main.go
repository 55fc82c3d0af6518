package main

import (
	"fmt"
	"os"

	"github.com/projectnox/bookingbot/bot"
	"github.com/projectnox/bookingbot/core/buildinfo"
	corecmd "github.com/projectnox/bookingbot/core/cmd"
)

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "version" || os.Args[1] == "--version") {
		fmt.Printf("bookingbot %s (%s %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		return
	}

	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "configs/config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return bot.LoadConfig(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return bot.Bootstrap(cfg)
		},
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "bookingbot:", err)
		os.Exit(1)
	}
}
