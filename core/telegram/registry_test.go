package telegram

import (
	"testing"

	"github.com/projectnox/bookingbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

func testRegistry() *Registry {
	reg := NewRegistry()
	noop := func(c tele.Context) error { return nil }
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     noop,
		Description: "Cancel the current booking",
		Aliases:     []string{"bach"},
	})
	return reg
}

func TestLookupCommandByNameAndAlias(t *testing.T) {
	reg := testRegistry()

	for _, name := range []string{"/cancel", "cancel", "/bach", "bach"} {
		key, _, ok := reg.LookupCommand(name)
		if !ok {
			t.Fatalf("lookup %q failed", name)
		}
		if key != "/cancel" {
			t.Fatalf("lookup %q resolved to %q", name, key)
		}
	}

	if _, _, ok := reg.LookupCommand("/unknown"); ok {
		t.Fatal("unregistered command resolved")
	}
}

func TestLookupCommandStripsBotMention(t *testing.T) {
	reg := testRegistry()

	for _, name := range []string{"/cancel@BookingBot", "/bach@BookingBot"} {
		key, _, ok := reg.LookupCommand(name)
		if !ok {
			t.Fatalf("lookup %q failed", name)
		}
		if key != "/cancel" {
			t.Fatalf("lookup %q resolved to %q", name, key)
		}
	}

	if _, _, ok := reg.LookupCommand("/unknown@BookingBot"); ok {
		t.Fatal("unregistered mention resolved")
	}
}
