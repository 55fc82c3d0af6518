package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/projectnox/bookingbot/booking"
	coreconfig "github.com/projectnox/bookingbot/core/config"
	tgstate "github.com/projectnox/bookingbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

func newTestApp() *App {
	return &App{
		cfg:      &coreconfig.Config{},
		sessions: tgstate.NewMemoryManager(),
	}
}

// recorder captures delivered messages per destination in arrival order.
type recorder struct {
	log          []string
	userErr      error
	broadcastErr error
}

func (r *recorder) sender() outboundSender {
	return outboundSender{
		user: func(text string) error {
			if r.userErr != nil {
				r.log = append(r.log, "user_failed")
				return r.userErr
			}
			r.log = append(r.log, "user:"+text)
			return nil
		},
		broadcast: func(text string) error {
			if r.broadcastErr != nil {
				r.log = append(r.log, "broadcast_failed")
				return r.broadcastErr
			}
			r.log = append(r.log, "broadcast:"+text)
			return nil
		},
	}
}

func drive(t *testing.T, a *App, rec *recorder, userID int64, inputs ...string) {
	t.Helper()
	for _, in := range inputs {
		if err := a.advanceSession(context.Background(), userID, in, rec.sender()); err != nil {
			t.Fatalf("advance %q: %v", in, err)
		}
	}
}

func TestFullConversationBroadcastsThenConfirms(t *testing.T) {
	a := newTestApp()
	rec := &recorder{}

	if err := a.runCommand(context.Background(), 7, rec.sender(), booking.Start); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !a.Active(7) {
		t.Fatal("session not active after start")
	}

	drive(t, a, rec, 7, "Alice", "alice@example.com", "Portrait", "12/12/2024", "14:00", "3", "250.00")

	if a.Active(7) {
		t.Fatal("session still active after completion")
	}
	if a.sessions.Count() != 0 {
		t.Fatalf("session count = %d after completion", a.sessions.Count())
	}

	// The two final entries must be the broadcast summary then the user ack.
	n := len(rec.log)
	if n < 2 {
		t.Fatalf("log too short: %v", rec.log)
	}
	if got := rec.log[n-2]; !strings.HasPrefix(got, "broadcast:") {
		t.Fatalf("second-to-last delivery = %q, want broadcast", got)
	}
	if rec.log[n-1] != "user:Booking created successfully!" {
		t.Fatalf("last delivery = %q", rec.log[n-1])
	}
}

func TestBroadcastFailureSuppressesAckAndKeepsSession(t *testing.T) {
	a := newTestApp()
	rec := &recorder{}

	if err := a.runCommand(context.Background(), 7, rec.sender(), booking.Start); err != nil {
		t.Fatalf("start: %v", err)
	}
	drive(t, a, rec, 7, "Alice", "alice@example.com", "Portrait", "12/12/2024", "14:00", "3")

	rec.broadcastErr = errors.New("channel unavailable")
	rec.log = nil
	if err := a.advanceSession(context.Background(), 7, "250.00", rec.sender()); err == nil {
		t.Fatal("want error from failed broadcast")
	}

	for _, line := range rec.log {
		if line == "user:Booking created successfully!" {
			t.Fatal("success ack sent despite broadcast failure")
		}
	}
	if rec.log[len(rec.log)-1] != "user:"+msgBroadcastFailed {
		t.Fatalf("last delivery = %q, want failure notice", rec.log[len(rec.log)-1])
	}

	// Session must survive so the user can resubmit the price.
	if !a.Active(7) {
		t.Fatal("session dropped after failed broadcast")
	}
	rec.broadcastErr = nil
	rec.log = nil
	if err := a.advanceSession(context.Background(), 7, "250.00", rec.sender()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if a.Active(7) {
		t.Fatal("session still active after successful resubmit")
	}
	if rec.log[len(rec.log)-1] != "user:Booking created successfully!" {
		t.Fatalf("resubmit log = %v", rec.log)
	}
}

func TestAckFailureAfterBroadcastDoesNotRepeatBroadcast(t *testing.T) {
	a := newTestApp()
	rec := &recorder{}

	if err := a.runCommand(context.Background(), 7, rec.sender(), booking.Start); err != nil {
		t.Fatalf("start: %v", err)
	}
	drive(t, a, rec, 7, "Alice", "alice@example.com", "Portrait", "12/12/2024", "14:00", "3")

	// The broadcast succeeds; only the ack that follows it fails.
	rec.userErr = errors.New("user unreachable")
	rec.log = nil
	if err := a.advanceSession(context.Background(), 7, "250.00", rec.sender()); err == nil {
		t.Fatal("want error from failed ack")
	}

	broadcasts := 0
	for _, line := range rec.log {
		if strings.HasPrefix(line, "broadcast:") {
			broadcasts++
		}
	}
	if broadcasts != 1 {
		t.Fatalf("broadcast count = %d, want 1: %v", broadcasts, rec.log)
	}

	// The booking is posted; the session must stay discarded so a retyped
	// price cannot broadcast it a second time.
	if a.Active(7) {
		t.Fatal("session rolled back after successful broadcast")
	}
	rec.userErr = nil
	rec.log = nil
	if err := a.advanceSession(context.Background(), 7, "250.00", rec.sender()); err != nil {
		t.Fatalf("idle advance: %v", err)
	}
	for _, line := range rec.log {
		if strings.HasPrefix(line, "broadcast:") {
			t.Fatalf("idle input re-broadcast the booking: %v", rec.log)
		}
	}
}

func TestCancelClearsSessionWithoutBroadcast(t *testing.T) {
	a := newTestApp()
	rec := &recorder{}

	_ = a.runCommand(context.Background(), 7, rec.sender(), booking.Start)
	drive(t, a, rec, 7, "Alice")

	rec.log = nil
	if err := a.runCommand(context.Background(), 7, rec.sender(), booking.Cancel); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if a.Active(7) {
		t.Fatal("session active after cancel")
	}
	if len(rec.log) != 1 || rec.log[0] != "user:Booking cancelled." {
		t.Fatalf("cancel log = %v", rec.log)
	}
}

func TestCancelWithoutSession(t *testing.T) {
	a := newTestApp()
	rec := &recorder{}

	if err := a.runCommand(context.Background(), 7, rec.sender(), booking.Cancel); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(rec.log) != 1 || rec.log[0] != "user:No active booking." {
		t.Fatalf("log = %v", rec.log)
	}
	if a.sessions.Count() != 0 {
		t.Fatalf("idle cancel left %d session entries", a.sessions.Count())
	}
}

func TestInvalidPeopleKeepsSessionState(t *testing.T) {
	a := newTestApp()
	rec := &recorder{}

	_ = a.runCommand(context.Background(), 7, rec.sender(), booking.Start)
	drive(t, a, rec, 7, "Alice", "alice@example.com", "Portrait", "12/12/2024", "14:00")

	rec.log = nil
	drive(t, a, rec, 7, "abc")
	if len(rec.log) != 1 {
		t.Fatalf("re-prompt log = %v", rec.log)
	}
	if !a.Active(7) {
		t.Fatal("session lost after invalid input")
	}

	// Valid input still completes the flow.
	drive(t, a, rec, 7, "3", "250.00")
	if a.Active(7) {
		t.Fatal("session active after completion")
	}
}

func TestSessionsAreIsolatedPerUser(t *testing.T) {
	a := newTestApp()
	recA, recB := &recorder{}, &recorder{}

	_ = a.runCommand(context.Background(), 1, recA.sender(), booking.Start)
	_ = a.runCommand(context.Background(), 2, recB.sender(), booking.Start)
	drive(t, a, recA, 1, "Alice")
	drive(t, a, recB, 2, "Bob", "bob@example.com")

	if got := a.sessions.Count(); got != 2 {
		t.Fatalf("session count = %d, want 2", got)
	}
	_ = a.runCommand(context.Background(), 1, recA.sender(), booking.Cancel)
	if a.Active(1) {
		t.Fatal("user 1 active after cancel")
	}
	if !a.Active(2) {
		t.Fatal("user 2 lost their session")
	}
}

func TestSendBroadcastAcceptsBotAPI(t *testing.T) {
	// tele.Context.Bot() returns the tele.API interface, not *tele.Bot; the
	// broadcast path must accept what the context hands out.
	var fn func(tele.API, string) error = (&App{}).sendBroadcast
	if fn == nil {
		t.Fatal("sendBroadcast not bound")
	}
}

func TestSendAllStopsAtFirstFailure(t *testing.T) {
	var log []string
	s := outboundSender{
		user: func(text string) error {
			log = append(log, "user")
			return nil
		},
		broadcast: func(text string) error {
			return errors.New("boom")
		},
	}
	outs := []booking.Outbound{
		{Target: booking.TargetBroadcast, Text: "summary"},
		{Target: booking.TargetUser, Text: "ack"},
	}
	failed, err := sendAll(s, outs)
	if err == nil {
		t.Fatal("want error")
	}
	if failed != booking.TargetBroadcast {
		t.Fatalf("failed target = %v, want broadcast", failed)
	}
	if len(log) != 0 {
		t.Fatalf("user delivery ran after broadcast failure: %v", log)
	}
}
