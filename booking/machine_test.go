package booking

import (
	"strings"
	"testing"
)

func runHappyPath(t *testing.T) (State, Fields, []Outbound) {
	t.Helper()

	st, f, out := Start(StateIdle, nil)
	if st != StateAwaitingClientName {
		t.Fatalf("after start state = %q", st)
	}
	if len(out) != 1 || out[0].Target != TargetUser {
		t.Fatalf("start outbound = %+v", out)
	}

	inputs := []string{"Alice", "alice@example.com", "Portrait", "12/12/2024", "14:00", "3"}
	for _, in := range inputs {
		st, f, out = Advance(st, f, in)
		if len(out) != 1 || out[0].Target != TargetUser {
			t.Fatalf("input %q outbound = %+v", in, out)
		}
	}
	if st != StateAwaitingPrice {
		t.Fatalf("before price state = %q", st)
	}
	return Advance(st, f, "250.00")
}

func TestHappyPathCompletes(t *testing.T) {
	st, f, out := runHappyPath(t)

	if st != StateIdle {
		t.Fatalf("terminal state = %q, want idle", st)
	}
	if len(f) != 0 {
		t.Fatalf("fields not cleared after completion: %v", f)
	}
	if len(out) != 2 {
		t.Fatalf("want 2 outbound messages, got %d: %+v", len(out), out)
	}
	if out[0].Target != TargetBroadcast {
		t.Fatalf("first outbound target = %v, want broadcast", out[0].Target)
	}
	if out[1].Target != TargetUser {
		t.Fatalf("second outbound target = %v, want user", out[1].Target)
	}
	if out[1].Text != "Booking created successfully!" {
		t.Fatalf("confirmation text = %q", out[1].Text)
	}

	want := strings.Join([]string{
		"Client Name: Alice",
		"Contact: alice@example.com",
		"Type: Portrait",
		"Date: 12/12/2024",
		"Time: 14:00",
		"People: 3",
		"Total Price: 250.00",
	}, "\n")
	if out[0].Text != want {
		t.Fatalf("summary:\n%s\nwant:\n%s", out[0].Text, want)
	}
}

func TestInvalidPeopleRePrompts(t *testing.T) {
	f := Fields{FieldClientName: "Alice"}
	for _, in := range []string{"abc", "0", "-2", "2.5", ""} {
		st, got, out := Advance(StateAwaitingPeople, f, in)
		if st != StateAwaitingPeople {
			t.Fatalf("input %q moved state to %q", in, st)
		}
		if len(got) != len(f) {
			t.Fatalf("input %q mutated fields: %v", in, got)
		}
		if len(out) != 1 || out[0].Target != TargetUser {
			t.Fatalf("input %q outbound = %+v", in, out)
		}
	}

	// Valid input after a failure proceeds normally.
	st, got, _ := Advance(StateAwaitingPeople, f, "3")
	if st != StateAwaitingPrice {
		t.Fatalf("recovery state = %q", st)
	}
	if got[FieldPeople] != "3" {
		t.Fatalf("people = %q", got[FieldPeople])
	}
}

func TestInvalidPriceRePrompts(t *testing.T) {
	f := Fields{FieldPeople: "3"}
	for _, in := range []string{"abc", "0", "-10", "NaN", "Inf", "-Inf", ""} {
		st, got, out := Advance(StateAwaitingPrice, f, in)
		if st != StateAwaitingPrice {
			t.Fatalf("input %q moved state to %q", in, st)
		}
		if _, ok := got[FieldPrice]; ok {
			t.Fatalf("input %q stored a price", in)
		}
		if len(out) != 1 || out[0].Target != TargetUser {
			t.Fatalf("input %q outbound = %+v", in, out)
		}
	}
}

func TestPriceAcceptsRealNumbers(t *testing.T) {
	for _, in := range []string{"250", "250.00", "0.5", "1e3"} {
		st, got, out := Advance(StateAwaitingPrice, Fields{}, in)
		if st != StateIdle {
			t.Fatalf("input %q state = %q", in, st)
		}
		if len(out) != 2 || out[0].Target != TargetBroadcast {
			t.Fatalf("input %q outbound = %+v", in, out)
		}
		if len(got) != 0 {
			t.Fatalf("input %q left fields %v", in, got)
		}
		if !strings.Contains(out[0].Text, "Total Price: "+in) {
			t.Fatalf("input %q summary = %q", in, out[0].Text)
		}
	}
}

func TestCancelMidFlight(t *testing.T) {
	st, f, out := Cancel(StateAwaitingDate, Fields{FieldClientName: "Alice"})
	if st != StateIdle || len(f) != 0 {
		t.Fatalf("cancel left state %q fields %v", st, f)
	}
	if len(out) != 1 || out[0].Text != "Booking cancelled." {
		t.Fatalf("cancel outbound = %+v", out)
	}
	for _, o := range out {
		if o.Target == TargetBroadcast {
			t.Fatal("cancel must not broadcast")
		}
	}
}

func TestCancelIdle(t *testing.T) {
	st, _, out := Cancel(StateIdle, nil)
	if st != StateIdle {
		t.Fatalf("state = %q", st)
	}
	if len(out) != 1 || out[0].Text != "No active booking." {
		t.Fatalf("outbound = %+v", out)
	}
}

func TestRestartClearsFields(t *testing.T) {
	st, f, out := Restart(StateAwaitingTime, Fields{FieldClientName: "Alice", FieldDate: "12/12/2024"})
	if st != StateAwaitingClientName {
		t.Fatalf("state = %q", st)
	}
	if len(f) != 0 {
		t.Fatalf("fields survived restart: %v", f)
	}
	if len(out) != 1 || !strings.HasPrefix(out[0].Text, "Restarting") {
		t.Fatalf("outbound = %+v", out)
	}
}

func TestStartOverActiveSessionDiscards(t *testing.T) {
	st, f, _ := Start(StateAwaitingPeople, Fields{FieldClientName: "Alice"})
	if st != StateAwaitingClientName || len(f) != 0 {
		t.Fatalf("state %q fields %v", st, f)
	}
}

func TestEmptyFreeTextRePrompts(t *testing.T) {
	st, f, out := Advance(StateAwaitingContact, Fields{FieldClientName: "Alice"}, "   ")
	if st != StateAwaitingContact {
		t.Fatalf("state = %q", st)
	}
	if len(f) != 1 {
		t.Fatalf("fields = %v", f)
	}
	if len(out) != 1 {
		t.Fatalf("outbound = %+v", out)
	}
}

func TestAdvanceIdleIsNoOp(t *testing.T) {
	st, _, out := Advance(StateIdle, nil, "hello")
	if st != StateIdle || out != nil {
		t.Fatalf("state %q outbound %+v", st, out)
	}
}

func TestAdvanceDoesNotMutateInput(t *testing.T) {
	orig := Fields{FieldClientName: "Alice"}
	_, _, _ = Advance(StateAwaitingContact, orig, "alice@example.com")
	if len(orig) != 1 || orig[FieldClientName] != "Alice" {
		t.Fatalf("input fields mutated: %v", orig)
	}
}

func TestFreeTextStoredVerbatim(t *testing.T) {
	st := StateAwaitingClientName
	f := Fields{}
	var out []Outbound
	st, f, out = Advance(st, f, "  Dr. Alice O'Neil  ")
	if f[FieldClientName] != "Dr. Alice O'Neil" {
		t.Fatalf("client name = %q", f[FieldClientName])
	}
	if st != StateAwaitingContact {
		t.Fatalf("state = %q", st)
	}
	if len(out) != 1 || out[0].Text != "Got it! Now, please enter the Contact:" {
		t.Fatalf("outbound = %+v", out)
	}
}
