package state

import (
	"sync"
	"testing"
	"time"
)

func TestDoCreatesAndDiscardsIdleSessions(t *testing.T) {
	m := NewMemoryManager()

	err := m.Do(1, func(s *Session) error {
		if s.State != StateIdle {
			t.Fatalf("new session state = %q, expected idle", s.State)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if m.Count() != 0 {
		t.Fatalf("idle session should be discarded, count = %d", m.Count())
	}

	_ = m.Do(1, func(s *Session) error {
		s.State = "awaiting_client_name"
		return nil
	})
	if !m.Active(1) {
		t.Fatal("expected session to be active")
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, expected 1", m.Count())
	}
}

func TestResetReturnsSessionToIdle(t *testing.T) {
	m := NewMemoryManager()
	_ = m.Do(7, func(s *Session) error {
		s.State = "awaiting_contact"
		s.Fields["client_name"] = "Alice"
		return nil
	})
	_ = m.Do(7, func(s *Session) error {
		s.Reset()
		if len(s.Fields) != 0 {
			t.Fatalf("reset left %d fields", len(s.Fields))
		}
		return nil
	})
	if m.Active(7) {
		t.Fatal("session should be inactive after reset")
	}
	if m.Count() != 0 {
		t.Fatalf("count = %d, expected 0 after reset", m.Count())
	}
}

func TestClearRemovesSession(t *testing.T) {
	m := NewMemoryManager()
	_ = m.Do(3, func(s *Session) error {
		s.State = "awaiting_date"
		return nil
	})
	m.Clear(3)
	if m.Active(3) {
		t.Fatal("cleared session should be inactive")
	}
}

func TestSessionsAreIsolatedBetweenUsers(t *testing.T) {
	m := NewMemoryManager()
	_ = m.Do(1, func(s *Session) error {
		s.State = "awaiting_contact"
		s.Fields["client_name"] = "Alice"
		return nil
	})
	_ = m.Do(2, func(s *Session) error {
		s.State = "awaiting_contact"
		s.Fields["client_name"] = "Bob"
		return nil
	})

	_ = m.Do(1, func(s *Session) error {
		if s.Fields["client_name"] != "Alice" {
			t.Fatalf("user 1 sees %q", s.Fields["client_name"])
		}
		return nil
	})
	_ = m.Do(2, func(s *Session) error {
		if s.Fields["client_name"] != "Bob" {
			t.Fatalf("user 2 sees %q", s.Fields["client_name"])
		}
		return nil
	})
}

func TestDoSerializesEventsPerUser(t *testing.T) {
	m := NewMemoryManager()
	const rounds = 200
	var wg sync.WaitGroup

	wg.Add(2)
	for g := 0; g < 2; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				_ = m.Do(42, func(s *Session) error {
					s.State = "awaiting_people"
					// Read-modify-write that would corrupt under interleaving.
					n := len(s.Fields)
					s.Fields["k"+string(rune('a'+n%26))] = "v"
					return nil
				})
			}
		}()
	}
	wg.Wait()

	err := m.Do(42, func(s *Session) error {
		if len(s.Fields) == 0 || len(s.Fields) > 26 {
			t.Fatalf("unexpected field count %d", len(s.Fields))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
}

func TestConcurrentDistinctUsers(t *testing.T) {
	m := NewMemoryManager()
	var wg sync.WaitGroup
	for u := int64(1); u <= 16; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = m.Do(userID, func(s *Session) error {
					s.State = "awaiting_time"
					s.Fields["user"] = string(rune('A' + userID))
					return nil
				})
			}
		}(u)
	}
	wg.Wait()

	for u := int64(1); u <= 16; u++ {
		want := string(rune('A' + u))
		_ = m.Do(u, func(s *Session) error {
			if s.Fields["user"] != want {
				t.Fatalf("user %d sees %q, expected %q", u, s.Fields["user"], want)
			}
			return nil
		})
	}
}

func TestDoRetriesWhenEntryDiscardedConcurrently(t *testing.T) {
	m := NewMemoryManager()

	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_ = m.Do(1, func(s *Session) error {
			close(entered)
			<-release
			// Ends idle and empty, so the entry is discarded on exit while
			// the second event may already hold a reference to it.
			s.Reset()
			return nil
		})
	}()
	<-entered

	secondDone := make(chan struct{})
	go func() {
		defer close(secondDone)
		_ = m.Do(1, func(s *Session) error {
			s.State = "awaiting_client_name"
			return nil
		})
	}()

	// Let the second event block on the held session lock, then finish the
	// first so its cleanup deletes the entry out from under the second.
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-firstDone
	<-secondDone

	if !m.Active(1) {
		t.Fatal("session started concurrently with cleanup was lost")
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, expected 1", m.Count())
	}
}
