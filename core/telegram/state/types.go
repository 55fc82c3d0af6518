package state

// StateIdle indicates there is no active conversation with the user.
const StateIdle = "idle"

// Session stores conversation state and collected field data for one user.
type Session struct {
	State  string
	Fields map[string]string
}

// Reset clears collected fields and returns the session to idle.
func (s *Session) Reset() {
	s.State = StateIdle
	s.Fields = make(map[string]string)
}

// Manager orchestrates per-user conversation sessions.
//
// Do is the only way to read or mutate a session: it runs fn under a
// per-user lock, so a second inbound event for the same user cannot begin
// until the previous one has finished issuing its side effects. Events for
// distinct users proceed concurrently.
type Manager interface {
	Do(userID int64, fn func(s *Session) error) error
	Active(userID int64) bool
	Clear(userID int64)
	Count() int
}
