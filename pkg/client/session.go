package client

// Session is the per-game-session connection context. It replaces any
// process-wide "have we connected yet" flag: one logical session, one
// value, passed into the connection layer explicitly.
type Session struct {
	// IsFirstConnectionInSession is true until the first successful open.
	// Only that open replays chat history; reconnects never do.
	IsFirstConnectionInSession bool
}

func NewSession() *Session {
	return &Session{IsFirstConnectionInSession: true}
}

// Reset returns the session to its initial state. Called only on a full
// session reset, e.g. leaving for the lobby to start a fresh room.
func (s *Session) Reset() {
	s.IsFirstConnectionInSession = true
}
