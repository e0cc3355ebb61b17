package models

import "time"

// SessionInfo describes one recording session.
type SessionInfo struct {
	ID        string
	Candidate string
	StartedAt time.Time
	EndedAt   time.Time
}

// Ended reports whether the session has been torn down.
func (s SessionInfo) Ended() bool {
	return !s.EndedAt.IsZero()
}
