package ergodic

import (
	"time"
	"unicode/utf8"
)

// HistoryEntry is one visible step of a thinking session as the caller
// recorded it.
type HistoryEntry struct {
	Technique string    `json:"technique" yaml:"technique"`
	Step      int       `json:"step" yaml:"step"`
	Output    string    `json:"output" yaml:"output"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// SessionData is the caller's accumulated view of a session. Sensors read
// trends from it; the core never mutates it.
type SessionData struct {
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Technique string         `json:"technique" yaml:"technique"`
	Problem   string         `json:"problem" yaml:"problem"`
	StartTime time.Time      `json:"startTime" yaml:"start_time"`
	History   []HistoryEntry `json:"history" yaml:"history"`
	Insights  []string       `json:"insights,omitempty" yaml:"insights,omitempty"`
}

// sessionKeyProblemLength bounds the problem prefix used in session keys.
const sessionKeyProblemLength = 50

// SessionKey derives the warning-history identity for a session from its
// technique and the first fifty characters of its problem statement.
//
// TODO: distinct sessions sharing a technique and problem prefix collide
// here; switch to SessionData.ID once callers guarantee a stable ID.
func SessionKey(session *SessionData) string {
	if session == nil {
		return ""
	}
	return session.Technique + ":" + truncateRunes(session.Problem, sessionKeyProblemLength)
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// truncate cuts s to n runes and appends an ellipsis when it was longer.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return truncateRunes(s, n) + "..."
}
