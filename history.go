package ergodic

import (
	"fmt"
	"slices"
	"time"
)

// warningHistoryDepth bounds the warnings retained per session.
const warningHistoryDepth = 200

// WarningPattern is a barrier subtype that keeps producing warnings within
// one session.
type WarningPattern struct {
	Subtype     BarrierSubtype `json:"subtype"`
	Occurrences int            `json:"occurrences"`
	FirstSeen   time.Time      `json:"firstSeen"`
	LastSeen    time.Time      `json:"lastSeen"`
	Recurring   bool           `json:"recurring"`
}

// WarningHistory accumulates the warnings raised for one session along
// with the patterns and learnings derived from them.
type WarningHistory struct {
	SessionKey    string           `json:"sessionKey"`
	Warnings      []BarrierWarning `json:"warnings"`
	Patterns      []WarningPattern `json:"patterns"`
	Learnings     []string         `json:"learnings"`
	CreatedAt     time.Time        `json:"createdAt"`
	LastWarningAt time.Time        `json:"lastWarningAt"`
}

func newWarningHistory(key string, now time.Time) *WarningHistory {
	return &WarningHistory{
		SessionKey: key,
		Warnings:   []BarrierWarning{},
		Patterns:   []WarningPattern{},
		Learnings:  []string{},
		CreatedAt:  now,
	}
}

// RecurringPatterns returns the patterns seen often enough to count as
// recurring.
func (h *WarningHistory) RecurringPatterns() []WarningPattern {
	var out []WarningPattern
	for _, p := range h.Patterns {
		if p.Recurring {
			out = append(out, p)
		}
	}
	return out
}

// add appends a tick's warnings and returns the patterns that became
// recurring because of them.
func (h *WarningHistory) add(warnings []BarrierWarning, now time.Time) []WarningPattern {
	if len(warnings) == 0 {
		return nil
	}
	h.Warnings = append(h.Warnings, warnings...)
	if over := len(h.Warnings) - warningHistoryDepth; over > 0 {
		h.Warnings = slices.Delete(h.Warnings, 0, over)
	}
	h.LastWarningAt = now

	var detected []WarningPattern
	for _, w := range warnings {
		i := slices.IndexFunc(h.Patterns, func(p WarningPattern) bool { return p.Subtype == w.Barrier.Subtype })
		if i < 0 {
			h.Patterns = append(h.Patterns, WarningPattern{Subtype: w.Barrier.Subtype, FirstSeen: w.Timestamp})
			i = len(h.Patterns) - 1
		}
		p := &h.Patterns[i]
		p.Occurrences++
		p.LastSeen = w.Timestamp
		if !p.Recurring && p.Occurrences >= RecurringPatternOccurrences {
			p.Recurring = true
			detected = append(detected, *p)
		}
	}
	h.Learnings = deriveLearnings(h)
	return detected
}

func (h *WarningHistory) clone() *WarningHistory {
	out := *h
	out.Warnings = slices.Clone(h.Warnings)
	out.Patterns = slices.Clone(h.Patterns)
	out.Learnings = slices.Clone(h.Learnings)
	return &out
}

// deriveLearnings turns patterns and severity peaks into short notes a
// caller can surface next to its own output.
func deriveLearnings(h *WarningHistory) []string {
	learnings := []string{}
	catalog := BarrierCatalog()
	for _, p := range h.Patterns {
		if !p.Recurring {
			continue
		}
		name := string(p.Subtype)
		if b, ok := barrierBySubtype(catalog, p.Subtype); ok {
			name = b.Name
		}
		learnings = append(learnings, fmt.Sprintf(
			"%s recurred %d times; address it before it becomes critical", name, p.Occurrences))
	}

	critical := map[BarrierSubtype]bool{}
	for _, w := range h.Warnings {
		if w.Severity == LevelCritical && !critical[w.Barrier.Subtype] {
			critical[w.Barrier.Subtype] = true
			learnings = append(learnings, fmt.Sprintf(
				"%s reached CRITICAL at distance %.2f", w.Barrier.Name, w.Reading.Distance))
		}
	}
	return learnings
}
