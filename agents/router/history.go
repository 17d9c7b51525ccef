package router

import (
	"time"
	"unicode/utf8"
)

const (
	// maxHistoryQueryLen bounds the stored query text per history entry.
	maxHistoryQueryLen = 200

	// maxHistoryReasoningLen bounds the stored classification summary.
	maxHistoryReasoningLen = 150

	// priorContextWindow is how many recent history entries the classifier
	// sees as soft context.
	priorContextWindow = 3
)

// newHistoryEntry builds the audit line for one completed routing pass.
func newHistoryEntry(query string, classification QueryClassification, target RouteTarget, duration time.Duration) RoutingHistoryEntry {
	return RoutingHistoryEntry{
		Query:          truncate(query, maxHistoryQueryLen),
		Classification: summarizeClassification(classification),
		RoutedTo:       target,
		Timestamp:      time.Now().UTC(),
		DurationMs:     duration.Milliseconds(),
	}
}

// appendHistory appends an entry and evicts strictly FIFO so the trail never
// exceeds max.
func appendHistory(entries []RoutingHistoryEntry, entry RoutingHistoryEntry, max int) []RoutingHistoryEntry {
	entries = append(entries, entry)
	if max > 0 && len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	return entries
}

// historyWindow returns the last priorContextWindow entries, newest last.
func historyWindow(entries []RoutingHistoryEntry) []RoutingHistoryEntry {
	if len(entries) <= priorContextWindow {
		return entries
	}
	return entries[len(entries)-priorContextWindow:]
}

func summarizeClassification(c QueryClassification) string {
	summary := string(c.Complexity) + "/" + c.Type
	if c.Category != "" {
		summary += "/" + c.Category
	}
	if c.Reasoning != "" {
		summary += ": " + truncate(c.Reasoning, maxHistoryReasoningLen)
	}
	return summary
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune,
// so stored history text stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
