// Package transcript flattens recognition results into printable lines.
package transcript

import (
	"strings"
	"vidscribe/internal/speech"
)

// Aggregate returns the text of every alternative of every group, groups in
// order and alternatives in rank order within each group. A nil result yields
// an empty slice.
func Aggregate(result *speech.TranscriptResult) []string {
	lines := []string{}
	if result == nil {
		return lines
	}
	for _, group := range result.Results {
		for _, alt := range group.Alternatives {
			lines = append(lines, alt.Transcript)
		}
	}
	return lines
}

// AggregateTop returns only the first (highest ranked) alternative of each group.
func AggregateTop(result *speech.TranscriptResult) []string {
	lines := []string{}
	if result == nil {
		return lines
	}
	for _, group := range result.Results {
		if len(group.Alternatives) > 0 {
			lines = append(lines, group.Alternatives[0].Transcript)
		}
	}
	return lines
}

// Func selects an aggregation strategy
type Func func(*speech.TranscriptResult) []string

func Select(topOnly bool) Func {
	if topOnly {
		return AggregateTop
	}
	return Aggregate
}

// Join renders lines as a single text block for storage and delivery.
func Join(lines []string) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, "\n")
}
