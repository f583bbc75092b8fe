// Package rounds finds where a conversation log may be cut in two.
//
// A round is a substantive assistant completion together with the tool
// requests and results that immediately precede it. The functions here choose
// a keep point that preserves the last k rounds, then lower it until no tool
// call is separated from its result and no unanswered request is cut off.
// All functions are pure.
package rounds

import (
	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

// Span is the index range of one tool call. End is -1 while the call has no
// result yet.
type Span struct {
	Start int
	End   int
}

// InFlight reports whether the call is still unanswered.
func (s Span) InFlight() bool { return s.End < 0 }

// Completions returns the indices of every substantive assistant completion.
func Completions(log schema.Log) []int {
	var out []int
	for i, m := range log {
		if m.IsCompletion() {
			out = append(out, i)
		}
	}
	return out
}

// RoundStart walks back from the completion at idx over the tool results and
// tool requests directly before it and returns the first index of the round.
func RoundStart(log schema.Log, idx int) int {
	start := idx
	for start > 0 {
		switch log[start-1].Kind() {
		case schema.KindToolResult, schema.KindToolRequest:
			start--
			continue
		}
		break
	}
	return start
}

// FindKeepPoint returns the index where the last k rounds begin.
//
// With at most k completions nothing is old enough to compact and the result
// is 0. k == 0 is full mode: every message is eligible and the result is
// len(log), also for a log that has no completion yet, so a full pass can
// still summarize tool traffic and notes that no answer has followed.
func FindKeepPoint(log schema.Log, k int) int {
	if k <= 0 {
		return len(log)
	}
	done := Completions(log)
	if len(done) <= k {
		return 0
	}
	keep := len(log)
	for _, idx := range done[len(done)-k:] {
		keep = min(keep, RoundStart(log, idx))
	}
	return keep
}

// ToolSpans indexes every call ID in log. Start is the first index at which
// the ID appears; End is the last tool result answering it.
func ToolSpans(log schema.Log) map[string]Span {
	spans := make(map[string]Span)
	for i, m := range log {
		switch m.Kind() {
		case schema.KindToolRequest:
			for _, tc := range m.ToolCalls {
				if _, ok := spans[tc.ID]; !ok {
					spans[tc.ID] = Span{Start: i, End: -1}
				}
			}
		case schema.KindToolResult:
			sp, ok := spans[m.ToolCallID]
			if !ok {
				sp = Span{Start: i}
			}
			sp.End = i
			spans[m.ToolCallID] = sp
		}
	}
	return spans
}

// FixupSplit lowers keep until no span straddles it and no in-flight request
// sits before it. Each iteration moves keep to the lowest offending start,
// which is strictly below the current keep and never below 0, so the loop
// ends after at most len(spans) iterations.
func FixupSplit(keep int, spans map[string]Span) int {
	for {
		next := keep
		for _, sp := range spans {
			if sp.Start >= keep {
				continue
			}
			if sp.InFlight() || keep <= sp.End {
				next = min(next, sp.Start)
			}
		}
		if next == keep {
			return keep
		}
		keep = next
	}
}

// Violates reports whether cutting log at keep separates a call from its
// result or strands an unanswered request in the older half.
func Violates(keep int, spans map[string]Span) bool {
	for _, sp := range spans {
		if sp.Start < keep && (sp.InFlight() || keep <= sp.End) {
			return true
		}
	}
	return false
}

// Split cuts log into the part eligible for compaction and the part kept
// verbatim. The returned slices share log's backing array and must be treated
// as read-only.
func Split(log schema.Log, k int) (older, recent schema.Log, keep int) {
	keep = FixupSplit(FindKeepPoint(log, k), ToolSpans(log))
	return log[:keep:keep], log[keep:], keep
}
