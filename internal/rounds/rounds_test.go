package rounds

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

func call(id string) schema.ToolCall { return schema.ToolCall{ID: id, Name: "exec"} }

// conversation builds:
//
//	0 user  1 assistant  2 user  3 request(a)  4 result(a)  5 assistant
//	6 user  7 request(b,c)  8 result(b)  9 result(c)  10 assistant
func conversation() schema.Log {
	return schema.NewLog(
		schema.NewUserMessage("hello"),
		schema.NewAssistantMessage("hi"),
		schema.NewUserMessage("list files"),
		schema.NewToolRequestMessage(call("a")),
		schema.NewToolResultMessage("a", "exec", "a.go b.go"),
		schema.NewAssistantMessage("two files"),
		schema.NewUserMessage("run both"),
		schema.NewToolRequestMessage(call("b"), call("c")),
		schema.NewToolResultMessage("b", "exec", "ok"),
		schema.NewToolResultMessage("c", "exec", "ok"),
		schema.NewAssistantMessage("both ran"),
	)
}

func TestFindKeepPoint(t *testing.T) {
	log := conversation()
	tests := []struct {
		k    int
		want int
	}{
		{0, len(log)},
		{1, 7},
		{2, 3},
		{3, 0},
		{10, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("k=%d", tt.k), func(t *testing.T) {
			if got := FindKeepPoint(log, tt.k); got != tt.want {
				t.Errorf("FindKeepPoint(k=%d) = %d, want %d", tt.k, got, tt.want)
			}
		})
	}
}

func TestFindKeepPoint_IgnoresReasoning(t *testing.T) {
	log := schema.NewLog(
		schema.NewUserMessage("q"),
		schema.NewAssistantMessage("<think>pondering</think>"),
		schema.NewAssistantMessage("answer"),
		schema.NewUserMessage("q2"),
		schema.NewAssistantMessage("<think>more</think>"),
	)
	// One real completion only.
	if got := FindKeepPoint(log, 1); got != 0 {
		t.Errorf("FindKeepPoint = %d, want 0", got)
	}
}

func TestFindKeepPoint_FullModeWithoutCompletions(t *testing.T) {
	log := schema.NewLog(
		schema.NewUserMessage("q"),
		schema.NewDeveloperMessage("note"),
	)
	if got := FindKeepPoint(log, 0); got != len(log) {
		t.Errorf("FindKeepPoint(k=0) = %d, want %d", got, len(log))
	}
	if got := FindKeepPoint(log, 1); got != 0 {
		t.Errorf("FindKeepPoint(k=1) = %d, want 0", got)
	}
}

func TestToolSpans(t *testing.T) {
	log := conversation()
	log = append(log, schema.NewToolRequestMessage(call("d")))

	spans := ToolSpans(log)
	want := map[string]Span{
		"a": {3, 4},
		"b": {7, 8},
		"c": {7, 9},
		"d": {11, -1},
	}
	if len(spans) != len(want) {
		t.Fatalf("got %d spans, want %d: %+v", len(spans), len(want), spans)
	}
	for id, w := range want {
		if spans[id] != w {
			t.Errorf("span %s = %+v, want %+v", id, spans[id], w)
		}
	}
	if !spans["d"].InFlight() {
		t.Error("expected d to be in flight")
	}
}

func TestFixupSplit(t *testing.T) {
	tests := []struct {
		name  string
		keep  int
		spans map[string]Span
		want  int
	}{
		{"no spans", 5, nil, 5},
		{"span before", 5, map[string]Span{"a": {1, 2}}, 5},
		{"span after", 5, map[string]Span{"a": {6, 7}}, 5},
		{"straddle", 5, map[string]Span{"a": {3, 6}}, 3},
		{"keep at response", 4, map[string]Span{"a": {3, 4}}, 3},
		{"keep at request", 3, map[string]Span{"a": {3, 4}}, 3},
		{"in flight before", 5, map[string]Span{"a": {2, -1}}, 2},
		{"in flight after", 5, map[string]Span{"a": {6, -1}}, 5},
		{
			"cascade",
			10,
			map[string]Span{"a": {8, 12}, "b": {5, 9}, "c": {1, 6}},
			1,
		},
		{"zero", 0, map[string]Span{"a": {0, -1}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FixupSplit(tt.keep, tt.spans)
			if got != tt.want {
				t.Errorf("FixupSplit(%d) = %d, want %d", tt.keep, got, tt.want)
			}
			if Violates(got, tt.spans) {
				t.Errorf("result %d still violates a span", got)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	log := conversation()
	older, recent, keep := Split(log, 1)
	if keep != 7 || len(older) != 7 || len(recent) != 4 {
		t.Fatalf("Split = (%d, %d, keep %d)", len(older), len(recent), keep)
	}
	if !recent[0].IsToolRequest() {
		t.Errorf("recent should start with the tool request, got %v", recent[0].Kind())
	}
	// Appending to older must not clobber recent.
	_ = append(older, schema.NewUserMessage("x"))
	if !log[7].IsToolRequest() {
		t.Error("append to older wrote into the shared backing array")
	}
}

// randomLog generates a structurally valid log: tool results always follow
// their request, and some requests are left unanswered at the tail or in the
// middle.
func randomLog(r *rand.Rand, n int) schema.Log {
	var (
		log     schema.Log
		pending []string
		nextID  int
	)
	for len(log) < n {
		switch r.Intn(6) {
		case 0:
			log.AddUser(fmt.Sprintf("u%d", len(log)))
		case 1:
			log.AddAssistant(fmt.Sprintf("a%d", len(log)))
		case 2:
			log = append(log, schema.NewAssistantMessage("<think>x</think>"))
		case 3:
			count := 1 + r.Intn(3)
			calls := make([]schema.ToolCall, count)
			for i := range calls {
				id := fmt.Sprintf("c%d", nextID)
				nextID++
				calls[i] = call(id)
				pending = append(pending, id)
			}
			log.AddToolRequest(calls...)
		default:
			if len(pending) == 0 {
				log.AddAssistant("done")
				continue
			}
			i := r.Intn(len(pending))
			id := pending[i]
			pending = append(pending[:i], pending[i+1:]...)
			log.AddToolResult(id, "exec", "out")
		}
	}
	return log
}

func TestSplitNeverBreaksToolPairs(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		log := randomLog(r, 1+r.Intn(40))
		spans := ToolSpans(log)
		for k := 0; k <= 5; k++ {
			older, recent, keep := Split(log, k)
			if Violates(keep, spans) {
				t.Fatalf("iter %d k=%d: keep %d violates spans %+v", iter, k, keep, spans)
			}
			if keep > FindKeepPoint(log, k) {
				t.Fatalf("iter %d k=%d: fixup raised keep point", iter, k)
			}
			if len(older)+len(recent) != len(log) {
				t.Fatalf("iter %d k=%d: split lost messages", iter, k)
			}
		}
	}
}
