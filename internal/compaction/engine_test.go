package compaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strings"
	"testing"

	"github.com/crystaldolphin/ctxbudget/internal/rounds"
	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

// stubSummarizer records every call and delegates to fn.
type stubSummarizer struct {
	calls  int
	inputs []schema.Log
	fn     func(call int, in schema.Log) (schema.Message, error)
}

func (s *stubSummarizer) Summarize(_ context.Context, in schema.Log) (schema.Message, error) {
	s.calls++
	s.inputs = append(s.inputs, in)
	return s.fn(s.calls, in)
}

func shortSummary() *stubSummarizer {
	return &stubSummarizer{fn: func(int, schema.Log) (schema.Message, error) {
		return schema.NewDeveloperMessage("S"), nil
	}}
}

func newTestEngine(t *testing.T, s Summarizer, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RoundsToKeep = 1
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := New(s, cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

var roomyBudget = Budget{ContextTokens: 1_000_000, TargetFraction: 0.75}

// sampleLog has an identity message and three rounds; the middle round uses
// a tool.
func sampleLog() schema.Log {
	return schema.NewLog(
		schema.NewSystemMessage("Your name is Dot. You help with code."),
		schema.NewUserMessage("first question"),
		schema.NewAssistantMessage("a fairly long first answer that goes on for a while"),
		schema.NewUserMessage("second"),
		schema.NewToolRequestMessage(schema.ToolCall{ID: "c1", Name: "read_file", Arguments: map[string]any{"path": "main.go"}}),
		schema.NewToolResultMessage("c1", "read_file", "package main\n\nfunc main() {}\n"),
		schema.NewAssistantMessage("the file declares an empty main"),
		schema.NewUserMessage("third"),
		schema.NewAssistantMessage("third answer"),
	)
}

func TestCompact_ShallowLogIsNoOp(t *testing.T) {
	s := shortSummary()
	e := newTestEngine(t, s, func(c *Config) { c.RoundsToKeep = 3 })

	in := sampleLog()
	res := e.Compact(context.Background(), in, roomyBudget)

	if res.Outcome != OutcomeNoOp {
		t.Fatalf("Outcome = %s, want %s", res.Outcome, OutcomeNoOp)
	}
	if !res.Log.Equal(in) {
		t.Error("no-op changed the log")
	}
	if s.calls != 0 {
		t.Errorf("summarizer called %d times on a no-op", s.calls)
	}
	if res.Err != nil {
		t.Errorf("unexpected error: %v", res.Err)
	}
}

func TestCompact_Partial(t *testing.T) {
	s := shortSummary()
	e := newTestEngine(t, s, nil)

	in := sampleLog()
	snapshot := in.Clone()
	res := e.Compact(context.Background(), in, roomyBudget)

	if res.Outcome != OutcomeCompacted {
		t.Fatalf("Outcome = %s (%v)", res.Outcome, res.Err)
	}
	if !in.Equal(snapshot) {
		t.Fatal("input log was mutated")
	}

	want := schema.NewLog(
		in[0],
		schema.NewUserMessage("first question"),
		schema.NewUserMessage("second"),
		schema.NewUserMessage("third"),
		schema.NewDeveloperMessage("S"),
		schema.NewAssistantMessage("third answer"),
	)
	if !res.Log.Equal(want) {
		t.Fatalf("got log:\n%s\nwant:\n%s", dump(res.Log), dump(want))
	}
	if res.Attempts != 1 || res.Passes != 1 || res.Mode != ModePartial {
		t.Errorf("Attempts=%d Passes=%d Mode=%s", res.Attempts, res.Passes, res.Mode)
	}
	if res.TokensAfter >= res.TokensBefore {
		t.Errorf("tokens did not shrink: %d -> %d", res.TokensBefore, res.TokensAfter)
	}

	// The summarizer saw the assistant and tool traffic, never user input.
	for _, m := range s.inputs[0] {
		if m.Role == schema.RoleUser {
			t.Errorf("user message sent to summarizer: %q", m.Content)
		}
		if m.Role == schema.RoleSystem {
			t.Errorf("identity message sent to summarizer")
		}
	}
}

func TestCompact_IdentityKeptFirst(t *testing.T) {
	e := newTestEngine(t, shortSummary(), nil)

	in := sampleLog()
	// Move the identity message into the middle of history.
	identity := in[0]
	in = append(schema.NewLog(in[1:4]...), append(schema.Log{identity}, in[4:]...)...)

	res := e.Compact(context.Background(), in, roomyBudget)
	if res.Outcome != OutcomeCompacted {
		t.Fatalf("Outcome = %s (%v)", res.Outcome, res.Err)
	}
	if !res.Log[0].Equal(identity) {
		t.Errorf("first message = %+v, want identity", res.Log[0])
	}
	count := 0
	for _, m := range res.Log {
		if m.Equal(identity) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("identity appears %d times", count)
	}
}

func TestCompact_SummarizerAlwaysFails(t *testing.T) {
	boom := errors.New("upstream 503")
	s := &stubSummarizer{fn: func(int, schema.Log) (schema.Message, error) {
		return schema.Message{}, boom
	}}
	e := newTestEngine(t, s, func(c *Config) { c.MaxAttempts = 4 })

	in := sampleLog()
	res := e.Compact(context.Background(), in, roomyBudget)

	if res.Outcome != OutcomeSummarizerError {
		t.Fatalf("Outcome = %s, want %s", res.Outcome, OutcomeSummarizerError)
	}
	if !res.Log.Equal(in) || &res.Log[0] != &in[0] {
		t.Error("log changed on failure")
	}
	if s.calls != 4 || res.Attempts != 4 {
		t.Errorf("calls=%d attempts=%d, want 4", s.calls, res.Attempts)
	}
	if !errors.Is(res.Err, ErrSummarizer) || !errors.Is(res.Err, boom) {
		t.Errorf("error chain missing sentinels: %v", res.Err)
	}
	var ce *Error
	if !errors.As(res.Err, &ce) || ce.Outcome != OutcomeSummarizerError || ce.Attempts != 4 {
		t.Errorf("errors.As(*Error) = %+v", ce)
	}
}

func TestCompact_SavingsGateTerminates(t *testing.T) {
	s := &stubSummarizer{fn: func(_ int, in schema.Log) (schema.Message, error) {
		return schema.NewDeveloperMessage(strings.Repeat("x", in.Bytes())), nil
	}}
	e := newTestEngine(t, s, func(c *Config) { c.MaxAttempts = 3 })

	in := sampleLog()
	res := e.Compact(context.Background(), in, roomyBudget)

	if res.Outcome != OutcomeCompactionFailed {
		t.Fatalf("Outcome = %s, want %s", res.Outcome, OutcomeCompactionFailed)
	}
	if s.calls != 3 {
		t.Errorf("summarizer called %d times, want 3", s.calls)
	}
	if !res.Log.Equal(in) {
		t.Error("log changed on failure")
	}
	if !errors.Is(res.Err, ErrCompactionFailed) {
		t.Errorf("expected ErrCompactionFailed, got %v", res.Err)
	}
}

func TestCompact_RetryUntilThresholdMet(t *testing.T) {
	s := &stubSummarizer{fn: func(call int, in schema.Log) (schema.Message, error) {
		switch call {
		case 1:
			return schema.Message{}, errors.New("timeout")
		case 2:
			return schema.NewDeveloperMessage(strings.Repeat("y", in.Bytes())), nil
		}
		return schema.NewDeveloperMessage("short"), nil
	}}
	e := newTestEngine(t, s, nil)

	res := e.Compact(context.Background(), sampleLog(), roomyBudget)
	if res.Outcome != OutcomeCompacted {
		t.Fatalf("Outcome = %s (%v)", res.Outcome, res.Err)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.Savings < DefaultSavingsThreshold {
		t.Errorf("accepted savings %.2f below threshold", res.Savings)
	}
}

func TestCompact_MixedFailuresReportCompactionFailed(t *testing.T) {
	s := &stubSummarizer{fn: func(call int, in schema.Log) (schema.Message, error) {
		if call == 1 {
			return schema.NewDeveloperMessage(strings.Repeat("z", in.Bytes())), nil
		}
		return schema.Message{}, errors.New("down")
	}}
	e := newTestEngine(t, s, nil)

	res := e.Compact(context.Background(), sampleLog(), roomyBudget)
	if res.Outcome != OutcomeCompactionFailed {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomeCompactionFailed)
	}
}

func TestCompact_WrongRoleIsSummarizerError(t *testing.T) {
	s := &stubSummarizer{fn: func(int, schema.Log) (schema.Message, error) {
		return schema.NewAssistantMessage("S"), nil
	}}
	e := newTestEngine(t, s, nil)

	res := e.Compact(context.Background(), sampleLog(), roomyBudget)
	if res.Outcome != OutcomeSummarizerError || !errors.Is(res.Err, ErrBadSummary) {
		t.Errorf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
}

func TestCompact_CancelledContext(t *testing.T) {
	s := shortSummary()
	e := newTestEngine(t, s, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := sampleLog()
	res := e.Compact(ctx, in, roomyBudget)
	if res.Outcome != OutcomeSummarizerError || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Outcome = %s, err = %v", res.Outcome, res.Err)
	}
	if s.calls != 0 {
		t.Errorf("summarizer called %d times after cancel", s.calls)
	}
	if !res.Log.Equal(in) {
		t.Error("log changed")
	}
}

func TestCompactFull_EmptyAfterFiltering(t *testing.T) {
	e := newTestEngine(t, shortSummary(), nil)

	in := schema.NewLog(
		schema.NewUserMessage("one"),
		schema.NewAssistantMessage("<think>planning</think>"),
		schema.NewUserMessage("two"),
	)
	res := e.CompactFull(context.Background(), in, roomyBudget)
	if res.Outcome != OutcomeEmptyAfterFiltering {
		t.Fatalf("Outcome = %s, want %s", res.Outcome, OutcomeEmptyAfterFiltering)
	}
	if !errors.Is(res.Err, ErrEmptyAfterFiltering) {
		t.Errorf("err = %v", res.Err)
	}
	if !res.Log.Equal(in) {
		t.Error("log changed")
	}
}

func TestCompactFull_LogWithoutCompletions(t *testing.T) {
	s := shortSummary()
	e := newTestEngine(t, s, nil)

	in := schema.NewLog(
		schema.NewUserMessage("q"),
		schema.NewDeveloperMessage("note"),
	)
	res := e.CompactFull(context.Background(), in, roomyBudget)
	if res.Outcome != OutcomeCompacted {
		t.Fatalf("Outcome = %s (%v)", res.Outcome, res.Err)
	}
	want := schema.NewLog(schema.NewUserMessage("q"), schema.NewDeveloperMessage("S"))
	if !res.Log.Equal(want) {
		t.Errorf("got:\n%s", dump(res.Log))
	}
	if s.calls != 1 {
		t.Errorf("summarizer calls = %d, want 1", s.calls)
	}
}

func TestCompact_FiltersNoiseAndReasoning(t *testing.T) {
	s := shortSummary()
	e := newTestEngine(t, s, func(c *Config) { c.NoiseTools = []string{"list_dir"} })

	in := schema.NewLog(
		schema.NewUserMessage("look around"),
		schema.NewAssistantMessage("<think>where to start</think>"),
		schema.NewToolRequestMessage(schema.ToolCall{ID: "n1", Name: "list_dir"}),
		schema.NewToolResultMessage("n1", "list_dir", "a b c"),
		schema.NewToolRequestMessage(
			schema.ToolCall{ID: "n2", Name: "list_dir"},
			schema.ToolCall{ID: "r1", Name: "read_file"},
		),
		schema.NewToolResultMessage("n2", "list_dir", "d e"),
		schema.NewToolResultMessage("r1", "read_file", "contents of a long file"),
		schema.NewAssistantMessage("found it in the file"),
		schema.NewUserMessage("thanks"),
		schema.NewAssistantMessage("you're welcome"),
	)
	res := e.Compact(context.Background(), in, roomyBudget)
	if res.Outcome != OutcomeCompacted {
		t.Fatalf("Outcome = %s (%v)", res.Outcome, res.Err)
	}

	seen := s.inputs[0]
	for _, m := range seen {
		if m.Kind() == schema.KindReasoning {
			t.Error("reasoning message sent to summarizer")
		}
		if m.Name == "list_dir" {
			t.Error("noise tool result sent to summarizer")
		}
		for _, tc := range m.ToolCalls {
			if tc.Name == "list_dir" {
				t.Error("noise tool call sent to summarizer")
			}
		}
	}
	if len(seen) != 3 {
		t.Errorf("summarizer saw %d messages, want 3:\n%s", len(seen), dump(seen))
	}
}

func TestCompact_SecondPassWhenStillOverBudget(t *testing.T) {
	s := shortSummary()
	e := newTestEngine(t, s, nil)

	tight := Budget{ContextTokens: 10, TargetFraction: 0.5}
	in := sampleLog()
	res := e.Compact(context.Background(), in, tight)

	if res.Outcome != OutcomeCompacted || res.SecondPass != OutcomeCompacted {
		t.Fatalf("Outcome=%s SecondPass=%s (%v / %v)", res.Outcome, res.SecondPass, res.Err, res.SecondPassErr)
	}
	if res.Mode != ModeFull || res.Passes != 2 || s.calls != 2 {
		t.Errorf("Mode=%s Passes=%d calls=%d", res.Mode, res.Passes, s.calls)
	}
	want := schema.NewLog(
		in[0],
		schema.NewUserMessage("first question"),
		schema.NewUserMessage("second"),
		schema.NewUserMessage("third"),
		schema.NewDeveloperMessage("S"),
	)
	if !res.Log.Equal(want) {
		t.Fatalf("got:\n%s\nwant:\n%s", dump(res.Log), dump(want))
	}
	// The first summary went into the second pass.
	if s.inputs[1][0].Role != schema.RoleDeveloper {
		t.Errorf("second pass input starts with %s", s.inputs[1][0].Role)
	}
}

func TestCompact_SecondPassFailureKeepsFirst(t *testing.T) {
	s := &stubSummarizer{fn: func(call int, _ schema.Log) (schema.Message, error) {
		if call == 1 {
			return schema.NewDeveloperMessage("S"), nil
		}
		return schema.Message{}, errors.New("quota")
	}}
	e := newTestEngine(t, s, nil)

	res := e.Compact(context.Background(), sampleLog(), Budget{ContextTokens: 10, TargetFraction: 0.5})
	if res.Outcome != OutcomeCompacted || res.Mode != ModePartial {
		t.Fatalf("Outcome=%s Mode=%s", res.Outcome, res.Mode)
	}
	if res.SecondPass != OutcomeSummarizerError || res.SecondPassErr == nil {
		t.Errorf("SecondPass=%s err=%v", res.SecondPass, res.SecondPassErr)
	}
	if !res.OverBudget {
		t.Error("expected OverBudget")
	}
	if len(res.Log) != 6 {
		t.Errorf("expected the partial result, got:\n%s", dump(res.Log))
	}
}

func TestCompact_NoSecondPassWhenDisabled(t *testing.T) {
	s := shortSummary()
	e := newTestEngine(t, s, func(c *Config) { c.AllowFullPass = false })

	res := e.Compact(context.Background(), sampleLog(), Budget{ContextTokens: 10, TargetFraction: 0.5})
	if res.Passes != 1 || s.calls != 1 || res.SecondPass != "" {
		t.Errorf("Passes=%d calls=%d SecondPass=%q", res.Passes, s.calls, res.SecondPass)
	}
}

func TestCompact_DedupesEchoedMessage(t *testing.T) {
	note := schema.NewDeveloperMessage("remember: tests use go test ./...")
	s := &stubSummarizer{fn: func(int, schema.Log) (schema.Message, error) {
		return note, nil
	}}
	e := newTestEngine(t, s, func(c *Config) { c.SavingsThreshold = 0.01 })

	in := schema.NewLog(
		schema.NewUserMessage("q1"),
		schema.NewAssistantMessage(strings.Repeat("long answer ", 20)),
		schema.NewUserMessage("q2"),
		schema.NewAssistantMessage("short answer"),
		note,
	)
	res := e.Compact(context.Background(), in, roomyBudget)
	if res.Outcome != OutcomeCompacted {
		t.Fatalf("Outcome = %s (%v)", res.Outcome, res.Err)
	}
	count := 0
	for _, m := range res.Log {
		if m.Equal(note) {
			count++
		}
	}
	if count != 1 {
		t.Errorf("note appears %d times:\n%s", count, dump(res.Log))
	}
}

func TestCompact_RepeatedRecentCompletionsSurvive(t *testing.T) {
	e := newTestEngine(t, shortSummary(), func(c *Config) { c.RoundsToKeep = 2 })
	in := schema.NewLog(
		schema.NewUserMessage("old question"),
		schema.NewAssistantMessage(strings.Repeat("long old answer ", 20)),
		schema.NewUserMessage("run the tests"),
		schema.NewAssistantMessage("Done."),
		schema.NewUserMessage("run them again"),
		schema.NewAssistantMessage("Done."),
	)
	res := e.Compact(context.Background(), in, roomyBudget)
	if res.Outcome != OutcomeCompacted {
		t.Fatalf("Outcome = %s (%v)", res.Outcome, res.Err)
	}

	want := schema.NewLog(
		schema.NewUserMessage("old question"),
		schema.NewUserMessage("run the tests"),
		schema.NewDeveloperMessage("S"),
		schema.NewAssistantMessage("Done."),
		schema.NewUserMessage("run them again"),
		schema.NewAssistantMessage("Done."),
	)
	if !res.Log.Equal(want) {
		t.Errorf("got:\n%s\nwant:\n%s", dump(res.Log), dump(want))
	}
}

func TestCompact_DuplicateUserMessagesSurvive(t *testing.T) {
	e := newTestEngine(t, shortSummary(), nil)
	in := schema.NewLog(
		schema.NewUserMessage("yes"),
		schema.NewAssistantMessage("first long answer for the record"),
		schema.NewUserMessage("yes"),
		schema.NewAssistantMessage("second"),
	)
	res := e.Compact(context.Background(), in, roomyBudget)
	if got := len(res.Log.Users()); got != 2 {
		t.Errorf("kept %d user messages, want 2", got)
	}
}

// randomLog generates a log in which tool results always follow their
// request and some requests stay unanswered.
func randomLog(r *rand.Rand, n int) schema.Log {
	var (
		log     schema.Log
		pending []string
		nextID  int
	)
	if r.Intn(3) == 0 {
		log = append(log, schema.NewSystemMessage("Your name is Dot."))
	}
	for len(log) < n {
		switch r.Intn(7) {
		case 0, 1:
			log.AddUser(fmt.Sprintf("user %d", len(log)))
		case 2:
			log.AddAssistant(fmt.Sprintf("answer number %d", len(log)))
		case 3:
			log = append(log, schema.NewAssistantMessage("<think>...</think>"))
		case 4:
			id := fmt.Sprintf("call-%d", nextID)
			nextID++
			pending = append(pending, id)
			log.AddToolRequest(schema.ToolCall{ID: id, Name: "exec", Arguments: map[string]any{"cmd": "ls"}})
		default:
			if len(pending) == 0 {
				log = append(log, schema.NewDeveloperMessage("note"))
				continue
			}
			id := pending[0]
			pending = pending[1:]
			log.AddToolResult(id, "exec", "output of the command")
		}
	}
	return log
}

func TestCompact_InvariantsHoldOnRandomLogs(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for iter := 0; iter < 300; iter++ {
		in := randomLog(r, 1+r.Intn(50))
		snapshot := in.Clone()
		k := r.Intn(4)
		s := shortSummary()
		e := newTestEngine(t, s, func(c *Config) {
			c.RoundsToKeep = k
			c.SavingsThreshold = 0.01
		})

		for _, res := range []Result{
			e.Compact(context.Background(), in, Budget{ContextTokens: 40, TargetFraction: 0.5}),
			e.CompactFull(context.Background(), in, roomyBudget),
		} {
			if !in.Equal(snapshot) {
				t.Fatalf("iter %d: input mutated", iter)
			}
			if !res.Outcome.Changed() && !res.Log.Equal(in) {
				t.Fatalf("iter %d: %s changed the log", iter, res.Outcome)
			}
			if !res.Log.Users().Equal(in.Users()) {
				t.Fatalf("iter %d: user messages not preserved (%s)\nin:\n%s\nout:\n%s",
					iter, res.Outcome, dump(in), dump(res.Log))
			}
			checkToolPairing(t, iter, in, res.Log)
			if res.Outcome.Changed() && res.Mode == ModePartial {
				checkRecentTail(t, iter, in, res.Log, e.Config().RoundsToKeep)
			}
			if err := res.Log.Validate(); err != nil {
				t.Fatalf("iter %d: invalid output: %v", iter, err)
			}
		}
	}
}

// checkRecentTail verifies that the rounds a partial pass keeps appear
// unchanged at the end of out.
func checkRecentTail(t *testing.T, iter int, in, out schema.Log, k int) {
	t.Helper()
	work := in
	if len(in) > 0 && in[0].Role == schema.RoleSystem {
		work = in[1:]
	}
	_, recent, _ := rounds.Split(work, k)
	if len(out) < len(recent) || !out[len(out)-len(recent):].Equal(recent) {
		t.Fatalf("iter %d: recent rounds not kept verbatim\nin:\n%s\nout:\n%s", iter, dump(in), dump(out))
	}
}

// checkToolPairing verifies that every result in out follows its request and
// every request unanswered in `in` is still present in out.
func checkToolPairing(t *testing.T, iter int, in, out schema.Log) {
	t.Helper()
	requested := map[string]bool{}
	for _, m := range out {
		switch m.Kind() {
		case schema.KindToolRequest:
			for _, tc := range m.ToolCalls {
				requested[tc.ID] = true
			}
		case schema.KindToolResult:
			if !requested[m.ToolCallID] {
				t.Fatalf("iter %d: result %s without preceding request:\n%s", iter, m.ToolCallID, dump(out))
			}
		}
	}
	for id, sp := range rounds.ToolSpans(in) {
		if sp.InFlight() && !requested[id] {
			t.Fatalf("iter %d: in-flight request %s was dropped:\n%s", iter, id, dump(out))
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"negative rounds", func(c *Config) { c.RoundsToKeep = -1 }, false},
		{"fraction zero", func(c *Config) { c.TargetFraction = 0 }, false},
		{"fraction above one", func(c *Config) { c.TargetFraction = 1.5 }, false},
		{"threshold one", func(c *Config) { c.SavingsThreshold = 1 }, false},
		{"no attempts", func(c *Config) { c.MaxAttempts = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewRequiresSummarizer(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBudget(t *testing.T) {
	b := NewBudget(schema.NewModel("x", 1000), 0.75)
	if b.Limit() != 750 {
		t.Errorf("Limit = %d", b.Limit())
	}
	if b.Exceeded(750) || !b.Exceeded(751) {
		t.Error("Exceeded boundary wrong")
	}
	if (Budget{}).Exceeded(1 << 30) {
		t.Error("zero budget should never be exceeded")
	}
}

func dump(log schema.Log) string {
	var b strings.Builder
	for i, m := range log {
		fmt.Fprintf(&b, "  %d %-9s %q", i, m.Role, m.Content)
		for _, tc := range m.ToolCalls {
			fmt.Fprintf(&b, " call=%s", tc.ID)
		}
		if m.ToolCallID != "" {
			fmt.Fprintf(&b, " answers=%s", m.ToolCallID)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
