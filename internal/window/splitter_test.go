package window

import (
	"os"
	"strings"
	"testing"
)

const fox = "the quick brown fox jumps over the lazy dog"

func TestSplitterWordWindowsWithHints(t *testing.T) {
	s := New[string](fox, 5, WordCodec{})

	steps := []struct {
		hint string
		want string
	}{
		{"see also", "the quick brown"}, // hint reserves 2 tokens
		{"see also", "fox jumps over"},  // 2
		{"next part here", "the lazy"},  // 3
		{"", "dog"},                     // only one left
	}

	var st State
	for i, step := range steps {
		before := st.Offset
		var got string
		got, st = s.Next(st, step.hint)
		if got != step.want {
			t.Fatalf("step %d: got %q, want %q", i, got, step.want)
		}
		if adv := st.Offset - before; adv != len(strings.Fields(got)) {
			t.Errorf("step %d: offset advanced by %d, emitted %d tokens", i, adv, len(strings.Fields(got)))
		}
		if wantDone := i == len(steps)-1; st.Done != wantDone {
			t.Errorf("step %d: Done = %v, want %v", i, st.Done, wantDone)
		}
	}

	got, again := s.Next(st, "")
	if got != "" || again != st {
		t.Errorf("call after done: got %q, state %+v", got, again)
	}
}

func TestSplitterWordWindowsNoHint(t *testing.T) {
	s := New[string](fox, 3, WordCodec{})
	got := s.All()
	want := []string{"the quick brown", "fox jumps over", "the lazy dog"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("All() = %q, want %q", got, want)
	}
}

func TestSplitterZeroBudgetMakesProgress(t *testing.T) {
	s := New[string]("a b c", 0, WordCodec{})
	var (
		st    State
		calls int
		out   []string
	)
	for !st.Done {
		var text string
		text, st = s.Next(st, "a hint longer than the budget")
		out = append(out, text)
		calls++
		if calls > 10 {
			t.Fatal("splitter did not make progress")
		}
	}
	if calls != 3 || strings.Join(out, ",") != "a,b,c" {
		t.Errorf("got %q over %d calls", out, calls)
	}
}

func TestSplitterEmptySource(t *testing.T) {
	s := New[string]("", 0, WordCodec{})
	got, st := s.Next(State{}, "")
	if got != "" || !st.Done {
		t.Errorf("empty source: got %q, state %+v", got, st)
	}
}

func TestSplitterRestartFromAnyState(t *testing.T) {
	s := New[string](fox, 2, WordCodec{})

	_, st1 := s.Next(State{}, "")
	a, st2 := s.Next(st1, "")
	// Replaying from st1 yields the same window and state.
	b, st2b := s.Next(st1, "")
	if a != b || st2 != st2b {
		t.Errorf("replay mismatch: %q/%+v vs %q/%+v", a, st2, b, st2b)
	}
	if a != "brown fox" {
		t.Errorf("second window = %q, want %q", a, "brown fox")
	}
}

func TestStateBinaryRoundTrip(t *testing.T) {
	s := New[string](fox, 4, WordCodec{})
	_, st := s.Next(State{}, "")

	data, err := st.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	var restored State
	if err := restored.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if restored != st {
		t.Fatalf("restored %+v, want %+v", restored, st)
	}
	got, _ := s.Next(restored, "")
	if got != "jumps over the lazy" {
		t.Errorf("resumed window = %q", got)
	}
}

func TestStateUnmarshalGarbage(t *testing.T) {
	var st State
	if err := st.UnmarshalBinary([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error for malformed input")
	}
}

func TestTiktokenCodecRoundTrip(t *testing.T) {
	if testing.Short() || os.Getenv("CTXBUDGET_TEST_TIKTOKEN") == "" {
		t.Skip("set CTXBUDGET_TEST_TIKTOKEN=1 to load BPE ranks")
	}
	c, err := NewTiktokenCodec("cl100k_base")
	if err != nil {
		t.Fatalf("NewTiktokenCodec: %v", err)
	}
	s := New[int](fox, 4, c)
	if got := strings.Join(s.All(), ""); got != fox {
		t.Errorf("windows do not reassemble: %q", got)
	}
}
