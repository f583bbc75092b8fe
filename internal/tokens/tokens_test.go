package tokens

import (
	"errors"
	"strings"
	"testing"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"abcdefgh", 2},
		{strings.Repeat("x", 401), 101},
		// Multi-byte characters count once each.
		{"日本語の", 1},
		{"日本語の文", 2},
		// "e" + combining acute accent is a single character.
		{"éééé", 1},
		{"👍🏽👍🏽👍🏽👍🏽👍🏽", 2},
	}
	for _, tt := range tests {
		if got := Estimate(tt.text); got != tt.want {
			t.Errorf("Estimate(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateMatchesCeilingForASCII(t *testing.T) {
	for n := 0; n <= 64; n++ {
		s := strings.Repeat("z", n)
		want := (n + 3) / 4
		if got := Estimate(s); got != want {
			t.Fatalf("Estimate(len=%d) = %d, want %d", n, got, want)
		}
	}
}

func TestEstimateLog(t *testing.T) {
	log := schema.NewLog(
		schema.NewUserMessage("abcd"),                                      // 1
		schema.NewAssistantMessage("abcde"),                                // 2
		schema.NewToolRequestMessage(schema.ToolCall{ID: "1", Name: "ls"}), // "ls{}" = 1
		schema.NewToolResultMessage("1", "ls", ""),                         // 0
	)
	if got := EstimateLog(log); got != 4 {
		t.Errorf("EstimateLog = %d, want 4", got)
	}
}

func TestChunkSizes(t *testing.T) {
	pieces, err := Chunk(strings.Repeat("a", 33), 4, 1.0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int{16, 16, 1}
	if len(pieces) != len(want) {
		t.Fatalf("got %d pieces, want %d", len(pieces), len(want))
	}
	for i, p := range pieces {
		if len(p) != want[i] {
			t.Errorf("piece %d length = %d, want %d", i, len(p), want[i])
		}
	}
}

func TestChunkRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"x",
		"hello world, this is a slightly longer sentence.",
		strings.Repeat("日本語", 50),
		strings.Repeat("é👍🏽 ", 37),
	}
	params := []struct {
		budget int
		factor float64
	}{
		{1, 1.0},
		{1, 0.5},
		{3, 0.9},
		{10, 0.25},
		{1000, 1.0},
	}
	for _, in := range inputs {
		for _, p := range params {
			pieces, err := Chunk(in, p.budget, p.factor)
			if err != nil {
				t.Fatalf("Chunk(%q, %d, %g): %v", in, p.budget, p.factor, err)
			}
			if got := strings.Join(pieces, ""); got != in {
				t.Errorf("Chunk(%q, %d, %g) does not round-trip: %q", in, p.budget, p.factor, got)
			}
			size := PieceLength(p.budget, p.factor)
			for i, piece := range pieces {
				if c := Chars(piece); c > size || (i < len(pieces)-1 && c != size) {
					t.Errorf("piece %d has %d chars, size %d", i, c, size)
				}
			}
		}
	}
}

func TestChunkNeverSplitsGraphemes(t *testing.T) {
	in := strings.Repeat("👍🏽", 5)
	pieces, err := Chunk(in, 1, 0.25) // one character per piece
	if err != nil {
		t.Fatal(err)
	}
	if len(pieces) != 5 {
		t.Fatalf("got %d pieces, want 5", len(pieces))
	}
	for _, p := range pieces {
		if p != "👍🏽" {
			t.Errorf("unexpected piece %q", p)
		}
	}
}

func TestChunkInvalidSize(t *testing.T) {
	_, err := Chunk("abc", 1, 0.1)
	if !errors.Is(err, ErrInvalidChunkSize) {
		t.Fatalf("expected ErrInvalidChunkSize, got %v", err)
	}
	pieces, err := Chunk("", 0, 0)
	if err != nil || len(pieces) != 0 {
		t.Fatalf("empty input: pieces=%v err=%v", pieces, err)
	}
}

func TestChunkForModel(t *testing.T) {
	m := schema.NewModel("tiny", 2)
	pieces, err := ChunkForModel(strings.Repeat("b", 20), m, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pieces) != 3 || len(pieces[0]) != 8 || len(pieces[2]) != 4 {
		t.Errorf("unexpected pieces %q", pieces)
	}
}
