// Package window pulls token-bounded windows out of a source text.
//
// A Splitter is immutable once built. Progress lives in a State value that
// the caller passes in and gets back on every step, so a walk can be paused,
// persisted, resumed or replayed from any earlier state.
package window

// Codec converts text to and from a token sequence.
type Codec[T any] interface {
	Encode(text string) []T
	Decode(tokens []T) string
}

// State is the position of a walk over a Splitter's source.
type State struct {
	Offset int  `cbor:"1,keyasint" json:"offset"`
	Done   bool `cbor:"2,keyasint" json:"done"`
}

// Splitter yields windows of at most budget tokens from a source.
type Splitter[T any] struct {
	codec  Codec[T]
	tokens []T
	budget int
}

// New encodes source once and returns a Splitter over it.
func New[T any](source string, budget int, codec Codec[T]) *Splitter[T] {
	return &Splitter[T]{
		codec:  codec,
		tokens: codec.Encode(source),
		budget: budget,
	}
}

// Len returns the number of tokens in the source.
func (s *Splitter[T]) Len() int { return len(s.tokens) }

// Next returns the window starting at st.Offset and the state after it.
//
// hint is text the caller intends to send alongside the window; its token
// count is reserved out of the budget. The hint is never consumed. Every call
// on a non-empty remainder emits at least one token.
func (s *Splitter[T]) Next(st State, hint string) (string, State) {
	if st.Done {
		return "", st
	}
	if st.Offset < 0 {
		st.Offset = 0
	}
	remaining := len(s.tokens) - st.Offset
	if remaining <= 0 {
		return "", State{Offset: len(s.tokens), Done: true}
	}

	n := s.budget
	if hint != "" {
		n -= len(s.codec.Encode(hint))
	}
	n = max(n, 1)
	n = min(n, remaining)

	end := st.Offset + n
	text := s.codec.Decode(s.tokens[st.Offset:end])
	return text, State{Offset: end, Done: end >= len(s.tokens)}
}

// All walks the source from the start with no hints and returns every window.
func (s *Splitter[T]) All() []string {
	var (
		out []string
		st  State
	)
	for !st.Done {
		var text string
		text, st = s.Next(st, "")
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}
