package tokens

import (
	"errors"
	"fmt"

	"github.com/rivo/uniseg"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

// ErrInvalidChunkSize is returned when budget and factor give a piece length
// below one character for non-empty input.
var ErrInvalidChunkSize = errors.New("chunk size must be at least one character")

// PieceLength returns floor(4 × tokenBudget × reductionFactor).
func PieceLength(tokenBudget int, reductionFactor float64) int {
	return int(float64(CharsPerToken*tokenBudget) * reductionFactor)
}

// Chunk splits text into consecutive pieces of PieceLength characters; the
// last piece may be shorter. Joining the pieces yields text exactly.
//
// Callers whose provider still rejects a piece retry with a smaller
// reductionFactor.
func Chunk(text string, tokenBudget int, reductionFactor float64) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	size := PieceLength(tokenBudget, reductionFactor)
	if size <= 0 {
		return nil, fmt.Errorf("budget %d × factor %g: %w", tokenBudget, reductionFactor, ErrInvalidChunkSize)
	}

	var (
		pieces []string
		start  int
		count  int
	)
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		if count == size {
			from, _ := g.Positions()
			pieces = append(pieces, text[start:from])
			start = from
			count = 0
		}
		count++
	}
	pieces = append(pieces, text[start:])
	return pieces, nil
}

// ChunkForModel chunks text using the model's context window as the budget.
func ChunkForModel(text string, model schema.Model, reductionFactor float64) ([]string, error) {
	return Chunk(text, model.ContextTokens, reductionFactor)
}
