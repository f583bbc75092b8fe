// Package tokens approximates token cost from character counts and splits
// text into token-bounded pieces.
//
// Characters are grapheme clusters, so "é" written as one code point or as
// "e" plus a combining accent costs the same, and a piece boundary never falls
// inside a multi-byte sequence.
package tokens

import (
	"github.com/rivo/uniseg"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

// CharsPerToken is the character-to-token ratio used for estimation.
const CharsPerToken = 4

// Estimate returns ceil(chars/4) for text. The empty string costs 0; any
// non-empty string costs at least 1.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	n := uniseg.GraphemeClusterCount(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// EstimateMessage returns the estimated cost of every piece of text m carries.
func EstimateMessage(m schema.Message) int {
	return Estimate(m.Text())
}

// EstimateLog sums EstimateMessage over log.
func EstimateLog(log schema.Log) int {
	total := 0
	for _, m := range log {
		total += EstimateMessage(m)
	}
	return total
}

// Chars returns the number of logical characters in text.
func Chars(text string) int {
	return uniseg.GraphemeClusterCount(text)
}
