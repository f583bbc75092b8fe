package window

import (
	"fmt"
	"strings"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// WordCodec treats each whitespace-separated word as one token and joins
// decoded words with a single space.
type WordCodec struct{}

func (WordCodec) Encode(text string) []string { return strings.Fields(text) }

func (WordCodec) Decode(tokens []string) string { return strings.Join(tokens, " ") }

// TiktokenCodec encodes with a BPE encoding from tiktoken-go.
type TiktokenCodec struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCodec loads the named encoding, e.g. "cl100k_base". The first
// load of an encoding may download its ranks file.
func NewTiktokenCodec(encoding string) (*TiktokenCodec, error) {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tiktoken: get encoding %q: %w", encoding, err)
	}
	return &TiktokenCodec{enc: enc}, nil
}

func (c *TiktokenCodec) Encode(text string) []int { return c.enc.Encode(text, nil, nil) }

func (c *TiktokenCodec) Decode(tokens []int) string { return c.enc.Decode(tokens) }
