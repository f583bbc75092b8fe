package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

const (
	metadataType = "metadata"
	maxLineBytes = 16 << 20
)

// wireMeta is the first line of a session file.
type wireMeta struct {
	Type        string         `json:"_type"`
	Key         string         `json:"key"`
	CreatedAt   string         `json:"created_at"`
	UpdatedAt   string         `json:"updated_at"`
	Metadata    map[string]any `json:"metadata"`
	Compactions int            `json:"compactions,omitempty"`
}

// wireMessage is the on-disk JSON representation of a message.
type wireMessage struct {
	Type       string         `json:"_type,omitempty"`
	Role       schema.Role    `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

func newMeta(s *Session) wireMeta {
	return wireMeta{
		Type:        metadataType,
		Key:         s.Key,
		CreatedAt:   s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   s.UpdatedAt.UTC().Format(time.RFC3339),
		Metadata:    s.Metadata,
		Compactions: s.Compactions,
	}
}

func messageToWire(m schema.Message, ts string) wireMessage {
	w := wireMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
		Timestamp:  ts,
	}
	for _, tc := range m.ToolCalls {
		var wtc wireToolCall
		wtc.ID = tc.ID
		wtc.Type = "function"
		wtc.Function.Name = tc.Name
		wtc.Function.Arguments = tc.ArgumentsJSON()
		w.ToolCalls = append(w.ToolCalls, wtc)
	}
	return w
}

func wireToMessage(w wireMessage) schema.Message {
	m := schema.Message{
		Role:       w.Role,
		Content:    w.Content,
		ToolCallID: w.ToolCallID,
		Name:       w.Name,
	}
	for _, tc := range w.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			slog.Warn("session: unreadable tool arguments", "call", tc.ID, "err", err)
		}
		m.ToolCalls = append(m.ToolCalls, schema.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return m
}

// marshalMessage returns the JSON form of m without a trailing newline.
func marshalMessage(m schema.Message) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(messageToWire(m, time.Now().UTC().Format(time.RFC3339))); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func unmarshalMessage(b []byte) (schema.Message, error) {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return schema.Message{}, err
	}
	return wireToMessage(w), nil
}

// encodeLog writes the metadata line followed by one line per message.
func encodeLog(w io.Writer, meta wireMeta, log schema.Log) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return encodeMessages(enc, log)
}

func encodeMessages(enc *json.Encoder, log schema.Log) error {
	ts := time.Now().UTC().Format(time.RFC3339)
	for _, m := range log {
		if err := enc.Encode(messageToWire(m, ts)); err != nil {
			return fmt.Errorf("encode message: %w", err)
		}
	}
	return nil
}

// decodeLog reads a session stream. Malformed lines are logged and skipped.
// The metadata line is optional.
func decodeLog(r io.Reader, key string) (wireMeta, schema.Log, error) {
	var (
		meta wireMeta
		log  schema.Log
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var w wireMessage
		if err := json.Unmarshal(line, &w); err != nil {
			slog.Warn("skipping malformed session line", "key", key, "err", err)
			continue
		}
		if w.Type == metadataType {
			if err := json.Unmarshal(line, &meta); err != nil {
				slog.Warn("skipping malformed session metadata", "key", key, "err", err)
			}
			continue
		}
		log = append(log, wireToMessage(w))
	}
	if err := scanner.Err(); err != nil {
		return meta, nil, fmt.Errorf("read session %s: %w", key, err)
	}
	return meta, log, nil
}

// compressLog returns the zstd-compressed JSONL form of log.
func compressLog(w io.Writer, meta wireMeta, log schema.Log) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if err := encodeLog(zw, meta, log); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func decompressLog(r io.Reader, key string) (wireMeta, schema.Log, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return wireMeta{}, nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()
	return decodeLog(zr, key)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
