// Package session persists conversation logs.
//
// FileStore keeps one JSONL file per session under workspace/sessions:
//
//	Line 1:  {"_type":"metadata","key":"…","created_at":"…","updated_at":"…",
//	           "metadata":{…},"compactions":N}
//	Line 2+: one JSON message object per line
//
// Appends add lines in place. Replace and Rebase rewrite the file through a
// temp file and rename so a reader never sees a half-written log. Archived
// snapshots are zstd-compressed JSONL under sessions/archive/<key>/.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

const archiveExt = ".jsonl.zst"

// FileStore stores sessions as JSONL files.
type FileStore struct {
	sessionsDir string
	locks       sync.Map // key → *sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a FileStore rooted at the workspace directory.
// It creates the sessions subdirectory if necessary.
func NewFileStore(workspace string) (*FileStore, error) {
	dir := filepath.Join(workspace, "sessions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &FileStore{sessionsDir: dir}, nil
}

// Dir returns the directory holding session files.
func (s *FileStore) Dir() string { return s.sessionsDir }

func (s *FileStore) lock(key string) func() {
	v, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *FileStore) Load(ctx context.Context, key string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.lock(key)
	defer unlock()
	return s.load(key)
}

func (s *FileStore) load(key string) (*Session, error) {
	path := s.sessionPath(key)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open session %s: %w", key, err)
	}
	defer f.Close()

	meta, log, err := decodeLog(f, key)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		Key:         key,
		Log:         log,
		CreatedAt:   parseTime(meta.CreatedAt),
		UpdatedAt:   parseTime(meta.UpdatedAt),
		Metadata:    meta.Metadata,
		Compactions: meta.Compactions,
	}
	// Appends do not touch the metadata line.
	if st, err := f.Stat(); err == nil && st.ModTime().After(sess.UpdatedAt) {
		sess.UpdatedAt = st.ModTime().UTC().Truncate(time.Second)
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = sess.UpdatedAt
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]any{}
	}
	return sess, nil
}

func (s *FileStore) Append(ctx context.Context, key string, msgs ...schema.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock(key)
	defer unlock()

	path := s.sessionPath(key)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		now := time.Now()
		sess := &Session{Key: key, Log: msgs, CreatedAt: now, UpdatedAt: now, Metadata: map[string]any{}}
		return s.write(sess)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session %s: %w", key, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := encodeMessages(enc, msgs); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("append session %s: %w", key, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync session %s: %w", key, err)
	}
	return f.Close()
}

func (s *FileStore) Replace(ctx context.Context, key string, log schema.Log) error {
	return s.rewrite(ctx, key, func(stored schema.Log) (schema.Log, error) {
		return log, nil
	})
}

func (s *FileStore) Rebase(ctx context.Context, key string, base int, log schema.Log) error {
	return s.rewrite(ctx, key, func(stored schema.Log) (schema.Log, error) {
		if len(stored) < base {
			return nil, ErrConflict
		}
		out := make(schema.Log, 0, len(log)+len(stored)-base)
		out = append(out, log...)
		return append(out, stored[base:]...), nil
	})
}

// rewrite loads the session under its lock, lets fn build the new log and
// writes it back atomically.
func (s *FileStore) rewrite(ctx context.Context, key string, fn func(schema.Log) (schema.Log, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock(key)
	defer unlock()

	sess, err := s.load(key)
	if errors.Is(err, ErrNotFound) {
		sess = &Session{Key: key, CreatedAt: time.Now(), Metadata: map[string]any{}}
	} else if err != nil {
		return err
	}

	log, err := fn(sess.Log)
	if err != nil {
		return err
	}
	sess.Log = log
	sess.UpdatedAt = time.Now()
	sess.Compactions++
	return s.write(sess)
}

func (s *FileStore) write(sess *Session) error {
	path := s.sessionPath(sess.Key)
	err := writeFileAtomic(path, func(w *bufio.Writer) error {
		return encodeLog(w, newMeta(sess), sess.Log)
	})
	if err != nil {
		return fmt.Errorf("write session %s: %w", sess.Key, err)
	}
	return nil
}

func (s *FileStore) Archive(ctx context.Context, key string, id uuid.UUID, log schema.Log) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.archiveDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	now := time.Now()
	meta := newMeta(&Session{Key: key, CreatedAt: now, UpdatedAt: now})
	path := filepath.Join(dir, id.String()+archiveExt)
	err := writeFileAtomic(path, func(w *bufio.Writer) error {
		return compressLog(w, meta, log)
	})
	if err != nil {
		return fmt.Errorf("write archive %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) ReadArchive(ctx context.Context, key string, id uuid.UUID) (schema.Log, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.archiveDir(key), id.String()+archiveExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", id, err)
	}
	defer f.Close()
	_, log, err := decompressLog(f, key)
	return log, err
}

// Archives returns the snapshot IDs stored for key in name order.
func (s *FileStore) Archives(key string) ([]uuid.UUID, error) {
	entries, err := os.ReadDir(s.archiveDir(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}
	var ids []uuid.UUID
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), archiveExt)
		if !ok {
			continue
		}
		if id, err := uuid.Parse(name); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// List returns every session, most recently updated first.
func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	paths, err := filepath.Glob(filepath.Join(s.sessionsDir, "*.jsonl"))
	if err != nil {
		return nil, err
	}

	var out []Info
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := s.keyForPath(path)
		sess, err := s.Load(ctx, key)
		if err != nil {
			continue
		}
		out = append(out, Info{
			Key:         sess.Key,
			CreatedAt:   sess.CreatedAt,
			UpdatedAt:   sess.UpdatedAt,
			Messages:    len(sess.Log),
			Compactions: sess.Compactions,
		})
	}

	slices.SortFunc(out, func(a, b Info) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out, nil
}

func (s *FileStore) Close() error { return nil }

// keyForPath reads the key from the metadata line, falling back to the
// file name.
func (s *FileStore) keyForPath(path string) string {
	fallback := strings.TrimSuffix(filepath.Base(path), ".jsonl")
	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	if scanner.Scan() {
		var meta wireMeta
		if json.Unmarshal(scanner.Bytes(), &meta) == nil && meta.Type == metadataType && meta.Key != "" {
			return meta.Key
		}
	}
	return fallback
}

// sessionPath converts a session key to its JSONL file path.
func (s *FileStore) sessionPath(key string) string {
	return filepath.Join(s.sessionsDir, safeFilename(key)+".jsonl")
}

func (s *FileStore) archiveDir(key string) string {
	return filepath.Join(s.sessionsDir, "archive", safeFilename(key))
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// writeFileAtomic writes path through a temp file in the same directory and
// renames it into place.
func writeFileAtomic(path string, fill func(*bufio.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriter(tmp)
	if err = fill(w); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	if d, derr := os.Open(dir); derr == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// ReadLogFile reads a JSONL conversation file such as one written by
// FileStore. The metadata line is optional.
func ReadLogFile(path string) (schema.Log, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	_, log, err := decodeLog(f, filepath.Base(path))
	return log, err
}

// WriteLogFile atomically replaces path with log, keeping the metadata line
// of the existing file when there is one.
func WriteLogFile(path string, log schema.Log) error {
	now := time.Now()
	meta := newMeta(&Session{Key: strings.TrimSuffix(filepath.Base(path), ".jsonl"), CreatedAt: now, UpdatedAt: now})
	if f, err := os.Open(path); err == nil {
		old, _, derr := decodeLog(f, path)
		f.Close()
		if derr == nil && old.Type == metadataType {
			meta.Key, meta.CreatedAt, meta.Metadata = old.Key, old.CreatedAt, old.Metadata
			meta.Compactions = old.Compactions + 1
		}
	}
	return writeFileAtomic(path, func(w *bufio.Writer) error {
		return encodeLog(w, meta, log)
	})
}

// WriteLog writes log to w as JSONL without a metadata line.
func WriteLog(w io.Writer, log schema.Log) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return encodeMessages(enc, log)
}
