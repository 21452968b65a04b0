package cache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/beacondeck/beacon-go/internal/logging"
)

const fileSuffix = ".json"

// fileEntry is the persisted layout: the serialized value plus an
// expiry deadline in Unix epoch milliseconds, null for "never".
type fileEntry struct {
	Value   string `json:"value"`
	Expires *int64 `json:"expires"`
}

// Filesystem is a durable Store writing one file per key. File names are
// the base64url encoding of the key, so arbitrary keys cannot collide or
// escape the directory. When the cache directory cannot be created the
// store degrades to a silent no-op.
type Filesystem struct {
	dir       string
	available bool
	log       *slog.Logger
	now       func() time.Time
}

// NewFilesystem creates a filesystem store rooted at dir, creating the
// directory if needed. Creation failure is logged, not fatal.
func NewFilesystem(dir string, log *slog.Logger) *Filesystem {
	if log == nil {
		log = logging.Discard()
	}
	fs := &Filesystem{dir: dir, available: true, log: log, now: time.Now}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("cache directory unavailable, filesystem cache disabled", "dir", dir, "error", err)
		fs.available = false
	}
	return fs
}

// Get implements Store. Missing or unparsable files report absent.
func (f *Filesystem) Get(_ context.Context, key string) (string, bool) {
	if !f.available {
		return "", false
	}

	path := f.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			f.log.Warn("cache read failed", "key", key, "error", err)
		}
		return "", false
	}

	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		f.log.Warn("discarding unparsable cache file", "key", key, "error", err)
		return "", false
	}
	if entry.Expires != nil && f.now().UnixMilli() >= *entry.Expires {
		_ = os.Remove(path)
		return "", false
	}
	return entry.Value, true
}

// Set implements Store.
func (f *Filesystem) Set(_ context.Context, key, value string, ttl time.Duration) {
	if !f.available {
		return
	}

	entry := fileEntry{Value: value}
	if ttl > 0 {
		deadline := f.now().Add(ttl).UnixMilli()
		entry.Expires = &deadline
	}

	data, err := json.Marshal(entry)
	if err != nil {
		f.log.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := os.WriteFile(f.path(key), data, 0o644); err != nil {
		f.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// Has implements Store.
func (f *Filesystem) Has(ctx context.Context, key string) bool {
	_, ok := f.Get(ctx, key)
	return ok
}

// Delete implements Store.
func (f *Filesystem) Delete(_ context.Context, key string) {
	if !f.available {
		return
	}
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		f.log.Warn("cache delete failed", "key", key, "error", err)
	}
}

// Clear implements Store. Only files written by this store are removed;
// unrelated files in the directory are left untouched.
func (f *Filesystem) Clear(_ context.Context) {
	if !f.available {
		return
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		f.log.Warn("cache clear failed", "dir", f.dir, "error", err)
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !f.managed(entry.Name()) {
			continue
		}
		if err := os.Remove(filepath.Join(f.dir, entry.Name())); err != nil {
			f.log.Warn("cache clear failed", "file", entry.Name(), "error", err)
		}
	}
}

func (f *Filesystem) path(key string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(key)) + fileSuffix
	return filepath.Join(f.dir, name)
}

func (f *Filesystem) managed(name string) bool {
	if !strings.HasSuffix(name, fileSuffix) {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, fileSuffix))
	return err == nil
}
