package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNotFound = errors.New("artifact not found")

// Location says where an exported bundle ended up.
type Location struct {
	// Key is the sink-relative name, e.g. "projects/{id}/{name}.zip".
	Key string `json:"key"`
	// URL is a fetchable address when the sink can produce one.
	URL  string `json:"url,omitempty"`
	Size int64  `json:"size"`
}

// Sink persists export bundles.
type Sink interface {
	Put(ctx context.Context, key string, content []byte) (Location, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(filepath.ToSlash(key)), "/")
	if key == "" {
		return "", fmt.Errorf("artifact key is required")
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", fmt.Errorf("artifact key %q escapes the sink", key)
		}
	}
	return key, nil
}

// ---------------------------------------------------------------------------
// Memory
// ---------------------------------------------------------------------------

type MemorySink struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemorySink() *MemorySink {
	return &MemorySink{data: make(map[string][]byte)}
}

func (s *MemorySink) Put(_ context.Context, key string, content []byte) (Location, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return Location{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), content...)
	return Location{Key: key, Size: int64(len(content))}, nil
}

func (s *MemorySink) Get(_ context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

// ---------------------------------------------------------------------------
// Directory
// ---------------------------------------------------------------------------

// DirSink writes bundles below a local directory.
type DirSink struct {
	root string
}

func NewDirSink(root string) (*DirSink, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &DirSink{root: root}, nil
}

func (s *DirSink) Put(_ context.Context, key string, content []byte) (Location, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return Location{}, err
	}
	full := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Location{}, err
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return Location{}, err
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return Location{}, err
	}
	return Location{Key: key, URL: "file://" + filepath.ToSlash(full), Size: int64(len(content))}, nil
}

func (s *DirSink) Get(_ context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return raw, err
}
