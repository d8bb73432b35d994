package persistence

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FileProvider stores each key as <root>/<key>.json. The root directory is created on first write.
type FileProvider struct {
	root string
	mu   sync.RWMutex
}

// NewFileProvider returns a provider rooted at root. Nothing touches the disk until the first Save.
func NewFileProvider(root string) *FileProvider {
	return &FileProvider{root: root}
}

// Root returns the directory records are written to.
func (p *FileProvider) Root() string { return p.root }

func (p *FileProvider) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(p.root, key+".json"), nil
}

// Save writes value atomically (temp file + rename).
func (p *FileProvider) Save(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := p.path(key)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.MkdirAll(p.root, 0o700); err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrPersistence, p.root, err)
	}
	tmp, err := os.CreateTemp(p.root, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrPersistence, key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrPersistence, key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", ErrPersistence, key, err)
	}
	return nil
}

// Load reads the record for key, or returns an error matching ErrNotFound.
func (p *FileProvider) Load(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := p.path(key)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPersistence, key, err)
	}
	return b, nil
}

// Ping reports whether the root directory is usable.
func (p *FileProvider) Ping(ctx context.Context) error {
	info, err := os.Stat(p.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil // created on first write
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrPersistence, p.root)
	}
	return nil
}

// Keys lists every stored key in lexical order. A missing root yields no keys.
func (p *FileProvider) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	entries, err := os.ReadDir(p.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrPersistence, p.root, err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		// skip directories and in-flight temp files
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}
	slices.Sort(keys)
	return keys, nil
}
