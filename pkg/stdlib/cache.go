package stdlib

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/modset"
)

const (
	cacheFilePrefix = "stdlib-"
	cacheFileExt    = ".json"
	cacheDirPerm    = 0o750
	cacheFilePerm   = 0o600
	cacheKeyLen     = 16
)

var errStaleCache = errors.New("stale cache")

// cacheEntry is the on-disk form of a catalogued standard library.
type cacheEntry struct {
	Key     string   `json:"key"`
	Modules []string `json:"modules"`
}

// CachedCatalog keeps the result of an inner catalog on disk, keyed by the
// identity of the interpreter binary, so that later processes skip probing.
// Cache I/O problems are logged and never fail the lookup. The first
// successful result is kept for the lifetime of the catalog.
type CachedCatalog struct {
	inner  Catalog
	dir    string
	key    string
	logger *slog.Logger

	mu    sync.Mutex
	names modset.Set
}

// NewCachedCatalog wraps inner with a cache stored in dir under key.
func NewCachedCatalog(inner Catalog, dir, key string, logger *slog.Logger) *CachedCatalog {
	if logger == nil {
		logger = slog.Default()
	}

	return &CachedCatalog{inner: inner, dir: dir, key: key, logger: logger}
}

// Builtins returns the cached set, falling back to the inner catalog.
func (c *CachedCatalog) Builtins(ctx context.Context) (modset.Set, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.names != nil {
		return c.names, nil
	}

	names, err := c.lookup(ctx)
	if err != nil {
		return nil, err
	}

	c.names = names

	return names, nil
}

func (c *CachedCatalog) lookup(ctx context.Context) (modset.Set, error) {
	path := c.path()

	names, err := loadCache(path, c.key)
	if err == nil {
		c.logger.DebugContext(ctx, "standard library loaded from cache", "path", path, "modules", names.Len())

		return names, nil
	}

	names, err = c.inner.Builtins(ctx)
	if err != nil {
		return nil, err
	}

	saveErr := saveCache(c.dir, path, cacheEntry{Key: c.key, Modules: names.Sorted()})
	if saveErr != nil {
		c.logger.WarnContext(ctx, "standard library cache not written", "path", path, "error", saveErr)
	}

	return names, nil
}

func (c *CachedCatalog) path() string {
	return filepath.Join(c.dir, cacheFilePrefix+c.key+cacheFileExt)
}

// InterpreterKey identifies an interpreter binary by resolved path, size and
// modification time, so that upgrades invalidate cached catalogs.
func InterpreterKey(interpreter string) (string, error) {
	resolved, err := exec.LookPath(interpreter)
	if err != nil {
		return "", fmt.Errorf("resolve interpreter %s: %w", interpreter, err)
	}

	resolved, err = filepath.EvalSymlinks(resolved)
	if err != nil {
		return "", fmt.Errorf("resolve interpreter %s: %w", interpreter, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat interpreter %s: %w", resolved, err)
	}

	sum := sha256.Sum256([]byte(resolved + "|" +
		strconv.FormatInt(info.Size(), 10) + "|" +
		strconv.FormatInt(info.ModTime().UnixNano(), 10)))

	return hex.EncodeToString(sum[:])[:cacheKeyLen], nil
}

func loadCache(path, key string) (modset.Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var entry cacheEntry

	err = json.Unmarshal(data, &entry)
	if err != nil {
		return nil, fmt.Errorf("decode cache: %w", err)
	}

	if entry.Key != key || len(entry.Modules) == 0 {
		return nil, fmt.Errorf("%w: %s", errStaleCache, path)
	}

	return modset.New(entry.Modules...), nil
}

// saveCache writes through a uniquely named temporary file so readers never
// see a partial document and concurrent writers never share one.
func saveCache(dir, path string, entry cacheEntry) error {
	err := os.MkdirAll(dir, cacheDirPerm)
	if err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}

	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(cacheFilePerm)
	}

	err = errors.Join(err, tmp.Close())
	if err != nil {
		return errors.Join(fmt.Errorf("write cache: %w", err), os.Remove(tmpPath))
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		return errors.Join(fmt.Errorf("commit cache: %w", err), os.Remove(tmpPath))
	}

	return nil
}
