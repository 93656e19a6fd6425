package registry

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bbmd-bt/planilha-ploomes-parceiros/internal/util"
)

// Cache memoizes registries per (category, mesa). A missing or unreadable
// file caches an empty registry; entries only go away through Invalidate.
type Cache struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Registry
}

func NewCache(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{dir: dir, logger: logger.With("component", "registry"), entries: map[string]*Registry{}}
}

func (c *Cache) Offices(mesa string) *Registry {
	return c.get(CategoryOffices, mesa)
}

func (c *Cache) Negotiators(mesa string) *Registry {
	return c.get(CategoryNegotiators, mesa)
}

func (c *Cache) Path(category, mesa string) string {
	return filepath.Join(c.dir, FileName(category, mesa))
}

func (c *Cache) Invalidate(mesa string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(CategoryOffices, mesa))
	delete(c.entries, cacheKey(CategoryNegotiators, mesa))
}

// Negotiator resolves a negotiator name through the mesa dictionary:
// exact key, then case-insensitive key, else the trimmed input.
func (c *Cache) Negotiator(raw, mesa string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}
	reg := c.Negotiators(mesa)
	if v, ok := reg.Get(name); ok {
		return v
	}
	folded := util.FoldKey(name)
	for _, key := range reg.Keys() {
		if util.FoldKey(key) == folded {
			v, _ := reg.Get(key)
			return v
		}
	}
	return name
}

func (c *Cache) get(category, mesa string) *Registry {
	key := cacheKey(category, mesa)

	c.mu.RLock()
	reg, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return reg
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if reg, ok := c.entries[key]; ok {
		return reg
	}

	path := c.Path(category, mesa)
	reg, err := Load(path, category)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.logger.Debug("registry file not found", "path", path)
		reg = NewRegistry()
	case err != nil:
		c.logger.Warn("registry file unreadable", "path", path, "error", err)
		reg = NewRegistry()
	default:
		c.logger.Debug("registry loaded", "path", path, "entries", reg.Len())
	}
	c.entries[key] = reg
	return reg
}

func cacheKey(category, mesa string) string {
	mesa = strings.ToLower(strings.TrimSpace(mesa))
	if mesa == "" {
		mesa = "default"
	}
	return category + "/" + mesa
}
