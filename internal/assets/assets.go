// Package assets loads source geometry from glTF files and caches it.
package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-lod/internal/engine/model"
	"github.com/Faultbox/midgard-lod/internal/logger"
)

// Manager resolves asset paths against search roots and loads them.
// Loaded geometry is cached and shared; callers must not modify it.
type Manager struct {
	roots   []string
	cache   *Cache
	noCache bool
	log     *zap.Logger
	mu      sync.RWMutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithoutCache disables caching.
func WithoutCache() Option {
	return func(m *Manager) { m.noCache = true }
}

// NewManager creates a new asset manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{cache: NewCache()}
	for _, o := range opts {
		o(m)
	}
	if m.log == nil {
		m.log = logger.Named("assets")
	}
	return m
}

// AddRoot adds a directory to search for relative paths.
// Roots are searched in reverse order (last added = highest priority).
func (m *Manager) AddRoot(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "adding search root %s", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("adding search root %s: not a directory", dir)
	}

	m.mu.Lock()
	m.roots = append(m.roots, dir)
	m.mu.Unlock()
	return nil
}

// Resolve returns the file path asset refers to.
func (m *Manager) Resolve(asset string) (string, error) {
	if filepath.IsAbs(asset) {
		return asset, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.roots) - 1; i >= 0; i-- {
		p := filepath.Join(m.roots[i], asset)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	if _, err := os.Stat(asset); err == nil {
		return asset, nil
	}
	return "", fmt.Errorf("file not found: %s", asset)
}

// Load reads a .gltf or .glb file and merges every triangle primitive of
// every mesh into one geometry. Node transforms are not applied.
func (m *Manager) Load(ctx context.Context, asset string) (*model.Geometry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := m.Resolve(asset)
	if err != nil {
		return nil, err
	}
	if !m.noCache {
		if g, ok := m.cache.Get(path); ok {
			return g, nil
		}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
	default:
		return nil, fmt.Errorf("loading %s: unsupported format %q", path, filepath.Ext(path))
	}

	doc, err := gltf.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read gltf %s", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g, err := Decode(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}

	m.log.Debug("loaded asset",
		zap.String("path", path),
		zap.Int("vertices", g.VertexCount()),
		zap.Int("triangles", g.TriangleCount()))

	if !m.noCache {
		m.cache.Set(path, g)
	}
	return g, nil
}

// LoadReader decodes a glTF or GLB stream. Only embedded buffers are
// supported.
func LoadReader(r io.Reader) (*model.Geometry, error) {
	doc := &gltf.Document{}
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to read gltf")
	}
	return Decode(doc)
}

// Invalidate drops a cached asset so the next Load reads it again.
func (m *Manager) Invalidate(asset string) {
	path, err := m.Resolve(asset)
	if err != nil {
		path = asset
	}
	m.cache.Delete(path)
}

// CacheStats returns cache hits and misses.
func (m *Manager) CacheStats() (hits, misses int) {
	return m.cache.Stats()
}

// Close drops all roots and cached geometry.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots = nil
	m.cache.Clear()
}

// Cache is a simple in-memory cache for loaded geometry.
type Cache struct {
	data map[string]*model.Geometry
	mu   sync.RWMutex

	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string]*model.Geometry),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) (*model.Geometry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	g, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return g, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, g *model.Geometry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = g
}

// Delete removes an item from cache.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear clears the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*model.Geometry)
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
