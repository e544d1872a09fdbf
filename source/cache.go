package source

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"energyflow/dataset"
)

// CachedLoader memoizes LoadCSV by path, modification time and size, so an
// edited or appended file is always reloaded. Callers get their own copy.
type CachedLoader struct {
	cache  *lru.Cache[string, *dataset.Dataset]
	logger *zap.Logger

	mu   sync.RWMutex
	opts Options
}

// NewCachedLoader 创建带 LRU 缓存的加载器
func NewCachedLoader(size int, opts Options, logger *zap.Logger) (*CachedLoader, error) {
	if size <= 0 {
		size = 8
	}
	cache, err := lru.New[string, *dataset.Dataset](size)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedLoader{cache: cache, opts: opts, logger: logger}, nil
}

// Load 加载 CSV（命中缓存时返回副本）
func (c *CachedLoader) Load(path string) (*dataset.Dataset, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	opts := c.opts
	c.mu.RUnlock()
	key := fmt.Sprintf("%s|%d|%d|%s", abs, info.ModTime().UnixNano(), info.Size(), opts.Charset)

	if ds, ok := c.cache.Get(key); ok {
		c.logger.Debug("Source cache hit", zap.String("path", abs))
		return ds.Clone(), nil
	}

	ds, err := LoadCSV(abs, opts)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, ds)
	c.logger.Info("Loaded source",
		zap.String("path", abs),
		zap.Int("rows", ds.Len()),
		zap.Strings("columns", ds.Names()))
	return ds.Clone(), nil
}

// Len 缓存条目数
func (c *CachedLoader) Len() int { return c.cache.Len() }

// SetOptions swaps the read options and drops every cached dataset.
func (c *CachedLoader) SetOptions(opts Options) {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
	c.cache.Purge()
}

// Purge 清空缓存
func (c *CachedLoader) Purge() { c.cache.Purge() }
