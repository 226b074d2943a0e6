package catalog

import (
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache loads each distinct catalog path at most once and hands out the same
// *Catalog for the life of the process. Failed loads are not cached.
type Cache struct {
	mu       sync.RWMutex
	catalogs map[string]*Catalog
	group    singleflight.Group
}

func NewCache() *Cache {
	return &Cache{catalogs: make(map[string]*Catalog)}
}

func (c *Cache) Get(
	path string,
) (
	*Catalog,
	error,
) {
	key := filepath.Clean(path)

	c.mu.RLock()
	cat, ok := c.catalogs[key]
	c.mu.RUnlock()
	if ok {
		return cat, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		cached, ok := c.catalogs[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}

		loaded, err := Load(key)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.catalogs[key] = loaded
		c.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}
