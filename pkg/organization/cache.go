package organization

import (
	"time"

	"github.com/agubarev/orgkeeper/pkg/util"
	"github.com/allegro/bigcache"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Cache keeps recently read organizations by id
type Cache struct {
	backend *bigcache.BigCache
}

// NewCache initializes a cache whose entries live for ttl
func NewCache(ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}

	config := bigcache.DefaultConfig(ttl)
	config.Shards = 64
	config.MaxEntriesInWindow = 10000
	config.MaxEntrySize = 1024
	config.HardMaxCacheSize = 64
	config.Verbose = false

	// expired entries are only dropped by the cleaner
	config.CleanWindow = ttl / 2
	if config.CleanWindow < time.Second {
		config.CleanWindow = time.Second
	}

	backend, err := bigcache.NewBigCache(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize organization cache")
	}

	return &Cache{backend: backend}, nil
}

// Get returns a cached organization
func (c *Cache) Get(id uuid.UUID) (o Organization, ok bool) {
	entry, err := c.backend.Get(id.String())
	if err != nil {
		return o, false
	}

	if err = util.JSON.Unmarshal(entry, &o); err != nil {
		return o, false
	}

	return o, true
}

// Put caches an organization
func (c *Cache) Put(o Organization) error {
	entry, err := util.JSON.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "failed to encode organization")
	}

	return errors.Wrapf(c.backend.Set(o.ID.String(), entry), "failed to cache organization %s", o.ID)
}

// Delete drops an organization from the cache
func (c *Cache) Delete(id uuid.UUID) {
	// a missing entry is fine
	_ = c.backend.Delete(id.String())
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	return c.backend.Len()
}

// Close stops the cleaner
func (c *Cache) Close() error {
	return c.backend.Close()
}
