package repository

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/daimatz/jverify/pkg/classfile"
)

// DefaultCacheSize bounds the number of parsed classes kept in memory.
const DefaultCacheSize = 4096

// CachingRepository keeps recently parsed classes. Lookup failures are not
// cached, so a class that appears later is found on the next lookup.
type CachingRepository struct {
	backend Repository
	cache   *lru.Cache[string, *classfile.ClassFile]
}

// NewCachingRepository wraps backend with a cache of at most size classes.
func NewCachingRepository(backend Repository, size int) (*CachingRepository, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *classfile.ClassFile](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating class cache")
	}
	return &CachingRepository{backend: backend, cache: cache}, nil
}

func (r *CachingRepository) LookupClass(name string) (*classfile.ClassFile, error) {
	if cf, ok := r.cache.Get(name); ok {
		return cf, nil
	}
	cf, err := r.backend.LookupClass(name)
	if err != nil {
		return nil, err
	}
	r.cache.Add(name, cf)
	return cf, nil
}

// Evict drops name from the cache and from a caching backend.
func (r *CachingRepository) Evict(name string) {
	r.cache.Remove(name)
	if e, ok := r.backend.(Evicter); ok {
		e.Evict(name)
	}
}

// Purge empties the cache.
func (r *CachingRepository) Purge() {
	r.cache.Purge()
}

// Len returns the number of cached classes.
func (r *CachingRepository) Len() int {
	return r.cache.Len()
}
