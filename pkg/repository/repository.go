// Package repository locates and parses class files by internal name.
package repository

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/daimatz/jverify/pkg/classfile"
)

// ErrClassNotFound is returned (possibly wrapped) when no repository knows
// the requested class.
var ErrClassNotFound = errors.New("class not found")

// Repository loads parsed class files by internal name (e.g. "java/lang/Object").
// A returned ClassFile is shared and must not be modified.
type Repository interface {
	LookupClass(name string) (*classfile.ClassFile, error)
}

// Evicter is implemented by repositories that cache parsed classes.
type Evicter interface {
	Evict(name string)
}

// IsNotFound reports whether err means the class does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClassNotFound)
}

// IsFormatError reports whether err means the class exists but cannot be parsed.
func IsFormatError(err error) bool {
	var fe *classfile.FormatError
	return errors.As(err, &fe)
}

// InternalName converts a dotted binary name into internal form.
func InternalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

// DirRepository loads classes from a directory tree, delegating to the parent first.
type DirRepository struct {
	ClassPath string
	Parent    Repository
}

// NewDirRepository creates a new DirRepository. parent may be nil.
func NewDirRepository(classPath string, parent Repository) *DirRepository {
	return &DirRepository{ClassPath: classPath, Parent: parent}
}

func (r *DirRepository) LookupClass(name string) (*classfile.ClassFile, error) {
	if r.Parent != nil {
		cf, err := r.Parent.LookupClass(name)
		if err == nil {
			return cf, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	path := filepath.Join(r.ClassPath, filepath.FromSlash(name)+".class")
	cf, err := classfile.ParseFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrClassNotFound, "dir: %s in %s", name, r.ClassPath)
		}
		return nil, errors.Wrapf(err, "dir: loading %s", name)
	}
	return cf, nil
}

// MemoryRepository serves class files from in-memory bytes. It is safe for
// concurrent use.
type MemoryRepository struct {
	mu      sync.RWMutex
	classes map[string][]byte
}

// NewMemoryRepository creates a repository over name -> class file bytes.
func NewMemoryRepository(classes map[string][]byte) *MemoryRepository {
	r := &MemoryRepository{classes: make(map[string][]byte, len(classes))}
	for name, data := range classes {
		r.classes[name] = data
	}
	return r
}

// Put adds or replaces a class.
func (r *MemoryRepository) Put(name string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[name] = data
}

func (r *MemoryRepository) LookupClass(name string) (*classfile.ClassFile, error) {
	r.mu.RLock()
	data, ok := r.classes[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrClassNotFound, "memory: %s", name)
	}
	cf, err := classfile.ParseBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "memory: parsing %s", name)
	}
	return cf, nil
}

// Chain consults each repository in order and returns the first hit.
type Chain []Repository

func (c Chain) LookupClass(name string) (*classfile.ClassFile, error) {
	for _, r := range c {
		cf, err := r.LookupClass(name)
		if err == nil {
			return cf, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	return nil, errors.Wrapf(ErrClassNotFound, "chain: %s", name)
}

// Evict forwards to every member that caches.
func (c Chain) Evict(name string) {
	for _, r := range c {
		if e, ok := r.(Evicter); ok {
			e.Evict(name)
		}
	}
}
