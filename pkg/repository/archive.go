package repository

import (
	"bytes"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/daimatz/jverify/pkg/classfile"
)

var jmodMagic = []byte{'J', 'M', 0x01, 0x00}

// ArchiveRepository loads classes from a .jar or a JDK .jmod file. The
// archive is opened lazily on first lookup.
type ArchiveRepository struct {
	Path string

	once    sync.Once
	openErr error
	prefix  string
	entries map[string]*zip.File
}

// NewArchiveRepository creates a new ArchiveRepository.
func NewArchiveRepository(path string) *ArchiveRepository {
	return &ArchiveRepository{Path: path}
}

func (r *ArchiveRepository) open() error {
	r.once.Do(func() {
		data, err := os.ReadFile(r.Path)
		if err != nil {
			r.openErr = errors.Wrapf(err, "archive: reading %s", r.Path)
			return
		}
		// A jmod is a zip behind a 4-byte header with classes under classes/.
		if bytes.HasPrefix(data, jmodMagic) {
			data = data[len(jmodMagic):]
			r.prefix = "classes/"
		}
		zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			r.openErr = errors.Wrapf(err, "archive: opening zip %s", r.Path)
			return
		}
		r.entries = make(map[string]*zip.File, len(zr.File))
		for _, f := range zr.File {
			if strings.HasSuffix(f.Name, ".class") {
				r.entries[f.Name] = f
			}
		}
	})
	return r.openErr
}

func (r *ArchiveRepository) LookupClass(name string) (*classfile.ClassFile, error) {
	if err := r.open(); err != nil {
		return nil, err
	}

	target := r.prefix + name + ".class"
	file, ok := r.entries[target]
	if !ok {
		return nil, errors.Wrapf(ErrClassNotFound, "archive: %s in %s", name, r.Path)
	}
	rc, err := file.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "archive: opening %s", target)
	}
	defer rc.Close()

	cf, err := classfile.Parse(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "archive: parsing %s", name)
	}
	return cf, nil
}
