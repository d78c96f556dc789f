// Package watch evicts cached verification results when class files under
// the class path change on disk.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Evicter forgets everything known about a class.
type Evicter interface {
	Evict(name string)
}

// Watcher maps file events under a set of class path roots to class names.
type Watcher struct {
	w      *fsnotify.Watcher
	roots  []string
	target Evicter
	log    *zap.Logger

	// OnEvict, when set, is called after each eviction.
	OnEvict func(name string)
}

// New watches every directory below roots. logger may be nil.
func New(target Evicter, logger *zap.Logger, roots ...string) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating file watcher")
	}
	w := &Watcher{w: fw, target: target, log: logger}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			fw.Close()
			return nil, errors.Wrapf(err, "resolving %s", root)
		}
		if err := w.addTree(abs); err != nil {
			fw.Close()
			return nil, err
		}
		w.roots = append(w.roots, abs)
	}
	return w, nil
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.w.Add(path); err != nil {
			return errors.Wrapf(err, "watching %s", path)
		}
		return nil
	})
}

// Run handles events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.log.Warn("cannot watch new directory", zap.String("path", ev.Name), zap.Error(err))
			}
			return
		}
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	for _, root := range w.roots {
		name, ok := ClassName(root, ev.Name)
		if !ok {
			continue
		}
		w.target.Evict(name)
		w.log.Info("class file changed", zap.String("class", name), zap.Stringer("op", ev.Op))
		if w.OnEvict != nil {
			w.OnEvict(name)
		}
		return
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.w.Close()
}

// ClassName returns the internal name of the class stored at path below
// root, or false when path is not a class file under root.
func ClassName(root, path string) (string, bool) {
	if !strings.HasSuffix(path, ".class") {
		return "", false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(strings.TrimSuffix(rel, ".class")), true
}
