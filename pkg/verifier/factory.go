package verifier

import (
	"context"
	"runtime"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daimatz/jverify/pkg/repository"
)

// Factory hands out one Verifier per class name and owns the results they
// cache. Results live until the class is evicted.
type Factory struct {
	repo            repository.Repository
	logger          *zap.Logger
	runID           string
	collectWarnings bool
	parallelism     int

	mu        sync.Mutex
	verifiers map[string]*Verifier
}

// Option configures a Factory.
type Option func(*Factory)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithCollectWarnings makes pass 3a record non-fatal observations as messages.
func WithCollectWarnings(on bool) Option {
	return func(f *Factory) { f.collectWarnings = on }
}

// WithParallelism bounds how many methods or classes are verified at once.
func WithParallelism(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.parallelism = n
		}
	}
}

// NewFactory creates a Factory resolving classes through repo.
func NewFactory(repo repository.Repository, opts ...Option) *Factory {
	f := &Factory{
		repo:        repo,
		logger:      zap.NewNop(),
		runID:       uuid.NewString(),
		parallelism: runtime.GOMAXPROCS(0),
		verifiers:   make(map[string]*Verifier),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("run", f.runID))
	return f
}

// RunID identifies this factory in log output.
func (f *Factory) RunID() string { return f.runID }

// Verifier returns the verifier of the named class, creating it on first
// use. Dotted names are accepted.
func (f *Factory) Verifier(name string) *Verifier {
	name = repository.InternalName(name)

	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.verifiers[name]
	if !ok {
		v = newVerifier(f, name)
		f.verifiers[name] = v
	}
	return v
}

// Evict forgets every cached result of the named class and drops the class
// from a caching repository. Results of other classes that depended on it
// are kept.
func (f *Factory) Evict(name string) {
	name = repository.InternalName(name)

	f.mu.Lock()
	delete(f.verifiers, name)
	f.mu.Unlock()

	if e, ok := f.repo.(repository.Evicter); ok {
		e.Evict(name)
	}
	f.logger.Debug("evicted class", zap.String("class", name))
}

// Names lists the classes a verifier has been created for, sorted.
func (f *Factory) Names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.verifiers))
	for name := range f.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VerifyAll fully verifies each named class, several at a time. Reports
// are returned in the order of names.
func (f *Factory) VerifyAll(ctx context.Context, names []string) ([]*Report, error) {
	reports := make([]*Report, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rep, err := f.Verifier(name).Verify(ctx)
			if err != nil {
				f.logger.Warn("verification fault", zap.String("class", name), zap.Error(err))
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}
