package verifier

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/jverify/pkg/bytecode"
	"github.com/daimatz/jverify/pkg/classfile"
	"github.com/daimatz/jverify/pkg/classfile/classfiletest"
	"github.com/daimatz/jverify/pkg/repository"
)

func repoWith(builders ...*classfiletest.Builder) *repository.MemoryRepository {
	classes := classfiletest.Roots()
	for name, data := range classfiletest.Classes(builders...) {
		classes[name] = data
	}
	return repository.NewMemoryRepository(classes)
}

func newFactory(builders ...*classfiletest.Builder) *Factory {
	return NewFactory(repoWith(builders...))
}

// classWith starts a public class extending java/lang/Object with a
// default constructor.
func classWith(name string) *classfiletest.Builder {
	return classfiletest.New(name, classfile.ObjectClass).DefaultConstructor(classfile.ObjectClass)
}

// staticMethod adds a public static method with the given code.
func staticMethod(b *classfiletest.Builder, name, desc string, maxLocals uint16, code []byte, opts ...classfiletest.CodeOption) *classfiletest.Builder {
	return b.Method(classfile.AccPublic|classfile.AccStatic, name, desc, b.Code(4, maxLocals, code, opts...))
}

func pass2Of(t *testing.T, f *Factory, class string) Result {
	t.Helper()
	r, err := f.Verifier(class).DoPass2()
	require.NoError(t, err)
	return r
}

func pass3aOf(t *testing.T, f *Factory, class, method string) Result {
	t.Helper()
	v := f.Verifier(class)
	r2, err := v.DoPass2()
	require.NoError(t, err)
	require.Equal(t, OK, r2.Status, r2.Message)
	cf := v.parsed()
	for i := range cf.Methods {
		if cf.Methods[i].Name == method {
			r, err := v.DoPass3a(i)
			require.NoError(t, err)
			return r
		}
	}
	t.Fatalf("method %s not found in %s", method, class)
	return Result{}
}

type countingRepo struct {
	repository.Repository

	mu    sync.Mutex
	calls map[string]int
}

func newCountingRepo(r repository.Repository) *countingRepo {
	return &countingRepo{Repository: r, calls: make(map[string]int)}
}

func (c *countingRepo) LookupClass(name string) (*classfile.ClassFile, error) {
	c.mu.Lock()
	c.calls[name]++
	c.mu.Unlock()
	return c.Repository.LookupClass(name)
}

func (c *countingRepo) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

func (c *countingRepo) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "VERIFIED_OK", ResultOK.String())
	assert.Equal(t, "VERIFIED_NOTYET", ResultNotYet.String())
	assert.Equal(t, "VERIFIED_REJECTED: bad", Reject("bad").String())
	assert.True(t, ResultOK.IsOK())
	assert.Equal(t, "REJECTED", Rejected.String())
}

func TestPass1(t *testing.T) {
	repo := repoWith(classWith("A"))
	repo.Put("Renamed", classWith("Other").Bytes())
	repo.Put("Broken", []byte{0xCA, 0xFE, 0xBA, 0xBE, 0x00})
	unnamed := classWith("Unnamed")
	repo.Put("Unnamed", unnamed.SetThisIndex(unnamed.Utf8("Unnamed")).Bytes())
	f := NewFactory(repo)

	tests := []struct {
		class  string
		status Status
		msg    string
	}{
		{"A", OK, ""},
		{"java.lang.Object", OK, ""},
		{"Missing", Rejected, "could not load class 'Missing'"},
		{"Renamed", Rejected, "wrong name: internal name 'Other' does not match requested name 'Renamed'"},
		{"Broken", Rejected, "could not parse class 'Broken'"},
		{"Unnamed", Rejected, "this_class of 'Unnamed' does not name a class"},
	}
	for _, tt := range tests {
		t.Run(tt.class, func(t *testing.T) {
			r, err := f.Verifier(tt.class).DoPass1()
			require.NoError(t, err)
			assert.Equal(t, tt.status, r.Status)
			assert.Contains(t, r.Message, tt.msg)
		})
	}
	assert.Equal(t, "java/lang/Object", f.Verifier("java.lang.Object").ClassName())
}

func TestPassOrdering(t *testing.T) {
	falls := classWith("FallsOff")
	staticMethod(falls, "m", "()V", 0, classfiletest.Asm(bytecode.OpIconst0, bytecode.OpIconst0, bytecode.OpIadd))
	ok := classWith("Good")
	staticMethod(ok, "m", "()V", 0, classfiletest.Asm(bytecode.OpReturn))
	orphan := classfiletest.New("BadSuper", "Missing").DefaultConstructor("Missing")
	f := newFactory(falls, ok, orphan)

	t.Run("pass 2 waits for pass 1", func(t *testing.T) {
		r, err := f.Verifier("Missing").DoPass2()
		require.NoError(t, err)
		assert.Equal(t, NotYet, r.Status)
	})

	t.Run("pass 3a waits for pass 2", func(t *testing.T) {
		assert.Equal(t, Rejected, pass2Of(t, f, "BadSuper").Status)
		r, err := f.Verifier("BadSuper").DoPass3a(0)
		require.NoError(t, err)
		assert.Equal(t, NotYet, r.Status)
	})

	for _, name := range []string{"Good", "FallsOff", "BadSuper", "Missing"} {
		t.Run("invariant "+name, func(t *testing.T) {
			rep, err := f.Verifier(name).Verify(context.Background())
			require.NoError(t, err)
			for _, m := range rep.Methods {
				if m.Result.IsOK() {
					assert.True(t, rep.Pass2.IsOK(), "pass 3a OK for %s implies pass 2 OK", m.Name)
				}
			}
			if rep.Pass2.IsOK() {
				assert.True(t, rep.Pass1.IsOK())
			}
		})
	}

	rep, err := f.Verifier("FallsOff").Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Pass2.IsOK())
	assert.True(t, rep.Rejected())
}

func TestIdempotence(t *testing.T) {
	b := classWith("A")
	staticMethod(b, "m", "()V", 0, classfiletest.Asm(bytecode.OpReturn))
	repo := newCountingRepo(repoWith(b))
	f := NewFactory(repo)

	first, err := f.Verifier("A").Verify(context.Background())
	require.NoError(t, err)
	assert.False(t, first.Rejected())
	require.Len(t, first.Methods, 2)
	calls := repo.total()

	second, err := f.Verifier("A").Verify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, repo.total(), "the second run must be served from the cache")
	assert.Equal(t, 1, repo.count("A"))
	assert.Equal(t, 1, repo.count(classfile.ObjectClass))
}

func TestConcurrentCallersConverge(t *testing.T) {
	b := classWith("A")
	for _, name := range []string{"m1", "m2", "m3", "m4"} {
		staticMethod(b, name, "()V", 0, classfiletest.Asm(bytecode.OpReturn))
	}
	repo := newCountingRepo(repoWith(b))
	f := NewFactory(repo, WithParallelism(4))

	const callers = 32
	reports := make([]*Report, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep, err := f.Verifier("A").Verify(context.Background())
			assert.NoError(t, err)
			reports[i] = rep
		}()
	}
	wg.Wait()

	for _, rep := range reports[1:] {
		assert.Equal(t, reports[0], rep)
	}
	assert.Equal(t, 1, repo.count("A"))
}

type failingRepo struct {
	mu    sync.Mutex
	calls int
}

func (r *failingRepo) LookupClass(name string) (*classfile.ClassFile, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil, errors.New("disk on fire")
}

func TestFaultsAreNotCached(t *testing.T) {
	repo := &failingRepo{}
	f := NewFactory(repo)

	_, err := f.Verifier("A").DoPass1()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
	assert.False(t, IsAssertionViolated(err))

	_, err = f.Verifier("A").DoPass1()
	require.Error(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestAssertionViolated(t *testing.T) {
	f := newFactory(classWith("A"))
	_, err := f.Verifier("A").DoPass3a(99)
	require.Error(t, err)
	assert.True(t, IsAssertionViolated(err))

	_, err = f.Verifier("A").LocalVariables(-1)
	assert.True(t, IsAssertionViolated(err))
}

func TestEvict(t *testing.T) {
	broken := classWith("A")
	staticMethod(broken, "m", "()V", 0, classfiletest.Asm(bytecode.OpNop))
	mem := repoWith(broken)
	cache, err := repository.NewCachingRepository(mem, 16)
	require.NoError(t, err)
	f := NewFactory(cache)

	rep, err := f.Verifier("A").Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Rejected())

	fixed := classWith("A")
	staticMethod(fixed, "m", "()V", 0, classfiletest.Asm(bytecode.OpReturn))
	mem.Put("A", fixed.Bytes())

	rep, err = f.Verifier("A").Verify(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.Rejected(), "results are never refreshed silently")

	f.Evict("A")
	rep, err = f.Verifier("A").Verify(context.Background())
	require.NoError(t, err)
	assert.False(t, rep.Rejected())
}

func TestVerifyAll(t *testing.T) {
	f := newFactory(classWith("A"), classWith("B"))
	reports, err := f.VerifyAll(context.Background(), []string{"A", "Missing", "B"})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	assert.Equal(t, "A", reports[0].Class)
	assert.False(t, reports[0].Rejected())
	assert.True(t, reports[1].Rejected())
	assert.Equal(t, NotYet, reports[1].Pass2.Status)
	assert.False(t, reports[2].Rejected())

	assert.Equal(t, []string{"A", "B", "Missing", classfile.ObjectClass}, f.Names())
	_, err = uuid.Parse(f.RunID())
	assert.NoError(t, err)
}

func TestVerifyAllFault(t *testing.T) {
	f := NewFactory(&failingRepo{})
	_, err := f.VerifyAll(context.Background(), []string{"A", "B"})
	assert.Error(t, err)
}
