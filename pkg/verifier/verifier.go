// Package verifier statically verifies class files in passes. Pass 1
// loads a class, pass 2 checks its structure and its place in the class
// hierarchy, and pass 3a checks the code of each method without dataflow
// analysis. Every result is computed at most once per Verifier.
package verifier

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/daimatz/jverify/pkg/classfile"
)

// Verifier verifies one class. It is safe for concurrent use.
type Verifier struct {
	factory *Factory
	name    string
	log     *zap.Logger

	mu        sync.RWMutex
	pass1     *Result
	pass2     *Result
	pass3a    map[int]Result
	class     *classfile.ClassFile
	localVars []*LocalVariables
	messages  []string

	group singleflight.Group
}

func newVerifier(f *Factory, name string) *Verifier {
	return &Verifier{
		factory: f,
		name:    name,
		log:     f.logger.With(zap.String("class", name)),
		pass3a:  make(map[int]Result),
	}
}

// ClassName returns the internal name of the class under verification.
func (v *Verifier) ClassName() string { return v.name }

// do returns the cached result of key, or computes it exactly once.
// compute publishes its own result; an error it returns is not cached.
func (v *Verifier) do(key string, cached func() (Result, bool), compute func() (Result, error)) (Result, error) {
	v.mu.RLock()
	r, ok := cached()
	v.mu.RUnlock()
	if ok {
		return r, nil
	}

	out, err, _ := v.group.Do(key, func() (interface{}, error) {
		v.mu.RLock()
		r, ok := cached()
		v.mu.RUnlock()
		if ok {
			return r, nil
		}
		r, err := compute()
		if err != nil {
			return nil, err
		}
		v.logResult(key, r)
		return r, nil
	})
	if err != nil {
		return Result{}, err
	}
	return out.(Result), nil
}

func (v *Verifier) logResult(key string, r Result) {
	if r.Status == Rejected {
		v.log.Info("rejected", zap.String("pass", key), zap.String("reason", r.Message))
		return
	}
	v.log.Debug("pass finished", zap.String("pass", key), zap.Stringer("result", r))
}

func (v *Verifier) parsed() *classfile.ClassFile {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.class
}

func (v *Verifier) addMessages(msgs []string) {
	if len(msgs) == 0 {
		return
	}
	v.mu.Lock()
	v.messages = append(v.messages, msgs...)
	v.mu.Unlock()
}

// Messages returns the diagnostic notes collected so far by every pass.
func (v *Verifier) Messages() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]string(nil), v.messages...)
}

// LocalVariables returns the local variable table pass 2 built for method,
// or nil when pass 2 did not succeed or the method has no code.
func (v *Verifier) LocalVariables(method int) (*LocalVariables, error) {
	r, err := v.DoPass2()
	if err != nil || r.Status != OK {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if method < 0 || method >= len(v.localVars) {
		return nil, assertionf("method index %d out of range for %s", method, v.name)
	}
	return v.localVars[method], nil
}

// DoPass3aAll runs pass 3a on every method concurrently. When pass 2 did
// not succeed every method is NotYet.
func (v *Verifier) DoPass3aAll(ctx context.Context) ([]Result, error) {
	r, err := v.DoPass2()
	if err != nil {
		return nil, err
	}
	cf := v.parsed()
	if cf == nil {
		return nil, nil
	}
	results := make([]Result, len(cf.Methods))
	if r.Status != OK {
		for i := range results {
			results[i] = ResultNotYet
		}
		return results, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.factory.parallelism)
	for i := range cf.Methods {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := v.DoPass3a(i)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// MethodReport is the pass 3a outcome of one method.
type MethodReport struct {
	Index  int
	Name   string
	Result Result
}

// Report collects every pass result of one class.
type Report struct {
	Class    string
	Pass1    Result
	Pass2    Result
	Methods  []MethodReport
	Messages []string
}

// Rejected reports whether any pass rejected the class or one of its methods.
func (r *Report) Rejected() bool {
	if r.Pass1.Status == Rejected || r.Pass2.Status == Rejected {
		return true
	}
	for _, m := range r.Methods {
		if m.Result.Status == Rejected {
			return true
		}
	}
	return false
}

// Verify runs every pass on the class and its methods.
func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	rep := &Report{Class: v.name}
	var err error
	if rep.Pass1, err = v.DoPass1(); err != nil {
		return nil, err
	}
	if rep.Pass2, err = v.DoPass2(); err != nil {
		return nil, err
	}
	if rep.Pass2.Status == OK {
		results, err := v.DoPass3aAll(ctx)
		if err != nil {
			return nil, err
		}
		cf := v.parsed()
		for i, res := range results {
			rep.Methods = append(rep.Methods, MethodReport{Index: i, Name: cf.Methods[i].String(), Result: res})
		}
	}
	rep.Messages = v.Messages()
	return rep, nil
}
