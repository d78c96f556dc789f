package verifier

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/daimatz/jverify/pkg/repository"
)

// DoPass1 loads the class and checks that it calls itself by the name it
// was requested under.
func (v *Verifier) DoPass1() (Result, error) {
	return v.do("pass1", func() (Result, bool) {
		if v.pass1 == nil {
			return Result{}, false
		}
		return *v.pass1, true
	}, v.runPass1)
}

func (v *Verifier) runPass1() (Result, error) {
	cf, err := v.factory.repo.LookupClass(v.name)
	var r Result
	switch {
	case err == nil:
		r = ResultOK
	case repository.IsNotFound(err):
		r = Reject(fmt.Sprintf("could not load class '%s': class not found in the repository", v.name))
	case repository.IsFormatError(err):
		r = Reject(fmt.Sprintf("could not parse class '%s': %v", v.name, err))
	default:
		return Result{}, errors.Wrapf(err, "pass 1 of %s", v.name)
	}

	if cf != nil {
		got, err := cf.ClassName()
		switch {
		case err != nil:
			r = Reject(fmt.Sprintf("this_class of '%s' does not name a class: %v", v.name, err))
		case got != v.name:
			r = Reject(fmt.Sprintf("wrong name: internal name '%s' does not match requested name '%s'", got, v.name))
		}
	}

	v.mu.Lock()
	v.pass1 = &r
	if r.Status == OK {
		v.class = cf
	}
	v.mu.Unlock()
	return r, nil
}
