package verifier

import (
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/daimatz/jverify/pkg/bytecode"
	"github.com/daimatz/jverify/pkg/classfile"
)

// maxCodeLength bounds the code array; code_length must be strictly less.
const maxCodeLength = 65536

// DoPass3a checks the code of the method at index method without dataflow
// analysis. It needs pass 2 to have succeeded and is NotYet otherwise.
// Methods of one class may be checked concurrently.
func (v *Verifier) DoPass3a(method int) (Result, error) {
	return v.do("pass3a/"+strconv.Itoa(method), func() (Result, bool) {
		r, ok := v.pass3a[method]
		return r, ok
	}, func() (Result, error) {
		return v.runPass3a(method)
	})
}

func (v *Verifier) runPass3a(method int) (Result, error) {
	r2, err := v.DoPass2()
	if err != nil {
		return Result{}, err
	}
	publish := func(r Result) {
		v.mu.Lock()
		v.pass3a[method] = r
		v.mu.Unlock()
	}
	if r2.Status != OK {
		publish(ResultNotYet)
		return ResultNotYet, nil
	}

	cf := v.parsed()
	if method < 0 || method >= len(cf.Methods) {
		return Result{}, assertionf("method index %d out of range: %s has %d methods", method, v.name, len(cf.Methods))
	}
	locals, err := v.LocalVariables(method)
	if err != nil {
		return Result{}, err
	}
	p := &pass3a{
		f:        v.factory,
		name:     v.name,
		cf:       cf,
		pool:     cf.ConstantPool,
		index:    method,
		m:        &cf.Methods[method],
		locals:   locals,
		warnings: v.factory.collectWarnings,
	}
	r, err := resultOf(p.run())
	if err != nil {
		return Result{}, err
	}
	publish(r)
	v.addMessages(p.messages)
	return r, nil
}

type pass3a struct {
	f        *Factory
	name     string
	cf       *classfile.ClassFile
	pool     []classfile.ConstantPoolEntry
	index    int
	m        *classfile.MethodInfo
	locals   *LocalVariables
	warnings bool

	code     *classfile.CodeAttribute
	insns    []bytecode.Instruction
	starts   mapset.Set[int]
	messages []string
}

func (p *pass3a) run() error {
	// Pass 2 rejects duplicate methods, so lookup by name and descriptor
	// must lead back to the same index.
	if found := p.cf.FindMethod(p.m.Name, p.m.Descriptor); p.cf.MethodIndex(found) != p.index {
		return assertionf("method %s of %s is not found at index %d", p.m, p.name, p.index)
	}
	if p.m.IsAbstract() || p.m.IsNative() {
		return nil
	}
	p.code = p.m.Code
	if p.code == nil {
		return assertionf("method %s of %s passed pass 2 without a Code attribute", p.m, p.name)
	}

	insns, err := bytecode.Decode(p.code.Code)
	if err != nil {
		var de *bytecode.DecodeError
		if errors.As(err, &de) {
			return violation("bad byte code in method '%s': %v", p.m, de)
		}
		return err
	}
	p.insns = insns
	p.starts = bytecode.Boundaries(insns)

	for _, phase := range []func() error{p.delayedChecks, p.codeArray, p.operands} {
		if err := phase(); err != nil {
			return annotate(err, "method '%s'", p.m)
		}
	}
	return nil
}

// delayedChecks verifies the offsets of the debug tables and the exception
// table against the instruction boundaries.
func (p *pass3a) delayedChecks() error {
	end := len(p.code.Code)
	startOrEnd := func(off int) bool { return off == end || p.starts.Contains(off) }

	for _, ln := range p.code.LineNumbers {
		if !p.starts.Contains(int(ln.StartPC)) {
			return violation("LineNumberTable refers to code offset %d, which is not the start of an instruction", ln.StartPC)
		}
	}
	for _, lv := range p.code.LocalVariables {
		start := int(lv.StartPC)
		if !p.starts.Contains(start) {
			return violation("LocalVariableTable entry for slot %d starts at offset %d, which is not the start of an instruction", lv.Index, start)
		}
		if last := start + int(lv.Length); !startOrEnd(last) {
			return violation("LocalVariableTable entry for slot %d ends at offset %d, which is neither the start of an instruction nor the end of the code", lv.Index, last)
		}
	}
	for i, h := range p.code.ExceptionHandlers {
		if h.StartPC >= h.EndPC {
			return violation("exception table entry %d has start_pc %d not less than end_pc %d", i, h.StartPC, h.EndPC)
		}
		if !p.starts.Contains(int(h.StartPC)) {
			return violation("exception table entry %d has start_pc %d, which is not the start of an instruction", i, h.StartPC)
		}
		if !startOrEnd(int(h.EndPC)) {
			return violation("exception table entry %d has end_pc %d, which is neither the start of an instruction nor the end of the code", i, h.EndPC)
		}
		if !p.starts.Contains(int(h.HandlerPC)) {
			return violation("exception table entry %d has handler_pc %d, which is not the start of an instruction", i, h.HandlerPC)
		}
	}
	return nil
}

// codeArray checks the size of the code, the absence of reserved opcodes,
// and that control cannot fall off the last instruction.
func (p *pass3a) codeArray() error {
	n := len(p.code.Code)
	if n == 0 {
		return violation("code array must not be empty")
	}
	if n >= maxCodeLength {
		return violation("code array is %d bytes long, but must be shorter than %d", n, maxCodeLength)
	}
	for i := range p.insns {
		in := &p.insns[i]
		if bytecode.IsReserved(in.Opcode) {
			return violation("instruction '%s' at offset %d is reserved for internal use and must not appear in a class file", in, in.Offset)
		}
	}
	last := &p.insns[len(p.insns)-1]
	if !bytecode.EndsCode(last.Opcode) {
		return violation("execution falls off the end of the code: the last instruction '%s' at offset %d is not a return, goto, ret or athrow", last, last.Offset)
	}
	return nil
}
