package bytecode

import (
	"encoding/binary"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
)

// DecodeError describes a code array that cannot be split into instructions.
type DecodeError struct {
	Offset int
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.Offset, e.Msg)
}

// reader walks a code array, in the manner of the interpreter frame's
// operand readers, but reports truncation instead of panicking.
type reader struct {
	code  []byte
	pc    int
	start int
	err   error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pc+n > len(r.code) {
		r.err = &DecodeError{Offset: r.start, Msg: fmt.Sprintf("%s truncated: needs %d more bytes", Name(r.code[r.start]), r.pc+n-len(r.code))}
		return false
	}
	return true
}

func (r *reader) u8() int {
	if !r.need(1) {
		return 0
	}
	v := r.code[r.pc]
	r.pc++
	return int(v)
}

func (r *reader) i8() int32 {
	if !r.need(1) {
		return 0
	}
	v := int8(r.code[r.pc])
	r.pc++
	return int32(v)
}

func (r *reader) u16() int {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.code[r.pc:])
	r.pc += 2
	return int(v)
}

func (r *reader) i16() int32 {
	return int32(int16(r.u16()))
}

func (r *reader) i32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.code[r.pc:]))
	r.pc += 4
	return v
}

func (r *reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = &DecodeError{Offset: r.start, Msg: fmt.Sprintf(format, args...)}
	}
}

// Decode splits code into instructions and checks that every branch target
// lands on the first byte of an instruction.
func Decode(code []byte) ([]Instruction, error) {
	var insns []Instruction
	starts := mapset.NewThreadUnsafeSet[int]()
	r := &reader{code: code}

	for r.pc < len(code) {
		r.start = r.pc
		in := decodeOne(r)
		if r.err != nil {
			return nil, r.err
		}
		in.Offset = r.start
		in.Length = r.pc - r.start
		starts.Add(in.Offset)
		insns = append(insns, in)
	}

	for i := range insns {
		for _, target := range insns[i].Targets {
			if !starts.Contains(target) {
				return nil, &DecodeError{
					Offset: insns[i].Offset,
					Msg:    fmt.Sprintf("%s branches to offset %d which is not the start of an instruction", Name(insns[i].Opcode), target),
				}
			}
		}
	}
	return insns, nil
}

// Boundaries returns the set of instruction start offsets.
func Boundaries(insns []Instruction) mapset.Set[int] {
	set := mapset.NewThreadUnsafeSet[int]()
	for i := range insns {
		set.Add(insns[i].Offset)
	}
	return set
}

func decodeOne(r *reader) Instruction {
	op := byte(r.u8())
	in := Instruction{Opcode: op}
	if !Defined(op) {
		r.fail("illegal opcode 0x%02X", op)
		return in
	}

	switch {
	case op == OpBipush:
		in.Const = r.i8()
	case op == OpSipush:
		in.Const = r.i16()
	case op == OpLdc:
		in.Index = r.u8()
	case op == OpLdcW || op == OpLdc2W:
		in.Index = r.u16()
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		in.Index = r.u8()
	case op >= OpIload0 && op <= OpAload3:
		in.Index = int(op-OpIload0) % 4
	case op >= OpIstore0 && op <= OpAstore3:
		in.Index = int(op-OpIstore0) % 4
	case op == OpIinc:
		in.Index = r.u8()
		in.Const = r.i8()
	case op >= OpIfeq && op <= OpJsr, op == OpIfnull, op == OpIfnonnull:
		in.Targets = []int{r.start + int(r.i16())}
	case op == OpGotoW || op == OpJsrW:
		in.Targets = []int{r.start + int(r.i32())}
	case op == OpTableswitch:
		decodeTableswitch(r, &in)
	case op == OpLookupswitch:
		decodeLookupswitch(r, &in)
	case op >= OpGetstatic && op <= OpInvokestatic,
		op == OpNew, op == OpAnewarray, op == OpCheckcast, op == OpInstanceof:
		in.Index = r.u16()
	case op == OpInvokeinterface:
		in.Index = r.u16()
		in.Count = r.u8()
		if r.u8() != 0 {
			r.fail("fourth operand byte of invokeinterface must be zero")
		}
	case op == OpInvokedynamic:
		in.Index = r.u16()
		if r.u16() != 0 {
			r.fail("third and fourth operand bytes of invokedynamic must be zero")
		}
	case op == OpNewarray:
		in.ArrayType = r.u8()
	case op == OpMultianewarray:
		in.Index = r.u16()
		in.Dimensions = r.u8()
	case op == OpWide:
		decodeWide(r, &in)
	}
	return in
}

func decodeWide(r *reader, in *Instruction) {
	op := byte(r.u8())
	if r.err != nil {
		return
	}
	in.Opcode = op
	in.Wide = true
	switch {
	case op >= OpIload && op <= OpAload, op >= OpIstore && op <= OpAstore, op == OpRet:
		in.Index = r.u16()
	case op == OpIinc:
		in.Index = r.u16()
		in.Const = r.i16()
	default:
		r.fail("wide cannot modify %s (0x%02X)", orUnknown(op), op)
	}
}

func orUnknown(op byte) string {
	if n := Name(op); n != "" {
		return n
	}
	return "an undefined opcode"
}

// skipPadding consumes the 0-3 bytes that align switch operands to a
// multiple of four from the start of the code array.
func skipPadding(r *reader) {
	for r.err == nil && r.pc%4 != 0 {
		r.u8()
	}
}

func decodeTableswitch(r *reader, in *Instruction) {
	skipPadding(r)
	def := r.i32()
	in.Low = r.i32()
	in.High = r.i32()
	if r.err != nil {
		return
	}
	if in.Low > in.High {
		r.fail("tableswitch low %d is greater than high %d", in.Low, in.High)
		return
	}
	n := int64(in.High) - int64(in.Low) + 1
	if n > int64(len(r.code)) {
		r.fail("tableswitch with %d entries does not fit in the code array", n)
		return
	}
	in.Targets = append(in.Targets, r.start+int(def))
	for i := int64(0); i < n && r.err == nil; i++ {
		in.Targets = append(in.Targets, r.start+int(r.i32()))
	}
}

func decodeLookupswitch(r *reader, in *Instruction) {
	skipPadding(r)
	def := r.i32()
	npairs := r.i32()
	if r.err != nil {
		return
	}
	if npairs < 0 {
		r.fail("lookupswitch has a negative pair count %d", npairs)
		return
	}
	if int64(npairs)*8 > int64(len(r.code)) {
		r.fail("lookupswitch with %d pairs does not fit in the code array", npairs)
		return
	}
	in.Targets = append(in.Targets, r.start+int(def))
	for i := int32(0); i < npairs && r.err == nil; i++ {
		in.Keys = append(in.Keys, r.i32())
		in.Targets = append(in.Targets, r.start+int(r.i32()))
	}
}
