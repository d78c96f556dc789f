package bytecode

import (
	"fmt"
	"strings"
)

// Name returns the mnemonic of op, or "" for an undefined opcode.
func Name(op byte) string { return opNames[op] }

// Defined reports whether op is part of the instruction set, reserved
// opcodes included.
func Defined(op byte) bool { return opNames[op] != "" }

// IsReserved reports whether op is one of the opcodes set aside for
// debuggers and implementation-internal use.
func IsReserved(op byte) bool {
	return op == OpBreakpoint || op == OpImpdep1 || op == OpImpdep2
}

// IsReturn reports whether op is one of the return instructions.
func IsReturn(op byte) bool { return op >= OpIreturn && op <= OpReturn }

// IsUnconditionalBranch reports whether op is goto or goto_w.
func IsUnconditionalBranch(op byte) bool { return op == OpGoto || op == OpGotoW }

// EndsCode reports whether op may be the last instruction of a code array:
// returns, unconditional branches, ret and athrow. Switches never fall
// through either but are not accepted here.
func EndsCode(op byte) bool {
	return IsReturn(op) || IsUnconditionalBranch(op) || op == OpRet || op == OpAthrow
}

// IsBranch reports whether op carries one or more branch offsets.
func IsBranch(op byte) bool {
	switch {
	case op >= OpIfeq && op <= OpJsr, op == OpIfnull, op == OpIfnonnull,
		op == OpGotoW, op == OpJsrW, op == OpTableswitch, op == OpLookupswitch:
		return true
	}
	return false
}

// IsLoad reports whether op reads a local variable onto the stack.
func IsLoad(op byte) bool {
	return (op >= OpIload && op <= OpAload) || (op >= OpIload0 && op <= OpAload3)
}

// IsStore reports whether op writes a local variable from the stack.
func IsStore(op byte) bool {
	return (op >= OpIstore && op <= OpAstore) || (op >= OpIstore0 && op <= OpAstore3)
}

// LocalSlots returns how many consecutive local variable slots op touches,
// or 0 when op does not address a local variable.
func LocalSlots(op byte) int {
	switch op {
	case OpIinc, OpRet:
		return 1
	}
	if !IsLoad(op) && !IsStore(op) {
		return 0
	}
	switch localKindByte(op) {
	case 'l', 'd':
		return 2
	}
	return 1
}

// LocalKind returns the type letter (i, l, f, d, a) of a load or store.
func LocalKind(op byte) byte {
	if !IsLoad(op) && !IsStore(op) {
		return 0
	}
	return localKindByte(op)
}

func localKindByte(op byte) byte {
	return Name(op)[0]
}

// Instruction is one decoded instruction of a code array.
type Instruction struct {
	Offset int
	Opcode byte
	Length int
	// Wide is set when the instruction was prefixed by wide; Offset and
	// Length then cover the prefix too.
	Wide bool
	// Index is the constant pool index or the local variable slot.
	Index int
	// Const is the bipush/sipush immediate or the iinc increment.
	Const int32
	// Count is the invokeinterface argument count byte.
	Count int
	// Dimensions is the multianewarray dimension count.
	Dimensions int
	// ArrayType is the newarray atype.
	ArrayType int
	// Targets holds absolute branch targets; for switches the default target
	// comes first, followed by one target per case.
	Targets []int
	// Keys are the lookupswitch match keys.
	Keys []int32
	// Low and High bound a tableswitch.
	Low, High int32
}

// HasConstantIndex reports whether Index refers to the constant pool.
func (in *Instruction) HasConstantIndex() bool {
	switch in.Opcode {
	case OpLdc, OpLdcW, OpLdc2W,
		OpGetstatic, OpPutstatic, OpGetfield, OpPutfield,
		OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpInvokeinterface, OpInvokedynamic,
		OpNew, OpAnewarray, OpCheckcast, OpInstanceof, OpMultianewarray:
		return true
	}
	return false
}

// HasLocalIndex reports whether Index refers to a local variable slot.
func (in *Instruction) HasLocalIndex() bool { return LocalSlots(in.Opcode) > 0 }

func (in *Instruction) String() string {
	var sb strings.Builder
	if in.Wide {
		sb.WriteString("wide ")
	}
	sb.WriteString(Name(in.Opcode))
	switch {
	case in.Opcode == OpBipush || in.Opcode == OpSipush:
		fmt.Fprintf(&sb, " %d", in.Const)
	case in.Opcode == OpIinc:
		fmt.Fprintf(&sb, " %d %d", in.Index, in.Const)
	case in.Opcode == OpNewarray:
		fmt.Fprintf(&sb, " %d", in.ArrayType)
	case in.Opcode == OpMultianewarray:
		fmt.Fprintf(&sb, " #%d %d", in.Index, in.Dimensions)
	case in.Opcode == OpInvokeinterface:
		fmt.Fprintf(&sb, " #%d %d", in.Index, in.Count)
	case in.HasConstantIndex():
		fmt.Fprintf(&sb, " #%d", in.Index)
	case in.HasLocalIndex() && (in.Opcode < OpIload0 || in.Opcode > OpAload3) &&
		(in.Opcode < OpIstore0 || in.Opcode > OpAstore3):
		fmt.Fprintf(&sb, " %d", in.Index)
	case in.Opcode == OpLookupswitch:
		fmt.Fprintf(&sb, " keys=%v default=%d", in.Keys, in.Targets[0])
	case in.Opcode == OpTableswitch:
		fmt.Fprintf(&sb, " [%d..%d] default=%d", in.Low, in.High, in.Targets[0])
	case IsBranch(in.Opcode):
		fmt.Fprintf(&sb, " %d", in.Targets[0])
	}
	return sb.String()
}
