package verifier

import (
	"fmt"
	"strings"

	"github.com/daimatz/jverify/pkg/bytecode"
	"github.com/daimatz/jverify/pkg/classfile"
)

// operands applies the static constraints of every instruction.
func (p *pass3a) operands() error {
	for i := range p.insns {
		in := &p.insns[i]
		if err := p.operand(in); err != nil {
			return annotate(err, "instruction '%s' at offset %d", in, in.Offset)
		}
	}
	return nil
}

func (p *pass3a) operand(in *bytecode.Instruction) error {
	if in.HasConstantIndex() {
		if err := p.constantIndex(in.Index); err != nil {
			return err
		}
	}
	if in.HasLocalIndex() {
		if err := p.localIndex(in); err != nil {
			return err
		}
		p.checkDeclaredType(in)
	}

	switch in.Opcode {
	case bytecode.OpLdc, bytecode.OpLdcW:
		return p.ldc(in)
	case bytecode.OpLdc2W:
		return p.ldc2w(in)
	case bytecode.OpGetstatic, bytecode.OpPutstatic, bytecode.OpGetfield, bytecode.OpPutfield:
		return p.fieldAccess(in)
	case bytecode.OpInvokevirtual, bytecode.OpInvokespecial, bytecode.OpInvokestatic, bytecode.OpInvokeinterface:
		return p.invoke(in)
	case bytecode.OpInvokedynamic:
		return p.invokedynamic(in)
	case bytecode.OpNew, bytecode.OpCheckcast, bytecode.OpInstanceof, bytecode.OpAnewarray, bytecode.OpMultianewarray:
		return p.classOperand(in)
	case bytecode.OpNewarray:
		if in.ArrayType < 4 || in.ArrayType > 11 {
			return violation("array type %d is not one of the primitive codes 4 to 11", in.ArrayType)
		}
	case bytecode.OpLookupswitch:
		for k := 1; k < len(in.Keys); k++ {
			if in.Keys[k] <= in.Keys[k-1] {
				return violation("match keys must be sorted in strictly ascending order, but %d follows %d", in.Keys[k], in.Keys[k-1])
			}
		}
	}
	return nil
}

func (p *pass3a) constantIndex(idx int) error {
	if idx <= 0 || idx >= len(p.pool) {
		return violation("constant pool index %d is out of range [1, %d]", idx, len(p.pool)-1)
	}
	if p.pool[idx] == nil {
		return violation("constant pool index %d is the unusable second slot of a long or double", idx)
	}
	return nil
}

func (p *pass3a) localIndex(in *bytecode.Instruction) error {
	slots := bytecode.LocalSlots(in.Opcode)
	limit := int(p.code.MaxLocals) - slots
	if in.Index < 0 || in.Index > limit {
		if slots == 2 {
			return violation("local variable index %d is not valid for a two-slot value: max_locals is %d, so the index must be at most %d", in.Index, p.code.MaxLocals, limit)
		}
		return violation("local variable index %d is not valid: max_locals is %d", in.Index, p.code.MaxLocals)
	}
	return nil
}

// checkDeclaredType records loads whose kind disagrees with the type the
// LocalVariableTable declares for the slot at that offset.
func (p *pass3a) checkDeclaredType(in *bytecode.Instruction) {
	if !p.warnings || p.locals == nil || !bytecode.IsLoad(in.Opcode) {
		return
	}
	info, err := p.locals.At(in.Index)
	if err != nil {
		return
	}
	desc, ok := info.Type(in.Offset)
	if !ok || IsUpperHalf(desc) {
		return
	}
	t, err := classfile.ParseFieldType(desc)
	if err != nil {
		return
	}
	if !loadMatches(bytecode.LocalKind(in.Opcode), t) {
		name, _ := info.Name(in.Offset)
		p.messages = append(p.messages, fmt.Sprintf(
			"warning: method '%s': instruction '%s' at offset %d loads slot %d, but the LocalVariableTable declares '%s' of type %s there",
			p.m, in, in.Offset, in.Index, name, t))
	}
}

func loadMatches(kind byte, t classfile.Type) bool {
	switch kind {
	case 'i':
		return t.IsIntLike()
	case 'l':
		return t.Kind == classfile.KindLong
	case 'f':
		return t.Kind == classfile.KindFloat
	case 'd':
		return t.Kind == classfile.KindDouble
	case 'a':
		return t.IsReference()
	}
	return true
}

func (p *pass3a) ldc(in *bytecode.Instruction) error {
	switch c := p.pool[in.Index].(type) {
	case *classfile.ConstantInteger, *classfile.ConstantFloat, *classfile.ConstantString:
		return nil
	case *classfile.ConstantClass:
		if p.cf.MajorVersion < 49 {
			return violation("loading a class constant needs class file version 49 or later")
		}
		return nil
	case *classfile.ConstantMethodType, *classfile.ConstantMethodHandle:
		if p.cf.MajorVersion < 51 {
			return violation("loading a %s needs class file version 51 or later", classfile.TagName(c.Tag()))
		}
		return nil
	case *classfile.ConstantDynamic:
		if t, err := p.dynamicType(c); err != nil || t.Size() == 2 {
			return violation("operand must be a one-slot dynamic constant")
		}
		return nil
	default:
		return violation("operand must be an int, float, string, class, method type or method handle constant, not %s", classfile.TagName(c.Tag()))
	}
}

func (p *pass3a) ldc2w(in *bytecode.Instruction) error {
	switch c := p.pool[in.Index].(type) {
	case *classfile.ConstantLong, *classfile.ConstantDouble:
		return nil
	case *classfile.ConstantDynamic:
		if t, err := p.dynamicType(c); err != nil || t.Size() != 2 {
			return violation("operand must be a long or double dynamic constant")
		}
		return nil
	default:
		return violation("operand must be a long or double constant, not %s", classfile.TagName(c.Tag()))
	}
}

func (p *pass3a) dynamicType(c *classfile.ConstantDynamic) (classfile.Type, error) {
	_, desc, err := classfile.GetNameAndType(p.pool, c.NameAndTypeIndex)
	if err != nil {
		return classfile.Type{}, err
	}
	return classfile.ParseFieldType(desc)
}

func (p *pass3a) loadOwner(name string) (*classfile.ClassFile, error) {
	cf, err := p.f.loadClass(name)
	if err != nil {
		return nil, annotate(err, "class '%s' is referenced, but cannot be loaded", name)
	}
	return cf, nil
}

func (p *pass3a) fieldAccess(in *bytecode.Instruction) error {
	ref, err := classfile.ResolveFieldref(p.pool, uint16(in.Index))
	if err != nil {
		return violation("operand must be a CONSTANT_Fieldref, not %s", classfile.TagName(p.pool[in.Index].Tag()))
	}
	if strings.HasPrefix(ref.ClassName, "[") {
		return violation("referenced field '%s' is declared on an array type, and arrays have no fields", ref)
	}
	owner, err := p.loadOwner(ref.ClassName)
	if err != nil {
		return err
	}
	field, decl, err := p.f.lookupField(ref.ClassName, owner, ref.Name, ref.Descriptor)
	if err != nil {
		return err
	}
	if field == nil {
		return violation("referenced field '%s' does not exist", ref)
	}

	static := in.Opcode == bytecode.OpGetstatic || in.Opcode == bytecode.OpPutstatic
	if static && !field.IsStatic() {
		return violation("referenced field '%s' is not static", ref)
	}
	if !static && field.IsStatic() {
		return violation("referenced field '%s' is static", ref)
	}

	if field.IsFinal() && (in.Opcode == bytecode.OpPutstatic || in.Opcode == bytecode.OpPutfield) {
		if decl != p.name {
			return violation("referenced field '%s' is final and must therefore be declared in the current class '%s', but it is declared in '%s'", ref, p.name, decl)
		}
		if in.Opcode == bytecode.OpPutstatic && p.m.Name != classfile.ClinitName {
			return violation("final static field '%s' may only be assigned in %s", ref, classfile.ClinitName)
		}
		if in.Opcode == bytecode.OpPutfield && p.cf.MajorVersion >= 53 && p.m.Name != classfile.InitName {
			return violation("final field '%s' may only be assigned in %s", ref, classfile.InitName)
		}
	}
	return nil
}

func (p *pass3a) invoke(in *bytecode.Instruction) error {
	resolve, want := classfile.ResolveMemberref, "method reference"
	switch in.Opcode {
	case bytecode.OpInvokevirtual:
		resolve, want = classfile.ResolveMethodref, classfile.TagName(classfile.TagMethodref)
	case bytecode.OpInvokeinterface:
		resolve, want = classfile.ResolveInterfaceMethodref, classfile.TagName(classfile.TagInterfaceMethodref)
	}
	ref, err := resolve(p.pool, uint16(in.Index))
	if err != nil {
		return violation("operand must be a %s, not %s", want, classfile.TagName(p.pool[in.Index].Tag()))
	}
	// invokestatic and invokespecial take an InterfaceMethodref from version 52.
	oldInterfaceCall := ref.Tag == classfile.TagInterfaceMethodref && p.cf.MajorVersion < 52 && in.Opcode != bytecode.OpInvokeinterface
	if ref.Tag == classfile.TagFieldref || oldInterfaceCall {
		return violation("operand must be a CONSTANT_Methodref, not %s", classfile.TagName(ref.Tag))
	}

	if ref.Name == classfile.ClinitName {
		return violation("the class initializer must not be invoked explicitly")
	}
	if ref.Name == classfile.InitName && in.Opcode != bytecode.OpInvokespecial {
		return violation("only invokespecial may invoke an instance initializer")
	}
	md, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return violation("%v", err)
	}
	if in.Opcode == bytecode.OpInvokeinterface {
		if in.Count == 0 {
			return violation("count must not be zero")
		}
		if want := md.ArgumentSlots() + 1; in.Count != want {
			return violation("count %d does not match the %d argument slots of '%s'", in.Count, want, ref)
		}
	}

	// Array types inherit their methods from java/lang/Object.
	if strings.HasPrefix(ref.ClassName, "[") {
		return nil
	}
	owner, err := p.loadOwner(ref.ClassName)
	if err != nil {
		return err
	}
	if ref.Tag == classfile.TagInterfaceMethodref && !owner.IsInterface() {
		return violation("'%s' is referenced as an interface, but it is a class", ref.ClassName)
	}
	if ref.Tag == classfile.TagMethodref && owner.IsInterface() {
		return violation("'%s' is an interface, but it is referenced by a CONSTANT_Methodref", ref.ClassName)
	}

	// Instance initializers are not inherited.
	var m *classfile.MethodInfo
	if ref.Name == classfile.InitName {
		m = owner.FindMethod(ref.Name, ref.Descriptor)
	} else if m, _, err = p.f.lookupMethod(ref.ClassName, owner, ref.Name, ref.Descriptor); err != nil {
		return err
	}
	if m == nil {
		if signaturePolymorphic(ref.ClassName, owner, ref.Name) {
			return nil
		}
		return violation("referenced method '%s' does not exist", ref)
	}
	if in.Opcode == bytecode.OpInvokestatic && !m.IsStatic() {
		return violation("referenced method '%s' is not static", ref)
	}
	if in.Opcode != bytecode.OpInvokestatic && m.IsStatic() {
		return violation("referenced method '%s' is static", ref)
	}
	return nil
}

func (p *pass3a) invokedynamic(in *bytecode.Instruction) error {
	c, ok := p.pool[in.Index].(*classfile.ConstantInvokeDynamic)
	if !ok {
		return violation("operand must be a CONSTANT_InvokeDynamic, not %s", classfile.TagName(p.pool[in.Index].Tag()))
	}
	if p.cf.MajorVersion < 51 {
		return violation("invokedynamic needs class file version 51 or later")
	}
	name, _, err := classfile.GetNameAndType(p.pool, c.NameAndTypeIndex)
	if err != nil {
		return violation("%v", err)
	}
	if name == classfile.InitName || name == classfile.ClinitName {
		return violation("call site must not be named '%s'", name)
	}
	return nil
}

func (p *pass3a) classOperand(in *bytecode.Instruction) error {
	name, err := classfile.GetClassName(p.pool, uint16(in.Index))
	if err != nil {
		return violation("operand must be a CONSTANT_Class, not %s", classfile.TagName(p.pool[in.Index].Tag()))
	}
	t, err := classfile.ClassNameType(name)
	if err != nil {
		return violation("%v", err)
	}

	switch in.Opcode {
	case bytecode.OpNew:
		if t.Kind == classfile.KindArray {
			return violation("new must not be used to create an array")
		}
	case bytecode.OpAnewarray:
		if t.Dimensions()+1 > classfile.MaxArrayDimensions {
			return violation("an array of %s would have more than %d dimensions", t, classfile.MaxArrayDimensions)
		}
	case bytecode.OpMultianewarray:
		if in.Dimensions < 1 {
			return violation("number of dimensions to create must be greater than zero")
		}
		if t.Kind != classfile.KindArray {
			return violation("multianewarray must create an array type, not %s", t)
		}
		if in.Dimensions > t.Dimensions() {
			return violation("cannot create %d dimensions of the %d-dimensional array type %s", in.Dimensions, t.Dimensions(), t)
		}
	}

	if elem := t.Element(); elem.Kind == classfile.KindObject {
		if _, err := p.loadOwner(elem.Class); err != nil {
			return err
		}
	}
	return nil
}
