package verifier

import (
	"fmt"

	"github.com/daimatz/jverify/pkg/classfile"
)

// DoPass2 checks the constant pool, the class hierarchy, the final method
// rule and the shape of every member. It needs pass 1 to have succeeded
// and is NotYet otherwise.
func (v *Verifier) DoPass2() (Result, error) {
	return v.do("pass2", func() (Result, bool) {
		if v.pass2 == nil {
			return Result{}, false
		}
		return *v.pass2, true
	}, v.runPass2)
}

func (v *Verifier) runPass2() (Result, error) {
	r1, err := v.DoPass1()
	if err != nil {
		return Result{}, err
	}
	if r1.Status != OK {
		r := ResultNotYet
		v.mu.Lock()
		v.pass2 = &r
		v.mu.Unlock()
		return r, nil
	}

	cf := v.parsed()
	p := &pass2{
		f:      v.factory,
		name:   v.name,
		cf:     cf,
		pool:   cf.ConstantPool,
		locals: make([]*LocalVariables, len(cf.Methods)),
	}
	r, err := resultOf(p.run())
	if err != nil {
		return Result{}, err
	}

	v.mu.Lock()
	v.pass2 = &r
	if r.Status == OK {
		v.localVars = p.locals
	}
	v.messages = append(v.messages, p.messages...)
	v.mu.Unlock()
	return r, nil
}

type pass2 struct {
	f        *Factory
	name     string
	cf       *classfile.ClassFile
	pool     []classfile.ConstantPoolEntry
	locals   []*LocalVariables
	messages []string
}

func (p *pass2) run() error {
	steps := []func() error{
		p.constantPool,
		p.memberRefs,
		p.superclassChain,
		p.finalMethods,
		p.members,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass2) note(format string, args ...interface{}) {
	p.messages = append(p.messages, fmt.Sprintf(format, args...))
}

// expect resolves index, referenced from entry from, and checks its tag.
func (p *pass2) expect(from int, index uint16, tags ...uint8) (classfile.ConstantPoolEntry, error) {
	entry, err := classfile.Entry(p.pool, index)
	if err != nil {
		return nil, violation("constant pool entry %d (%s) refers to illegal index %d", from, describe(p.pool[from]), index)
	}
	for _, t := range tags {
		if entry.Tag() == t {
			return entry, nil
		}
	}
	want := ""
	for i, t := range tags {
		if i > 0 {
			want += " or "
		}
		want += classfile.TagName(t)
	}
	return nil, violation("constant pool entry %d (%s) refers to entry %d of type %s, but %s is required",
		from, describe(p.pool[from]), index, classfile.TagName(entry.Tag()), want)
}

func (p *pass2) utf8(from int, index uint16) (string, error) {
	entry, err := p.expect(from, index, classfile.TagUtf8)
	if err != nil {
		return "", err
	}
	return entry.(*classfile.ConstantUtf8).Value, nil
}

func describe(entry classfile.ConstantPoolEntry) string {
	if s, ok := entry.(fmt.Stringer); ok {
		return s.String()
	}
	return classfile.TagName(entry.Tag())
}

func twoSlot(entry classfile.ConstantPoolEntry) bool {
	if entry == nil {
		return false
	}
	return entry.Tag() == classfile.TagLong || entry.Tag() == classfile.TagDouble
}

// constantPool checks that every entry refers to entries of the right type.
func (p *pass2) constantPool() error {
	for i := 1; i < len(p.pool); i++ {
		entry := p.pool[i]
		if entry == nil {
			if twoSlot(p.pool[i-1]) {
				continue
			}
			return violation("constant pool entry %d is missing", i)
		}
		if err := p.checkEntry(i, entry); err != nil {
			return err
		}
	}

	if _, err := classfile.GetClassName(p.pool, p.cf.ThisClass); err != nil {
		return violation("this_class %d does not refer to a CONSTANT_Class: %v", p.cf.ThisClass, err)
	}
	if p.cf.SuperClass != 0 {
		if _, err := classfile.GetClassName(p.pool, p.cf.SuperClass); err != nil {
			return violation("super_class %d does not refer to a CONSTANT_Class: %v", p.cf.SuperClass, err)
		}
	}
	for i, idx := range p.cf.Interfaces {
		if _, err := classfile.GetClassName(p.pool, idx); err != nil {
			return violation("interface %d (index %d) does not refer to a CONSTANT_Class: %v", i, idx, err)
		}
	}
	return nil
}

func (p *pass2) checkEntry(i int, entry classfile.ConstantPoolEntry) error {
	var err error
	switch c := entry.(type) {
	case *classfile.ConstantUtf8, *classfile.ConstantInteger, *classfile.ConstantFloat:

	case *classfile.ConstantLong, *classfile.ConstantDouble:
		if i+1 >= len(p.pool) || p.pool[i+1] != nil {
			return violation("constant pool entry %d (%s) must be followed by an unusable slot", i, describe(entry))
		}

	case *classfile.ConstantClass:
		var name string
		if name, err = p.utf8(i, c.NameIndex); err == nil && !classfile.ValidClassName(name) {
			err = violation("constant pool entry %d (%s) names the illegal class '%s'", i, describe(entry), name)
		}

	case *classfile.ConstantString:
		_, err = p.utf8(i, c.StringIndex)

	case *classfile.ConstantFieldref:
		err = p.memberShape(i, c.ClassIndex, c.NameAndTypeIndex)
	case *classfile.ConstantMethodref:
		err = p.memberShape(i, c.ClassIndex, c.NameAndTypeIndex)
	case *classfile.ConstantInterfaceMethodref:
		err = p.memberShape(i, c.ClassIndex, c.NameAndTypeIndex)

	case *classfile.ConstantNameAndType:
		if _, err = p.utf8(i, c.NameIndex); err == nil {
			_, err = p.utf8(i, c.DescriptorIndex)
		}

	case *classfile.ConstantMethodHandle:
		err = p.methodHandle(i, c)

	case *classfile.ConstantMethodType:
		var desc string
		if desc, err = p.utf8(i, c.DescriptorIndex); err == nil {
			if _, perr := classfile.ParseMethodDescriptor(desc); perr != nil {
				err = violation("constant pool entry %d (%s): %v", i, describe(entry), perr)
			}
		}

	case *classfile.ConstantDynamic:
		err = p.dynamicShape(i, c.BootstrapMethodAttrIndex, c.NameAndTypeIndex)
	case *classfile.ConstantInvokeDynamic:
		err = p.dynamicShape(i, c.BootstrapMethodAttrIndex, c.NameAndTypeIndex)

	case *classfile.ConstantModule:
		_, err = p.utf8(i, c.NameIndex)
	case *classfile.ConstantPackage:
		_, err = p.utf8(i, c.NameIndex)

	default:
		return assertionf("constant pool entry %d has unknown type %T", i, entry)
	}
	return err
}

func (p *pass2) memberShape(i int, classIndex, natIndex uint16) error {
	if _, err := p.expect(i, classIndex, classfile.TagClass); err != nil {
		return err
	}
	_, err := p.expect(i, natIndex, classfile.TagNameAndType)
	return err
}

func (p *pass2) dynamicShape(i int, bsm, natIndex uint16) error {
	if int(bsm) >= len(p.cf.BootstrapMethods) {
		return violation("constant pool entry %d (%s) refers to bootstrap method %d, but the class has %d",
			i, describe(p.pool[i]), bsm, len(p.cf.BootstrapMethods))
	}
	_, err := p.expect(i, natIndex, classfile.TagNameAndType)
	return err
}

func (p *pass2) methodHandle(i int, c *classfile.ConstantMethodHandle) error {
	var tags []uint8
	switch c.ReferenceKind {
	case classfile.RefGetField, classfile.RefGetStatic, classfile.RefPutField, classfile.RefPutStatic:
		tags = []uint8{classfile.TagFieldref}
	case classfile.RefInvokeVirtual, classfile.RefNewInvokeSpecial:
		tags = []uint8{classfile.TagMethodref}
	case classfile.RefInvokeStatic, classfile.RefInvokeSpecial:
		tags = []uint8{classfile.TagMethodref}
		if p.cf.MajorVersion >= 52 {
			tags = append(tags, classfile.TagInterfaceMethodref)
		}
	case classfile.RefInvokeInterface:
		tags = []uint8{classfile.TagInterfaceMethodref}
	default:
		return violation("constant pool entry %d (%s) has illegal reference kind %d", i, describe(c), c.ReferenceKind)
	}
	_, err := p.expect(i, c.ReferenceIndex, tags...)
	return err
}

// memberRefs checks the names and descriptors used by member references
// and dynamic call sites.
func (p *pass2) memberRefs() error {
	for i := 1; i < len(p.pool); i++ {
		switch c := p.pool[i].(type) {
		case *classfile.ConstantFieldref, *classfile.ConstantMethodref, *classfile.ConstantInterfaceMethodref:
			ref, err := classfile.ResolveMemberref(p.pool, uint16(i))
			if err != nil {
				return violation("constant pool entry %d: %v", i, err)
			}
			if err := checkMemberRef(ref); err != nil {
				return annotate(err, "constant pool entry %d (%s)", i, ref)
			}

		case *classfile.ConstantMethodHandle:
			ref, err := classfile.ResolveMemberref(p.pool, c.ReferenceIndex)
			if err != nil {
				return violation("constant pool entry %d: %v", i, err)
			}
			switch c.ReferenceKind {
			case classfile.RefNewInvokeSpecial:
				if ref.Name != classfile.InitName {
					return violation("constant pool entry %d: a newInvokeSpecial method handle must refer to %s, not '%s'", i, classfile.InitName, ref.Name)
				}
			case classfile.RefInvokeVirtual, classfile.RefInvokeStatic, classfile.RefInvokeSpecial, classfile.RefInvokeInterface:
				if ref.Name == classfile.InitName || ref.Name == classfile.ClinitName {
					return violation("constant pool entry %d: method handle of kind %d must not refer to '%s'", i, c.ReferenceKind, ref.Name)
				}
			}

		case *classfile.ConstantDynamic:
			name, desc, err := classfile.GetNameAndType(p.pool, c.NameAndTypeIndex)
			if err != nil {
				return violation("constant pool entry %d: %v", i, err)
			}
			if !classfile.ValidFieldName(name) {
				return violation("constant pool entry %d: illegal dynamic constant name '%s'", i, name)
			}
			if _, err := classfile.ParseFieldType(desc); err != nil {
				return violation("constant pool entry %d: %v", i, err)
			}

		case *classfile.ConstantInvokeDynamic:
			name, desc, err := classfile.GetNameAndType(p.pool, c.NameAndTypeIndex)
			if err != nil {
				return violation("constant pool entry %d: %v", i, err)
			}
			if !classfile.ValidMethodName(name) || name == classfile.InitName || name == classfile.ClinitName {
				return violation("constant pool entry %d: illegal call site name '%s'", i, name)
			}
			if _, err := classfile.ParseMethodDescriptor(desc); err != nil {
				return violation("constant pool entry %d: %v", i, err)
			}
		}
	}
	return nil
}

func checkMemberRef(ref *classfile.MemberRef) error {
	if ref.Tag == classfile.TagFieldref {
		if !classfile.ValidFieldName(ref.Name) {
			return violation("illegal field name '%s'", ref.Name)
		}
		if _, err := classfile.ParseFieldType(ref.Descriptor); err != nil {
			return violation("%v", err)
		}
		return nil
	}

	if !classfile.ValidMethodName(ref.Name) || ref.Name == classfile.ClinitName {
		return violation("illegal method name '%s'", ref.Name)
	}
	if ref.Tag == classfile.TagInterfaceMethodref && ref.Name == classfile.InitName {
		return violation("an interface method reference must not name '%s'", ref.Name)
	}
	md, err := classfile.ParseMethodDescriptor(ref.Descriptor)
	if err != nil {
		return violation("%v", err)
	}
	if ref.Name == classfile.InitName && md.Return.Kind != classfile.KindVoid {
		return violation("instance initializer must return void, not %s", md.Return)
	}
	return nil
}

// superclassChain checks that the ancestors load, contain no cycle and are
// not final, and that every implemented interface is an interface.
func (p *pass2) superclassChain() error {
	if p.name == classfile.ObjectClass {
		if p.cf.SuperClass != 0 {
			return violation("%s must not have a superclass", classfile.ObjectClass)
		}
		return nil
	}
	if p.cf.SuperClass == 0 {
		return violation("superclass of '%s' is missing, but only %s may omit one", p.name, classfile.ObjectClass)
	}
	if p.cf.IsInterface() && p.cf.SuperClassName() != classfile.ObjectClass {
		return violation("interface '%s' must have %s as its superclass, not '%s'", p.name, classfile.ObjectClass, p.cf.SuperClassName())
	}

	sups, err := p.f.superclasses(p.name, p.cf)
	if err != nil {
		return err
	}
	_, err = p.f.superinterfaces(append([]loadedClass{{name: p.name, cf: p.cf}}, sups...)...)
	return err
}

// finalMethods walks from the class up to the root, remembering the
// nearest class declaring each instance method. A final method in an
// ancestor must not have been redeclared below it.
func (p *pass2) finalMethods() error {
	classes, err := p.f.hierarchy(p.name, p.cf)
	if err != nil {
		return err
	}
	declared := make(map[string]string)
	for _, c := range classes {
		for i := range c.cf.Methods {
			m := &c.cf.Methods[i]
			if m.Name == classfile.InitName || m.Name == classfile.ClinitName {
				continue
			}
			key := m.String()
			if sub, ok := declared[key]; ok && m.IsFinal() {
				if !m.IsPrivate() {
					return violation("method '%s' in class '%s' overrides the final (not-overridable) definition in class '%s'",
						key, sub, c.name)
				}
				p.note("method '%s' in class '%s' overrides the final (not-overridable) definition in class '%s'. "+
					"This is okay, as the original definition was private; however this constraint leverage was "+
					"introduced by JLS 8.4.6 (not vmspec2) and the behaviour of the Sun verifiers.", key, sub, c.name)
				continue
			}
			if !m.IsStatic() {
				declared[key] = c.name
			}
		}
	}
	return nil
}
