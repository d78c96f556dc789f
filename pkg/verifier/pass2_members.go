package verifier

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pkg/errors"

	"github.com/daimatz/jverify/pkg/classfile"
)

const (
	accessMask = classfile.AccPublic | classfile.AccPrivate | classfile.AccProtected
	stringDesc = "Ljava/lang/String;"
)

// members checks the class flags, every field, every method with its Code
// attribute, and the class attributes.
func (p *pass2) members() error {
	if err := p.classFlags(); err != nil {
		return err
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	for i := range p.cf.Fields {
		f := &p.cf.Fields[i]
		if !seen.Add(f.Name + ":" + f.Descriptor) {
			return violation("field '%s' of type %s is declared twice", f.Name, f.Descriptor)
		}
		if err := p.field(f); err != nil {
			return annotate(err, "field '%s'", f.Name)
		}
	}

	seen.Clear()
	for i := range p.cf.Methods {
		m := &p.cf.Methods[i]
		if !seen.Add(m.String()) {
			return violation("method '%s' is declared twice", m)
		}
		if err := p.method(i, m); err != nil {
			return annotate(err, "method '%s'", m)
		}
	}

	sources, err := p.cf.SourceFileIndices()
	if err != nil {
		return violation("%v", err)
	}
	if len(sources) > 1 {
		return violation("class has %d SourceFile attributes, but at most one is allowed", len(sources))
	}
	for _, idx := range sources {
		if _, err := classfile.GetUtf8(p.pool, idx); err != nil {
			return violation("SourceFile attribute: %v", err)
		}
	}
	return nil
}

func (p *pass2) classFlags() error {
	flags := p.cf.AccessFlags
	if p.cf.IsInterface() {
		if flags&classfile.AccAbstract == 0 {
			return violation("interface '%s' must be declared abstract", p.name)
		}
		if flags&(classfile.AccFinal|classfile.AccSuper|classfile.AccEnum) != 0 {
			return violation("interface '%s' must not be final, super or enum", p.name)
		}
		return nil
	}
	if flags&classfile.AccAnnotation != 0 {
		return violation("class '%s' is an annotation type but not an interface", p.name)
	}
	if flags&classfile.AccFinal != 0 && flags&classfile.AccAbstract != 0 {
		return violation("class '%s' must not be both final and abstract", p.name)
	}
	return nil
}

func countBits(flags uint16) int {
	n := 0
	for ; flags != 0; flags &= flags - 1 {
		n++
	}
	return n
}

func (p *pass2) field(f *classfile.FieldInfo) error {
	if !classfile.ValidFieldName(f.Name) {
		return violation("illegal field name")
	}
	t, err := classfile.ParseFieldType(f.Descriptor)
	if err != nil {
		return violation("%v", err)
	}
	if countBits(f.AccessFlags&accessMask) > 1 {
		return violation("at most one of public, private and protected may be set")
	}
	if f.IsFinal() && f.AccessFlags&classfile.AccVolatile != 0 {
		return violation("must not be both final and volatile")
	}
	if p.cf.IsInterface() {
		want := uint16(classfile.AccPublic | classfile.AccStatic | classfile.AccFinal)
		if f.AccessFlags&want != want {
			return violation("interface fields must be public, static and final")
		}
		if f.AccessFlags&(classfile.AccPrivate|classfile.AccProtected|classfile.AccVolatile|classfile.AccTransient) != 0 {
			return violation("interface fields must not be private, protected, volatile or transient")
		}
	}

	values, err := f.ConstantValueIndices()
	if err != nil {
		return violation("%v", err)
	}
	if len(values) > 1 {
		return violation("has %d ConstantValue attributes, but at most one is allowed", len(values))
	}
	if len(values) == 0 {
		return nil
	}
	if !f.IsStatic() {
		p.note("ConstantValue attribute of non-static field '%s' is ignored", f.Name)
		return nil
	}
	entry, err := classfile.Entry(p.pool, values[0])
	if err != nil {
		return violation("ConstantValue attribute: %v", err)
	}
	want, ok := constantValueTag(t)
	if !ok {
		return violation("a field of type %s cannot have a ConstantValue attribute", t)
	}
	if entry.Tag() != want {
		return violation("ConstantValue attribute refers to a %s, but the field type %s needs a %s",
			classfile.TagName(entry.Tag()), t, classfile.TagName(want))
	}
	return nil
}

func constantValueTag(t classfile.Type) (uint8, bool) {
	switch {
	case t.Kind == classfile.KindLong:
		return classfile.TagLong, true
	case t.Kind == classfile.KindFloat:
		return classfile.TagFloat, true
	case t.Kind == classfile.KindDouble:
		return classfile.TagDouble, true
	case t.IsIntLike():
		return classfile.TagInteger, true
	case t.Descriptor() == stringDesc:
		return classfile.TagString, true
	}
	return 0, false
}

func (p *pass2) method(i int, m *classfile.MethodInfo) error {
	if !classfile.ValidMethodName(m.Name) {
		return violation("illegal method name")
	}
	md, err := classfile.ParseMethodDescriptor(m.Descriptor)
	if err != nil {
		return violation("%v", err)
	}
	if err := p.methodFlags(m, md); err != nil {
		return err
	}

	codes := m.CodeAttributeCount()
	if m.IsAbstract() || m.IsNative() {
		if codes != 0 {
			return violation("abstract and native methods must not have a Code attribute")
		}
	} else if codes != 1 {
		return violation("must have exactly one Code attribute, found %d", codes)
	}

	exceptions, err := m.ExceptionIndices()
	if err != nil {
		return violation("%v", err)
	}
	for _, idx := range exceptions {
		if _, err := classfile.GetClassName(p.pool, idx); err != nil {
			return violation("Exceptions attribute: %v", err)
		}
	}

	if m.Code != nil {
		lv, err := p.code(m, md)
		if err != nil {
			return annotate(err, "Code attribute")
		}
		p.locals[i] = lv
	}
	return nil
}

func (p *pass2) methodFlags(m *classfile.MethodInfo, md *classfile.MethodDescriptor) error {
	flags := m.AccessFlags
	if countBits(flags&accessMask) > 1 {
		return violation("at most one of public, private and protected may be set")
	}

	switch m.Name {
	case classfile.ClinitName:
		if m.Descriptor != "()V" {
			return violation("class initializer must have descriptor ()V")
		}
		if p.cf.MajorVersion >= 51 && !m.IsStatic() {
			return violation("class initializer must be static")
		}
		return nil
	case classfile.InitName:
		if md.Return.Kind != classfile.KindVoid {
			return violation("instance initializer must return void")
		}
		if p.cf.IsInterface() {
			return violation("interfaces must not declare an instance initializer")
		}
		if flags&(classfile.AccStatic|classfile.AccFinal|classfile.AccSynchronized|classfile.AccNative|classfile.AccAbstract|classfile.AccBridge) != 0 {
			return violation("instance initializer must not be static, final, synchronized, native, abstract or bridge")
		}
	}

	if p.cf.IsInterface() {
		if p.cf.MajorVersion < 52 {
			want := uint16(classfile.AccPublic | classfile.AccAbstract)
			if flags&want != want {
				return violation("interface methods must be public and abstract before class file version 52")
			}
		} else {
			if countBits(flags&(classfile.AccPublic|classfile.AccPrivate)) != 1 {
				return violation("interface methods must be either public or private")
			}
			if flags&(classfile.AccProtected|classfile.AccFinal|classfile.AccSynchronized|classfile.AccNative) != 0 {
				return violation("interface methods must not be protected, final, synchronized or native")
			}
		}
	}

	if m.IsAbstract() {
		if flags&(classfile.AccPrivate|classfile.AccStatic|classfile.AccFinal|classfile.AccSynchronized|classfile.AccNative|classfile.AccStrict) != 0 {
			return violation("abstract methods must not be private, static, final, synchronized, native or strict")
		}
		if !p.cf.IsInterface() && !p.cf.IsAbstract() {
			return violation("abstract method in non-abstract class '%s'", p.name)
		}
	}
	return nil
}

// code checks a Code attribute and builds its local variable table.
func (p *pass2) code(m *classfile.MethodInfo, md *classfile.MethodDescriptor) (*LocalVariables, error) {
	code := m.Code
	need := md.ArgumentSlots()
	if !m.IsStatic() {
		need++
	}
	if int(code.MaxLocals) < need {
		return nil, violation("max_locals %d is less than the %d slots taken by the arguments", code.MaxLocals, need)
	}

	for i, h := range code.ExceptionHandlers {
		if h.CatchType == 0 {
			continue
		}
		name, err := classfile.GetClassName(p.pool, h.CatchType)
		if err != nil {
			return nil, violation("exception table entry %d: catch type: %v", i, err)
		}
		ok, err := p.f.isThrowable(name)
		if err != nil {
			return nil, annotate(err, "exception table entry %d", i)
		}
		if !ok {
			return nil, violation("exception table entry %d catches '%s', which is not a subclass of %s", i, name, classfile.ThrowableClass)
		}
	}

	lv := NewLocalVariables(int(code.MaxLocals))
	for i, e := range code.LocalVariables {
		name, err := classfile.GetUtf8(p.pool, e.NameIndex)
		if err != nil {
			return nil, violation("LocalVariableTable entry %d: name: %v", i, err)
		}
		if !classfile.ValidFieldName(name) {
			return nil, violation("LocalVariableTable entry %d: illegal name '%s'", i, name)
		}
		desc, err := classfile.GetUtf8(p.pool, e.DescriptorIndex)
		if err != nil {
			return nil, violation("LocalVariableTable entry %d: descriptor: %v", i, err)
		}
		t, err := classfile.ParseFieldType(desc)
		if err != nil {
			return nil, violation("LocalVariableTable entry %d: %v", i, err)
		}
		if int(e.Index)+t.Size() > int(code.MaxLocals) {
			return nil, violation("LocalVariableTable entry %d: local '%s' of type %s in slot %d does not fit in max_locals %d",
				i, name, t, e.Index, code.MaxLocals)
		}
		if err := lv.Add(int(e.Index), name, int(e.StartPC), int(e.Length), t); err != nil {
			var ie *InconsistentLocalError
			if errors.As(err, &ie) {
				return nil, violation("conflicting LocalVariableTable entry %d for slot %d: %v", i, e.Index, ie)
			}
			return nil, err
		}
	}
	return lv, nil
}
