package verifier

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/daimatz/jverify/pkg/classfile"
)

// loadedClass is a class that passed pass 1.
type loadedClass struct {
	name string
	cf   *classfile.ClassFile
}

// loadClass runs pass 1 on name and returns the parsed class. A class that
// fails pass 1 is a constraint violation carrying the pass 1 verdict.
func (f *Factory) loadClass(name string) (*classfile.ClassFile, error) {
	v := f.Verifier(name)
	r, err := v.DoPass1()
	if err != nil {
		return nil, err
	}
	if r.Status != OK {
		return nil, violation("%s", r)
	}
	return v.parsed(), nil
}

// superclasses walks from the direct superclass of cf up to the root,
// loading each ancestor. name is the name of cf itself.
func (f *Factory) superclasses(name string, cf *classfile.ClassFile) ([]loadedClass, error) {
	visited := mapset.NewThreadUnsafeSet(name)
	var out []loadedClass
	curName, cur := name, cf
	for {
		super := cur.SuperClassName()
		if super == "" {
			if curName != classfile.ObjectClass {
				return nil, violation("class '%s' has no superclass, but only %s may omit one", curName, classfile.ObjectClass)
			}
			return out, nil
		}
		if visited.Contains(super) {
			return nil, violation("circular superclass hierarchy detected at '%s'", super)
		}
		visited.Add(super)

		sup, err := f.loadClass(super)
		if err != nil {
			return nil, annotate(err, "could not load in ancestor class '%s'", super)
		}
		if sup.IsFinal() {
			return nil, violation("ancestor class '%s' has the final access modifier and must therefore not be subclassed", super)
		}
		if sup.IsInterface() {
			return nil, violation("ancestor '%s' is an interface and cannot be a superclass", super)
		}
		out = append(out, loadedClass{name: super, cf: sup})
		curName, cur = super, sup
	}
}

// superinterfaces loads, breadth first, every interface implemented by the
// given classes or extended by those interfaces.
func (f *Factory) superinterfaces(classes ...loadedClass) ([]loadedClass, error) {
	visited := mapset.NewThreadUnsafeSet[string]()
	var queue []string
	for _, c := range classes {
		names, err := c.cf.InterfaceNames()
		if err != nil {
			return nil, violation("interfaces of '%s' cannot be resolved: %v", c.name, err)
		}
		queue = append(queue, names...)
	}

	var out []loadedClass
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if !visited.Add(name) {
			continue
		}
		cf, err := f.loadClass(name)
		if err != nil {
			return nil, annotate(err, "could not load in interface '%s'", name)
		}
		if !cf.IsInterface() {
			return nil, violation("'%s' is implemented as an interface but is a class", name)
		}
		out = append(out, loadedClass{name: name, cf: cf})
		names, err := cf.InterfaceNames()
		if err != nil {
			return nil, violation("interfaces of '%s' cannot be resolved: %v", name, err)
		}
		queue = append(queue, names...)
	}
	return out, nil
}

// hierarchy returns owner followed by its superclasses.
func (f *Factory) hierarchy(ownerName string, owner *classfile.ClassFile) ([]loadedClass, error) {
	sups, err := f.superclasses(ownerName, owner)
	if err != nil {
		return nil, err
	}
	return append([]loadedClass{{name: ownerName, cf: owner}}, sups...), nil
}

// lookupField finds a field on owner or one it inherits. Only public and
// protected superclass fields are inherited. A nil field means no such
// field exists.
func (f *Factory) lookupField(ownerName string, owner *classfile.ClassFile, name, desc string) (*classfile.FieldInfo, string, error) {
	if fi := owner.FindField(name, desc); fi != nil {
		return fi, ownerName, nil
	}
	classes, err := f.hierarchy(ownerName, owner)
	if err != nil {
		return nil, "", err
	}
	for _, c := range classes[1:] {
		if fi := c.cf.FindField(name, desc); fi != nil && (fi.IsPublic() || fi.IsProtected()) {
			return fi, c.name, nil
		}
	}
	ifaces, err := f.superinterfaces(classes...)
	if err != nil {
		return nil, "", err
	}
	for _, c := range ifaces {
		if fi := c.cf.FindField(name, desc); fi != nil {
			return fi, c.name, nil
		}
	}
	return nil, "", nil
}

// lookupMethod finds a method on owner, its superclasses or its
// superinterfaces. Interfaces inherit the public methods of
// java/lang/Object.
func (f *Factory) lookupMethod(ownerName string, owner *classfile.ClassFile, name, desc string) (*classfile.MethodInfo, string, error) {
	if m := owner.FindMethod(name, desc); m != nil {
		return m, ownerName, nil
	}

	var classes []loadedClass
	if owner.IsInterface() {
		obj, err := f.loadClass(classfile.ObjectClass)
		if err != nil {
			return nil, "", annotate(err, "could not load in %s", classfile.ObjectClass)
		}
		if m := obj.FindMethod(name, desc); m != nil && m.IsPublic() && !m.IsStatic() {
			return m, classfile.ObjectClass, nil
		}
		classes = []loadedClass{{name: ownerName, cf: owner}}
	} else {
		var err error
		if classes, err = f.hierarchy(ownerName, owner); err != nil {
			return nil, "", err
		}
		for _, c := range classes[1:] {
			if m := c.cf.FindMethod(name, desc); m != nil && (m.IsPublic() || m.IsProtected()) {
				return m, c.name, nil
			}
		}
	}

	ifaces, err := f.superinterfaces(classes...)
	if err != nil {
		return nil, "", err
	}
	for _, c := range ifaces {
		if m := c.cf.FindMethod(name, desc); m != nil && !m.IsPrivate() {
			return m, c.name, nil
		}
	}
	return nil, "", nil
}

// signaturePolymorphic reports whether name on owner is a signature
// polymorphic method, which accepts any descriptor.
func signaturePolymorphic(ownerName string, owner *classfile.ClassFile, name string) bool {
	if ownerName != "java/lang/invoke/MethodHandle" && ownerName != "java/lang/invoke/VarHandle" {
		return false
	}
	for i := range owner.Methods {
		m := &owner.Methods[i]
		if m.Name == name && m.IsNative() && m.IsVarargs() &&
			strings.HasPrefix(m.Descriptor, "([Ljava/lang/Object;)") {
			return true
		}
	}
	return false
}

// isThrowable reports whether name is java/lang/Throwable or a subclass.
func (f *Factory) isThrowable(name string) (bool, error) {
	if name == classfile.ThrowableClass {
		return true, nil
	}
	cf, err := f.loadClass(name)
	if err != nil {
		return false, annotate(err, "could not load class '%s'", name)
	}
	sups, err := f.superclasses(name, cf)
	if err != nil {
		return false, annotate(err, "superclasses of '%s'", name)
	}
	for _, s := range sups {
		if s.name == classfile.ThrowableClass {
			return true, nil
		}
	}
	return false, nil
}
