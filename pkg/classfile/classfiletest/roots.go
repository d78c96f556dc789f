package classfiletest

import "github.com/daimatz/jverify/pkg/classfile"

var returnOnly = []byte{0xB1} // return

// Object assembles a minimal java/lang/Object.
func Object() *Builder {
	b := New(classfile.ObjectClass, "")
	b.Method(classfile.AccPublic, classfile.InitName, "()V", b.Code(0, 1, returnOnly))
	return b
}

// Throwable assembles a minimal java/lang/Throwable.
func Throwable() *Builder {
	b := New(classfile.ThrowableClass, classfile.ObjectClass)
	ctor := b.Methodref(classfile.ObjectClass, classfile.InitName, "()V")
	code := Asm(0x2A, 0xB7, U2(ctor), 0xB1) // aload_0, invokespecial Object.<init>, return
	b.Method(classfile.AccPublic, classfile.InitName, "()V", b.Code(1, 1, code))
	return b
}

// Roots returns the assembled bytes of the root classes keyed by name.
func Roots() map[string][]byte {
	return Classes(Object(), Throwable())
}

// Classes assembles each builder and keys the bytes by class name.
func Classes(builders ...*Builder) map[string][]byte {
	out := make(map[string][]byte, len(builders))
	for _, b := range builders {
		out[b.Name()] = b.Bytes()
	}
	return out
}

// DefaultConstructor adds a public <init>()V that calls super's <init>.
func (b *Builder) DefaultConstructor(super string) *Builder {
	ctor := b.Methodref(super, classfile.InitName, "()V")
	code := Asm(0x2A, 0xB7, U2(ctor), 0xB1)
	return b.Method(classfile.AccPublic, classfile.InitName, "()V", b.Code(1, 1, code))
}
