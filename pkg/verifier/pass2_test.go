package verifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/jverify/pkg/bytecode"
	"github.com/daimatz/jverify/pkg/classfile"
	"github.com/daimatz/jverify/pkg/classfile/classfiletest"
)

const (
	pubStatic      = classfile.AccPublic | classfile.AccStatic
	pubStaticFinal = classfile.AccPublic | classfile.AccStatic | classfile.AccFinal
)

var returnCode = classfiletest.Asm(bytecode.OpReturn)

func ifaceWith(name string) *classfiletest.Builder {
	b := classfiletest.New(name, classfile.ObjectClass)
	b.Access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	return b
}

type pass2Case struct {
	name    string
	classes func() []*classfiletest.Builder
	status  Status
	msg     string
}

// runPass2Cases verifies the first class of every case.
func runPass2Cases(t *testing.T, tests []pass2Case) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classes := tt.classes()
			f := newFactory(classes...)
			r := pass2Of(t, f, classes[0].Name())
			assert.Equal(t, tt.status, r.Status, r.Message)
			assert.Contains(t, r.Message, tt.msg)
		})
	}
}

func TestPass2Hierarchy(t *testing.T) {
	runPass2Cases(t, []pass2Case{
		{
			name:    "plain class",
			classes: func() []*classfiletest.Builder { return []*classfiletest.Builder{classWith("A")} },
			status:  OK,
		},
		{
			name: "super_class is not a class constant",
			classes: func() []*classfiletest.Builder {
				a := classWith("A")
				return []*classfiletest.Builder{a.SetSuperIndex(a.Utf8(classfile.ObjectClass))}
			},
			status: Rejected,
			msg:    "does not refer to a CONSTANT_Class",
		},
		{
			name: "circular superclasses",
			classes: func() []*classfiletest.Builder {
				return []*classfiletest.Builder{
					classfiletest.New("C", "B").DefaultConstructor("B"),
					classfiletest.New("B", "A"),
					classfiletest.New("A", "B"),
				}
			},
			status: Rejected,
			msg:    "circular superclass hierarchy detected at 'B'",
		},
		{
			name: "final ancestor",
			classes: func() []*classfiletest.Builder {
				a := classWith("A")
				a.Access |= classfile.AccFinal
				return []*classfiletest.Builder{classfiletest.New("B", "A").DefaultConstructor("A"), a}
			},
			status: Rejected,
			msg:    "ancestor class 'A' has the final access modifier",
		},
		{
			name: "missing ancestor",
			classes: func() []*classfiletest.Builder {
				return []*classfiletest.Builder{classfiletest.New("B", "Nope").DefaultConstructor("Nope")}
			},
			status: Rejected,
			msg:    "could not load in ancestor class 'Nope'",
		},
		{
			name: "no superclass",
			classes: func() []*classfiletest.Builder {
				return []*classfiletest.Builder{classfiletest.New("Orphan", "")}
			},
			status: Rejected,
			msg:    "superclass of 'Orphan' is missing",
		},
		{
			name: "interface as superclass",
			classes: func() []*classfiletest.Builder {
				return []*classfiletest.Builder{classfiletest.New("B", "I"), ifaceWith("I")}
			},
			status: Rejected,
			msg:    "ancestor 'I' is an interface",
		},
		{
			name: "implements an interface",
			classes: func() []*classfiletest.Builder {
				return []*classfiletest.Builder{classWith("B").Interface("I"), ifaceWith("I")}
			},
			status: OK,
		},
		{
			name: "implements a class",
			classes: func() []*classfiletest.Builder {
				return []*classfiletest.Builder{classWith("B").Interface("A"), classWith("A")}
			},
			status: Rejected,
			msg:    "'A' is implemented as an interface but is a class",
		},
		{
			name: "interface extending a class",
			classes: func() []*classfiletest.Builder {
				j := classfiletest.New("J", "A")
				j.Access = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
				return []*classfiletest.Builder{j, classWith("A")}
			},
			status: Rejected,
			msg:    "must have java/lang/Object as its superclass",
		},
	})
}

func TestPass2CircularKeepsMethodsUnverified(t *testing.T) {
	f := newFactory(
		classfiletest.New("C", "B").DefaultConstructor("B"),
		classfiletest.New("B", "A"),
		classfiletest.New("A", "B"),
	)
	assert.Equal(t, Rejected, pass2Of(t, f, "C").Status)
	r, err := f.Verifier("C").DoPass3a(0)
	require.NoError(t, err)
	assert.Equal(t, NotYet, r.Status)
}

func TestPass2FinalMethods(t *testing.T) {
	base := func(access uint16) *classfiletest.Builder {
		a := classWith("A")
		return a.Method(access, "run", "()V", a.Code(0, 1, returnCode))
	}
	runPass2Cases(t, []pass2Case{
		{
			name: "public final overridden",
			classes: func() []*classfiletest.Builder {
				b := classfiletest.New("B", "A").DefaultConstructor("A")
				b.Method(classfile.AccPublic, "run", "()V", b.Code(0, 1, returnCode))
				return []*classfiletest.Builder{b, base(classfile.AccPublic | classfile.AccFinal)}
			},
			status: Rejected,
			msg:    "method 'run()V' in class 'B' overrides the final (not-overridable) definition in class 'A'",
		},
		{
			name: "final overridden two levels down",
			classes: func() []*classfiletest.Builder {
				c := classfiletest.New("C", "B").DefaultConstructor("B")
				c.Method(classfile.AccPublic, "run", "()V", c.Code(0, 1, returnCode))
				return []*classfiletest.Builder{
					c,
					classfiletest.New("B", "A").DefaultConstructor("A"),
					base(classfile.AccPublic | classfile.AccFinal),
				}
			},
			status: Rejected,
			msg:    "in class 'C' overrides the final",
		},
		{
			name: "static method shadows final",
			classes: func() []*classfiletest.Builder {
				b := classfiletest.New("B", "A").DefaultConstructor("A")
				staticMethod(b, "run", "()V", 0, returnCode)
				return []*classfiletest.Builder{b, base(classfile.AccPublic | classfile.AccFinal)}
			},
			status: OK,
		},
		{
			name: "different descriptor",
			classes: func() []*classfiletest.Builder {
				b := classfiletest.New("B", "A").DefaultConstructor("A")
				b.Method(classfile.AccPublic, "run", "(I)V", b.Code(0, 2, returnCode))
				return []*classfiletest.Builder{b, base(classfile.AccPublic | classfile.AccFinal)}
			},
			status: OK,
		},
	})
}

func TestPass2PrivateFinalIsNoted(t *testing.T) {
	a := classWith("A")
	a.Method(classfile.AccPrivate|classfile.AccFinal, "run", "()V", a.Code(0, 1, returnCode))
	b := classfiletest.New("B", "A").DefaultConstructor("A")
	b.Method(classfile.AccPublic, "run", "()V", b.Code(0, 1, returnCode))
	f := newFactory(a, b)

	assert.Equal(t, OK, pass2Of(t, f, "B").Status)
	msgs := f.Verifier("B").Messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "This is okay, as the original definition was private")
	assert.Contains(t, msgs[0], "JLS 8.4.6")
}

func TestPass2ConstantPool(t *testing.T) {
	with := func(add func(b *classfiletest.Builder)) func() []*classfiletest.Builder {
		return func() []*classfiletest.Builder {
			b := classWith("P")
			add(b)
			return []*classfiletest.Builder{b}
		}
	}
	runPass2Cases(t, []pass2Case{
		{
			name: "class naming an integer",
			classes: with(func(b *classfiletest.Builder) {
				b.Raw(classfile.TagClass, classfiletest.U2(b.Integer(7))...)
			}),
			status: Rejected,
			msg:    "but CONSTANT_Utf8 is required",
		},
		{
			name:    "string at index 0",
			classes: with(func(b *classfiletest.Builder) { b.Raw(classfile.TagString, 0, 0) }),
			status:  Rejected,
			msg:     "refers to illegal index 0",
		},
		{
			name: "fieldref class is a utf8",
			classes: with(func(b *classfiletest.Builder) {
				u := b.Utf8("P")
				nt := b.NameAndType("f", "I")
				b.Raw(classfile.TagFieldref, append(classfiletest.U2(u), classfiletest.U2(nt)...)...)
			}),
			status: Rejected,
			msg:    "but CONSTANT_Class is required",
		},
		{
			name: "illegal class name",
			classes: with(func(b *classfiletest.Builder) {
				b.Class("a;b")
			}),
			status: Rejected,
			msg:    "names the illegal class 'a;b'",
		},
		{
			name: "method handle kind 0",
			classes: with(func(b *classfiletest.Builder) {
				m := b.Methodref("P", "run", "()V")
				b.Raw(classfile.TagMethodHandle, append([]byte{0}, classfiletest.U2(m)...)...)
			}),
			status: Rejected,
			msg:    "illegal reference kind 0",
		},
		{
			name: "getField handle to a method",
			classes: with(func(b *classfiletest.Builder) {
				m := b.Methodref("P", "run", "()V")
				b.Raw(classfile.TagMethodHandle, append([]byte{classfile.RefGetField}, classfiletest.U2(m)...)...)
			}),
			status: Rejected,
			msg:    "but CONSTANT_Fieldref is required",
		},
		{
			name: "invokeStatic handle to an interface method",
			classes: with(func(b *classfiletest.Builder) {
				m := b.InterfaceMethodref("I", "run", "()V")
				b.Raw(classfile.TagMethodHandle, append([]byte{classfile.RefInvokeStatic}, classfiletest.U2(m)...)...)
			}),
			status: OK,
		},
		{
			name: "newInvokeSpecial handle to a plain method",
			classes: with(func(b *classfiletest.Builder) {
				m := b.Methodref("P", "run", "()V")
				b.Raw(classfile.TagMethodHandle, append([]byte{classfile.RefNewInvokeSpecial}, classfiletest.U2(m)...)...)
			}),
			status: Rejected,
			msg:    "must refer to <init>",
		},
		{
			name: "invokeVirtual handle to an initializer",
			classes: with(func(b *classfiletest.Builder) {
				m := b.Methodref("P", "<init>", "()V")
				b.Raw(classfile.TagMethodHandle, append([]byte{classfile.RefInvokeVirtual}, classfiletest.U2(m)...)...)
			}),
			status: Rejected,
			msg:    "must not refer to '<init>'",
		},
		{
			name: "method type with field descriptor",
			classes: with(func(b *classfiletest.Builder) {
				b.Raw(classfile.TagMethodType, classfiletest.U2(b.Utf8("I"))...)
			}),
			status: Rejected,
			msg:    "CONSTANT_MethodType",
		},
		{
			name: "invokedynamic without bootstrap methods",
			classes: with(func(b *classfiletest.Builder) {
				nt := b.NameAndType("call", "()V")
				b.Raw(classfile.TagInvokeDynamic, append(classfiletest.U2(0), classfiletest.U2(nt)...)...)
			}),
			status: Rejected,
			msg:    "refers to bootstrap method 0, but the class has 0",
		},
	})
}

func TestPass2MemberRefs(t *testing.T) {
	with := func(add func(b *classfiletest.Builder)) func() []*classfiletest.Builder {
		return func() []*classfiletest.Builder {
			b := classWith("P")
			add(b)
			return []*classfiletest.Builder{b}
		}
	}
	runPass2Cases(t, []pass2Case{
		{
			name:    "class initializer reference",
			classes: with(func(b *classfiletest.Builder) { b.Methodref("P", "<clinit>", "()V") }),
			status:  Rejected,
			msg:     "illegal method name '<clinit>'",
		},
		{
			name:    "initializer returning int",
			classes: with(func(b *classfiletest.Builder) { b.Methodref("P", "<init>", "()I") }),
			status:  Rejected,
			msg:     "instance initializer must return void",
		},
		{
			name:    "interface initializer",
			classes: with(func(b *classfiletest.Builder) { b.InterfaceMethodref("I", "<init>", "()V") }),
			status:  Rejected,
			msg:     "an interface method reference must not name '<init>'",
		},
		{
			name:    "bad field descriptor",
			classes: with(func(b *classfiletest.Builder) { b.Fieldref("P", "f", "Q") }),
			status:  Rejected,
			msg:     "constant pool entry",
		},
		{
			name:    "bad field name",
			classes: with(func(b *classfiletest.Builder) { b.Fieldref("P", "a.b", "I") }),
			status:  Rejected,
			msg:     "illegal field name 'a.b'",
		},
		{
			name:    "bad method descriptor",
			classes: with(func(b *classfiletest.Builder) { b.Methodref("P", "run", "(I") }),
			status:  Rejected,
			msg:     "constant pool entry",
		},
		{
			name: "well formed references",
			classes: with(func(b *classfiletest.Builder) {
				b.Fieldref("P", "f", "[J")
				b.Methodref("P", "run", "(ILjava/lang/String;)V")
			}),
			status: OK,
		},
	})
}

func TestPass2Members(t *testing.T) {
	with := func(add func(b *classfiletest.Builder)) func() []*classfiletest.Builder {
		return func() []*classfiletest.Builder {
			b := classWith("M")
			add(b)
			return []*classfiletest.Builder{b}
		}
	}
	runPass2Cases(t, []pass2Case{
		{
			name: "final and abstract class",
			classes: with(func(b *classfiletest.Builder) {
				b.Access |= classfile.AccFinal | classfile.AccAbstract
			}),
			status: Rejected,
			msg:    "must not be both final and abstract",
		},
		{
			name:    "interface without abstract",
			classes: with(func(b *classfiletest.Builder) { b.Access = classfile.AccPublic | classfile.AccInterface }),
			status:  Rejected,
			msg:     "must be declared abstract",
		},
		{
			name: "duplicate field",
			classes: with(func(b *classfiletest.Builder) {
				b.Field(classfile.AccPrivate, "x", "I").Field(classfile.AccPublic, "x", "I")
			}),
			status: Rejected,
			msg:    "field 'x' of type I is declared twice",
		},
		{
			name: "same field name, other type",
			classes: with(func(b *classfiletest.Builder) {
				b.Field(classfile.AccPrivate, "x", "I").Field(classfile.AccPrivate, "x", "J")
			}),
			status: OK,
		},
		{
			name:    "public and private field",
			classes: with(func(b *classfiletest.Builder) { b.Field(classfile.AccPublic|classfile.AccPrivate, "x", "I") }),
			status:  Rejected,
			msg:     "field 'x': at most one of public, private and protected may be set",
		},
		{
			name:    "final volatile field",
			classes: with(func(b *classfiletest.Builder) { b.Field(classfile.AccFinal|classfile.AccVolatile, "x", "I") }),
			status:  Rejected,
			msg:     "must not be both final and volatile",
		},
		{
			name:    "integer constant for a long",
			classes: with(func(b *classfiletest.Builder) { b.Field(pubStaticFinal, "x", "J", b.ConstantValue(b.Integer(1))) }),
			status:  Rejected,
			msg:     "ConstantValue attribute refers to a CONSTANT_Integer",
		},
		{
			name:    "long constant for a long",
			classes: with(func(b *classfiletest.Builder) { b.Field(pubStaticFinal, "x", "J", b.ConstantValue(b.Long(1))) }),
			status:  OK,
		},
		{
			name:    "integer constant for a boolean",
			classes: with(func(b *classfiletest.Builder) { b.Field(pubStaticFinal, "x", "Z", b.ConstantValue(b.Integer(1))) }),
			status:  OK,
		},
		{
			name: "string constant",
			classes: with(func(b *classfiletest.Builder) {
				b.Field(pubStaticFinal, "x", "Ljava/lang/String;", b.ConstantValue(b.String("hi")))
			}),
			status: OK,
		},
		{
			name: "constant for an object field",
			classes: with(func(b *classfiletest.Builder) {
				b.Field(pubStaticFinal, "x", "Ljava/lang/Object;", b.ConstantValue(b.String("hi")))
			}),
			status: Rejected,
			msg:    "cannot have a ConstantValue attribute",
		},
		{
			name: "two constant values",
			classes: with(func(b *classfiletest.Builder) {
				b.Field(pubStaticFinal, "x", "I", b.ConstantValue(b.Integer(1)), b.ConstantValue(b.Integer(2)))
			}),
			status: Rejected,
			msg:    "has 2 ConstantValue attributes",
		},
		{
			name: "duplicate method",
			classes: with(func(b *classfiletest.Builder) {
				staticMethod(b, "m", "()V", 0, returnCode)
				staticMethod(b, "m", "()V", 0, returnCode)
			}),
			status: Rejected,
			msg:    "method 'm()V' is declared twice",
		},
		{
			name:    "method without code",
			classes: with(func(b *classfiletest.Builder) { b.Method(pubStatic, "m", "()V") }),
			status:  Rejected,
			msg:     "must have exactly one Code attribute, found 0",
		},
		{
			name: "method with two code attributes",
			classes: with(func(b *classfiletest.Builder) {
				b.Method(pubStatic, "m", "()V", b.Code(0, 0, returnCode), b.Code(0, 0, returnCode))
			}),
			status: Rejected,
			msg:    "found 2",
		},
		{
			name: "abstract method in a concrete class",
			classes: with(func(b *classfiletest.Builder) {
				b.Method(classfile.AccPublic|classfile.AccAbstract, "m", "()V")
			}),
			status: Rejected,
			msg:    "abstract method in non-abstract class 'M'",
		},
		{
			name: "abstract method with code",
			classes: with(func(b *classfiletest.Builder) {
				b.Access |= classfile.AccAbstract
				b.Method(classfile.AccPublic|classfile.AccAbstract, "m", "()V", b.Code(0, 1, returnCode))
			}),
			status: Rejected,
			msg:    "must not have a Code attribute",
		},
		{
			name:    "native method",
			classes: with(func(b *classfiletest.Builder) { b.Method(classfile.AccPublic|classfile.AccNative, "m", "()V") }),
			status:  OK,
		},
		{
			name:    "static initializer",
			classes: with(func(b *classfiletest.Builder) { staticMethod(b, "<init>", "(I)V", 1, returnCode) }),
			status:  Rejected,
			msg:     "instance initializer must not be static",
		},
		{
			name: "non-static class initializer",
			classes: with(func(b *classfiletest.Builder) {
				b.Method(0, "<clinit>", "()V", b.Code(0, 1, returnCode))
			}),
			status: Rejected,
			msg:    "class initializer must be static",
		},
		{
			name:    "class initializer with arguments",
			classes: with(func(b *classfiletest.Builder) { staticMethod(b, "<clinit>", "(I)V", 1, returnCode) }),
			status:  Rejected,
			msg:     "class initializer must have descriptor ()V",
		},
		{
			name: "exceptions naming a string",
			classes: with(func(b *classfiletest.Builder) {
				data := append(classfiletest.U2(1), classfiletest.U2(b.Utf8("java/lang/Throwable"))...)
				b.Method(pubStatic, "m", "()V", b.Code(0, 0, returnCode),
					classfiletest.Attribute{Name: classfile.AttrExceptions, Data: data})
			}),
			status: Rejected,
			msg:    "Exceptions attribute",
		},
		{
			name: "declared exceptions",
			classes: with(func(b *classfiletest.Builder) {
				b.Method(pubStatic, "m", "()V", b.Code(0, 0, returnCode), b.Exceptions(classfile.ThrowableClass))
			}),
			status: OK,
		},
		{
			name: "two source files",
			classes: with(func(b *classfiletest.Builder) {
				b.Attribute(b.SourceFile("M.java")).Attribute(b.SourceFile("N.java"))
			}),
			status: Rejected,
			msg:    "class has 2 SourceFile attributes",
		},
		{
			name: "interface field not static",
			classes: func() []*classfiletest.Builder {
				i := ifaceWith("I")
				i.Field(classfile.AccPublic|classfile.AccFinal, "x", "I")
				return []*classfiletest.Builder{i}
			},
			status: Rejected,
			msg:    "interface fields must be public, static and final",
		},
		{
			name: "interface with default and abstract methods",
			classes: func() []*classfiletest.Builder {
				i := ifaceWith("I")
				i.Method(classfile.AccPublic|classfile.AccAbstract, "a", "()V")
				i.Method(classfile.AccPublic, "d", "()V", i.Code(0, 1, returnCode))
				return []*classfiletest.Builder{i}
			},
			status: OK,
		},
		{
			name: "protected interface method",
			classes: func() []*classfiletest.Builder {
				i := ifaceWith("I")
				i.Method(classfile.AccProtected|classfile.AccAbstract, "a", "()V")
				return []*classfiletest.Builder{i}
			},
			status: Rejected,
			msg:    "interface methods must be either public or private",
		},
	})
}

func TestPass2NonStaticConstantValueIsNoted(t *testing.T) {
	b := classWith("M")
	b.Field(classfile.AccPrivate, "x", "J", b.ConstantValue(b.Integer(1)))
	f := newFactory(b)
	assert.Equal(t, OK, pass2Of(t, f, "M").Status)
	assert.Equal(t, []string{"ConstantValue attribute of non-static field 'x' is ignored"}, f.Verifier("M").Messages())
}

func TestPass2Code(t *testing.T) {
	with := func(add func(b *classfiletest.Builder)) func() []*classfiletest.Builder {
		return func() []*classfiletest.Builder {
			b := classWith("K")
			add(b)
			return []*classfiletest.Builder{b, classfiletest.New("MyErr", classfile.ThrowableClass).DefaultConstructor(classfile.ThrowableClass)}
		}
	}
	lvt := func(vars ...classfiletest.LocalVar) classfiletest.CodeOption { return classfiletest.LocalVariables(vars...) }
	runPass2Cases(t, []pass2Case{
		{
			name: "max_locals below the arguments",
			classes: with(func(b *classfiletest.Builder) {
				b.Method(classfile.AccPublic, "m", "(JI)V", b.Code(0, 3, returnCode))
			}),
			status: Rejected,
			msg:    "max_locals 3 is less than the 4 slots taken by the arguments",
		},
		{
			name: "max_locals covers the arguments",
			classes: with(func(b *classfiletest.Builder) {
				b.Method(classfile.AccPublic, "m", "(JI)V", b.Code(0, 4, returnCode))
			}),
			status: OK,
		},
		{
			name: "catching a non-throwable",
			classes: with(func(b *classfiletest.Builder) {
				cls := b.Class(classfile.ObjectClass)
				staticMethod(b, "m", "()V", 0, classfiletest.Asm(bytecode.OpNop, bytecode.OpReturn), classfiletest.Handler(0, 1, 1, cls))
			}),
			status: Rejected,
			msg:    "catches 'java/lang/Object', which is not a subclass of java/lang/Throwable",
		},
		{
			name: "catching a throwable subclass",
			classes: with(func(b *classfiletest.Builder) {
				cls := b.Class("MyErr")
				staticMethod(b, "m", "()V", 0, classfiletest.Asm(bytecode.OpNop, bytecode.OpReturn), classfiletest.Handler(0, 1, 1, cls))
			}),
			status: OK,
		},
		{
			name: "catching a missing class",
			classes: with(func(b *classfiletest.Builder) {
				cls := b.Class("Nope")
				staticMethod(b, "m", "()V", 0, classfiletest.Asm(bytecode.OpNop, bytecode.OpReturn), classfiletest.Handler(0, 1, 1, cls))
			}),
			status: Rejected,
			msg:    "could not load class 'Nope'",
		},
		{
			name: "conflicting local variables",
			classes: with(func(b *classfiletest.Builder) {
				staticMethod(b, "m", "()V", 1, returnCode, lvt(
					classfiletest.LocalVar{Start: 0, Length: 1, Name: "a", Desc: "I", Slot: 0},
					classfiletest.LocalVar{Start: 0, Length: 1, Name: "b", Desc: "I", Slot: 0},
				))
			}),
			status: Rejected,
			msg:    "conflicting LocalVariableTable entry 1 for slot 0",
		},
		{
			name: "double in the last slot",
			classes: with(func(b *classfiletest.Builder) {
				staticMethod(b, "m", "()V", 1, returnCode, lvt(
					classfiletest.LocalVar{Start: 0, Length: 1, Name: "d", Desc: "D", Slot: 0},
				))
			}),
			status: Rejected,
			msg:    "does not fit in max_locals 1",
		},
		{
			name: "bad local descriptor",
			classes: with(func(b *classfiletest.Builder) {
				staticMethod(b, "m", "()V", 1, returnCode, lvt(
					classfiletest.LocalVar{Start: 0, Length: 1, Name: "q", Desc: "Q", Slot: 0},
				))
			}),
			status: Rejected,
			msg:    "LocalVariableTable entry 0",
		},
	})
}

func TestPass2LocalVariables(t *testing.T) {
	b := classWith("K")
	staticMethod(b, "m", "(J)V", 3, classfiletest.Asm(bytecode.OpNop, bytecode.OpReturn), classfiletest.LocalVariables(
		classfiletest.LocalVar{Start: 0, Length: 1, Name: "n", Desc: "J", Slot: 0},
		classfiletest.LocalVar{Start: 1, Length: 1, Name: "s", Desc: "Ljava/lang/String;", Slot: 2},
	))
	f := newFactory(b)
	v := f.Verifier("K")
	require.Equal(t, OK, pass2Of(t, f, "K").Status)

	ctor, err := v.LocalVariables(0)
	require.NoError(t, err)
	assert.Equal(t, 1, ctor.Len())

	lv, err := v.LocalVariables(1)
	require.NoError(t, err)
	require.Equal(t, 3, lv.Len())

	slot0, err := lv.At(0)
	require.NoError(t, err)
	name, ok := slot0.Name(1)
	require.True(t, ok)
	assert.Equal(t, "n", name)

	slot1, err := lv.At(1)
	require.NoError(t, err)
	typ, ok := slot1.Type(0)
	require.True(t, ok)
	assert.True(t, IsUpperHalf(typ))

	slot2, err := lv.At(2)
	require.NoError(t, err)
	typ, ok = slot2.Type(2)
	require.True(t, ok)
	assert.Equal(t, "Ljava/lang/String;", typ)
	_, ok = slot2.Type(0)
	assert.False(t, ok)
}

func TestPass2NotYetLocalVariables(t *testing.T) {
	f := newFactory()
	lv, err := f.Verifier("Missing").LocalVariables(0)
	require.NoError(t, err)
	assert.Nil(t, lv)
}
