// Package classfiletest assembles class files in memory for tests.
package classfiletest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/daimatz/jverify/pkg/classfile"
)

// Attribute is an unencoded attribute: the name is interned into the
// constant pool when the class is assembled.
type Attribute struct {
	Name string
	Data []byte
}

type member struct {
	access uint16
	name   string
	desc   string
	attrs  []Attribute
}

// Builder accumulates a constant pool and class members.
type Builder struct {
	Major  uint16
	Minor  uint16
	Access uint16

	name  string
	pool  [][]byte
	next  uint16
	utf8s map[string]uint16
	keyed map[string]uint16

	this       uint16
	super      uint16
	interfaces []uint16
	fields     []member
	methods    []member
	attrs      []Attribute
}

// New starts a public class named name extending super. An empty super
// produces super_class = 0.
func New(name, super string) *Builder {
	b := &Builder{
		Major:  52,
		Access: classfile.AccPublic | classfile.AccSuper,
		name:   name,
		next:   1,
		utf8s:  make(map[string]uint16),
		keyed:  make(map[string]uint16),
	}
	b.this = b.Class(name)
	if super != "" {
		b.super = b.Class(super)
	}
	return b
}

// Name returns the class name given to New.
func (b *Builder) Name() string { return b.name }

// SetSuperIndex overrides super_class with a raw constant pool index.
func (b *Builder) SetSuperIndex(idx uint16) *Builder {
	b.super = idx
	return b
}

// SetThisIndex overrides this_class with a raw constant pool index.
func (b *Builder) SetThisIndex(idx uint16) *Builder {
	b.this = idx
	return b
}

func (b *Builder) add(entry []byte, slots uint16) uint16 {
	idx := b.next
	b.pool = append(b.pool, entry)
	b.next += slots
	return idx
}

func (b *Builder) keyedAdd(key string, entry []byte, slots uint16) uint16 {
	if idx, ok := b.keyed[key]; ok {
		return idx
	}
	idx := b.add(entry, slots)
	b.keyed[key] = idx
	return idx
}

// Raw appends an arbitrary entry with the given tag and payload, without any
// interning. Used to build malformed pools.
func (b *Builder) Raw(tag uint8, payload ...byte) uint16 {
	slots := uint16(1)
	if tag == classfile.TagLong || tag == classfile.TagDouble {
		slots = 2
	}
	return b.add(append([]byte{tag}, payload...), slots)
}

func (b *Builder) Utf8(s string) uint16 {
	if idx, ok := b.utf8s[s]; ok {
		return idx
	}
	entry := []byte{classfile.TagUtf8}
	entry = append(entry, U2(uint16(len(s)))...)
	entry = append(entry, s...)
	idx := b.add(entry, 1)
	b.utf8s[s] = idx
	return idx
}

func (b *Builder) Class(name string) uint16 {
	n := b.Utf8(name)
	return b.keyedAdd("C:"+name, append([]byte{classfile.TagClass}, U2(n)...), 1)
}

func (b *Builder) String(s string) uint16 {
	n := b.Utf8(s)
	return b.keyedAdd("S:"+s, append([]byte{classfile.TagString}, U2(n)...), 1)
}

func (b *Builder) Integer(v int32) uint16 {
	return b.keyedAdd(fmt.Sprintf("I:%d", v), append([]byte{classfile.TagInteger}, U4(v)...), 1)
}

func (b *Builder) Float(v float32) uint16 {
	bits := math.Float32bits(v)
	return b.keyedAdd(fmt.Sprintf("F:%x", bits), append([]byte{classfile.TagFloat}, U4(int32(bits))...), 1)
}

func (b *Builder) Long(v int64) uint16 {
	return b.keyedAdd(fmt.Sprintf("J:%d", v), append([]byte{classfile.TagLong}, u8(uint64(v))...), 2)
}

func (b *Builder) Double(v float64) uint16 {
	bits := math.Float64bits(v)
	return b.keyedAdd(fmt.Sprintf("D:%x", bits), append([]byte{classfile.TagDouble}, u8(bits)...), 2)
}

func (b *Builder) NameAndType(name, desc string) uint16 {
	n, d := b.Utf8(name), b.Utf8(desc)
	entry := append([]byte{classfile.TagNameAndType}, U2(n)...)
	return b.keyedAdd("NT:"+name+":"+desc, append(entry, U2(d)...), 1)
}

func (b *Builder) memberRef(tag uint8, class, name, desc string) uint16 {
	c, nt := b.Class(class), b.NameAndType(name, desc)
	entry := append([]byte{tag}, U2(c)...)
	return b.keyedAdd(fmt.Sprintf("%d:%s.%s:%s", tag, class, name, desc), append(entry, U2(nt)...), 1)
}

func (b *Builder) Fieldref(class, name, desc string) uint16 {
	return b.memberRef(classfile.TagFieldref, class, name, desc)
}

func (b *Builder) Methodref(class, name, desc string) uint16 {
	return b.memberRef(classfile.TagMethodref, class, name, desc)
}

func (b *Builder) InterfaceMethodref(class, name, desc string) uint16 {
	return b.memberRef(classfile.TagInterfaceMethodref, class, name, desc)
}

// Interface adds name to the implemented interfaces.
func (b *Builder) Interface(name string) *Builder {
	b.interfaces = append(b.interfaces, b.Class(name))
	return b
}

// Field declares a field.
func (b *Builder) Field(access uint16, name, desc string, attrs ...Attribute) *Builder {
	b.fields = append(b.fields, member{access: access, name: name, desc: desc, attrs: attrs})
	return b
}

// Method declares a method.
func (b *Builder) Method(access uint16, name, desc string, attrs ...Attribute) *Builder {
	b.methods = append(b.methods, member{access: access, name: name, desc: desc, attrs: attrs})
	return b
}

// Attribute adds a class-level attribute.
func (b *Builder) Attribute(a Attribute) *Builder {
	b.attrs = append(b.attrs, a)
	return b
}

// ConstantValue builds a field ConstantValue attribute pointing at idx.
func (b *Builder) ConstantValue(idx uint16) Attribute {
	return Attribute{Name: classfile.AttrConstantValue, Data: U2(idx)}
}

// Exceptions builds a method Exceptions attribute.
func (b *Builder) Exceptions(names ...string) Attribute {
	data := U2(uint16(len(names)))
	for _, n := range names {
		data = append(data, U2(b.Class(n))...)
	}
	return Attribute{Name: classfile.AttrExceptions, Data: data}
}

// SourceFile builds a class SourceFile attribute.
func (b *Builder) SourceFile(name string) Attribute {
	return Attribute{Name: classfile.AttrSourceFile, Data: U2(b.Utf8(name))}
}

// LocalVar describes one LocalVariableTable row.
type LocalVar struct {
	Start, Length uint16
	Name, Desc    string
	Slot          uint16
}

type codeSpec struct {
	handlers []classfile.ExceptionHandler
	attrs    []Attribute
}

// CodeOption configures a Code attribute.
type CodeOption func(b *Builder, c *codeSpec)

// Handler adds an exception table entry; catchType 0 catches everything.
func Handler(start, end, handler, catchType uint16) CodeOption {
	return func(_ *Builder, c *codeSpec) {
		c.handlers = append(c.handlers, classfile.ExceptionHandler{
			StartPC: start, EndPC: end, HandlerPC: handler, CatchType: catchType,
		})
	}
}

// LineNumbers adds a LineNumberTable from (start_pc, line) pairs.
func LineNumbers(pairs ...uint16) CodeOption {
	return func(_ *Builder, c *codeSpec) {
		data := U2(uint16(len(pairs) / 2))
		for _, v := range pairs {
			data = append(data, U2(v)...)
		}
		c.attrs = append(c.attrs, Attribute{Name: classfile.AttrLineNumberTable, Data: data})
	}
}

// LocalVariables adds a LocalVariableTable.
func LocalVariables(vars ...LocalVar) CodeOption {
	return func(b *Builder, c *codeSpec) {
		data := U2(uint16(len(vars)))
		for _, v := range vars {
			data = append(data, U2(v.Start)...)
			data = append(data, U2(v.Length)...)
			data = append(data, U2(b.Utf8(v.Name))...)
			data = append(data, U2(b.Utf8(v.Desc))...)
			data = append(data, U2(v.Slot)...)
		}
		c.attrs = append(c.attrs, Attribute{Name: classfile.AttrLocalVariableTable, Data: data})
	}
}

// Code builds a Code attribute.
func (b *Builder) Code(maxStack, maxLocals uint16, code []byte, opts ...CodeOption) Attribute {
	spec := &codeSpec{}
	for _, opt := range opts {
		opt(b, spec)
	}
	var buf bytes.Buffer
	buf.Write(U2(maxStack))
	buf.Write(U2(maxLocals))
	buf.Write(U4(int32(len(code))))
	buf.Write(code)
	buf.Write(U2(uint16(len(spec.handlers))))
	for _, h := range spec.handlers {
		_ = binary.Write(&buf, binary.BigEndian, h)
	}
	b.writeAttributes(&buf, spec.attrs)
	return Attribute{Name: classfile.AttrCode, Data: buf.Bytes()}
}

func (b *Builder) writeAttributes(buf *bytes.Buffer, attrs []Attribute) {
	buf.Write(U2(uint16(len(attrs))))
	for _, a := range attrs {
		buf.Write(U2(b.Utf8(a.Name)))
		buf.Write(U4(int32(len(a.Data))))
		buf.Write(a.Data)
	}
}

func (b *Builder) writeMembers(buf *bytes.Buffer, members []member) {
	buf.Write(U2(uint16(len(members))))
	for _, m := range members {
		buf.Write(U2(m.access))
		buf.Write(U2(b.Utf8(m.name)))
		buf.Write(U2(b.Utf8(m.desc)))
		b.writeAttributes(buf, m.attrs)
	}
}

// Bytes assembles the class file.
func (b *Builder) Bytes() []byte {
	// Members go first so that every name they intern is in the pool.
	var body bytes.Buffer
	body.Write(U2(b.Access))
	body.Write(U2(b.this))
	body.Write(U2(b.super))
	body.Write(U2(uint16(len(b.interfaces))))
	for _, i := range b.interfaces {
		body.Write(U2(i))
	}
	b.writeMembers(&body, b.fields)
	b.writeMembers(&body, b.methods)
	b.writeAttributes(&body, b.attrs)

	var out bytes.Buffer
	out.Write([]byte{0xCA, 0xFE, 0xBA, 0xBE})
	out.Write(U2(b.Minor))
	out.Write(U2(b.Major))
	out.Write(U2(b.next))
	for _, e := range b.pool {
		out.Write(e)
	}
	out.Write(body.Bytes())
	return out.Bytes()
}

// U2 encodes a big-endian u2.
func U2(v uint16) []byte { return []byte{byte(v >> 8), byte(v)} }

// U4 encodes a big-endian u4.
func U4(v int32) []byte {
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func u8(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

// Asm concatenates opcodes and operands: byte and int values are emitted as
// single bytes, []byte values verbatim.
func Asm(parts ...interface{}) []byte {
	var out []byte
	for _, p := range parts {
		switch v := p.(type) {
		case byte:
			out = append(out, v)
		case int:
			out = append(out, byte(v))
		case []byte:
			out = append(out, v...)
		default:
			panic(fmt.Sprintf("classfiletest.Asm: unsupported part %T", p))
		}
	}
	return out
}
