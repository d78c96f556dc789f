package classfile

import (
	"fmt"
	"strings"
)

// MaxArrayDimensions is the deepest array type a descriptor may denote.
const MaxArrayDimensions = 255

// Kind classifies a descriptor type.
type Kind uint8

const (
	KindByte Kind = iota + 1
	KindChar
	KindDouble
	KindFloat
	KindInt
	KindLong
	KindShort
	KindBoolean
	KindVoid
	KindObject
	KindArray
)

var primitiveKinds = map[byte]Kind{
	'B': KindByte,
	'C': KindChar,
	'D': KindDouble,
	'F': KindFloat,
	'I': KindInt,
	'J': KindLong,
	'S': KindShort,
	'Z': KindBoolean,
}

// Type is a parsed field type (or void, for method returns).
type Type struct {
	Kind Kind
	// Class is the internal class name for KindObject.
	Class string
	// Elem is the component type for KindArray.
	Elem *Type
}

// Size returns the number of local variable slots the type occupies.
func (t Type) Size() int {
	switch t.Kind {
	case KindVoid:
		return 0
	case KindLong, KindDouble:
		return 2
	default:
		return 1
	}
}

// IsReference reports whether values of the type are object or array references.
func (t Type) IsReference() bool {
	return t.Kind == KindObject || t.Kind == KindArray
}

// IsIntLike reports whether the type is carried as an int on the operand stack.
func (t Type) IsIntLike() bool {
	switch t.Kind {
	case KindByte, KindChar, KindInt, KindShort, KindBoolean:
		return true
	}
	return false
}

// Dimensions returns the array nesting depth, 0 for non-arrays.
func (t Type) Dimensions() int {
	n := 0
	for cur := &t; cur.Kind == KindArray; cur = cur.Elem {
		n++
	}
	return n
}

// Element returns the innermost non-array component type.
func (t Type) Element() Type {
	cur := t
	for cur.Kind == KindArray {
		cur = *cur.Elem
	}
	return cur
}

// Descriptor renders the type back into descriptor syntax.
func (t Type) Descriptor() string {
	switch t.Kind {
	case KindObject:
		return "L" + t.Class + ";"
	case KindArray:
		return "[" + t.Elem.Descriptor()
	case KindVoid:
		return "V"
	}
	for c, k := range primitiveKinds {
		if k == t.Kind {
			return string(c)
		}
	}
	return "?"
}

func (t Type) String() string { return t.Descriptor() }

// MethodDescriptor is a parsed method descriptor.
type MethodDescriptor struct {
	Params []Type
	Return Type
}

// ArgumentSlots counts the local variable slots taken by the parameters,
// not including the receiver.
func (d *MethodDescriptor) ArgumentSlots() int {
	n := 0
	for _, p := range d.Params {
		n += p.Size()
	}
	return n
}

// ParseFieldType parses a complete field descriptor such as "[Ljava/lang/String;".
func ParseFieldType(desc string) (Type, error) {
	t, n, err := parseFieldType(desc, 0)
	if err != nil {
		return Type{}, err
	}
	if n != len(desc) {
		return Type{}, fmt.Errorf("invalid field descriptor %q: trailing characters", desc)
	}
	return t, nil
}

// ParseMethodDescriptor parses a descriptor such as "(IJ)V".
func ParseMethodDescriptor(desc string) (*MethodDescriptor, error) {
	if !strings.HasPrefix(desc, "(") {
		return nil, fmt.Errorf("invalid method descriptor %q: missing '('", desc)
	}
	md := &MethodDescriptor{}
	pos := 1
	for pos < len(desc) && desc[pos] != ')' {
		t, n, err := parseFieldType(desc, pos)
		if err != nil {
			return nil, fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		md.Params = append(md.Params, t)
		pos = n
	}
	if pos >= len(desc) {
		return nil, fmt.Errorf("invalid method descriptor %q: missing ')'", desc)
	}
	pos++
	if pos < len(desc) && desc[pos] == 'V' {
		if pos+1 != len(desc) {
			return nil, fmt.Errorf("invalid method descriptor %q: trailing characters", desc)
		}
		md.Return = Type{Kind: KindVoid}
	} else {
		t, n, err := parseFieldType(desc, pos)
		if err != nil {
			return nil, fmt.Errorf("invalid method descriptor %q: %w", desc, err)
		}
		if n != len(desc) {
			return nil, fmt.Errorf("invalid method descriptor %q: trailing characters", desc)
		}
		md.Return = t
	}
	if md.ArgumentSlots() > 255 {
		return nil, fmt.Errorf("invalid method descriptor %q: more than 255 parameter slots", desc)
	}
	return md, nil
}

func parseFieldType(s string, pos int) (Type, int, error) {
	if pos >= len(s) {
		return Type{}, pos, fmt.Errorf("unexpected end of descriptor")
	}
	c := s[pos]
	if k, ok := primitiveKinds[c]; ok {
		return Type{Kind: k}, pos + 1, nil
	}
	switch c {
	case 'L':
		end := strings.IndexByte(s[pos:], ';')
		if end < 0 {
			return Type{}, pos, fmt.Errorf("unterminated class type at offset %d", pos)
		}
		name := s[pos+1 : pos+end]
		if !validBinaryName(name) {
			return Type{}, pos, fmt.Errorf("invalid class name %q", name)
		}
		return Type{Kind: KindObject, Class: name}, pos + end + 1, nil
	case '[':
		dims := 0
		for pos < len(s) && s[pos] == '[' {
			dims++
			pos++
		}
		if dims > MaxArrayDimensions {
			return Type{}, pos, fmt.Errorf("array type with %d dimensions exceeds %d", dims, MaxArrayDimensions)
		}
		elem, n, err := parseFieldType(s, pos)
		if err != nil {
			return Type{}, n, err
		}
		t := elem
		for i := 0; i < dims; i++ {
			inner := t
			t = Type{Kind: KindArray, Elem: &inner}
		}
		return t, n, nil
	}
	return Type{}, pos, fmt.Errorf("unexpected character %q at offset %d", c, pos)
}

// ClassNameType converts a CONSTANT_Class name into a type: array names are
// descriptors, everything else is an object type.
func ClassNameType(name string) (Type, error) {
	if strings.HasPrefix(name, "[") {
		t, err := ParseFieldType(name)
		if err != nil {
			return Type{}, err
		}
		return t, nil
	}
	if !validBinaryName(name) {
		return Type{}, fmt.Errorf("invalid class name %q", name)
	}
	return Type{Kind: KindObject, Class: name}, nil
}

// ValidClassName reports whether name is a legal CONSTANT_Class name.
func ValidClassName(name string) bool {
	_, err := ClassNameType(name)
	return err == nil
}

// ValidFieldName reports whether name is a legal unqualified field name.
func ValidFieldName(name string) bool {
	return name != "" && !strings.ContainsAny(name, ".;[/")
}

// ValidMethodName reports whether name is a legal method name, including the
// two special initializer names.
func ValidMethodName(name string) bool {
	if name == InitName || name == ClinitName {
		return true
	}
	return name != "" && !strings.ContainsAny(name, ".;[/<>")
}

func validBinaryName(name string) bool {
	if name == "" {
		return false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == "" || strings.ContainsAny(seg, ".;[") {
			return false
		}
	}
	return true
}
