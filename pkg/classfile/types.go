package classfile

// Access flags
const (
	AccPublic       = 0x0001
	AccPrivate      = 0x0002
	AccProtected    = 0x0004
	AccStatic       = 0x0008
	AccFinal        = 0x0010
	AccSuper        = 0x0020
	AccSynchronized = 0x0020
	AccVolatile     = 0x0040
	AccBridge       = 0x0040
	AccTransient    = 0x0080
	AccVarargs      = 0x0080
	AccNative       = 0x0100
	AccInterface    = 0x0200
	AccAbstract     = 0x0400
	AccStrict       = 0x0800
	AccSynthetic    = 0x1000
	AccAnnotation   = 0x2000
	AccEnum         = 0x4000
)

// Special names.
const (
	InitName       = "<init>"
	ClinitName     = "<clinit>"
	ObjectClass    = "java/lang/Object"
	ThrowableClass = "java/lang/Throwable"
)

// Attribute names the verifier looks at.
const (
	AttrCode               = "Code"
	AttrConstantValue      = "ConstantValue"
	AttrExceptions         = "Exceptions"
	AttrLineNumberTable    = "LineNumberTable"
	AttrLocalVariableTable = "LocalVariableTable"
	AttrSourceFile         = "SourceFile"
	AttrBootstrapMethods   = "BootstrapMethods"
)

// ClassFile represents a parsed .class file.
type ClassFile struct {
	MinorVersion     uint16
	MajorVersion     uint16
	ConstantPool     []ConstantPoolEntry
	AccessFlags      uint16
	ThisClass        uint16
	SuperClass       uint16
	Interfaces       []uint16
	Fields           []FieldInfo
	Methods          []MethodInfo
	Attributes       []AttributeInfo
	BootstrapMethods []BootstrapMethod
}

// SuperClassName returns the fully qualified name of the super class.
// Returns "" if this is java/lang/Object (SuperClass == 0).
func (cf *ClassFile) SuperClassName() string {
	if cf.SuperClass == 0 {
		return ""
	}
	name, err := GetClassName(cf.ConstantPool, cf.SuperClass)
	if err != nil {
		return ""
	}
	return name
}

// InterfaceNames resolves the names of the directly implemented interfaces.
func (cf *ClassFile) InterfaceNames() ([]string, error) {
	names := make([]string, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		name, err := GetClassName(cf.ConstantPool, idx)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (cf *ClassFile) IsInterface() bool { return cf.AccessFlags&AccInterface != 0 }
func (cf *ClassFile) IsFinal() bool     { return cf.AccessFlags&AccFinal != 0 }
func (cf *ClassFile) IsAbstract() bool  { return cf.AccessFlags&AccAbstract != 0 }

// BootstrapMethod is one entry of the BootstrapMethods attribute.
type BootstrapMethod struct {
	MethodRef          uint16
	BootstrapArguments []uint16
}

// MethodInfo represents a method in a class file.
type MethodInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []AttributeInfo
	Code            *CodeAttribute
}

func (m *MethodInfo) IsStatic() bool    { return m.AccessFlags&AccStatic != 0 }
func (m *MethodInfo) IsFinal() bool     { return m.AccessFlags&AccFinal != 0 }
func (m *MethodInfo) IsPrivate() bool   { return m.AccessFlags&AccPrivate != 0 }
func (m *MethodInfo) IsPublic() bool    { return m.AccessFlags&AccPublic != 0 }
func (m *MethodInfo) IsProtected() bool { return m.AccessFlags&AccProtected != 0 }
func (m *MethodInfo) IsAbstract() bool  { return m.AccessFlags&AccAbstract != 0 }
func (m *MethodInfo) IsNative() bool    { return m.AccessFlags&AccNative != 0 }
func (m *MethodInfo) IsVarargs() bool   { return m.AccessFlags&AccVarargs != 0 }

// String returns name followed by descriptor, e.g. "add(II)I".
func (m *MethodInfo) String() string { return m.Name + m.Descriptor }

// CodeAttributeCount counts the Code attributes attached to the method.
func (m *MethodInfo) CodeAttributeCount() int {
	return countAttributes(m.Attributes, AttrCode)
}

// ExceptionIndices returns the class indices listed by all Exceptions attributes.
func (m *MethodInfo) ExceptionIndices() ([]uint16, error) {
	var out []uint16
	for _, attr := range m.Attributes {
		if attr.Name != AttrExceptions {
			continue
		}
		idx, err := parseU16List(attr.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, idx...)
	}
	return out, nil
}

// FieldInfo represents a field in a class file.
type FieldInfo struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Name            string
	Descriptor      string
	Attributes      []AttributeInfo
}

func (f *FieldInfo) IsStatic() bool    { return f.AccessFlags&AccStatic != 0 }
func (f *FieldInfo) IsFinal() bool     { return f.AccessFlags&AccFinal != 0 }
func (f *FieldInfo) IsPrivate() bool   { return f.AccessFlags&AccPrivate != 0 }
func (f *FieldInfo) IsPublic() bool    { return f.AccessFlags&AccPublic != 0 }
func (f *FieldInfo) IsProtected() bool { return f.AccessFlags&AccProtected != 0 }

// ConstantValueIndices returns the constant pool index of every ConstantValue
// attribute on the field. A well-formed field has at most one.
func (f *FieldInfo) ConstantValueIndices() ([]uint16, error) {
	var out []uint16
	for _, attr := range f.Attributes {
		if attr.Name != AttrConstantValue {
			continue
		}
		if len(attr.Data) != 2 {
			return nil, &FormatError{Msg: "ConstantValue attribute of field " + f.Name + " must be 2 bytes long"}
		}
		out = append(out, uint16(attr.Data[0])<<8|uint16(attr.Data[1]))
	}
	return out, nil
}

// AttributeInfo represents a raw attribute.
type AttributeInfo struct {
	NameIndex uint16
	Name      string
	Data      []byte
}

// ExceptionHandler represents an entry in the exception table.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// LineNumber is one LineNumberTable entry.
type LineNumber struct {
	StartPC    uint16
	LineNumber uint16
}

// LocalVariable is one LocalVariableTable entry. Names and descriptors are
// kept as indices; they are validated by the verifier, not the parser.
type LocalVariable struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// CodeAttribute represents the Code attribute of a method.
type CodeAttribute struct {
	MaxStack          uint16
	MaxLocals         uint16
	Code              []byte
	ExceptionHandlers []ExceptionHandler
	Attributes        []AttributeInfo
	LineNumbers       []LineNumber
	LocalVariables    []LocalVariable
}

func countAttributes(attrs []AttributeInfo, name string) int {
	n := 0
	for _, attr := range attrs {
		if attr.Name == name {
			n++
		}
	}
	return n
}
