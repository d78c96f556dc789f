package classfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const classMagic = 0xCAFEBABE

// FormatError reports a byte sequence that does not follow the class-file
// layout. Callers use it to tell "unparseable" apart from I/O failures.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return "class format error: " + e.Msg
	}
	if e.Msg == "" {
		return "class format error: " + e.Err.Error()
	}
	return "class format error: " + e.Msg + ": " + e.Err.Error()
}

func (e *FormatError) Unwrap() error { return e.Err }

// ParseFile reads and parses a .class file from the given path.
func ParseFile(path string) (*ClassFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseBytes(data)
}

// ParseBytes parses an in-memory class file.
func ParseBytes(data []byte) (*ClassFile, error) {
	return Parse(bytes.NewReader(data))
}

// Parse reads a .class file from the given reader and returns a ClassFile.
// Malformed or truncated input is reported as a *FormatError; any other
// failure of r is returned as is.
func Parse(r io.Reader) (*ClassFile, error) {
	src := newSource(r)
	cf, err := parse(src)
	if src.err != nil {
		return nil, fmt.Errorf("reading class file: %w", src.err)
	}
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	return cf, nil
}

// source records the first read failure of the underlying reader other
// than running out of input.
type source struct {
	r   io.Reader
	br  *bytes.Reader
	err error
}

func newSource(r io.Reader) *source {
	s := &source{r: r}
	s.br, _ = r.(*bytes.Reader)
	return s
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF && s.err == nil {
		s.err = err
	}
	return n, err
}

// Len returns the number of unread bytes, or -1 when it is unknown.
func (s *source) Len() int {
	if s.br == nil {
		return -1
	}
	return s.br.Len()
}

// preallocLimit bounds the buffer readBytes allocates up front.
const preallocLimit = 64 << 10

// readBytes reads exactly n bytes. A length beyond what r holds fails
// without allocating it, and longer reads grow with the data received.
func readBytes(r io.Reader, n uint32) ([]byte, error) {
	if l, ok := r.(interface{ Len() int }); ok && l.Len() >= 0 && int64(n) > int64(l.Len()) {
		return nil, fmt.Errorf("length %d exceeds the %d remaining bytes: %w", n, l.Len(), io.ErrUnexpectedEOF)
	}
	if n <= preallocLimit {
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		return buf, nil
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func parse(r io.Reader) (*ClassFile, error) {
	cf := &ClassFile{}

	// Magic number
	var magic uint32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return nil, fmt.Errorf("reading magic number: %w", err)
	}
	if magic != classMagic {
		return nil, fmt.Errorf("invalid magic number: 0x%X (expected 0xCAFEBABE)", magic)
	}

	// Version
	if err := binary.Read(r, binary.BigEndian, &cf.MinorVersion); err != nil {
		return nil, fmt.Errorf("reading minor version: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.MajorVersion); err != nil {
		return nil, fmt.Errorf("reading major version: %w", err)
	}

	// Constant pool
	var cpCount uint16
	if err := binary.Read(r, binary.BigEndian, &cpCount); err != nil {
		return nil, fmt.Errorf("reading constant pool count: %w", err)
	}
	if cpCount == 0 {
		return nil, fmt.Errorf("constant pool count must be at least 1")
	}
	pool, err := parseConstantPool(r, cpCount)
	if err != nil {
		return nil, fmt.Errorf("parsing constant pool: %w", err)
	}
	cf.ConstantPool = pool

	// Access flags, this_class, super_class
	if err := binary.Read(r, binary.BigEndian, &cf.AccessFlags); err != nil {
		return nil, fmt.Errorf("reading access flags: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.ThisClass); err != nil {
		return nil, fmt.Errorf("reading this_class: %w", err)
	}
	if err := binary.Read(r, binary.BigEndian, &cf.SuperClass); err != nil {
		return nil, fmt.Errorf("reading super_class: %w", err)
	}

	// Interfaces
	var interfacesCount uint16
	if err := binary.Read(r, binary.BigEndian, &interfacesCount); err != nil {
		return nil, fmt.Errorf("reading interfaces count: %w", err)
	}
	cf.Interfaces = make([]uint16, interfacesCount)
	for i := uint16(0); i < interfacesCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &cf.Interfaces[i]); err != nil {
			return nil, fmt.Errorf("reading interface %d: %w", i, err)
		}
	}

	// Fields
	var fieldsCount uint16
	if err := binary.Read(r, binary.BigEndian, &fieldsCount); err != nil {
		return nil, fmt.Errorf("reading fields count: %w", err)
	}
	cf.Fields, err = parseFields(r, cf.ConstantPool, fieldsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing fields: %w", err)
	}

	// Methods
	var methodsCount uint16
	if err := binary.Read(r, binary.BigEndian, &methodsCount); err != nil {
		return nil, fmt.Errorf("reading methods count: %w", err)
	}
	cf.Methods, err = parseMethods(r, cf.ConstantPool, methodsCount)
	if err != nil {
		return nil, fmt.Errorf("parsing methods: %w", err)
	}

	// Class-level attributes
	if err := cf.parseClassAttributes(r); err != nil {
		return nil, fmt.Errorf("parsing class attributes: %w", err)
	}

	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("extra bytes after the last class attribute")
	}

	return cf, nil
}

// memberHeader is the layout shared by field_info and method_info.
type memberHeader struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	AttributesCount uint16
}

func readMember(r io.Reader, pool []ConstantPoolEntry, kind string, i uint16) (memberHeader, string, string, []AttributeInfo, error) {
	var h memberHeader
	if err := binary.Read(r, binary.BigEndian, &h); err != nil {
		return h, "", "", nil, fmt.Errorf("reading %s %d header: %w", kind, i, err)
	}
	name, err := GetUtf8(pool, h.NameIndex)
	if err != nil {
		return h, "", "", nil, fmt.Errorf("resolving %s %d name: %w", kind, i, err)
	}
	desc, err := GetUtf8(pool, h.DescriptorIndex)
	if err != nil {
		return h, "", "", nil, fmt.Errorf("resolving %s %d descriptor: %w", kind, i, err)
	}
	attrs, err := parseAttributeInfos(r, pool, h.AttributesCount)
	if err != nil {
		return h, "", "", nil, fmt.Errorf("parsing %s %d attributes: %w", kind, i, err)
	}
	return h, name, desc, attrs, nil
}

func parseFields(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]FieldInfo, error) {
	fields := make([]FieldInfo, count)
	for i := uint16(0); i < count; i++ {
		h, name, desc, attrs, err := readMember(r, pool, "field", i)
		if err != nil {
			return nil, err
		}
		fields[i] = FieldInfo{
			AccessFlags:     h.AccessFlags,
			NameIndex:       h.NameIndex,
			DescriptorIndex: h.DescriptorIndex,
			Name:            name,
			Descriptor:      desc,
			Attributes:      attrs,
		}
	}
	return fields, nil
}

func parseMethods(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]MethodInfo, error) {
	methods := make([]MethodInfo, count)
	for i := uint16(0); i < count; i++ {
		h, name, desc, attrs, err := readMember(r, pool, "method", i)
		if err != nil {
			return nil, err
		}

		m := MethodInfo{
			AccessFlags:     h.AccessFlags,
			NameIndex:       h.NameIndex,
			DescriptorIndex: h.DescriptorIndex,
			Name:            name,
			Descriptor:      desc,
			Attributes:      attrs,
		}

		// Decode the first Code attribute; duplicates are left for the verifier to count.
		for _, attr := range attrs {
			if attr.Name == AttrCode {
				code, err := parseCodeAttribute(attr.Data, pool)
				if err != nil {
					return nil, fmt.Errorf("parsing Code attribute for method %s: %w", name, err)
				}
				m.Code = code
				break
			}
		}

		methods[i] = m
	}
	return methods, nil
}

func parseAttributeInfos(r io.Reader, pool []ConstantPoolEntry, count uint16) ([]AttributeInfo, error) {
	attrs := make([]AttributeInfo, count)
	for i := uint16(0); i < count; i++ {
		var nameIndex uint16
		if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
			return nil, fmt.Errorf("reading attribute %d name index: %w", i, err)
		}
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return nil, fmt.Errorf("reading attribute %d length: %w", i, err)
		}
		data, err := readBytes(r, length)
		if err != nil {
			return nil, fmt.Errorf("reading attribute %d data: %w", i, err)
		}

		name, err := GetUtf8(pool, nameIndex)
		if err != nil {
			return nil, fmt.Errorf("resolving attribute %d name: %w", i, err)
		}

		attrs[i] = AttributeInfo{NameIndex: nameIndex, Name: name, Data: data}
	}
	return attrs, nil
}

func parseCodeAttribute(data []byte, pool []ConstantPoolEntry) (*CodeAttribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("Code attribute too short: %d bytes", len(data))
	}

	maxStack := binary.BigEndian.Uint16(data[0:2])
	maxLocals := binary.BigEndian.Uint16(data[2:4])
	codeLength := binary.BigEndian.Uint32(data[4:8])

	if uint64(len(data)) < 8+uint64(codeLength) {
		return nil, fmt.Errorf("Code attribute data too short for code_length %d", codeLength)
	}

	code := make([]byte, codeLength)
	copy(code, data[8:8+codeLength])

	r := bytes.NewReader(data[8+codeLength:])

	// Exception table
	var exTableLen uint16
	if err := binary.Read(r, binary.BigEndian, &exTableLen); err != nil {
		return nil, fmt.Errorf("reading exception table length: %w", err)
	}
	handlers := make([]ExceptionHandler, exTableLen)
	if err := binary.Read(r, binary.BigEndian, handlers); err != nil {
		return nil, fmt.Errorf("reading exception table: %w", err)
	}

	var attrCount uint16
	if err := binary.Read(r, binary.BigEndian, &attrCount); err != nil {
		return nil, fmt.Errorf("reading Code attributes count: %w", err)
	}
	attrs, err := parseAttributeInfos(r, pool, attrCount)
	if err != nil {
		return nil, fmt.Errorf("parsing Code attributes: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("Code attribute has %d trailing bytes", r.Len())
	}

	ca := &CodeAttribute{
		MaxStack:          maxStack,
		MaxLocals:         maxLocals,
		Code:              code,
		ExceptionHandlers: handlers,
		Attributes:        attrs,
	}

	for _, attr := range attrs {
		switch attr.Name {
		case AttrLineNumberTable:
			lines, err := parseLineNumbers(attr.Data)
			if err != nil {
				return nil, err
			}
			ca.LineNumbers = append(ca.LineNumbers, lines...)
		case AttrLocalVariableTable:
			vars, err := parseLocalVariables(attr.Data)
			if err != nil {
				return nil, err
			}
			ca.LocalVariables = append(ca.LocalVariables, vars...)
		}
	}

	return ca, nil
}

func parseLineNumbers(data []byte) ([]LineNumber, error) {
	r := bytes.NewReader(data)
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading LineNumberTable length: %w", err)
	}
	lines := make([]LineNumber, n)
	if err := binary.Read(r, binary.BigEndian, lines); err != nil {
		return nil, fmt.Errorf("reading LineNumberTable: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("LineNumberTable has %d trailing bytes", r.Len())
	}
	return lines, nil
}

func parseLocalVariables(data []byte) ([]LocalVariable, error) {
	r := bytes.NewReader(data)
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading LocalVariableTable length: %w", err)
	}
	vars := make([]LocalVariable, n)
	if err := binary.Read(r, binary.BigEndian, vars); err != nil {
		return nil, fmt.Errorf("reading LocalVariableTable: %w", err)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("LocalVariableTable has %d trailing bytes", r.Len())
	}
	return vars, nil
}

// parseU16List decodes a u2 count followed by that many u2 values.
func parseU16List(data []byte) ([]uint16, error) {
	r := bytes.NewReader(data)
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, &FormatError{Msg: "reading index list length", Err: err}
	}
	out := make([]uint16, n)
	if err := binary.Read(r, binary.BigEndian, out); err != nil {
		return nil, &FormatError{Msg: "reading index list", Err: err}
	}
	return out, nil
}

func (cf *ClassFile) parseClassAttributes(r io.Reader) error {
	var count uint16
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return err
	}
	attrs, err := parseAttributeInfos(r, cf.ConstantPool, count)
	if err != nil {
		return err
	}
	cf.Attributes = attrs
	for _, attr := range attrs {
		if attr.Name == AttrBootstrapMethods {
			cf.BootstrapMethods, err = parseBootstrapMethods(attr.Data)
			if err != nil {
				return fmt.Errorf("parsing BootstrapMethods: %w", err)
			}
		}
	}
	return nil
}

func parseBootstrapMethods(data []byte) ([]BootstrapMethod, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("BootstrapMethods data too short")
	}
	numMethods := binary.BigEndian.Uint16(data[0:2])
	offset := 2
	methods := make([]BootstrapMethod, numMethods)
	for i := uint16(0); i < numMethods; i++ {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("BootstrapMethods truncated at method %d", i)
		}
		methodRef := binary.BigEndian.Uint16(data[offset : offset+2])
		numArgs := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		offset += 4
		args := make([]uint16, numArgs)
		for j := uint16(0); j < numArgs; j++ {
			if offset+2 > len(data) {
				return nil, fmt.Errorf("BootstrapMethods truncated at arg %d of method %d", j, i)
			}
			args[j] = binary.BigEndian.Uint16(data[offset : offset+2])
			offset += 2
		}
		methods[i] = BootstrapMethod{MethodRef: methodRef, BootstrapArguments: args}
	}
	return methods, nil
}

// SourceFileIndices returns the Utf8 index named by every SourceFile attribute.
func (cf *ClassFile) SourceFileIndices() ([]uint16, error) {
	var out []uint16
	for _, attr := range cf.Attributes {
		if attr.Name != AttrSourceFile {
			continue
		}
		if len(attr.Data) != 2 {
			return nil, &FormatError{Msg: "SourceFile attribute must be 2 bytes long"}
		}
		out = append(out, binary.BigEndian.Uint16(attr.Data))
	}
	return out, nil
}

// ClassName returns the fully qualified name of this class.
func (cf *ClassFile) ClassName() (string, error) {
	return GetClassName(cf.ConstantPool, cf.ThisClass)
}

// FindMethod finds a method by name and descriptor.
func (cf *ClassFile) FindMethod(name, descriptor string) *MethodInfo {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == descriptor {
			return &cf.Methods[i]
		}
	}
	return nil
}

// FindField finds a field by name and descriptor.
func (cf *ClassFile) FindField(name, descriptor string) *FieldInfo {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name && cf.Fields[i].Descriptor == descriptor {
			return &cf.Fields[i]
		}
	}
	return nil
}

// MethodIndex returns the position of m within cf.Methods, or -1 when m does
// not point into the slice.
func (cf *ClassFile) MethodIndex(m *MethodInfo) int {
	for i := range cf.Methods {
		if &cf.Methods[i] == m {
			return i
		}
	}
	return -1
}
