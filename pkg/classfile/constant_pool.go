package classfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Constant pool tags
const (
	TagUtf8               = 1
	TagInteger            = 3
	TagFloat              = 4
	TagLong               = 5
	TagDouble             = 6
	TagClass              = 7
	TagString             = 8
	TagFieldref           = 9
	TagMethodref          = 10
	TagInterfaceMethodref = 11
	TagNameAndType        = 12
	TagMethodHandle       = 15
	TagMethodType         = 16
	TagDynamic            = 17
	TagInvokeDynamic      = 18
	TagModule             = 19
	TagPackage            = 20
)

var tagNames = map[uint8]string{
	TagUtf8:               "CONSTANT_Utf8",
	TagInteger:            "CONSTANT_Integer",
	TagFloat:              "CONSTANT_Float",
	TagLong:               "CONSTANT_Long",
	TagDouble:             "CONSTANT_Double",
	TagClass:              "CONSTANT_Class",
	TagString:             "CONSTANT_String",
	TagFieldref:           "CONSTANT_Fieldref",
	TagMethodref:          "CONSTANT_Methodref",
	TagInterfaceMethodref: "CONSTANT_InterfaceMethodref",
	TagNameAndType:        "CONSTANT_NameAndType",
	TagMethodHandle:       "CONSTANT_MethodHandle",
	TagMethodType:         "CONSTANT_MethodType",
	TagDynamic:            "CONSTANT_Dynamic",
	TagInvokeDynamic:      "CONSTANT_InvokeDynamic",
	TagModule:             "CONSTANT_Module",
	TagPackage:            "CONSTANT_Package",
}

// TagName returns the JVMS name of a constant pool tag.
func TagName(tag uint8) string {
	if name, ok := tagNames[tag]; ok {
		return name
	}
	return fmt.Sprintf("CONSTANT_Unknown(%d)", tag)
}

// Method handle reference kinds.
const (
	RefGetField         = 1
	RefGetStatic        = 2
	RefPutField         = 3
	RefPutStatic        = 4
	RefInvokeVirtual    = 5
	RefInvokeStatic     = 6
	RefInvokeSpecial    = 7
	RefNewInvokeSpecial = 8
	RefInvokeInterface  = 9
)

// parseConstantPool reads constant_pool_count-1 entries from the reader.
// The returned slice is 1-indexed: index 0 is nil, and so is the slot
// following every Long or Double entry.
func parseConstantPool(r io.Reader, count uint16) ([]ConstantPoolEntry, error) {
	pool := make([]ConstantPoolEntry, count)

	for i := uint16(1); i < count; i++ {
		var tag uint8
		if err := binary.Read(r, binary.BigEndian, &tag); err != nil {
			return nil, fmt.Errorf("reading constant pool tag at index %d: %w", i, err)
		}

		switch tag {
		case TagUtf8:
			var length uint16
			if err := binary.Read(r, binary.BigEndian, &length); err != nil {
				return nil, fmt.Errorf("reading Utf8 length at index %d: %w", i, err)
			}
			data, err := readBytes(r, uint32(length))
			if err != nil {
				return nil, fmt.Errorf("reading Utf8 bytes at index %d: %w", i, err)
			}
			pool[i] = &ConstantUtf8{Value: string(data)}

		case TagInteger:
			var val int32
			if err := binary.Read(r, binary.BigEndian, &val); err != nil {
				return nil, fmt.Errorf("reading Integer at index %d: %w", i, err)
			}
			pool[i] = &ConstantInteger{Value: val}

		case TagFloat:
			var bits uint32
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading Float at index %d: %w", i, err)
			}
			pool[i] = &ConstantFloat{Value: math.Float32frombits(bits)}

		case TagLong, TagDouble:
			if i+1 >= count {
				return nil, fmt.Errorf("%s at index %d occupies a slot past the end of the pool", TagName(tag), i)
			}
			var bits uint64
			if err := binary.Read(r, binary.BigEndian, &bits); err != nil {
				return nil, fmt.Errorf("reading %s at index %d: %w", TagName(tag), i, err)
			}
			if tag == TagLong {
				pool[i] = &ConstantLong{Value: int64(bits)}
			} else {
				pool[i] = &ConstantDouble{Value: math.Float64frombits(bits)}
			}
			i++ // long and double take 2 slots

		case TagClass:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading Class at index %d: %w", i, err)
			}
			pool[i] = &ConstantClass{NameIndex: nameIndex}

		case TagString:
			var stringIndex uint16
			if err := binary.Read(r, binary.BigEndian, &stringIndex); err != nil {
				return nil, fmt.Errorf("reading String at index %d: %w", i, err)
			}
			pool[i] = &ConstantString{StringIndex: stringIndex}

		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			var classIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &classIndex); err != nil {
				return nil, fmt.Errorf("reading %s class_index at index %d: %w", TagName(tag), i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading %s name_and_type_index at index %d: %w", TagName(tag), i, err)
			}
			switch tag {
			case TagFieldref:
				pool[i] = &ConstantFieldref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			case TagMethodref:
				pool[i] = &ConstantMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			default:
				pool[i] = &ConstantInterfaceMethodref{ClassIndex: classIndex, NameAndTypeIndex: natIndex}
			}

		case TagNameAndType:
			var nameIndex, descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType name_index at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading NameAndType descriptor_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantNameAndType{NameIndex: nameIndex, DescriptorIndex: descIndex}

		case TagMethodHandle:
			var kind uint8
			var refIndex uint16
			if err := binary.Read(r, binary.BigEndian, &kind); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference_kind at index %d: %w", i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &refIndex); err != nil {
				return nil, fmt.Errorf("reading MethodHandle reference_index at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodHandle{ReferenceKind: kind, ReferenceIndex: refIndex}

		case TagMethodType:
			var descIndex uint16
			if err := binary.Read(r, binary.BigEndian, &descIndex); err != nil {
				return nil, fmt.Errorf("reading MethodType at index %d: %w", i, err)
			}
			pool[i] = &ConstantMethodType{DescriptorIndex: descIndex}

		case TagDynamic, TagInvokeDynamic:
			var bsmIndex, natIndex uint16
			if err := binary.Read(r, binary.BigEndian, &bsmIndex); err != nil {
				return nil, fmt.Errorf("reading %s bootstrap_method_attr_index at index %d: %w", TagName(tag), i, err)
			}
			if err := binary.Read(r, binary.BigEndian, &natIndex); err != nil {
				return nil, fmt.Errorf("reading %s name_and_type_index at index %d: %w", TagName(tag), i, err)
			}
			if tag == TagDynamic {
				pool[i] = &ConstantDynamic{BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}
			} else {
				pool[i] = &ConstantInvokeDynamic{BootstrapMethodAttrIndex: bsmIndex, NameAndTypeIndex: natIndex}
			}

		case TagModule, TagPackage:
			var nameIndex uint16
			if err := binary.Read(r, binary.BigEndian, &nameIndex); err != nil {
				return nil, fmt.Errorf("reading %s at index %d: %w", TagName(tag), i, err)
			}
			if tag == TagModule {
				pool[i] = &ConstantModule{NameIndex: nameIndex}
			} else {
				pool[i] = &ConstantPackage{NameIndex: nameIndex}
			}

		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
	}

	return pool, nil
}

// Entry returns the entry at index, or an error if the index is 0, past the
// end of the pool, or the unusable upper half of a Long or Double.
func Entry(pool []ConstantPoolEntry, index uint16) (ConstantPoolEntry, error) {
	if int(index) >= len(pool) || pool[index] == nil {
		return nil, fmt.Errorf("invalid constant pool index %d", index)
	}
	return pool[index], nil
}

// GetUtf8 returns the Utf8 string at the given constant pool index.
func GetUtf8(pool []ConstantPoolEntry, index uint16) (string, error) {
	entry, err := Entry(pool, index)
	if err != nil {
		return "", err
	}
	utf8, ok := entry.(*ConstantUtf8)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Utf8 (tag=%d)", index, entry.Tag())
	}
	return utf8.Value, nil
}

// GetClassName returns the class name referenced by a CONSTANT_Class entry.
func GetClassName(pool []ConstantPoolEntry, classIndex uint16) (string, error) {
	entry, err := Entry(pool, classIndex)
	if err != nil {
		return "", err
	}
	class, ok := entry.(*ConstantClass)
	if !ok {
		return "", fmt.Errorf("constant pool index %d is not Class", classIndex)
	}
	return GetUtf8(pool, class.NameIndex)
}

// GetNameAndType resolves a CONSTANT_NameAndType entry into its two strings.
func GetNameAndType(pool []ConstantPoolEntry, index uint16) (name, descriptor string, err error) {
	entry, err := Entry(pool, index)
	if err != nil {
		return "", "", err
	}
	nat, ok := entry.(*ConstantNameAndType)
	if !ok {
		return "", "", fmt.Errorf("constant pool index %d is not NameAndType", index)
	}
	if name, err = GetUtf8(pool, nat.NameIndex); err != nil {
		return "", "", fmt.Errorf("resolving name: %w", err)
	}
	if descriptor, err = GetUtf8(pool, nat.DescriptorIndex); err != nil {
		return "", "", fmt.Errorf("resolving descriptor: %w", err)
	}
	return name, descriptor, nil
}

// MemberRef is a resolved Fieldref, Methodref or InterfaceMethodref.
type MemberRef struct {
	Tag        uint8
	ClassName  string
	Name       string
	Descriptor string
}

func (m *MemberRef) String() string {
	return m.ClassName + "." + m.Name + ":" + m.Descriptor
}

// ResolveMemberref resolves any of the three member reference kinds.
func ResolveMemberref(pool []ConstantPoolEntry, index uint16) (*MemberRef, error) {
	entry, err := Entry(pool, index)
	if err != nil {
		return nil, err
	}
	var classIndex, natIndex uint16
	switch c := entry.(type) {
	case *ConstantFieldref:
		classIndex, natIndex = c.ClassIndex, c.NameAndTypeIndex
	case *ConstantMethodref:
		classIndex, natIndex = c.ClassIndex, c.NameAndTypeIndex
	case *ConstantInterfaceMethodref:
		classIndex, natIndex = c.ClassIndex, c.NameAndTypeIndex
	default:
		return nil, fmt.Errorf("constant pool index %d is not a member reference (tag=%d)", index, entry.Tag())
	}

	className, err := GetClassName(pool, classIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving %s class: %w", TagName(entry.Tag()), err)
	}
	name, descriptor, err := GetNameAndType(pool, natIndex)
	if err != nil {
		return nil, fmt.Errorf("resolving %s name and type: %w", TagName(entry.Tag()), err)
	}
	return &MemberRef{Tag: entry.Tag(), ClassName: className, Name: name, Descriptor: descriptor}, nil
}

// ResolveMethodref resolves a CONSTANT_Methodref entry.
func ResolveMethodref(pool []ConstantPoolEntry, index uint16) (*MemberRef, error) {
	return resolveTagged(pool, index, TagMethodref)
}

// ResolveInterfaceMethodref resolves a CONSTANT_InterfaceMethodref entry.
func ResolveInterfaceMethodref(pool []ConstantPoolEntry, index uint16) (*MemberRef, error) {
	return resolveTagged(pool, index, TagInterfaceMethodref)
}

// ResolveFieldref resolves a CONSTANT_Fieldref entry.
func ResolveFieldref(pool []ConstantPoolEntry, index uint16) (*MemberRef, error) {
	return resolveTagged(pool, index, TagFieldref)
}

func resolveTagged(pool []ConstantPoolEntry, index uint16, tag uint8) (*MemberRef, error) {
	entry, err := Entry(pool, index)
	if err != nil {
		return nil, err
	}
	if entry.Tag() != tag {
		return nil, fmt.Errorf("constant pool index %d is not %s", index, TagName(tag))
	}
	return ResolveMemberref(pool, index)
}
