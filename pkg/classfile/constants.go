package classfile

import "fmt"

// ConstantPoolEntry is an interface implemented by all constant pool types.
type ConstantPoolEntry interface {
	Tag() uint8
}

type ConstantUtf8 struct {
	Value string
}

func (c *ConstantUtf8) Tag() uint8     { return TagUtf8 }
func (c *ConstantUtf8) String() string { return fmt.Sprintf("CONSTANT_Utf8[%q]", c.Value) }

type ConstantInteger struct {
	Value int32
}

func (c *ConstantInteger) Tag() uint8     { return TagInteger }
func (c *ConstantInteger) String() string { return fmt.Sprintf("CONSTANT_Integer[%d]", c.Value) }

type ConstantFloat struct {
	Value float32
}

func (c *ConstantFloat) Tag() uint8     { return TagFloat }
func (c *ConstantFloat) String() string { return fmt.Sprintf("CONSTANT_Float[%g]", c.Value) }

type ConstantLong struct {
	Value int64
}

func (c *ConstantLong) Tag() uint8     { return TagLong }
func (c *ConstantLong) String() string { return fmt.Sprintf("CONSTANT_Long[%d]", c.Value) }

type ConstantDouble struct {
	Value float64
}

func (c *ConstantDouble) Tag() uint8     { return TagDouble }
func (c *ConstantDouble) String() string { return fmt.Sprintf("CONSTANT_Double[%g]", c.Value) }

type ConstantClass struct {
	NameIndex uint16
}

func (c *ConstantClass) Tag() uint8     { return TagClass }
func (c *ConstantClass) String() string { return fmt.Sprintf("CONSTANT_Class[name=#%d]", c.NameIndex) }

type ConstantString struct {
	StringIndex uint16
}

func (c *ConstantString) Tag() uint8 { return TagString }
func (c *ConstantString) String() string {
	return fmt.Sprintf("CONSTANT_String[string=#%d]", c.StringIndex)
}

type ConstantFieldref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantFieldref) Tag() uint8 { return TagFieldref }
func (c *ConstantFieldref) String() string {
	return fmt.Sprintf("CONSTANT_Fieldref[class=#%d, nat=#%d]", c.ClassIndex, c.NameAndTypeIndex)
}

type ConstantMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantMethodref) Tag() uint8 { return TagMethodref }
func (c *ConstantMethodref) String() string {
	return fmt.Sprintf("CONSTANT_Methodref[class=#%d, nat=#%d]", c.ClassIndex, c.NameAndTypeIndex)
}

type ConstantInterfaceMethodref struct {
	ClassIndex       uint16
	NameAndTypeIndex uint16
}

func (c *ConstantInterfaceMethodref) Tag() uint8 { return TagInterfaceMethodref }
func (c *ConstantInterfaceMethodref) String() string {
	return fmt.Sprintf("CONSTANT_InterfaceMethodref[class=#%d, nat=#%d]", c.ClassIndex, c.NameAndTypeIndex)
}

type ConstantNameAndType struct {
	NameIndex       uint16
	DescriptorIndex uint16
}

func (c *ConstantNameAndType) Tag() uint8 { return TagNameAndType }
func (c *ConstantNameAndType) String() string {
	return fmt.Sprintf("CONSTANT_NameAndType[name=#%d, descriptor=#%d]", c.NameIndex, c.DescriptorIndex)
}

type ConstantMethodHandle struct {
	ReferenceKind  uint8
	ReferenceIndex uint16
}

func (c *ConstantMethodHandle) Tag() uint8 { return TagMethodHandle }
func (c *ConstantMethodHandle) String() string {
	return fmt.Sprintf("CONSTANT_MethodHandle[kind=%d, ref=#%d]", c.ReferenceKind, c.ReferenceIndex)
}

type ConstantMethodType struct {
	DescriptorIndex uint16
}

func (c *ConstantMethodType) Tag() uint8 { return TagMethodType }
func (c *ConstantMethodType) String() string {
	return fmt.Sprintf("CONSTANT_MethodType[descriptor=#%d]", c.DescriptorIndex)
}

type ConstantDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantDynamic) Tag() uint8 { return TagDynamic }
func (c *ConstantDynamic) String() string {
	return fmt.Sprintf("CONSTANT_Dynamic[bsm=%d, nat=#%d]", c.BootstrapMethodAttrIndex, c.NameAndTypeIndex)
}

type ConstantInvokeDynamic struct {
	BootstrapMethodAttrIndex uint16
	NameAndTypeIndex         uint16
}

func (c *ConstantInvokeDynamic) Tag() uint8 { return TagInvokeDynamic }
func (c *ConstantInvokeDynamic) String() string {
	return fmt.Sprintf("CONSTANT_InvokeDynamic[bsm=%d, nat=#%d]", c.BootstrapMethodAttrIndex, c.NameAndTypeIndex)
}

type ConstantModule struct {
	NameIndex uint16
}

func (c *ConstantModule) Tag() uint8     { return TagModule }
func (c *ConstantModule) String() string { return fmt.Sprintf("CONSTANT_Module[name=#%d]", c.NameIndex) }

type ConstantPackage struct {
	NameIndex uint16
}

func (c *ConstantPackage) Tag() uint8 { return TagPackage }
func (c *ConstantPackage) String() string {
	return fmt.Sprintf("CONSTANT_Package[name=#%d]", c.NameIndex)
}
