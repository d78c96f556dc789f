package classfile

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		desc string
		kind Kind
		size int
		dims int
	}{
		{"I", KindInt, 1, 0},
		{"J", KindLong, 2, 0},
		{"D", KindDouble, 2, 0},
		{"Z", KindBoolean, 1, 0},
		{"Ljava/lang/String;", KindObject, 1, 0},
		{"[I", KindArray, 1, 1},
		{"[[Ljava/lang/Object;", KindArray, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			typ, err := ParseFieldType(tt.desc)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, typ.Kind)
			assert.Equal(t, tt.size, typ.Size())
			assert.Equal(t, tt.dims, typ.Dimensions())
			assert.Equal(t, tt.desc, typ.Descriptor())
		})
	}
}

func TestParseFieldTypeInvalid(t *testing.T) {
	for _, desc := range []string{
		"", "V", "X", "L;", "Ljava/lang/String", "Ljava.lang.String;", "II", "[", "La//b;",
		strings.Repeat("[", 256) + "I",
	} {
		_, err := ParseFieldType(desc)
		assert.Error(t, err, "descriptor %q", desc)
	}
	_, err := ParseFieldType(strings.Repeat("[", 255) + "I")
	assert.NoError(t, err)
}

func TestParseMethodDescriptor(t *testing.T) {
	md, err := ParseMethodDescriptor("(IJ[Ljava/lang/String;D)V")
	require.NoError(t, err)
	require.Len(t, md.Params, 4)
	assert.Equal(t, 6, md.ArgumentSlots())
	assert.Equal(t, KindVoid, md.Return.Kind)

	md, err = ParseMethodDescriptor("()Ljava/lang/Object;")
	require.NoError(t, err)
	assert.Equal(t, "java/lang/Object", md.Return.Class)

	for _, desc := range []string{"", "I", "(I", "()", "()VV", "(V)V", "()[V", "(I)IX"} {
		_, err := ParseMethodDescriptor(desc)
		assert.Error(t, err, "descriptor %q", desc)
	}
}

func TestNamePredicates(t *testing.T) {
	assert.True(t, ValidClassName("java/lang/Object"))
	assert.True(t, ValidClassName("[I"))
	assert.False(t, ValidClassName("java.lang.Object"))
	assert.False(t, ValidClassName("[X"))
	assert.False(t, ValidClassName(""))

	assert.True(t, ValidFieldName("value$1"))
	assert.False(t, ValidFieldName("a/b"))

	assert.True(t, ValidMethodName(InitName))
	assert.True(t, ValidMethodName(ClinitName))
	assert.True(t, ValidMethodName("run"))
	assert.False(t, ValidMethodName("<run>"))
}
