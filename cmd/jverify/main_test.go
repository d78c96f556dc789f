package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/logrusorgru/aurora"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daimatz/jverify/pkg/classfile"
	"github.com/daimatz/jverify/pkg/classfile/classfiletest"
	"github.com/daimatz/jverify/pkg/repository"
	"github.com/daimatz/jverify/pkg/verifier"
)

func writeClass(t *testing.T, path string, b *classfiletest.Builder) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, b.Bytes(), 0o644))
}

func TestTarget(t *testing.T) {
	dir := t.TempDir()
	abs, err := filepath.Abs(dir)
	require.NoError(t, err)
	writeClass(t, filepath.Join(dir, "com", "example", "A.class"), classfiletest.New("com/example/A", classfile.ObjectClass))
	writeClass(t, filepath.Join(dir, "flat", "B.class"), classfiletest.New("com/example/B", classfile.ObjectClass))

	tests := []struct {
		arg  string
		name string
		root string
	}{
		{"java.lang.String", "java/lang/String", ""},
		{"com/example/A", "com/example/A", ""},
		{filepath.Join(dir, "com", "example", "A.class"), "com/example/A", abs},
		{filepath.Join(dir, "flat", "B.class"), "com/example/B", filepath.Join(abs, "flat")},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			name, root, err := target(tt.arg)
			require.NoError(t, err)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.root, root)
		})
	}

	_, _, err = target(filepath.Join(dir, "Missing.class"))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	classes := classfiletest.Roots()
	for name, data := range classfiletest.Classes(
		classfiletest.New("Good", classfile.ObjectClass).DefaultConstructor(classfile.ObjectClass),
		classfiletest.New("Bad", "Missing"),
	) {
		classes[name] = data
	}
	f := verifier.NewFactory(repository.NewMemoryRepository(classes))
	reports, err := f.VerifyAll(context.Background(), []string{"Good", "Bad"})
	require.NoError(t, err)

	var buf bytes.Buffer
	render(&buf, aurora.NewAurora(false), reports)
	out := buf.String()
	assert.Contains(t, out, "Good")
	assert.Contains(t, out, "<init>()V")
	assert.Contains(t, out, "REJECTED")
	assert.Contains(t, out, "Missing")
	assert.Contains(t, out, "2 classes verified, 1 rejected")
	assert.NotContains(t, out, "\x1b[")
}

func TestRows(t *testing.T) {
	rep := &verifier.Report{
		Class: "A",
		Pass1: verifier.ResultOK,
		Pass2: verifier.ResultOK,
		Methods: []verifier.MethodReport{
			{Index: 0, Name: "m()V", Result: verifier.Reject("bad jump")},
		},
	}
	got := rows(aurora.NewAurora(false), []*verifier.Report{rep})
	assert.Equal(t, [][]string{
		{"A", "1", "", "OK", ""},
		{"A", "2", "", "OK", ""},
		{"A", "3a", "m()V", "REJECTED", "bad jump"},
	}, got)
}
