package verifier

import (
	"fmt"

	"github.com/daimatz/jverify/pkg/classfile"
)

// upperHalf marks the second slot of a long or double local.
const upperHalf = "<upper half>"

// InconsistentLocalError reports two different declarations of the same
// local variable slot at one bytecode offset.
type InconsistentLocalError struct {
	Offset   int
	Field    string // "name" or "type"
	Previous string
	Current  string
}

func (e *InconsistentLocalError) Error() string {
	return fmt.Sprintf("at bytecode offset %d a local variable has two different %ss: '%s' and '%s'",
		e.Offset, e.Field, e.Previous, e.Current)
}

type localEntry struct {
	name string
	typ  string
}

// LocalVariableInfo maps bytecode offsets to the declared name and type of
// one local variable slot.
type LocalVariableInfo struct {
	entries map[int]localEntry
}

func NewLocalVariableInfo() *LocalVariableInfo {
	return &LocalVariableInfo{entries: make(map[int]localEntry)}
}

// Name returns the name declared at offset.
func (l *LocalVariableInfo) Name(offset int) (string, bool) {
	e, ok := l.entries[offset]
	return e.name, ok
}

// Type returns the type descriptor declared at offset. The second slot of a
// long or double reports IsUpperHalf.
func (l *LocalVariableInfo) Type(offset int) (string, bool) {
	e, ok := l.entries[offset]
	return e.typ, ok
}

// IsUpperHalf reports whether typ is the placeholder for the second slot of
// a two-slot local.
func IsUpperHalf(typ string) bool { return typ == upperHalf }

// Add claims every offset in [startPC, startPC+length] for (name, typ).
// Re-declaring an offset with the same name and type is allowed.
func (l *LocalVariableInfo) Add(name string, startPC, length int, typ string) error {
	for off := startPC; off <= startPC+length; off++ {
		if err := l.set(off, name, typ); err != nil {
			return err
		}
	}
	return nil
}

func (l *LocalVariableInfo) set(offset int, name, typ string) error {
	prev, ok := l.entries[offset]
	if ok {
		if prev.name != name {
			return &InconsistentLocalError{Offset: offset, Field: "name", Previous: prev.name, Current: name}
		}
		if prev.typ != typ {
			return &InconsistentLocalError{Offset: offset, Field: "type", Previous: prev.typ, Current: typ}
		}
		return nil
	}
	l.entries[offset] = localEntry{name: name, typ: typ}
	return nil
}

// LocalVariables is the LocalVariableInfo of every slot of one method.
type LocalVariables struct {
	slots []*LocalVariableInfo
}

// NewLocalVariables allocates a table for maxLocals slots.
func NewLocalVariables(maxLocals int) *LocalVariables {
	lv := &LocalVariables{slots: make([]*LocalVariableInfo, maxLocals)}
	for i := range lv.slots {
		lv.slots[i] = NewLocalVariableInfo()
	}
	return lv
}

// Len returns the number of slots.
func (lv *LocalVariables) Len() int { return len(lv.slots) }

// At returns the info of slot.
func (lv *LocalVariables) At(slot int) (*LocalVariableInfo, error) {
	if slot < 0 || slot >= len(lv.slots) {
		return nil, assertionf("local variable slot %d out of range [0, %d)", slot, len(lv.slots))
	}
	return lv.slots[slot], nil
}

// Add records a LocalVariableTable entry. Two-slot types also claim the
// following slot.
func (lv *LocalVariables) Add(slot int, name string, startPC, length int, t classfile.Type) error {
	info, err := lv.At(slot)
	if err != nil {
		return err
	}
	if err := info.Add(name, startPC, length, t.Descriptor()); err != nil {
		return err
	}
	if t.Size() == 2 {
		upper, err := lv.At(slot + 1)
		if err != nil {
			return err
		}
		return upper.Add(name, startPC, length, upperHalf)
	}
	return nil
}
