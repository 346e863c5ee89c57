package binding

import (
	"strconv"
	"strings"

	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
)

type enumMember struct {
	name  string
	value int64
}

// EnumType is the generated definition of an enum or flags type. Member
// names are upper-cased.
type EnumType struct {
	byName    map[string]int64
	byValue   map[int64]string
	name      string
	namespace string
	gtype     string
	members   []enumMember
	flags     bool
}

func newEnumType(e info.EnumInfo) *EnumType {
	t := &EnumType{
		name:      e.Name(),
		namespace: e.Namespace(),
		gtype:     e.TypeName(),
		flags:     e.IsFlags(),
		byName:    make(map[string]int64),
		byValue:   make(map[int64]string),
	}
	for _, v := range e.Values() {
		name := strings.ToUpper(v.Name())
		val := v.Value()
		v.Unref()
		t.members = append(t.members, enumMember{name: name, value: val})
		t.byName[name] = val
		if _, dup := t.byValue[val]; !dup {
			t.byValue[val] = name
		}
	}
	return t
}

func (t *EnumType) TypeName() string      { return t.name }
func (t *EnumType) QualifiedName() string { return t.namespace + "." + t.name }
func (t *EnumType) GTypeName() string     { return t.gtype }
func (t *EnumType) IsFlags() bool         { return t.flags }

// Names lists the member names in declaration order.
func (t *EnumType) Names() []string {
	names := make([]string, len(t.members))
	for i, m := range t.members {
		names[i] = m.name
	}
	return names
}

// Value validates v against an enum's members. Flags accept any value.
func (t *EnumType) Value(v int64) (any, error) {
	if t.flags {
		return Flags{typ: t, v: v}, nil
	}
	if _, ok := t.byValue[v]; !ok {
		return nil, errors.New(errors.PhaseDecode, errors.KindConversion).
			Path(t.QualifiedName()).
			Value(v).
			Cause(errors.InvalidEnum(errors.PhaseDecode, nil, v, t.QualifiedName())).
			Detail("unknown enum value").
			Build()
	}
	return Enum{typ: t, v: v}, nil
}

// Enum returns the named member of an enum type.
func (t *EnumType) Enum(name string) (Enum, bool) {
	v, ok := t.byName[strings.ToUpper(name)]
	if !ok || t.flags {
		return Enum{}, false
	}
	return Enum{typ: t, v: v}, true
}

// Flag returns the named member of a flags type.
func (t *EnumType) Flag(name string) (Flags, bool) {
	v, ok := t.byName[strings.ToUpper(name)]
	if !ok || !t.flags {
		return Flags{}, false
	}
	return Flags{typ: t, v: v}, true
}

// Flags composes a flags value from raw bits.
func (t *EnumType) Flags(v int64) Flags { return Flags{typ: t, v: v} }

// Enum is a validated enum value.
type Enum struct {
	typ *EnumType
	v   int64
}

func (e Enum) Int64() int64      { return e.v }
func (e Enum) Type() *EnumType   { return e.typ }
func (e Enum) String() string    { return e.Name() }
func (e Enum) Equal(o Enum) bool { return e.typ == o.typ && e.v == o.v }

// Name returns the member name, empty for the zero Enum.
func (e Enum) Name() string {
	if e.typ == nil {
		return ""
	}
	return e.typ.byValue[e.v]
}

// Flags is a combination of flag bits.
type Flags struct {
	typ *EnumType
	v   int64
}

func (f Flags) Int64() int64    { return f.v }
func (f Flags) Type() *EnumType { return f.typ }

// Or combines f with others.
func (f Flags) Or(others ...Flags) Flags {
	for _, o := range others {
		f.v |= o.v
	}
	return f
}

// Has reports whether every bit of o is set in f.
func (f Flags) Has(o Flags) bool { return f.v&o.v == o.v }

// Decompose splits f into named members, in declaration order, and the
// bits no member covers.
func (f Flags) Decompose() (names []string, rest int64) {
	rest = f.v
	if f.typ == nil {
		return nil, rest
	}
	for _, m := range f.typ.members {
		if m.value == 0 || f.v&m.value != m.value || rest&m.value == 0 {
			continue
		}
		names = append(names, m.name)
		rest &^= m.value
	}
	return names, rest
}

// String renders the value as "FG | BASE | 0x400". Zero renders as the
// zero-valued member if there is one.
func (f Flags) String() string {
	if f.v == 0 {
		if f.typ != nil {
			if n, ok := f.typ.byValue[0]; ok {
				return n
			}
		}
		return "0"
	}
	names, rest := f.Decompose()
	if rest != 0 {
		names = append(names, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(names, " | ")
}
