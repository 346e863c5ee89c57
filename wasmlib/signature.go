package wasmlib

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tetratelabs/wazero/api"
	"go.bytecodealliance.org/wit"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
)

// declared is a WIT function type reduced to native slots.
type declared struct {
	text   string
	params []giruntime.ValueKind
	result giruntime.ValueKind
}

var funcPattern = regexp.MustCompile(`^func\s*\(([^)]*)\)(?:\s*->\s*(.+))?$`)

func parseSignatures(texts map[string]string) (map[string]declared, error) {
	decls := make(map[string]declared, len(texts))
	for sym, text := range texts {
		d, err := parseSignature(text)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "signature of "+sym)
		}
		decls[sym] = d
	}
	return decls, nil
}

// parseSignature reads "func(a: s32, b: string) -> u32". Strings and
// handles travel as guest pointers.
func parseSignature(text string) (declared, error) {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";"))
	m := funcPattern.FindStringSubmatch(text)
	if m == nil {
		return declared{}, errors.InvalidInput(errors.PhaseParse, "not a WIT function type: "+text)
	}
	d := declared{text: text}
	for _, p := range splitParams(m[1]) {
		typ := p
		if i := strings.LastIndex(p, ":"); i != -1 {
			typ = p[i+1:]
		}
		k, err := parseKind(typ)
		if err != nil {
			return declared{}, err
		}
		d.params = append(d.params, k)
	}
	if res := strings.TrimSpace(m[2]); res != "" && res != "()" {
		k, err := parseKind(res)
		if err != nil {
			return declared{}, err
		}
		d.result = k
	}
	return d, nil
}

func splitParams(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, ch := range s {
		switch ch {
		case '(', '<':
			depth++
		case ')', '>':
			depth--
		case ',':
			if depth == 0 {
				if p := strings.TrimSpace(s[start:i]); p != "" {
					out = append(out, p)
				}
				start = i + 1
			}
		}
	}
	if p := strings.TrimSpace(s[start:]); p != "" {
		out = append(out, p)
	}
	return out
}

func parseKind(s string) (giruntime.ValueKind, error) {
	t, err := wit.ParseType(strings.TrimSpace(s))
	if err != nil {
		return giruntime.KindVoid, errors.Wrap(errors.PhaseParse, errors.KindInvalidInput, err, "parse WIT type "+s)
	}
	return witKind(t)
}

// witKind maps a WIT type to the native slot a C function uses for it.
func witKind(t wit.Type) (giruntime.ValueKind, error) {
	switch t.(type) {
	case wit.Bool, wit.S32:
		return giruntime.KindI32, nil
	case wit.S8:
		return giruntime.KindI8, nil
	case wit.U8:
		return giruntime.KindU8, nil
	case wit.S16:
		return giruntime.KindI16, nil
	case wit.U16:
		return giruntime.KindU16, nil
	case wit.U32, wit.Char:
		return giruntime.KindU32, nil
	case wit.S64:
		return giruntime.KindI64, nil
	case wit.U64:
		return giruntime.KindU64, nil
	case wit.F32:
		return giruntime.KindF32, nil
	case wit.F64:
		return giruntime.KindF64, nil
	case wit.String, *wit.TypeDef:
		return giruntime.KindPointer, nil
	}
	return giruntime.KindVoid, errors.New(errors.PhaseParse, errors.KindUnsupported).
		GoType(fmt.Sprintf("%T", t)).
		Detail("no native slot for WIT type").
		Build()
}

// lower returns the core wasm type carrying a slot on wasm32.
func lower(k giruntime.ValueKind) api.ValueType {
	switch k {
	case giruntime.KindI64, giruntime.KindU64:
		return api.ValueTypeI64
	case giruntime.KindF32:
		return api.ValueTypeF32
	case giruntime.KindF64:
		return api.ValueTypeF64
	}
	return api.ValueTypeI32
}

// compatible reports whether a call slot may feed a declared slot.
// Pointers and 32-bit unsigned integers are interchangeable on wasm32.
func compatible(have, want giruntime.ValueKind) bool {
	if have == want {
		return true
	}
	return have == giruntime.KindPointer && want == giruntime.KindU32 ||
		have == giruntime.KindU32 && want == giruntime.KindPointer
}

// matches checks a declaration against the export's core types.
func (d declared) matches(sym string, def api.FunctionDefinition) error {
	params, results := def.ParamTypes(), def.ResultTypes()
	ok := len(params) == len(d.params)
	for i := 0; ok && i < len(params); i++ {
		ok = lower(d.params[i]) == params[i]
	}
	if d.result == giruntime.KindVoid {
		ok = ok && len(results) == 0
	} else {
		ok = ok && len(results) == 1 && lower(d.result) == results[0]
	}
	if !ok {
		return errors.TypeMismatch(errors.PhaseLoad, []string{sym}, d.text, coreSignature(def))
	}
	return nil
}

// coreSignature renders an export's type as "(i32, i32) -> i32".
func coreSignature(def api.FunctionDefinition) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range def.ParamTypes() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(api.ValueTypeName(p))
	}
	b.WriteString(") -> ")
	switch res := def.ResultTypes(); len(res) {
	case 0:
		b.WriteString("void")
	case 1:
		b.WriteString(api.ValueTypeName(res[0]))
	default:
		b.WriteString("multi")
	}
	return b.String()
}
