package errors

import (
	"fmt"
	"strings"
)

// Phase names the stage of binding work that failed.
type Phase string

const (
	PhaseLoad     Phase = "load"     // typelib and library loading
	PhaseParse    Phase = "parse"    // typelib blob interpretation
	PhaseLookup   Phase = "lookup"   // symbol and entity resolution
	PhaseEncode   Phase = "encode"   // Go to native
	PhaseDecode   Phase = "decode"   // native to Go
	PhaseInvoke   Phase = "invoke"   // foreign calls
	PhaseFinalize Phase = "finalize" // destructor execution
	PhaseOverride Phase = "override" // override registration
	PhaseRuntime  Phase = "runtime"  // other runtime operations
)

// Kind classifies a failure independently of its phase.
type Kind string

const (
	KindMalformedTypelib Kind = "malformed_typelib"
	KindSymbolNotFound   Kind = "symbol_not_found"
	KindTypeMismatch     Kind = "type_mismatch"
	KindConversion       Kind = "conversion"
	KindArgCount         Kind = "arg_count"
	KindOverflow         Kind = "overflow"
	KindNilPointer       Kind = "nil_pointer"
	KindInvalidEnum      Kind = "invalid_enum"
	KindUnsupported      Kind = "unsupported"
	KindNotFound         Kind = "not_found"
	KindReadOnly         Kind = "read_only"
	KindRefCount         Kind = "ref_count"
	KindFinalization     Kind = "finalization"
	KindAllocation       Kind = "allocation"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidInput     Kind = "invalid_input"
	KindClosed           Kind = "closed"
)

// Sentinels for errors.Is checks that only care about the Kind.
var (
	ErrMalformedTypelib = &Error{Kind: KindMalformedTypelib}
	ErrSymbolNotFound   = &Error{Kind: KindSymbolNotFound}
	ErrTypeMismatch     = &Error{Kind: KindTypeMismatch}
	ErrConversion       = &Error{Kind: KindConversion}
	ErrArgCount         = &Error{Kind: KindArgCount}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	GIType string
	Detail string
	Path   []string
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.GIType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.GIType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", GI type ")
			b.WriteString(e.GIType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("GI type ")
			b.WriteString(e.GIType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.GIType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target without a Phase
// matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder assembles an Error field by field.
type Builder struct {
	err Error
}

// New starts an Error of the given phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the entity path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// GIType sets the GI type name
func (b *Builder) GIType(t string) *Builder {
	b.err.GIType = t
	return b
}

func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail formats the message shown after the path.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// Shorthands for the failures raised most often.

// MalformedTypelib reports a typelib image that failed validation.
func MalformedTypelib(format string, args ...any) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindMalformedTypelib,
		Detail: fmt.Sprintf(format, args...),
	}
}

// SymbolNotFound reports a missing native entry point.
func SymbolNotFound(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseLookup,
		Kind:   KindSymbolNotFound,
		Detail: fmt.Sprintf("symbol %q not found", symbol),
		Value:  symbol,
		Cause:  cause,
	}
}

// TypeMismatch reports a downcast of an info to a view of another kind.
func TypeMismatch(phase Phase, path []string, have, want string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		GIType: want,
		Detail: fmt.Sprintf("have %s, want %s", have, want),
	}
}

// Conversion reports a host value incompatible with the native type.
func Conversion(phase Phase, path []string, goType, giType, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindConversion,
		Path:   path,
		GoType: goType,
		GIType: giType,
		Detail: detail,
	}
}

// ArgCount reports a host call with the wrong number of arguments.
func ArgCount(path []string, got, want int) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindArgCount,
		Path:   path,
		Detail: fmt.Sprintf("got %d argument(s), want %d", got, want),
		Value:  got,
	}
}

// AllocationFailed reports a native allocator refusing a request.
func AllocationFailed(phase Phase, size, align uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("cannot allocate %d bytes aligned to %d", size, align),
		Cause:  cause,
	}
}

func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds reports an index past the end of a sequence.
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NilPointer reports NULL where a value is required.
func NilPointer(phase Phase, path []string, giType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GIType: giType,
		Detail: "null not allowed",
	}
}

// Overflow reports a value that does not fit its native slot.
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		GIType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// InvalidEnum reports a value that names no member of an enum.
func InvalidEnum(phase Phase, path []string, value any, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Path:   path,
		GIType: enumType,
		Detail: fmt.Sprintf("invalid enum value %v for %s", value, enumType),
		Value:  value,
	}
}

// Wrap attaches a phase, kind and detail to cause.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
		Value:  name,
	}
}

func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// ReadOnly reports a mutation of a frozen table.
func ReadOnly(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReadOnly,
		Detail: what + " is read-only",
	}
}

// Closed reports use of a closed resource.
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// Finalization wraps a destructor failure. These errors are logged, never returned to callers.
func Finalization(ptr uint64, cause error) *Error {
	return &Error{
		Phase:  PhaseFinalize,
		Kind:   KindFinalization,
		Detail: fmt.Sprintf("destructor for 0x%x failed", ptr),
		Value:  ptr,
		Cause:  cause,
	}
}

// Load creates a loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidInput,
		Detail: detail,
		Cause:  cause,
	}
}

// NativeError is an error reported by the native library through GError.
type NativeError struct {
	Domain  string
	Message string
	Code    int32
	Quark   uint32
}

func (e *NativeError) Error() string {
	if e.Domain == "" {
		return fmt.Sprintf("native error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s (%d): %s", e.Domain, e.Code, e.Message)
}

// Is reports whether target is a NativeError with the same domain and code.
// A target with an empty domain matches any NativeError.
func (e *NativeError) Is(target error) bool {
	t, ok := target.(*NativeError)
	if !ok {
		return false
	}
	if t.Domain == "" {
		return true
	}
	return e.Domain == t.Domain && e.Code == t.Code
}
