package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseEncode,
				Kind:   KindConversion,
				Path:   []string{"Gtk", "Window", "set_title"},
				GoType: "int",
				GIType: "utf8",
				Detail: "cannot convert",
			},
			contains: []string{"[encode]", "conversion", "Gtk.Window.set_title", "int", "utf8", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLoad,
				Kind:  KindMalformedTypelib,
			},
			contains: []string{"[load]", "malformed_typelib"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseFinalize,
				Kind:   KindFinalization,
				Detail: "unref failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[finalize]", "finalization", "unref failed", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLookup,
		Kind:  KindSymbolNotFound,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindConversion,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseEncode, Kind: KindConversion}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindConversion}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseEncode, Kind: KindOverflow}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrConversion) {
		t.Error("phase-less sentinel should match on kind")
	}
	if errors.Is(err, ErrMalformedTypelib) {
		t.Error("sentinel of another kind should not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseEncode, KindConversion).
		Path("GLib", "strlen", "s").
		GoType("int").
		GIType("utf8").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "int").
		Build()

	if err.Phase != PhaseEncode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseEncode)
	}
	if err.Kind != KindConversion {
		t.Errorf("Kind = %v, want %v", err.Kind, KindConversion)
	}
	if len(err.Path) != 3 || err.Path[2] != "s" {
		t.Errorf("Path = %v, want [GLib strlen s]", err.Path)
	}
	if err.GoType != "int" || err.GIType != "utf8" {
		t.Errorf("GoType=%v GIType=%v", err.GoType, err.GIType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected string, got int" {
		t.Errorf("Detail = %v, want 'expected string, got int'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
		in   string
	}{
		{"MalformedTypelib", MalformedTypelib("size %d exceeds %d", 200, 100), KindMalformedTypelib, "200"},
		{"SymbolNotFound", SymbolNotFound("g_free", nil), KindSymbolNotFound, "g_free"},
		{"TypeMismatch", TypeMismatch(PhaseParse, []string{"Foo"}, "enum", "struct"), KindTypeMismatch, "have enum"},
		{"Conversion", Conversion(PhaseEncode, nil, "string", "int32", "not a number"), KindConversion, "not a number"},
		{"ArgCount", ArgCount([]string{"f"}, 2, 1), KindArgCount, "got 2"},
		{"AllocationFailed", AllocationFailed(PhaseEncode, 1024, 8, nil), KindAllocation, "1024"},
		{"Unsupported", Unsupported(PhaseEncode, "GHashTable"), KindUnsupported, "GHashTable"},
		{"OutOfBounds", OutOfBounds(PhaseParse, nil, 10, 5), KindOutOfBounds, "10"},
		{"NilPointer", NilPointer(PhaseEncode, nil, "utf8"), KindNilPointer, "null"},
		{"Overflow", Overflow(PhaseEncode, nil, 300, "uint8"), KindOverflow, "300"},
		{"InvalidEnum", InvalidEnum(PhaseEncode, nil, 7, "Mode"), KindInvalidEnum, "Mode"},
		{"NotFound", NotFound(PhaseLookup, "entry", "Window"), KindNotFound, "Window"},
		{"ReadOnly", ReadOnly(PhaseOverride, "override table"), KindReadOnly, "read-only"},
		{"Closed", Closed(PhaseRuntime, "registry"), KindClosed, "closed"},
		{"Finalization", Finalization(0x10, errors.New("boom")), KindFinalization, "0x10"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Error(), tt.in) {
				t.Errorf("Error() = %q, should contain %q", tt.err.Error(), tt.in)
			}
		})
	}
}

func TestNativeError(t *testing.T) {
	err := &NativeError{Domain: "g-file-error-quark", Code: 4, Message: "No such file"}

	if got := err.Error(); got != "g-file-error-quark (4): No such file" {
		t.Errorf("Error() = %q", got)
	}

	var target *NativeError
	if !errors.As(error(err), &target) || target.Code != 4 {
		t.Error("errors.As should extract NativeError")
	}
	if !errors.Is(err, &NativeError{}) {
		t.Error("empty-domain target should match any NativeError")
	}
	if !errors.Is(err, &NativeError{Domain: "g-file-error-quark", Code: 4}) {
		t.Error("same domain and code should match")
	}
	if errors.Is(err, &NativeError{Domain: "g-file-error-quark", Code: 5}) {
		t.Error("different code should not match")
	}

	anon := &NativeError{Code: 1, Message: "x"}
	if !strings.Contains(anon.Error(), "native error 1") {
		t.Errorf("Error() = %q", anon.Error())
	}
}
