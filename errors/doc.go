// Package errors provides structured error types for the gi-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: entity path, Go/GI type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindConversion).
//		Path("Gtk", "Window", "set_title", "title").
//		GoType("int").
//		GIType("utf8").
//		Detail("cannot convert integer to string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.MalformedTypelib("declared size %d exceeds buffer length %d", size, n)
//	err := errors.SymbolNotFound("gtk_window_new", nil)
//
// Errors reported by the native library through GError are returned as
// *NativeError with domain, code and message.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
