package typelib

import (
	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
)

// HasSymbol reports whether symbol is exported by a function in this typelib.
func (t *Typelib) HasSymbol(symbol string) bool {
	_, ok := t.symbols[symbol]
	return ok
}

// Symbol resolves an exported function symbol against lib. It fails with
// SymbolNotFound when the typelib does not export the name or the library
// cannot resolve it.
func (t *Typelib) Symbol(lib giruntime.Library, name string) (giruntime.Function, error) {
	if !t.HasSymbol(name) {
		return nil, errors.SymbolNotFound(name, nil)
	}
	if lib == nil {
		return nil, errors.SymbolNotFound(name, errors.InvalidInput(errors.PhaseLookup, "no library attached to "+t.String()))
	}
	fn, err := lib.Symbol(name)
	if err != nil {
		return nil, errors.SymbolNotFound(name, err)
	}
	return fn, nil
}
