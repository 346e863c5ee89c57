package wasmlib

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/internal/config"
	"github.com/wippyai/gi-runtime/repository"
)

// ModuleFile maps a shared object name from a typelib to the guest
// module file holding the same code: "libgobject-2.0.so.0" becomes
// "libgobject-2.0.wasm".
func ModuleFile(sharedLibrary string) string {
	base := filepath.Base(sharedLibrary)
	for _, ext := range []string{".so", ".dylib", ".dll"} {
		if i := strings.Index(base, ext); i > 0 {
			base = base[:i]
			break
		}
	}
	return base + ".wasm"
}

// Opener returns a library opener for binding.Options.OpenLibrary that
// instantiates the guest module of a namespace's first shared library
// found in dirs. Without dirs the configured library path is searched.
func Opener(cfg Config, dirs ...string) func(context.Context, *repository.Namespace) (giruntime.Library, error) {
	return func(ctx context.Context, ns *repository.Namespace) (giruntime.Library, error) {
		search := dirs
		if len(search) == 0 {
			search = config.Load().LibraryPath
		}
		libs := ns.SharedLibraries()
		if len(libs) == 0 {
			return nil, errors.NotFound(errors.PhaseLoad, "shared library", ns.Name())
		}
		for _, so := range libs {
			file := ModuleFile(so)
			for _, dir := range search {
				path := filepath.Join(dir, file)
				data, err := os.ReadFile(path)
				if stderrors.Is(err, fs.ErrNotExist) {
					continue
				}
				if err != nil {
					return nil, errors.Load("read "+path, err)
				}
				Logger().Debug("opening guest module",
					zap.String("namespace", ns.Name()), zap.String("path", path))
				return Open(ctx, strings.TrimSuffix(file, ".wasm"), data, cfg)
			}
		}
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(ns.Name()).
			Detail("no guest module for %s in %s", strings.Join(libs, ", "), strings.Join(search, string(os.PathListSeparator))).
			Build()
	}
}
