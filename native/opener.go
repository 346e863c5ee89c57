//go:build darwin || freebsd || linux || netbsd

package native

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/internal/config"
	"github.com/wippyai/gi-runtime/repository"
)

// candidates lists the paths tried for a shared library: each search
// directory first, then the bare name for the dynamic loader.
func candidates(so string, dirs []string) []string {
	if filepath.IsAbs(so) {
		return []string{so}
	}
	var out []string
	for _, dir := range dirs {
		p := filepath.Join(dir, so)
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return append(out, so)
}

// Opener returns a library opener for binding.Options.OpenLibrary that
// dlopens a namespace's shared libraries, searching dirs (or the
// configured library path) before the system loader path. The first
// library that loads is used.
func Opener(dirs ...string) func(context.Context, *repository.Namespace) (giruntime.Library, error) {
	return func(_ context.Context, ns *repository.Namespace) (giruntime.Library, error) {
		search := dirs
		if len(search) == 0 {
			search = config.Load().LibraryPath
		}
		libs := ns.SharedLibraries()
		if len(libs) == 0 {
			return nil, errors.NotFound(errors.PhaseLoad, "shared library", ns.Name())
		}
		var errs []error
		for _, so := range libs {
			for _, path := range candidates(so, search) {
				lib, err := Open(path)
				if err == nil {
					return lib, nil
				}
				errs = append(errs, err)
			}
		}
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(ns.Name()).
			Detail("no loadable library among %s", strings.Join(libs, ", ")).
			Cause(stderrors.Join(errs...)).
			Build()
	}
}
