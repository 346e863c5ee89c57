//go:build !(darwin || freebsd || linux || netbsd)

package native

import (
	"context"
	"runtime"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/repository"
)

// Library is unavailable on this platform.
type Library struct{ giruntime.Library }

func Open(path string) (*Library, error) {
	return nil, errors.Unsupported(errors.PhaseLoad, "native libraries on "+runtime.GOOS)
}

func Opener(...string) func(context.Context, *repository.Namespace) (giruntime.Library, error) {
	return func(context.Context, *repository.Namespace) (giruntime.Library, error) {
		return nil, errors.Unsupported(errors.PhaseLoad, "native libraries on "+runtime.GOOS)
	}
}
