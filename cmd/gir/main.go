// Command gir inspects GObject-Introspection typelibs and calls into the
// libraries they describe.
//
//	gir dump GLib-2.0
//	gir inspect GObject Object
//	gir call --backend wasm --lib-dir ./out Demo add 2 3
//	gir browse Demo
//	gir shell Demo
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/gi-runtime/argument"
	"github.com/wippyai/gi-runtime/binding"
	"github.com/wippyai/gi-runtime/finalize"
	"github.com/wippyai/gi-runtime/internal/config"
	"github.com/wippyai/gi-runtime/invoke"
	"github.com/wippyai/gi-runtime/native"
	"github.com/wippyai/gi-runtime/override"
	"github.com/wippyai/gi-runtime/repository"
	"github.com/wippyai/gi-runtime/typelib"
	"github.com/wippyai/gi-runtime/wasmlib"
)

// app carries what every subcommand shares.
type app struct {
	cfg         config.Config
	log         *zap.Logger
	typelibDirs []string
	libDirs     []string
	backend     string
	verbose     bool
	repo        *repository.Repository
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gir",
		Short:         "Inspect typelibs and call the libraries they describe",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	flags := root.PersistentFlags()
	flags.StringSliceVar(&a.typelibDirs, "typelib-dir", nil, "directories searched for typelibs before GI_TYPELIB_PATH")
	flags.StringSliceVar(&a.libDirs, "lib-dir", nil, "directories searched for shared libraries or guest modules")
	flags.StringVar(&a.backend, "backend", "native", "library backend: native or wasm")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newDumpCommand(a),
		newInspectCommand(a),
		newCallCommand(a),
		newBrowseCommand(a),
		newShellCommand(a),
	)
	return root
}

func (a *app) setup() error {
	a.cfg = config.Load()
	if a.verbose {
		a.cfg.LogLevel = "debug"
	}
	log, err := a.cfg.Logger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.log = log
	installLogger(log)

	search := append(append([]string{}, a.typelibDirs...), a.cfg.TypelibPath...)
	a.repo = repository.New(repository.Options{SearchPath: search})
	if len(a.libDirs) == 0 {
		a.libDirs = a.cfg.LibraryPath
	}
	switch a.backend {
	case "native", "wasm":
	default:
		return fmt.Errorf("unknown backend %q", a.backend)
	}
	return nil
}

func (a *app) teardown() {
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Debug("repository close", zap.Error(err))
		}
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

// installLogger routes every package's diagnostics to log.
func installLogger(log *zap.Logger) {
	argument.SetLogger(log.Named("argument"))
	invoke.SetLogger(log.Named("invoke"))
	finalize.SetLogger(log.Named("finalize"))
	override.SetLogger(log.Named("override"))
	repository.SetLogger(log.Named("repository"))
	binding.SetLogger(log.Named("binding"))
	native.SetLogger(log.Named("native"))
	wasmlib.SetLogger(log.Named("wasmlib"))
}

// namespace loads "Name", "Name-Version" or a .typelib file.
func (a *app) namespace(target string) (*repository.Namespace, error) {
	if strings.HasSuffix(target, ".typelib") {
		tl, err := typelib.LoadFromFile(target)
		if err != nil {
			return nil, err
		}
		return a.repo.Register(tl)
	}
	name, version := target, ""
	if i := strings.LastIndex(target, "-"); i > 0 {
		name, version = target[:i], target[i+1:]
	}
	return a.repo.Require(name, version)
}

// runtime opens the namespace's library with the selected backend.
func (a *app) runtime(ctx context.Context, target string) (*binding.Runtime, *binding.Module, error) {
	ns, err := a.namespace(target)
	if err != nil {
		return nil, nil, err
	}
	opts := binding.Options{Repository: a.repo}
	if a.backend == "wasm" {
		cfg := wasmlib.DefaultConfig()
		opts.OpenLibrary = wasmlib.Opener(cfg, a.libDirs...)
	} else {
		opts.OpenLibrary = native.Opener(a.libDirs...)
	}
	rt := binding.New(opts)
	mod, err := rt.Require(ctx, ns.Name(), ns.Version())
	if err != nil {
		_ = rt.Close(ctx)
		return nil, nil, err
	}
	return rt, mod, nil
}
