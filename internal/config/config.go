// Package config reads the runtime configuration from the environment.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/xyproto/env/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Environment variables understood by Load.
const (
	EnvTypelibPath     = "GI_TYPELIB_PATH"
	EnvLogLevel        = "GIR_LOG_LEVEL"
	EnvLogJSON         = "GIR_LOG_JSON"
	EnvLibraryPath     = "GIR_LIBRARY_PATH"
	EnvWasmMemoryPages = "GIR_WASM_MEMORY_PAGES"
)

// DefaultTypelibDirs are searched after GI_TYPELIB_PATH.
var DefaultTypelibDirs = []string{
	"/usr/lib/girepository-1.0",
	"/usr/lib64/girepository-1.0",
	"/usr/lib/x86_64-linux-gnu/girepository-1.0",
	"/usr/lib/aarch64-linux-gnu/girepository-1.0",
	"/usr/local/lib/girepository-1.0",
	"/opt/homebrew/lib/girepository-1.0",
}

type Config struct {
	// TypelibPath lists the directories searched for .typelib files, in
	// priority order.
	TypelibPath []string
	// LibraryPath lists extra directories searched for shared objects.
	LibraryPath []string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogJSON selects the production JSON encoder.
	LogJSON bool
	// WasmMemoryPages caps guest memory in 64KiB pages. 0 means no cap.
	WasmMemoryPages uint32
}

// Load reads the configuration from the process environment as it is
// now; variables set since the previous Load are seen.
func Load() Config {
	env.Load()
	c := Config{
		TypelibPath: append(SplitList(env.Str(EnvTypelibPath)), DefaultTypelibDirs...),
		LibraryPath: SplitList(env.Str(EnvLibraryPath)),
		LogLevel:    strings.ToLower(env.Str(EnvLogLevel, "warn")),
		LogJSON:     env.Bool(EnvLogJSON),
	}
	if pages := env.Int(EnvWasmMemoryPages, 0); pages > 0 && pages <= 65536 {
		c.WasmMemoryPages = uint32(pages)
	}
	return c
}

// SplitList splits a PATH-style list, dropping empty elements and
// duplicates.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, p := range filepath.SplitList(s) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Level parses LogLevel, defaulting to warn.
func (c Config) Level() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.WarnLevel
	}
	return lvl
}

// Logger builds the zap logger the configuration describes. Output goes
// to stderr.
func (c Config) Logger() (*zap.Logger, error) {
	var zc zap.Config
	if c.LogJSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if isTerminal(os.Stderr) {
			zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
	}
	zc.Level = zap.NewAtomicLevelAt(c.Level())
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
