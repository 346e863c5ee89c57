package config

import (
	"reflect"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestLoad(t *testing.T) {
	t.Setenv(EnvTypelibPath, "/a:/b::/a")
	t.Setenv(EnvLibraryPath, "/lib")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvWasmMemoryPages, "256")

	c := Load()
	if !reflect.DeepEqual(c.TypelibPath[:2], []string{"/a", "/b"}) {
		t.Errorf("TypelibPath = %v", c.TypelibPath)
	}
	if len(c.TypelibPath) != 2+len(DefaultTypelibDirs) {
		t.Errorf("defaults not appended: %v", c.TypelibPath)
	}
	if !reflect.DeepEqual(c.LibraryPath, []string{"/lib"}) {
		t.Errorf("LibraryPath = %v", c.LibraryPath)
	}
	if c.Level() != zapcore.DebugLevel || !c.LogJSON {
		t.Errorf("level %v json %v", c.Level(), c.LogJSON)
	}
	if c.WasmMemoryPages != 256 {
		t.Errorf("WasmMemoryPages = %d", c.WasmMemoryPages)
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv(EnvTypelibPath, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvWasmMemoryPages, "-4")

	c := Load()
	if !reflect.DeepEqual(c.TypelibPath, DefaultTypelibDirs) {
		t.Errorf("TypelibPath = %v", c.TypelibPath)
	}
	if c.Level() != zapcore.WarnLevel {
		t.Errorf("Level = %v", c.Level())
	}
	if c.WasmMemoryPages != 0 {
		t.Errorf("WasmMemoryPages = %d", c.WasmMemoryPages)
	}
}

func TestLoadSeesChanges(t *testing.T) {
	for _, level := range []string{"error", "info", "debug"} {
		t.Setenv(EnvLogLevel, level)
		if got := Load().LogLevel; got != level {
			t.Errorf("LogLevel = %q after setting %q", got, level)
		}
	}
	t.Setenv(EnvWasmMemoryPages, "32")
	if got := Load().WasmMemoryPages; got != 32 {
		t.Errorf("WasmMemoryPages = %d, want 32", got)
	}
}

func TestLevelFallback(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel},
		{"loud", zapcore.WarnLevel},
	}
	for _, tt := range tests {
		if got := (Config{LogLevel: tt.in}).Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogger(t *testing.T) {
	for _, json := range []bool{false, true} {
		l, err := Config{LogLevel: "info", LogJSON: json}.Logger()
		if err != nil {
			t.Fatalf("Logger(json=%v): %v", json, err)
		}
		if !l.Core().Enabled(zapcore.InfoLevel) || l.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("json=%v: wrong level", json)
		}
	}
}
