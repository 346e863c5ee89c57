package repository

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	gierrors "github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

func writeTypelib(t *testing.T, dir string, b *typelib.Builder, ns, ver string) {
	t.Helper()
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("build %s-%s: %v", ns, ver, err)
	}
	if err := os.WriteFile(filepath.Join(dir, fileName(ns, ver)), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func baseBuilder(ver string) *typelib.Builder {
	return typelib.NewBuilder("Base", ver).
		Object(typelib.ObjectDef{Name: "Thing", GTypeName: "BaseThing"})
}

func demoBuilder() *typelib.Builder {
	return typelib.NewBuilder("Demo", "1.0").
		Dependency("Base", "2.0").
		Object(typelib.ObjectDef{Name: "Widget", GTypeName: "DemoWidget", Parent: "Base.Thing"})
}

// searchPath lays out Base 1.0 and 2.0 plus Demo 1.0 across two
// directories.
func searchPath(t *testing.T) []string {
	first, second := t.TempDir(), t.TempDir()
	writeTypelib(t, first, baseBuilder("1.0"), "Base", "1.0")
	writeTypelib(t, second, baseBuilder("2.0"), "Base", "2.0")
	writeTypelib(t, first, demoBuilder(), "Demo", "1.0")
	if err := os.WriteFile(filepath.Join(first, "Base-x.typelib"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	return []string{first, second}
}

func TestRequireLoadsDependencies(t *testing.T) {
	r := New(Options{SearchPath: searchPath(t)})
	defer r.Close()

	ns, err := r.Require("Demo", "1.0")
	if err != nil {
		t.Fatalf("Require: %v", err)
	}
	if ns.Name() != "Demo" || ns.Version() != "1.0" || ns.Path() == "" {
		t.Errorf("namespace = %s-%s at %q", ns.Name(), ns.Version(), ns.Path())
	}
	if got := r.LoadedNamespaces(); !reflect.DeepEqual(got, []string{"Base", "Demo"}) {
		t.Errorf("LoadedNamespaces = %v", got)
	}
	base, ok := r.Namespace("Base")
	if !ok || base.Version() != "2.0" {
		t.Fatalf("dependency not loaded at 2.0")
	}

	bi, err := ns.Find("Widget")
	if err != nil {
		t.Fatal(err)
	}
	defer bi.Unref()
	parent := bi.MustObject().ParentRef()
	if parent == nil {
		t.Fatal("no parent")
	}
	defer parent.Unref()
	if parent.Kind() != info.KindObject || parent.QualifiedName() != "Base.Thing" {
		t.Errorf("parent = %v (%v)", parent, parent.Kind())
	}
}

func TestRequireHighestVersion(t *testing.T) {
	r := New(Options{SearchPath: searchPath(t)})
	defer r.Close()
	ns, err := r.Require("Base", "")
	if err != nil {
		t.Fatal(err)
	}
	if ns.Version() != "2.0" {
		t.Errorf("Version = %s, want 2.0", ns.Version())
	}
	if _, err := r.Require("Base", "1.0"); !errors.Is(err, gierrors.ErrTypeMismatch) {
		t.Errorf("conflicting version: %v", err)
	}
	again, err := r.Require("Base", "")
	if err != nil || again != ns {
		t.Errorf("Require not cached: %v", err)
	}
}

func TestRequireMissing(t *testing.T) {
	dir := t.TempDir()
	writeTypelib(t, dir, typelib.NewBuilder("Lonely", "1.0").Dependency("Gone", "3.0"), "Lonely", "1.0")
	r := New(Options{SearchPath: []string{dir}})
	defer r.Close()

	tests := []struct {
		name, ns, ver string
	}{
		{"unknown namespace", "Nope", ""},
		{"unknown version", "Lonely", "9.0"},
		{"missing dependency", "Lonely", "1.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Require(tt.ns, tt.ver); !errors.Is(err, gierrors.ErrNotFound) {
				t.Errorf("Require = %v, want not found", err)
			}
		})
	}
	if len(r.LoadedNamespaces()) != 0 {
		t.Errorf("failed loads left %v", r.LoadedNamespaces())
	}
}

func TestRequireMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "Bad-1.0.typelib"), []byte("GOBJ\nMETADATA\r\n\x1a"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(Options{SearchPath: []string{dir}})
	if _, err := r.Require("Bad", "1.0"); !errors.Is(err, gierrors.ErrMalformedTypelib) {
		t.Errorf("Require = %v, want malformed", err)
	}
}

func TestRegisterAndResolve(t *testing.T) {
	r := New(Options{SearchPath: searchPath(t)})
	defer r.Close()
	tl, err := typelib.NewBuilder("Mem", "0.1").
		Struct(typelib.StructDef{Name: "Box", Size: 8}).
		Build()
	if err != nil {
		t.Fatal(err)
	}
	ns, err := r.Register(tl)
	if err != nil {
		t.Fatal(err)
	}
	if again, err := r.Register(tl); err != nil || again != ns {
		t.Errorf("re-register: %v", err)
	}
	other, _ := typelib.NewBuilder("Mem", "0.2").Build()
	if _, err := r.Register(other); err == nil {
		t.Error("second version of Mem accepted")
	}

	bi, err := r.Resolve("Mem", "Box")
	if err != nil {
		t.Fatal(err)
	}
	bi.Unref()

	// Base is not loaded yet and is required on demand.
	bi, err = r.Resolve("Base", "Thing")
	if err != nil {
		t.Fatal(err)
	}
	bi.Unref()

	bi, err = r.FindByGTypeName("BaseThing")
	if err != nil {
		t.Fatal(err)
	}
	if bi.Name() != "Thing" {
		t.Errorf("FindByGTypeName = %v", bi)
	}
	bi.Unref()
}

func TestCloseRefusesLiveInfos(t *testing.T) {
	r := New(Options{SearchPath: searchPath(t)})
	ns, err := r.Require("Base", "2.0")
	if err != nil {
		t.Fatal(err)
	}
	bi, err := ns.Find("Thing")
	if err != nil {
		t.Fatal(err)
	}
	if err := ns.Close(); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindRefCount}) {
		t.Errorf("Close with live info = %v", err)
	}
	bi.Unref()
	if err := ns.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := r.Namespace("Base"); ok {
		t.Error("closed namespace still registered")
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Require("Base", ""); !errors.Is(err, &gierrors.Error{Kind: gierrors.KindClosed}) {
		t.Errorf("Require after Close = %v", err)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		ok   bool
	}{
		{"2.0", Version{2, 0, 0}, true},
		{"3", Version{3, 0, 0}, true},
		{"1.2.3", Version{1, 2, 3}, true},
		{"", Version{}, false},
		{"1..2", Version{}, false},
		{"1.2.3.4", Version{}, false},
		{"+1.0", Version{}, false},
		{"4294967296", Version{}, false},
		{"x", Version{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseVersion(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseVersion(%q) = %v, %v", tt.in, got, ok)
		}
	}
	a, _ := ParseVersion("2.10")
	b, _ := ParseVersion("2.9")
	if a.Compare(b) != 1 || b.Compare(a) != -1 || a.Compare(a) != 0 {
		t.Error("Compare ordering")
	}
	if a.String() != "2.10" {
		t.Errorf("String = %s", a)
	}
}

func TestSplitRequirement(t *testing.T) {
	tests := []struct {
		in, ns, ver string
		ok          bool
	}{
		{"GLib-2.0", "GLib", "2.0", true},
		{"Gtk-Source-5", "Gtk-Source", "5", true},
		{"GLib", "", "", false},
		{"-2.0", "", "", false},
		{"GLib-", "", "", false},
	}
	for _, tt := range tests {
		ns, ver, ok := SplitRequirement(tt.in)
		if ns != tt.ns || ver != tt.ver || ok != tt.ok {
			t.Errorf("SplitRequirement(%q) = %q %q %v", tt.in, ns, ver, ok)
		}
	}
}
