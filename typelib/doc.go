// Package typelib reads compiled GObject-Introspection typelib images.
//
// A typelib is a packed little-endian image: a fixed header, a directory of
// named entries, and variable-length blobs describing functions, types and
// their members. Images are validated once at load and are read-only
// afterwards:
//
//	tl, err := typelib.LoadFromFile("/usr/lib/girepository-1.0/GLib-2.0.typelib")
//	if err != nil {
//	    return err
//	}
//	entry, ok := tl.FindEntry("MainLoop")
//
// Every read is bounds checked against the declared image size, so a
// corrupt offset yields zero values rather than a fault.
//
// Builder produces valid images from Go definitions. It backs synthetic
// namespaces for libraries that ship without a compiled typelib and the
// fixtures used in tests.
package typelib
