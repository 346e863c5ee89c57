// Package giruntime provides a dynamic GObject-Introspection binding core for Go.
//
// The library reads compiled GI typelibs at runtime and calls into the C
// libraries they describe without generating static bindings at build time.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	giruntime/         Root package with Memory, Allocator, Library and Function contracts
//	├── typelib/       Typelib binary reader, symbol table and image builder
//	├── info/          Base info handles and the specialized info views
//	├── repository/    Namespace loading, search path and caching
//	├── argument/      Generic argument union and primitive marshaling
//	├── invoke/        Call-frame construction and foreign calls
//	├── finalize/      Exactly-once native destructor registry
//	├── override/      Per-namespace replacement definitions
//	├── binding/       Host-facing classes, objects, boxed values, enums and flags
//	├── native/        Shared-object backend (dlopen + typed foreign calls)
//	├── wasmlib/       WebAssembly backend for libraries compiled to wasm
//	├── hostlib/       Backend whose symbols are Go functions
//	├── errors/        Structured error types
//	└── cmd/gir/       Command line inspector and caller
//
// # Quick Start
//
//	repo := repository.New(repository.Options{})
//	defer repo.Close()
//
//	rt := binding.New(binding.Options{
//	    Repository:  repo,
//	    OpenLibrary: native.Opener(),
//	})
//	defer rt.Close(ctx)
//
//	mod, err := rt.Require(ctx, "GLib", "2.0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := mod.Call(ctx, "get_user_name")
//	fmt.Println(result) // [alice]
//
// # Ownership
//
// Native values returned with transfer "everything" are owned by their Go
// wrapper and released exactly once, either explicitly through Release or when
// the wrapper becomes unreachable. Borrowed values never trigger a destructor.
//
// # Thread Safety
//
// Typelibs, infos and modules are read-only after load and safe for concurrent
// use. Libraries backed by a single wasm instance serialize their calls.
package giruntime
