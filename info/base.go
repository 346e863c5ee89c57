package info

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/typelib"
)

// Resolver resolves entities of other namespaces. Resolve returns a new
// reference the caller must Unref.
type Resolver interface {
	Resolve(namespace, name string) (*BaseInfo, error)
}

// Source hands out infos over one typelib and counts the live ones.
// It is safe for concurrent use.
type Source struct {
	tl       *typelib.Typelib
	resolver Resolver
	live     atomic.Int64
}

// NewSource creates a Source over tl. resolver may be nil, in which case
// references into other namespaces stay unresolved.
func NewSource(tl *typelib.Typelib, resolver Resolver) *Source {
	return &Source{tl: tl, resolver: resolver}
}

// Typelib returns the underlying typelib.
func (s *Source) Typelib() *typelib.Typelib { return s.tl }

// Namespace returns the namespace name.
func (s *Source) Namespace() string { return s.tl.Namespace() }

// Live returns the number of infos not yet released.
func (s *Source) Live() int64 { return s.live.Load() }

// Len returns the number of entities defined by the namespace.
func (s *Source) Len() int { return s.tl.NumLocalEntries() }

// Info returns the i-th entity (0-based).
func (s *Source) Info(i int) (*BaseInfo, error) {
	if i < 0 || i >= s.Len() {
		return nil, errors.OutOfBounds(errors.PhaseLookup, []string{s.Namespace()}, i, s.Len())
	}
	return s.entry(uint16(i+1), nil), nil
}

// Find returns the entity named name.
func (s *Source) Find(name string) (*BaseInfo, error) {
	e, ok := s.tl.FindEntry(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLookup, "entity", s.Namespace()+"."+name)
	}
	return s.entry(e.Index, nil), nil
}

// FindByGTypeName returns the registered type whose GType name is name.
func (s *Source) FindByGTypeName(name string) (*BaseInfo, error) {
	e, ok := s.tl.FindByGTypeName(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseLookup, "GType", name)
	}
	return s.entry(e.Index, nil), nil
}

// entry materializes the directory entry at index, resolving foreign
// entries through the resolver.
func (s *Source) entry(index uint16, container *BaseInfo) *BaseInfo {
	e, ok := s.tl.Entry(index)
	if !ok {
		return s.newInfo(KindInvalid, 0, container)
	}
	if e.Local {
		return s.newInfo(kindOfBlob(e.Type), e.Offset, container)
	}
	if s.resolver != nil {
		if bi, err := s.resolver.Resolve(e.Namespace, e.Name); err == nil && bi != nil {
			return bi
		}
	}
	bi := s.newInfo(KindUnresolved, 0, container)
	bi.name = e.Name
	bi.namespace = e.Namespace
	return bi
}

func (s *Source) newInfo(kind InfoKind, offset uint32, container *BaseInfo) *BaseInfo {
	bi := &BaseInfo{src: s, kind: kind, offset: offset, container: container}
	bi.refs.Store(1)
	s.live.Add(1)
	return bi
}

// BaseInfo is a reference-counted handle to one entity of a typelib.
//
// The handle borrows the typelib image owned by its namespace. Every
// accessor returning a new info hands the caller one reference, which must
// be released exactly once with Unref. Releasing more often panics.
type BaseInfo struct {
	src       *Source
	container *BaseInfo
	members   *typelib.Members
	name      string
	namespace string
	once      sync.Once
	refs      atomic.Int32
	offset    uint32
	kind      InfoKind
	// embedded marks a type info standing for a field's inline callback.
	embedded bool
}

// Kind returns the discriminant used for downcasting.
func (b *BaseInfo) Kind() InfoKind { return b.kind }

// Typelib returns the typelib holding the entity.
func (b *BaseInfo) Typelib() *typelib.Typelib { return b.src.tl }

// Source returns the source the info was created from.
func (b *BaseInfo) Source() *Source { return b.src }

// Offset returns the blob offset inside the typelib.
func (b *BaseInfo) Offset() uint32 { return b.offset }

// Container returns the enclosing entity, nil for top-level entities.
// The container is not referenced on the caller's behalf.
func (b *BaseInfo) Container() *BaseInfo { return b.container }

// Namespace returns the namespace the entity belongs to.
func (b *BaseInfo) Namespace() string {
	if b.kind == KindUnresolved {
		return b.namespace
	}
	return b.src.tl.Namespace()
}

// Name returns the entity name; type infos have none.
func (b *BaseInfo) Name() string {
	t := b.src.tl
	switch b.kind {
	case KindUnresolved:
		return b.name
	case KindFunction, KindCallback, KindStruct, KindBoxed, KindEnum, KindFlags,
		KindObject, KindInterface, KindConstant, KindUnion, KindValue, KindSignal:
		return t.CString(t.U32(b.offset + 4))
	case KindVFunc, KindProperty, KindField, KindArg:
		return t.CString(t.U32(b.offset))
	}
	return ""
}

// QualifiedName returns "Namespace.Name", prefixed by the container for members.
func (b *BaseInfo) QualifiedName() string {
	if b.container != nil && b.container.kind != KindType {
		return b.container.QualifiedName() + "." + b.Name()
	}
	return b.Namespace() + "." + b.Name()
}

func (b *BaseInfo) String() string {
	return fmt.Sprintf("%s %s", b.kind, b.QualifiedName())
}

// IsDeprecated reports the deprecation flag.
func (b *BaseInfo) IsDeprecated() bool {
	t := b.src.tl
	switch b.kind {
	case KindFunction, KindCallback, KindStruct, KindBoxed, KindEnum, KindFlags,
		KindObject, KindInterface, KindConstant, KindUnion:
		return t.U16(b.offset+2)&1 != 0
	case KindValue:
		return t.U32(b.offset)&1 != 0
	case KindSignal:
		return t.U16(b.offset)&1 != 0
	case KindProperty:
		return t.U32(b.offset+4)&1 != 0
	}
	return false
}

// Attribute returns the value of the named attribute.
func (b *BaseInfo) Attribute(name string) (string, bool) {
	for _, a := range b.Attributes() {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attributes returns every attribute attached to the entity.
func (b *BaseInfo) Attributes() []typelib.Attribute {
	if b.kind == KindUnresolved || b.kind == KindType {
		return nil
	}
	return b.src.tl.Attributes(b.offset)
}

// Equal reports whether both handles describe the same entity.
func (b *BaseInfo) Equal(o *BaseInfo) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.kind == KindUnresolved || o.kind == KindUnresolved {
		return b.Namespace() == o.Namespace() && b.Name() == o.Name()
	}
	return b.src.tl == o.src.tl && b.offset == o.offset && b.kind == o.kind && b.embedded == o.embedded
}

// Ref adds a reference and returns b.
func (b *BaseInfo) Ref() *BaseInfo {
	for {
		n := b.refs.Load()
		if n <= 0 {
			panic(refError(b, "ref of released info"))
		}
		if b.refs.CompareAndSwap(n, n+1) {
			return b
		}
	}
}

// Unref releases one reference. Releasing a handle more often than it was
// referenced panics.
func (b *BaseInfo) Unref() {
	n := b.refs.Add(-1)
	switch {
	case n == 0:
		b.src.live.Add(-1)
	case n < 0:
		panic(refError(b, "unref of released info"))
	}
}

// RefCount returns the current reference count.
func (b *BaseInfo) RefCount() int32 { return b.refs.Load() }

func refError(b *BaseInfo, msg string) *errors.Error {
	return errors.New(errors.PhaseRuntime, errors.KindRefCount).
		Path(b.Namespace(), b.Name()).
		Detail("%s", msg).
		Build()
}

// child creates a member info contained in b.
func (b *BaseInfo) child(kind InfoKind, offset uint32) *BaseInfo {
	return b.src.newInfo(kind, offset, b)
}

// layout returns the cached member layout of a compound blob.
func (b *BaseInfo) layout() *typelib.Members {
	b.once.Do(func() {
		m := b.src.tl.Members(b.offset)
		b.members = &m
	})
	return b.members
}

// resolve materializes the directory entry at index in b's namespace.
func (b *BaseInfo) resolve(index uint16) *BaseInfo {
	return b.src.entry(index, nil)
}
