package typelib

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/typelib/internal/binary"
)

// Typelib is a validated, read-only typelib image.
//
// All accessors are bounds checked against the declared image size: reads
// past it return zero values. A Typelib is safe for concurrent use.
type Typelib struct {
	r         atomic.Pointer[binary.Reader]
	release   func() error
	symbols   map[string]uint32
	gtypes    map[string]uint16
	namespace string
	version   string
	directory uint32
	nEntries  uint16
	nLocal    uint16
	sorted    bool
}

// DirEntry is one directory entry. Index is 1-based.
type DirEntry struct {
	Name string
	// Namespace is set for entries that live in another typelib.
	Namespace string
	Offset    uint32
	Index     uint16
	Type      BlobType
	Local     bool
}

// Attribute is a key/value annotation attached to a blob.
type Attribute struct {
	Name  string
	Value string
}

// LoadFromMemory validates buf and returns a Typelib reading it in place.
// The caller must keep buf unmodified for the Typelib's lifetime.
func LoadFromMemory(buf []byte) (*Typelib, error) {
	return load(buf, nil)
}

// LoadFromBytes is LoadFromMemory over a private copy of buf.
func LoadFromBytes(buf []byte) (*Typelib, error) {
	cp := make([]byte, len(buf))
	copy(cp, buf)
	return load(cp, nil)
}

// LoadFromFile loads a typelib file, memory-mapping it where supported.
func LoadFromFile(path string) (*Typelib, error) {
	data, release, err := mapFile(path)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("open %s", path), err)
	}
	t, err := load(data, release)
	if err != nil {
		if release != nil {
			_ = release()
		}
		return nil, err
	}
	return t, nil
}

func malformed(cause error, format string, args ...any) *errors.Error {
	e := errors.MalformedTypelib(format, args...)
	e.Cause = cause
	return e
}

func load(buf []byte, release func() error) (*Typelib, error) {
	if len(buf) < HeaderSize {
		return nil, malformed(nil, "image of %d bytes is shorter than the %d byte header", len(buf), HeaderSize)
	}
	if string(buf[:len(Magic)]) != Magic {
		return nil, malformed(nil, "bad magic")
	}
	hdr := binary.NewReader(buf, HeaderSize)
	if major := hdr.U8(hdrMajor); major != MajorVersion {
		return nil, malformed(nil, "unsupported major version %d", major)
	}
	size := hdr.U32(hdrSize)
	if size < HeaderSize || uint64(size) > uint64(len(buf)) {
		return nil, malformed(nil, "declared size %d exceeds buffer length %d", size, len(buf))
	}
	for i, want := range blobSizeTable {
		if got := hdr.U16(hdrBlobSizes + uint32(i)*2); got != want {
			return nil, malformed(nil, "blob size field %d is %d, want %d", i, got, want)
		}
	}

	r := binary.NewReader(buf, size)
	t := &Typelib{
		release:   release,
		nEntries:  r.U16(hdrNEntries),
		nLocal:    r.U16(hdrNLocalEntries),
		directory: r.U32(hdrDirectory),
	}
	t.r.Store(r)

	if t.nLocal > t.nEntries {
		return nil, malformed(nil, "%d local entries exceed %d entries", t.nLocal, t.nEntries)
	}
	if err := r.Check("directory", t.directory, uint32(t.nEntries)*EntryBlobSize); err != nil {
		return nil, malformed(err, "directory out of bounds")
	}
	if t.directory < HeaderSize && t.nEntries > 0 {
		return nil, malformed(nil, "directory overlaps header")
	}
	if err := r.Check("attributes", r.U32(hdrAttributes), r.U32(hdrNAttributes)*AttributeBlobSize); err != nil {
		return nil, malformed(err, "attributes out of bounds")
	}

	ns, ok := r.CString(r.U32(hdrNamespace))
	if !ok || ns == "" {
		return nil, malformed(nil, "missing namespace string")
	}
	t.namespace = ns
	t.version = r.String(r.U32(hdrNSVersion))

	if err := t.validateDirectory(r); err != nil {
		return nil, err
	}
	t.buildIndexes()
	return t, nil
}

var blobSizeTable = [hdrBlobSizesCount]uint16{
	EntryBlobSize, FunctionBlobSize, CallbackBlobSize, SignalBlobSize,
	VFuncBlobSize, ArgBlobSize, PropertyBlobSize, FieldBlobSize,
	ValueBlobSize, AttributeBlobSize, ConstantBlobSize, ErrorDomainBlobSize,
	SignatureBlobSize, EnumBlobSize, StructBlobSize, ObjectBlobSize,
	InterfaceBlobSize, UnionBlobSize,
}

func (t *Typelib) validateDirectory(r *binary.Reader) error {
	t.sorted = true
	prev := ""
	for i := uint16(1); i <= t.nEntries; i++ {
		e := t.directory + uint32(i-1)*EntryBlobSize
		bt := BlobType(r.U16(e))
		local := r.U16(e+2)&1 != 0
		name, ok := r.CString(r.U32(e + 4))
		if !ok {
			return malformed(nil, "entry %d: bad name offset", i)
		}
		off := r.U32(e + 8)
		if i <= t.nLocal {
			if !local {
				return malformed(nil, "entry %d: expected local entry", i)
			}
			if !bt.Valid() {
				return malformed(nil, "entry %d (%s): invalid blob type %d", i, name, bt)
			}
			if err := r.Check(name, off, bt.minBlobSize()); err != nil {
				return malformed(err, "entry %d (%s): blob out of bounds", i, name)
			}
			if off < HeaderSize {
				return malformed(nil, "entry %d (%s): blob overlaps header", i, name)
			}
			if !sameBlob(BlobType(r.U16(off)), bt) {
				return malformed(nil, "entry %d (%s): blob type %d does not match directory type %s", i, name, r.U16(off), bt)
			}
			if name < prev {
				t.sorted = false
			}
			prev = name
			continue
		}
		if local {
			return malformed(nil, "entry %d (%s): local entry after non-local entries", i, name)
		}
		if _, ok := r.CString(off); !ok {
			return malformed(nil, "entry %d (%s): bad namespace offset", i, name)
		}
	}
	return nil
}

// sameBlob reports whether a blob header agrees with its directory type.
// Boxed types are stored as struct blobs.
func sameBlob(blob, dir BlobType) bool {
	if blob == dir {
		return true
	}
	isStruct := func(b BlobType) bool { return b == BlobStruct || b == BlobBoxed }
	return isStruct(blob) && isStruct(dir)
}

// buildIndexes indexes each blob once; entries aliasing an earlier
// entry's blob are skipped.
func (t *Typelib) buildIndexes() {
	t.symbols = make(map[string]uint32)
	t.gtypes = make(map[string]uint16)
	seen := make(map[uint32]struct{}, t.nLocal)
	for i := uint16(1); i <= t.nLocal; i++ {
		e, _ := t.Entry(i)
		if _, dup := seen[e.Offset]; dup {
			continue
		}
		seen[e.Offset] = struct{}{}
		switch e.Type {
		case BlobFunction:
			t.addSymbol(e.Offset)
		case BlobStruct, BlobBoxed, BlobUnion, BlobEnum, BlobFlags, BlobObject, BlobInterface:
			if g := t.CString(t.U32(e.Offset + 8)); g != "" {
				t.gtypes[g] = i
			}
			m := t.Members(e.Offset)
			for j := 0; j < m.Methods.Count; j++ {
				t.addSymbol(m.Methods.At(j))
			}
		}
	}
}

func (t *Typelib) addSymbol(fn uint32) {
	if sym := t.CString(t.U32(fn + 8)); sym != "" {
		if _, dup := t.symbols[sym]; !dup {
			t.symbols[sym] = fn
		}
	}
}

func (t *Typelib) reader() *binary.Reader {
	return t.r.Load()
}

// Close releases the image mapping. Reads after Close return zero values.
func (t *Typelib) Close() error {
	t.r.Store(binary.NewReader(nil, 0))
	if t.release != nil {
		rel := t.release
		t.release = nil
		return rel()
	}
	return nil
}

// Size returns the declared image size.
func (t *Typelib) Size() uint32 { return t.reader().Limit() }

// Namespace returns the namespace name.
func (t *Typelib) Namespace() string { return t.namespace }

// Version returns the namespace version.
func (t *Typelib) Version() string { return t.version }

// MinorVersion returns the format minor version.
func (t *Typelib) MinorVersion() uint8 { return t.U8(hdrMinor) }

// CPrefix returns the C identifier prefix, if recorded.
func (t *Typelib) CPrefix() string { return t.CString(t.U32(hdrCPrefix)) }

// SharedLibraries returns the shared objects holding the namespace's symbols.
func (t *Typelib) SharedLibraries() []string {
	return splitList(t.CString(t.U32(hdrSharedLibrary)), ",")
}

// Dependencies returns the namespaces this one depends on as "Name-Version".
func (t *Typelib) Dependencies() []string {
	return splitList(t.CString(t.U32(hdrDependencies)), "|")
}

func splitList(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NumEntries returns the number of directory entries, local and foreign.
func (t *Typelib) NumEntries() int { return int(t.nEntries) }

// NumLocalEntries returns the number of entries defined in this typelib.
func (t *Typelib) NumLocalEntries() int { return int(t.nLocal) }

// Entry returns the directory entry with the given 1-based index.
func (t *Typelib) Entry(index uint16) (DirEntry, bool) {
	if index == 0 || index > t.nEntries {
		return DirEntry{}, false
	}
	e := t.directory + uint32(index-1)*EntryBlobSize
	d := DirEntry{
		Index:  index,
		Type:   BlobType(t.U16(e)),
		Local:  t.U16(e+2)&1 != 0,
		Name:   t.CString(t.U32(e + 4)),
		Offset: t.U32(e + 8),
	}
	if !d.Local {
		d.Namespace = t.CString(d.Offset)
		d.Offset = 0
	}
	return d, true
}

// FindEntry looks up a local entry by name.
func (t *Typelib) FindEntry(name string) (DirEntry, bool) {
	if t.sorted {
		n := int(t.nLocal)
		i := sort.Search(n, func(i int) bool {
			return t.entryName(uint16(i+1)) >= name
		})
		if i < n && t.entryName(uint16(i+1)) == name {
			return t.Entry(uint16(i + 1))
		}
		return DirEntry{}, false
	}
	for i := uint16(1); i <= t.nLocal; i++ {
		if t.entryName(i) == name {
			return t.Entry(i)
		}
	}
	return DirEntry{}, false
}

func (t *Typelib) entryName(index uint16) string {
	return t.CString(t.U32(t.directory + uint32(index-1)*EntryBlobSize + 4))
}

// FindByGTypeName looks up a registered type by its GType name.
func (t *Typelib) FindByGTypeName(name string) (DirEntry, bool) {
	if i, ok := t.gtypes[name]; ok {
		return t.Entry(i)
	}
	return DirEntry{}, false
}

// FunctionBySymbol returns the offset of the function blob exporting symbol.
func (t *Typelib) FunctionBySymbol(symbol string) (uint32, bool) {
	off, ok := t.symbols[symbol]
	return off, ok
}

// Symbols returns every exported symbol name, sorted.
func (t *Typelib) Symbols() []string {
	out := make([]string, 0, len(t.symbols))
	for s := range t.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Attributes returns the attributes attached to the blob at offset.
func (t *Typelib) Attributes(offset uint32) []Attribute {
	n := int(t.U32(hdrNAttributes))
	base := t.U32(hdrAttributes)
	at := func(i int) uint32 { return base + uint32(i)*AttributeBlobSize }
	i := sort.Search(n, func(i int) bool { return t.U32(at(i)) >= offset })
	var out []Attribute
	for ; i < n && t.U32(at(i)) == offset; i++ {
		out = append(out, Attribute{
			Name:  t.CString(t.U32(at(i) + 4)),
			Value: t.CString(t.U32(at(i) + 8)),
		})
	}
	return out
}

// U8 reads a byte at off.
func (t *Typelib) U8(off uint32) uint8 { return t.reader().U8(off) }

// I8 reads a signed byte at off.
func (t *Typelib) I8(off uint32) int8 { return t.reader().I8(off) }

// U16 reads a uint16 at off.
func (t *Typelib) U16(off uint32) uint16 { return t.reader().U16(off) }

// U32 reads a uint32 at off.
func (t *Typelib) U32(off uint32) uint32 { return t.reader().U32(off) }

// I32 reads an int32 at off.
func (t *Typelib) I32(off uint32) int32 { return t.reader().I32(off) }

// U64 reads a uint64 at off.
func (t *Typelib) U64(off uint32) uint64 { return t.reader().U64(off) }

// Bytes returns n bytes at off, nil when out of bounds.
func (t *Typelib) Bytes(off, n uint32) []byte { return t.reader().Bytes(off, n) }

// CString reads the NUL terminated string at off, "" when absent.
func (t *Typelib) CString(off uint32) string { return t.reader().String(off) }

func (t *Typelib) String() string {
	return t.namespace + "-" + t.version
}
