package typelib

// TypeDef describes a type to the Builder.
type TypeDef struct {
	// Interface names the referenced entity for TagInterface: "Name" for
	// entities of the namespace being built, "Namespace.Name" otherwise.
	Interface string
	// Params holds the array element type, the GList/GSList element type,
	// or the GHashTable key and value types.
	Params         []TypeDef
	Length         int
	FixedSize      int
	Tag            TypeTag
	ArrayType      ArrayType
	Pointer        bool
	HasLength      bool
	HasFixedSize   bool
	ZeroTerminated bool
}

// Basic returns a basic type. Strings are pointers.
func Basic(tag TypeTag) TypeDef {
	return TypeDef{Tag: tag, Pointer: tag == TagUTF8 || tag == TagFilename}
}

// Ref returns a pointer to the named entity (objects, boxed types, callbacks).
func Ref(name string) TypeDef {
	return TypeDef{Tag: TagInterface, Interface: name, Pointer: true}
}

// ValueRef returns the named entity by value (enums, flags, inline structs).
func ValueRef(name string) TypeDef {
	return TypeDef{Tag: TagInterface, Interface: name}
}

// CArray returns a C array of elem.
func CArray(elem TypeDef) TypeDef {
	return TypeDef{Tag: TagArray, Pointer: true, ArrayType: ArrayC, Params: []TypeDef{elem}}
}

// List returns a GList of elem.
func List(elem TypeDef) TypeDef {
	return TypeDef{Tag: TagGList, Pointer: true, Params: []TypeDef{elem}}
}

// SList returns a GSList of elem.
func SList(elem TypeDef) TypeDef {
	return TypeDef{Tag: TagGSList, Pointer: true, Params: []TypeDef{elem}}
}

// Hash returns a GHashTable from key to value.
func Hash(key, value TypeDef) TypeDef {
	return TypeDef{Tag: TagGHash, Pointer: true, Params: []TypeDef{key, value}}
}

// GError returns the GError type.
func GError() TypeDef {
	return TypeDef{Tag: TagError, Pointer: true}
}

// WithLength marks an array whose length is passed in argument index i.
func (t TypeDef) WithLength(i int) TypeDef {
	t.Length, t.HasLength = i, true
	return t
}

// WithFixedSize marks an array of exactly n elements.
func (t TypeDef) WithFixedSize(n int) TypeDef {
	t.FixedSize, t.HasFixedSize = n, true
	return t
}

// WithZeroTerminated marks an array terminated by a zero element.
func (t TypeDef) WithZeroTerminated() TypeDef {
	t.ZeroTerminated = true
	return t
}

// WithPointer overrides the pointer flag.
func (t TypeDef) WithPointer(p bool) TypeDef {
	t.Pointer = p
	return t
}

// ArgDef describes a callable argument. Closure and Destroy are argument
// indices, -1 when absent; use In, Out or InOut to get those defaults.
type ArgDef struct {
	Name            string
	Type            TypeDef
	Closure         int
	Destroy         int
	Direction       Direction
	Transfer        Transfer
	Scope           ScopeType
	Nullable        bool
	Optional        bool
	CallerAllocates bool
	ReturnValue     bool
	Skip            bool
}

// In returns an input argument.
func In(name string, t TypeDef) ArgDef {
	return ArgDef{Name: name, Type: t, Direction: DirectionIn, Closure: -1, Destroy: -1}
}

// Out returns an output argument.
func Out(name string, t TypeDef) ArgDef {
	return ArgDef{Name: name, Type: t, Direction: DirectionOut, Closure: -1, Destroy: -1}
}

// InOut returns an in/out argument.
func InOut(name string, t TypeDef) ArgDef {
	return ArgDef{Name: name, Type: t, Direction: DirectionInOut, Closure: -1, Destroy: -1}
}

// SignatureDef is the part shared by every callable.
type SignatureDef struct {
	Args             []ArgDef
	Return           TypeDef
	ReturnTransfer   Transfer
	InstanceTransfer Transfer
	MayReturnNull    bool
	SkipReturn       bool
	Throws           bool
}

// FunctionDef describes a function, method or constructor.
type FunctionDef struct {
	Name   string
	Symbol string
	// Property names the property a getter or setter accessor belongs to.
	Property string
	// VFunc names the virtual function a wrapper invokes.
	VFunc      string
	Attributes []Attribute
	SignatureDef
	Method      bool
	Constructor bool
	Getter      bool
	Setter      bool
	Deprecated  bool
}

// CallbackDef describes a callback type.
type CallbackDef struct {
	Name       string
	Attributes []Attribute
	SignatureDef
	Deprecated bool
}

// ValueDef is one enum or flags member.
type ValueDef struct {
	Name       string
	Value      int64
	Deprecated bool
}

// EnumDef describes an enumeration or a flags type.
type EnumDef struct {
	Name        string
	GTypeName   string
	GTypeInit   string
	ErrorDomain string
	Values      []ValueDef
	Methods     []FunctionDef
	Attributes  []Attribute
	// Storage is the integer tag backing the type, TagVoid for the default.
	Storage    TypeTag
	Flags      bool
	Deprecated bool
}

// FieldDef describes a struct, union or object field.
type FieldDef struct {
	Name string
	Type TypeDef
	// Callback is set for fields holding an anonymous function pointer type.
	Callback *CallbackDef
	// Offset is the byte offset, used only with explicit layout.
	Offset   int
	Bits     uint8
	Readable bool
	Writable bool
}

// StructDef describes a struct or boxed type. Field offsets and the size
// are computed with natural alignment unless ExplicitLayout is set.
type StructDef struct {
	Name           string
	GTypeName      string
	GTypeInit      string
	CopyFunc       string
	FreeFunc       string
	Fields         []FieldDef
	Methods        []FunctionDef
	Attributes     []Attribute
	Size           uint32
	Alignment      uint8
	ExplicitLayout bool
	Boxed          bool
	GTypeStruct    bool
	Foreign        bool
	Deprecated     bool
}

// DiscriminatorDef describes how a union's active member is selected.
type DiscriminatorDef struct {
	Type   TypeDef
	Values []ConstantDef
	Offset int32
}

// UnionDef describes a union. Without ExplicitLayout every field sits at
// offset zero.
type UnionDef struct {
	Name           string
	GTypeName      string
	GTypeInit      string
	CopyFunc       string
	FreeFunc       string
	Fields         []FieldDef
	Methods        []FunctionDef
	Discriminator  *DiscriminatorDef
	Attributes     []Attribute
	Size           uint32
	Alignment      uint8
	ExplicitLayout bool
	Deprecated     bool
}

// PropertyDef describes an object or interface property. Getter and Setter
// name accessor methods of the owner.
type PropertyDef struct {
	Name          string
	Type          TypeDef
	Getter        string
	Setter        string
	Transfer      Transfer
	Readable      bool
	Writable      bool
	Construct     bool
	ConstructOnly bool
	Deprecated    bool
}

// SignalDef describes a signal. ClassClosure names the owner's vfunc.
type SignalDef struct {
	Name         string
	ClassClosure string
	SignatureDef
	RunFirst      bool
	RunLast       bool
	RunCleanup    bool
	NoRecurse     bool
	Detailed      bool
	Action        bool
	NoHooks       bool
	TrueStopsEmit bool
	Deprecated    bool
}

// VFuncDef describes a virtual function. Invoker names the owner's method
// that calls it, Signal the signal it implements.
type VFuncDef struct {
	Name    string
	Invoker string
	Signal  string
	SignatureDef
	StructOffset         uint16
	MustChainUp          bool
	MustBeImplemented    bool
	MustNotBeImplemented bool
}

// ConstantDef describes a constant. Value must fit Type.
type ConstantDef struct {
	Name       string
	Value      any
	Attributes []Attribute
	Type       TypeDef
	Deprecated bool
}

// ObjectDef describes a GObject class or fundamental type.
type ObjectDef struct {
	Name         string
	GTypeName    string
	GTypeInit    string
	Parent       string
	ClassStruct  string
	RefFunc      string
	UnrefFunc    string
	SetValueFunc string
	GetValueFunc string
	Interfaces   []string
	Fields       []FieldDef
	Properties   []PropertyDef
	Methods      []FunctionDef
	Signals      []SignalDef
	VFuncs       []VFuncDef
	Constants    []ConstantDef
	Attributes   []Attribute
	Abstract     bool
	Fundamental  bool
	Final        bool
	Deprecated   bool
}

// InterfaceDef describes a GInterface.
type InterfaceDef struct {
	Name          string
	GTypeName     string
	GTypeInit     string
	IfaceStruct   string
	Prerequisites []string
	Properties    []PropertyDef
	Methods       []FunctionDef
	Signals       []SignalDef
	VFuncs        []VFuncDef
	Constants     []ConstantDef
	Attributes    []Attribute
	Deprecated    bool
}
