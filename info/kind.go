package info

import "github.com/wippyai/gi-runtime/typelib"

// InfoKind discriminates the views a BaseInfo can be cast to.
type InfoKind uint8

const (
	KindInvalid    InfoKind = 0
	KindFunction   InfoKind = 1
	KindCallback   InfoKind = 2
	KindStruct     InfoKind = 3
	KindBoxed      InfoKind = 4
	KindEnum       InfoKind = 5
	KindFlags      InfoKind = 6
	KindObject     InfoKind = 7
	KindInterface  InfoKind = 8
	KindConstant   InfoKind = 9
	KindUnion      InfoKind = 11
	KindValue      InfoKind = 12
	KindSignal     InfoKind = 13
	KindVFunc      InfoKind = 14
	KindProperty   InfoKind = 15
	KindField      InfoKind = 16
	KindArg        InfoKind = 17
	KindType       InfoKind = 18
	KindUnresolved InfoKind = 19
)

var kindNames = map[InfoKind]string{
	KindInvalid:    "invalid",
	KindFunction:   "function",
	KindCallback:   "callback",
	KindStruct:     "struct",
	KindBoxed:      "boxed",
	KindEnum:       "enum",
	KindFlags:      "flags",
	KindObject:     "object",
	KindInterface:  "interface",
	KindConstant:   "constant",
	KindUnion:      "union",
	KindValue:      "value",
	KindSignal:     "signal",
	KindVFunc:      "vfunc",
	KindProperty:   "property",
	KindField:      "field",
	KindArg:        "arg",
	KindType:       "type",
	KindUnresolved: "unresolved",
}

func (k InfoKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsCallable reports whether infos of this kind have a signature.
func (k InfoKind) IsCallable() bool {
	return k == KindFunction || k == KindCallback || k == KindSignal || k == KindVFunc
}

// IsRegisteredType reports whether infos of this kind may carry a GType.
func (k InfoKind) IsRegisteredType() bool {
	switch k {
	case KindStruct, KindBoxed, KindEnum, KindFlags, KindObject, KindInterface, KindUnion:
		return true
	}
	return false
}

func kindOfBlob(bt typelib.BlobType) InfoKind {
	if !bt.Valid() {
		return KindInvalid
	}
	return InfoKind(bt)
}
