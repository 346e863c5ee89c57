package argument

import (
	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

// tagKinds maps basic tags passed by value to their call slot.
var tagKinds = map[typelib.TypeTag]giruntime.ValueKind{
	typelib.TagVoid:    giruntime.KindVoid,
	typelib.TagBoolean: giruntime.KindI32,
	typelib.TagInt8:    giruntime.KindI8,
	typelib.TagUint8:   giruntime.KindU8,
	typelib.TagInt16:   giruntime.KindI16,
	typelib.TagUint16:  giruntime.KindU16,
	typelib.TagInt32:   giruntime.KindI32,
	typelib.TagUint32:  giruntime.KindU32,
	typelib.TagInt64:   giruntime.KindI64,
	typelib.TagUint64:  giruntime.KindU64,
	typelib.TagFloat:   giruntime.KindF32,
	typelib.TagDouble:  giruntime.KindF64,
	typelib.TagGType:   giruntime.KindPointer,
	typelib.TagUnichar: giruntime.KindU32,
}

// TagKind returns the slot of a basic tag passed by value.
func TagKind(tag typelib.TypeTag) (giruntime.ValueKind, bool) {
	k, ok := tagKinds[tag]
	return k, ok
}

// SlotKind returns the native call slot a value of type ti occupies.
// Structs and unions passed by value have no slot and are rejected.
func SlotKind(ti info.TypeInfo) (giruntime.ValueKind, error) {
	tag := ti.Tag()
	if ti.IsPointer() {
		return giruntime.KindPointer, nil
	}
	if k, ok := tagKinds[tag]; ok {
		return k, nil
	}
	switch tag {
	case typelib.TagUTF8, typelib.TagFilename, typelib.TagArray,
		typelib.TagGList, typelib.TagGSList, typelib.TagGHash, typelib.TagError:
		return giruntime.KindPointer, nil
	case typelib.TagInterface:
		iface := ti.Interface()
		if iface == nil {
			return giruntime.KindPointer, nil
		}
		defer iface.Unref()
		switch iface.Kind() {
		case info.KindEnum, info.KindFlags:
			k, _ := tagKinds[iface.MustEnum().StorageType()]
			return k, nil
		case info.KindCallback:
			return giruntime.KindPointer, nil
		}
		return giruntime.KindVoid, errors.Unsupported(errors.PhaseEncode,
			"by-value "+iface.Kind().String()+" "+iface.QualifiedName())
	}
	return giruntime.KindVoid, errors.Unsupported(errors.PhaseEncode, "type tag "+tag.String())
}

// ElementSize returns the in-memory size of one array element of type ti,
// including structs and unions stored inline.
func ElementSize(ti info.TypeInfo, ptrSize int) (uint32, error) {
	if !ti.IsPointer() && ti.Tag() == typelib.TagInterface {
		if iface := ti.Interface(); iface != nil {
			defer iface.Unref()
			switch iface.Kind() {
			case info.KindStruct, info.KindBoxed:
				return iface.MustStruct().Size(), nil
			case info.KindUnion:
				return iface.MustUnion().Size(), nil
			}
		}
	}
	k, err := SlotKind(ti)
	if err != nil {
		return 0, err
	}
	return k.Size(ptrSize), nil
}
