// Package info exposes typelib entities as reference-counted handles.
//
// A BaseInfo is the generic handle; typed views (FunctionInfo, ObjectInfo,
// StructInfo and so on) are obtained with checked As* casts and share the
// handle they were cast from:
//
//	bi, err := src.Find("Window")
//	if err != nil {
//	    return err
//	}
//	defer bi.Unref()
//	obj, err := bi.AsObject()
//
// Accessors that return infos hand over one reference each. Release them
// with Unref, or Release for slices. Source.Live reports how many are
// outstanding, which repositories use to refuse closing a namespace that
// is still in use.
package info
