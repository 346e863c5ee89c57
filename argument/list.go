package argument

import (
	"fmt"

	giruntime "github.com/wippyai/gi-runtime"
	"github.com/wippyai/gi-runtime/errors"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

// GSList nodes are {data, next}; GList nodes add prev.
func (c *Converter) nodeSize(tag typelib.TypeTag) uint32 {
	if tag == typelib.TagGList {
		return 3 * uint32(c.ptrSize())
	}
	return 2 * uint32(c.ptrSize())
}

func (c *Converter) encodeList(v any, ti info.TypeInfo, opts Options) (Argument, error) {
	if v == nil {
		return 0, nil
	}
	if isRawPointer(v) {
		return c.encodePointer(v, ti, opts)
	}
	items, ok := elements(v)
	if !ok {
		return 0, conversion(opts, v, ti, nil, "want slice")
	}
	elem, ok := ti.ElementType()
	if !ok {
		return 0, conversion(opts, v, ti, nil, "list without element type")
	}
	defer elem.Unref()

	ps := uint64(c.ptrSize())
	size := c.nodeSize(ti.Tag())
	eopts := opts
	eopts.Transfer = elementTransfer(opts.Transfer)
	var head, next uint64
	for i := len(items) - 1; i >= 0; i-- {
		iopts := eopts.at(fmt.Sprintf("[%d]", i))
		a, err := c.ToNative(items[i], elem, iopts)
		if err != nil {
			return 0, err
		}
		node, err := c.Allocator.Alloc(size, uint32(ps))
		if err != nil {
			return 0, conversion(opts, v, ti, errors.AllocationFailed(errors.PhaseEncode, size, uint32(ps), err), "allocate node")
		}
		if opts.Transfer == typelib.TransferNothing {
			opts.Scope.Free(node)
		}
		if err := giruntime.WritePointer(c.Memory, node, a.Pointer()); err != nil {
			return 0, conversion(iopts, items[i], elem, err, "write node")
		}
		if err := giruntime.WritePointer(c.Memory, node+ps, next); err != nil {
			return 0, conversion(iopts, items[i], elem, err, "write node")
		}
		if ti.Tag() == typelib.TagGList && next != 0 {
			if err := giruntime.WritePointer(c.Memory, next+2*ps, node); err != nil {
				return 0, conversion(iopts, items[i], elem, err, "write node")
			}
		}
		next = node
		head = node
	}
	return FromPointer(head), nil
}

func (c *Converter) decodeList(a Argument, ti info.TypeInfo, transfer typelib.Transfer) (any, error) {
	elem, ok := ti.ElementType()
	if !ok {
		return nil, decodeError(ti, nil, "list without element type")
	}
	defer elem.Unref()
	kind, err := SlotKind(elem)
	if err != nil {
		return nil, decodeError(ti, err, "element type")
	}

	ps := uint64(c.ptrSize())
	et := elementTransfer(transfer)
	out := []any{}
	var nodes []uint64
	for node := a.Pointer(); node != 0; {
		if len(out) >= maxElements {
			return nil, decodeError(ti, errors.OutOfBounds(errors.PhaseDecode, nil, len(out), maxElements), "list too long")
		}
		data, err := giruntime.ReadPointer(c.Memory, node)
		if err != nil {
			return nil, decodeError(ti, err, "read node")
		}
		// Integers are stored in the data pointer itself.
		v, err := c.FromNative(Argument(kind.Normalize(data)), elem, et)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		nodes = append(nodes, node)
		if node, err = giruntime.ReadPointer(c.Memory, node+ps); err != nil {
			return nil, decodeError(ti, err, "read node")
		}
	}
	if transfer != typelib.TransferNothing {
		for _, n := range nodes {
			c.Allocator.Free(n)
		}
	}
	return typedSlice(out, elem), nil
}
