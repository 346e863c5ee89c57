package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/wippyai/gi-runtime/binding"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

func newInspectCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <namespace[-version]> <name>",
		Short: "Describe one entry of a namespace",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := a.namespace(args[0])
			if err != nil {
				return err
			}
			bi, err := ns.Find(args[1])
			if err != nil {
				return err
			}
			defer bi.Unref()
			e, err := describeEntry(bi)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderEntry(e, newPalette(false)))
			return nil
		},
	}
}

func newCallCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "call <namespace[-version]> <function> [args...]",
		Short: "Call a namespace function with arguments parsed from text",
		Long: "Arguments are parsed by the declared parameter type: numbers, " +
			"true/false, strings, enum member names. Out parameters are not passed.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, mod, err := a.runtime(ctx, args[0])
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			return callAndPrint(ctx, cmd.OutOrStdout(), mod, args[1], args[2:])
		},
	}
}

func callAndPrint(ctx context.Context, w io.Writer, mod *binding.Module, name string, text []string) error {
	fn, err := mod.Function(name)
	if err != nil {
		return err
	}
	args, err := parseArgs(fn.Info().CallableInfo, text)
	if err != nil {
		return err
	}
	res, err := fn.Call(ctx, args...)
	if err != nil {
		return err
	}
	if len(res) == 0 {
		fmt.Fprintln(w, "ok")
	}
	for _, r := range res {
		fmt.Fprintln(w, formatResult(r))
	}
	return nil
}

// parseArgs converts text to the Go values the in arguments of c accept.
func parseArgs(c info.CallableInfo, text []string) ([]any, error) {
	params := c.Args()
	defer info.Release(params)
	var out []any
	for _, p := range params {
		if p.Direction() == typelib.DirectionOut {
			continue
		}
		if len(out) == len(text) {
			return nil, fmt.Errorf("missing argument %q", p.Name())
		}
		t := p.Type()
		v, err := parseArg(text[len(out)], t)
		t.Unref()
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", p.Name(), err)
		}
		out = append(out, v)
	}
	if len(out) != len(text) {
		return nil, fmt.Errorf("%d argument(s) given, %d expected", len(text), len(out))
	}
	return out, nil
}

func parseArg(s string, t info.TypeInfo) (any, error) {
	if s == "null" && t.IsPointer() && t.Tag() != typelib.TagUTF8 && t.Tag() != typelib.TagFilename {
		return nil, nil
	}
	switch t.Tag() {
	case typelib.TagBoolean:
		return strconv.ParseBool(s)
	case typelib.TagInt8:
		v, err := strconv.ParseInt(s, 0, 8)
		return int8(v), err
	case typelib.TagUint8:
		v, err := strconv.ParseUint(s, 0, 8)
		return uint8(v), err
	case typelib.TagInt16:
		v, err := strconv.ParseInt(s, 0, 16)
		return int16(v), err
	case typelib.TagUint16:
		v, err := strconv.ParseUint(s, 0, 16)
		return uint16(v), err
	case typelib.TagInt32:
		v, err := strconv.ParseInt(s, 0, 32)
		return int32(v), err
	case typelib.TagUint32:
		v, err := strconv.ParseUint(s, 0, 32)
		return uint32(v), err
	case typelib.TagInt64:
		return strconv.ParseInt(s, 0, 64)
	case typelib.TagUint64, typelib.TagGType:
		return strconv.ParseUint(s, 0, 64)
	case typelib.TagFloat:
		v, err := strconv.ParseFloat(s, 32)
		return float32(v), err
	case typelib.TagDouble:
		return strconv.ParseFloat(s, 64)
	case typelib.TagUTF8, typelib.TagFilename:
		return s, nil
	case typelib.TagUnichar:
		r, n := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError || n != len(s) {
			return nil, fmt.Errorf("%q is not a single character", s)
		}
		return r, nil
	case typelib.TagInterface:
		iface := t.Interface()
		if iface == nil {
			break
		}
		defer iface.Unref()
		if e, err := iface.AsEnum(); err == nil {
			return parseEnum(s, e)
		}
	}
	return nil, fmt.Errorf("cannot parse %s from text", t)
}

// parseEnum accepts a number or member names joined with "|".
func parseEnum(s string, e info.EnumInfo) (int64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, nil
	}
	var v int64
	for _, part := range strings.Split(s, "|") {
		name := strings.ToLower(strings.TrimSpace(part))
		m, ok := e.FindValue(name)
		if !ok {
			return 0, fmt.Errorf("%s has no member %q", e.QualifiedName(), name)
		}
		v |= m.Value()
		m.Unref()
		if !e.IsFlags() {
			break
		}
	}
	return v, nil
}

func formatResult(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}
