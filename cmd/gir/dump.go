package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/gi-runtime/binding"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/internal/config"
	"github.com/wippyai/gi-runtime/repository"
)

// document is the serializable outline of a namespace.
type document struct {
	Namespace       string   `yaml:"namespace"`
	Version         string   `yaml:"version"`
	SharedLibraries []string `yaml:"shared_libraries,omitempty"`
	Dependencies    []string `yaml:"dependencies,omitempty"`
	Entries         []entry  `yaml:"entries"`
}

type entry struct {
	Name       string   `yaml:"name"`
	Kind       string   `yaml:"kind"`
	GType      string   `yaml:"gtype,omitempty"`
	Symbol     string   `yaml:"symbol,omitempty"`
	Signature  string   `yaml:"signature,omitempty"`
	Parent     string   `yaml:"parent,omitempty"`
	Interfaces []string `yaml:"interfaces,omitempty"`
	Fields     []field  `yaml:"fields,omitempty"`
	Methods    []string `yaml:"methods,omitempty"`
	Values     []value  `yaml:"values,omitempty"`
	Constants  []value  `yaml:"constants,omitempty"`
	Type       string   `yaml:"type,omitempty"`
	Value      any      `yaml:"value,omitempty"`
	Deprecated bool     `yaml:"deprecated,omitempty"`
}

type field struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Readable bool   `yaml:"readable"`
	Writable bool   `yaml:"writable"`
}

type value struct {
	Name  string `yaml:"name"`
	Value any    `yaml:"value"`
}

func newDumpCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "dump <namespace[-version]|file.typelib>",
		Short: "Print every entry of a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := a.namespace(args[0])
			if err != nil {
				return err
			}
			doc, err := outline(ns)
			if err != nil {
				return err
			}
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				defer enc.Close()
				return enc.Encode(doc)
			case "text":
				color := false
				if f, ok := cmd.OutOrStdout().(*os.File); ok {
					color = config.IsTerminal(f)
				}
				renderText(cmd.OutOrStdout(), doc, newPalette(color))
				return nil
			}
			return fmt.Errorf("unknown format %q", format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format: text or yaml")
	return cmd
}

// outline walks every top-level entry of ns.
func outline(ns *repository.Namespace) (document, error) {
	doc := document{
		Namespace:       ns.Name(),
		Version:         ns.Version(),
		SharedLibraries: ns.SharedLibraries(),
		Dependencies:    ns.Dependencies(),
	}
	for i := 0; i < ns.Len(); i++ {
		bi, err := ns.Info(i)
		if err != nil {
			return doc, err
		}
		e, err := describeEntry(bi)
		bi.Unref()
		if err != nil {
			return doc, err
		}
		doc.Entries = append(doc.Entries, e)
	}
	return doc, nil
}

func describeEntry(bi *info.BaseInfo) (entry, error) {
	e := entry{Name: bi.Name(), Kind: bi.Kind().String(), Deprecated: bi.IsDeprecated()}
	switch bi.Kind() {
	case info.KindFunction:
		fi, err := bi.AsFunction()
		if err != nil {
			return e, err
		}
		e.Symbol = fi.Symbol()
		e.Signature = binding.Describe(bi.Name(), fi.CallableInfo)
	case info.KindCallback:
		cb, err := bi.AsCallback()
		if err != nil {
			return e, err
		}
		e.Signature = binding.Describe(bi.Name(), cb.CallableInfo)
	case info.KindStruct, info.KindBoxed:
		si, err := bi.AsStruct()
		if err != nil {
			return e, err
		}
		e.GType = si.TypeName()
		e.Fields = fields(si.Fields())
		e.Methods = methods(si.Methods())
	case info.KindUnion:
		ui, err := bi.AsUnion()
		if err != nil {
			return e, err
		}
		e.GType = ui.TypeName()
		e.Fields = fields(ui.Fields())
		e.Methods = methods(ui.Methods())
	case info.KindEnum, info.KindFlags:
		ei, err := bi.AsEnum()
		if err != nil {
			return e, err
		}
		e.GType = ei.TypeName()
		vals := ei.Values()
		for _, v := range vals {
			e.Values = append(e.Values, value{Name: v.Name(), Value: v.Value()})
		}
		info.Release(vals)
		e.Methods = methods(ei.Methods())
	case info.KindObject:
		oi, err := bi.AsObject()
		if err != nil {
			return e, err
		}
		e.GType = oi.TypeName()
		if p := oi.ParentRef(); p != nil {
			e.Parent = p.QualifiedName()
			p.Unref()
		}
		e.Interfaces = names(oi.Interfaces())
		e.Fields = fields(oi.Fields())
		e.Methods = methods(oi.Methods())
		consts := oi.Constants()
		for _, c := range consts {
			e.Constants = append(e.Constants, value{Name: c.Name(), Value: c.Value()})
		}
		info.Release(consts)
	case info.KindInterface:
		ii, err := bi.AsInterface()
		if err != nil {
			return e, err
		}
		e.GType = ii.TypeName()
		e.Interfaces = names(ii.Prerequisites())
		e.Methods = methods(ii.Methods())
	case info.KindConstant:
		ci, err := bi.AsConstant()
		if err != nil {
			return e, err
		}
		t := ci.Type()
		e.Type = t.String()
		t.Unref()
		e.Value = ci.Value()
	}
	return e, nil
}

func fields(fs []info.FieldInfo) []field {
	defer info.Release(fs)
	out := make([]field, 0, len(fs))
	for _, f := range fs {
		t := f.Type()
		out = append(out, field{Name: f.Name(), Type: t.String(), Readable: f.IsReadable(), Writable: f.IsWritable()})
		t.Unref()
	}
	return out
}

func methods(ms []info.FunctionInfo) []string {
	defer info.Release(ms)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, binding.Describe(m.Name(), m.CallableInfo))
	}
	return out
}

func names(bs []*info.BaseInfo) []string {
	defer info.Release(bs)
	out := make([]string, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.QualifiedName())
	}
	return out
}

// palette holds the text styles; all plain when color is off.
type palette struct {
	title, kind, name, typ, value, dim, fail lipgloss.Style
}

func newPalette(color bool) palette {
	if !color {
		plain := lipgloss.NewStyle()
		return palette{plain, plain, plain, plain, plain, plain, plain}
	}
	return palette{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Background(lipgloss.Color("#7D56F4")).Padding(0, 1),
		kind:  lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		name:  lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")),
		typ:   lipgloss.NewStyle().Foreground(lipgloss.Color("#87CEEB")),
		value: lipgloss.NewStyle().Foreground(lipgloss.Color("#90EE90")),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("#666666")),
		fail:  lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

func renderText(w io.Writer, doc document, p palette) {
	fmt.Fprintln(w, p.title.Render(doc.Namespace+"-"+doc.Version))
	if len(doc.SharedLibraries) > 0 {
		fmt.Fprintln(w, p.dim.Render("libraries: "+strings.Join(doc.SharedLibraries, ", ")))
	}
	if len(doc.Dependencies) > 0 {
		fmt.Fprintln(w, p.dim.Render("depends: "+strings.Join(doc.Dependencies, ", ")))
	}
	fmt.Fprintln(w)
	for _, e := range doc.Entries {
		fmt.Fprintln(w, renderEntry(e, p))
	}
}

func renderEntry(e entry, p palette) string {
	var b strings.Builder
	head := p.kind.Render(fmt.Sprintf("%-9s", e.Kind)) + " " + p.name.Render(e.Name)
	switch {
	case e.Signature != "":
		head = p.kind.Render(fmt.Sprintf("%-9s", e.Kind)) + " " + p.name.Render(e.Signature)
	case e.Kind == "constant":
		head += ": " + p.typ.Render(e.Type) + " = " + p.value.Render(fmt.Sprint(e.Value))
	}
	if e.GType != "" {
		head += " " + p.dim.Render("("+e.GType+")")
	}
	if e.Parent != "" {
		head += " : " + p.typ.Render(e.Parent)
	}
	if e.Deprecated {
		head += " " + p.dim.Render("deprecated")
	}
	b.WriteString(head)
	for _, i := range e.Interfaces {
		b.WriteString("\n    implements " + p.typ.Render(i))
	}
	for _, f := range e.Fields {
		access := ""
		switch {
		case f.Readable && f.Writable:
			access = "rw"
		case f.Readable:
			access = "r"
		case f.Writable:
			access = "w"
		}
		b.WriteString(fmt.Sprintf("\n    field %s: %s %s", f.Name, p.typ.Render(f.Type), p.dim.Render(access)))
	}
	for _, v := range e.Values {
		b.WriteString(fmt.Sprintf("\n    %s = %s", v.Name, p.value.Render(fmt.Sprint(v.Value))))
	}
	for _, c := range e.Constants {
		b.WriteString(fmt.Sprintf("\n    const %s = %s", c.Name, p.value.Render(fmt.Sprint(c.Value))))
	}
	for _, m := range e.Methods {
		b.WriteString("\n    " + p.name.Render(m))
	}
	return b.String()
}
