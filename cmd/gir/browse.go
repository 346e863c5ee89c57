package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/wippyai/gi-runtime/binding"
	"github.com/wippyai/gi-runtime/info"
	"github.com/wippyai/gi-runtime/typelib"
)

func newBrowseCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse <namespace[-version]>",
		Short: "Pick and call namespace functions interactively",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := newBrowser(a, args[0])
			_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
			m.close()
			return err
		},
	}
}

type browseState int

const (
	stateSelect browseState = iota
	stateInput
	stateResult
)

type param struct {
	name string
	typ  string
}

type function struct {
	name   string
	sig    string
	params []param
}

type browser struct {
	app      *app
	target   string
	rt       *binding.Runtime
	mod      *binding.Module
	funcs    []function
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    browseState
	result   string
	err      error
}

type loadedMsg struct {
	rt    *binding.Runtime
	mod   *binding.Module
	funcs []function
	err   error
}

type resultMsg struct {
	result string
	err    error
}

func newBrowser(a *app, target string) *browser {
	return &browser{app: a, target: target, state: stateSelect}
}

func (m *browser) Init() tea.Cmd { return m.load }

func (m *browser) load() tea.Msg {
	rt, mod, err := m.app.runtime(context.Background(), m.target)
	if err != nil {
		return loadedMsg{err: err}
	}
	funcs, err := functions(mod)
	if err != nil {
		_ = rt.Close(context.Background())
		return loadedMsg{err: err}
	}
	return loadedMsg{rt: rt, mod: mod, funcs: funcs}
}

// functions lists the namespace-level functions of mod.
func functions(mod *binding.Module) ([]function, error) {
	ns := mod.Namespace()
	var out []function
	for i := 0; i < ns.Len(); i++ {
		bi, err := ns.Info(i)
		if err != nil {
			return nil, err
		}
		if fi, err := bi.AsFunction(); err == nil && bi.Kind() == info.KindFunction {
			f := function{name: bi.Name(), sig: binding.Describe(bi.Name(), fi.CallableInfo)}
			args := fi.Args()
			for _, a := range args {
				if a.Direction() == typelib.DirectionOut {
					continue
				}
				t := a.Type()
				f.params = append(f.params, param{name: a.Name(), typ: t.String()})
				t.Unref()
			}
			info.Release(args)
			out = append(out, f)
		}
		bi.Unref()
	}
	return out, nil
}

func (m *browser) close() {
	if m.rt != nil {
		_ = m.rt.Close(context.Background())
		m.rt = nil
	}
}

func (m *browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state != stateInput {
				return m, tea.Quit
			}
		case "up", "k":
			if m.state == stateSelect && m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.state == stateSelect && m.selected < len(m.funcs)-1 {
				m.selected++
			}
		case "enter":
			switch m.state {
			case stateSelect:
				if len(m.funcs) == 0 {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.call
				}
				m.state = stateInput
			case stateInput:
				return m, m.call
			case stateResult:
				m.state, m.result, m.err = stateSelect, "", nil
			}
		case "tab":
			if m.state == stateInput && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}
		case "esc":
			switch m.state {
			case stateInput:
				m.state, m.inputs = stateSelect, nil
			case stateResult:
				m.state, m.result, m.err = stateSelect, "", nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.rt, m.mod, m.funcs = msg.rt, msg.mod, msg.funcs

	case resultMsg:
		m.result, m.err = msg.result, msg.err
		m.state = stateResult
	}

	if m.state == stateInput {
		cmds := make([]tea.Cmd, len(m.inputs))
		for i := range m.inputs {
			m.inputs[i], cmds[i] = m.inputs[i].Update(msg)
		}
		return m, tea.Batch(cmds...)
	}
	return m, nil
}

func (m *browser) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.params))
	for i, p := range f.params {
		ti := textinput.New()
		ti.Placeholder = p.typ
		ti.Prompt = p.name + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *browser) call() tea.Msg {
	if m.mod == nil {
		return resultMsg{err: fmt.Errorf("module not loaded")}
	}
	f := m.funcs[m.selected]
	text := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		text[i] = in.Value()
	}
	var b strings.Builder
	err := callAndPrint(context.Background(), &b, m.mod, f.name, text)
	return resultMsg{result: strings.TrimRight(b.String(), "\n"), err: err}
}

func (m *browser) View() string {
	p := newPalette(true)
	if m.err != nil && m.state != stateResult {
		return p.fail.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.mod == nil {
		return "Loading " + m.target + "..."
	}

	var b strings.Builder
	b.WriteString(p.title.Render("gir"))
	b.WriteString(" " + m.mod.String() + "\n\n")

	switch m.state {
	case stateSelect:
		if len(m.funcs) == 0 {
			b.WriteString("No functions in this namespace.\n")
		}
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(p.title.Render("> " + f.sig))
			} else {
				b.WriteString("  " + p.name.Render(f.sig))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n" + p.dim.Render("↑/↓ select • enter call • q quit"))

	case stateInput:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Calling %s\n\n", p.name.Render(f.name))
		for i, in := range m.inputs {
			b.WriteString(in.View() + " " + p.typ.Render(f.params[i].typ) + "\n")
		}
		b.WriteString("\n" + p.dim.Render("tab next field • enter call • esc back"))

	case stateResult:
		f := m.funcs[m.selected]
		fmt.Fprintf(&b, "Result of %s:\n\n", p.name.Render(f.name))
		if m.err != nil {
			b.WriteString(p.fail.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(p.value.Render(m.result))
		}
		b.WriteString("\n\n" + p.dim.Render("enter continue • q quit"))
	}
	return b.String()
}
