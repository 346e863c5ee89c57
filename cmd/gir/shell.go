package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/wippyai/gi-runtime/binding"
)

const historyFile = ".gir_history"

func newShellCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell <namespace[-version]>",
		Short: "Call namespace functions from a line-editing prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			rt, mod, err := a.runtime(ctx, args[0])
			if err != nil {
				return err
			}
			defer rt.Close(ctx)
			return runShell(ctx, mod, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func runShell(ctx context.Context, mod *binding.Module, out, errOut io.Writer) error {
	funcs, err := functions(mod)
	if err != nil {
		return err
	}
	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.name
	}
	sort.Strings(names)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) []string {
		var c []string
		for _, n := range names {
			if strings.HasPrefix(n, line) {
				c = append(c, n)
			}
		}
		return c
	})

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintf(out, "%s: %d functions. :help for commands.\n", mod, len(funcs))
	prompt := mod.Name() + "> "
	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			fmt.Fprintln(out)
			if err == liner.ErrPromptAborted || err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)
		if quit := shellLine(ctx, mod, funcs, line, out, errOut); quit {
			return nil
		}
	}
}

// shellLine runs one command and reports whether the shell should exit.
func shellLine(ctx context.Context, mod *binding.Module, funcs []function, line string, out, errOut io.Writer) bool {
	words, err := splitWords(line)
	if err != nil {
		fmt.Fprintln(errOut, err)
		return false
	}
	switch words[0] {
	case ":quit", ":q":
		return true
	case ":help":
		fmt.Fprintln(out, "  name args...   call a function")
		fmt.Fprintln(out, "  :list          list functions")
		fmt.Fprintln(out, "  :describe name show an entry")
		fmt.Fprintln(out, "  :quit          leave")
	case ":list":
		for _, f := range funcs {
			fmt.Fprintln(out, "  "+f.sig)
		}
	case ":describe":
		if len(words) != 2 {
			fmt.Fprintln(errOut, "usage: :describe name")
			return false
		}
		bi, err := mod.Namespace().Find(words[1])
		if err != nil {
			fmt.Fprintln(errOut, err)
			return false
		}
		e, err := describeEntry(bi)
		bi.Unref()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return false
		}
		fmt.Fprintln(out, renderEntry(e, newPalette(false)))
	default:
		if strings.HasPrefix(words[0], ":") {
			fmt.Fprintf(errOut, "unknown command %s\n", words[0])
			return false
		}
		if err := callAndPrint(ctx, out, mod, words[0], words[1:]); err != nil {
			fmt.Fprintln(errOut, err)
		}
	}
	return false
}

// splitWords splits on spaces; double-quoted words use Go escapes.
func splitWords(line string) ([]string, error) {
	var words []string
	for line = strings.TrimSpace(line); line != ""; line = strings.TrimSpace(line) {
		if line[0] != '"' {
			end := strings.IndexAny(line, " \t")
			if end == -1 {
				end = len(line)
			}
			words = append(words, line[:end])
			line = line[end:]
			continue
		}
		q, err := strconv.QuotedPrefix(line)
		if err != nil {
			return nil, fmt.Errorf("unterminated string: %s", line)
		}
		w, _ := strconv.Unquote(q)
		words = append(words, w)
		line = line[len(q):]
	}
	return words, nil
}
