package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"

	"github.com/dshills/triage/internal/config"
	"github.com/dshills/triage/internal/ledger"
	"github.com/dshills/triage/internal/report"
	"github.com/dshills/triage/internal/todo"
)

// Todo flags
var (
	todoLedger    string
	todoFile      string
	todoPriority  string
	todoEffort    string
	todoSource    string
	todoAll       bool
	todoCompleted bool
	todoJSON      bool
	todoFormat    string
	todoOut       string
)

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Query and update the TODO ledger",
}

// openLedger loads the ledger named by --ledger, the config, or the current
// directory, in that order. A corrupt ledger is a startup failure.
func openLedger(cmd *cobra.Command) (*ledger.Ledger, bool) {
	path := todoLedger
	if path == "" {
		cfg, err := config.Load(flagConfig, nil)
		if err != nil {
			_ = fail(cmd, ExitStartupError, err)
			return nil, false
		}
		path = resolveLedgerPath(cfg, ".")
	}
	l, err := ledger.Open(path)
	if err != nil {
		_ = fail(cmd, ExitStartupError, err)
		return nil, false
	}
	return l, true
}

func todoFilter() (ledger.Filter, error) {
	f := ledger.Filter{File: todoFile, Source: todoSource}
	if todoPriority != "" {
		p, ok := todo.ParsePriority(todoPriority)
		if !ok {
			return f, fmt.Errorf("unknown priority %q (want high, medium or low)", todoPriority)
		}
		f.Priority = p
	}
	if todoEffort != "" {
		e, ok := todo.ParseEffort(todoEffort)
		if !ok {
			return f, fmt.Errorf("unknown effort %q (want small, medium or large)", todoEffort)
		}
		f.Effort = e
	}
	switch {
	case todoAll && todoCompleted:
		return f, fmt.Errorf("--all and --completed are mutually exclusive")
	case todoAll:
		f.Status = ledger.StatusAll
	case todoCompleted:
		f.Status = ledger.StatusCompleted
	}
	return f, nil
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List TODO items, highest priority first",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := todoFilter()
		if err != nil {
			return err
		}
		l, ok := openLedger(cmd)
		if !ok {
			return nil
		}
		items := l.Items(filter)
		out := cmd.OutOrStdout()

		if todoJSON {
			return report.ExportTodos(out, items, "json")
		}
		if len(items) == 0 {
			fmt.Fprintln(out, dimStyle.Render("No matching TODO items."))
			return nil
		}
		if f, ok := out.(*os.File); ok && report.IsTerminal(f) {
			fmt.Fprint(out, report.Terminal(report.TodoMarkdown(items, time.Now()), report.Width(f)))
			return nil
		}
		printTodos(out, items)
		return nil
	},
}

func printTodos(w io.Writer, items []todo.Item) {
	for _, it := range items {
		mark := "[ ]"
		if it.Completed {
			mark = "[x]"
		}
		prio := priorityStyle(string(it.Priority)).Render(fmt.Sprintf("%-8s", it.Priority))
		fmt.Fprintf(w, "%s %s %s %s\n", mark, prio, it.Description,
			dimStyle.Render(fmt.Sprintf("(%s, %s, %s) %s", it.File, it.Effort, it.Source, it.ID)))
	}
}

// resolveID accepts a full id or an unambiguous prefix of one.
func resolveID(l *ledger.Ledger, arg string) (string, error) {
	if _, ok := l.Get(arg); ok {
		return arg, nil
	}
	var matches []string
	for id := range l.Snapshot() {
		if strings.HasPrefix(id, arg) || strings.HasPrefix(id, "todo_"+arg) {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no TODO item with id %q", arg)
	case 1:
		return matches[0], nil
	}
	sort.Strings(matches)
	return "", fmt.Errorf("id %q is ambiguous: %s", arg, strings.Join(matches, ", "))
}

// setCompleted backs both done and reopen.
func setCompleted(cmd *cobra.Command, arg string, done bool) error {
	l, ok := openLedger(cmd)
	if !ok {
		return nil
	}
	id, err := resolveID(l, arg)
	if err != nil {
		return err
	}
	if done {
		l.MarkCompleted(id)
	} else {
		l.Reopen(id)
	}
	if err := l.Flush(); err != nil {
		return fail(cmd, ExitRuntimeError, err)
	}
	it, _ := l.Get(id)
	state := "reopened"
	if done {
		state = "completed"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", okStyle.Render(state), id, it.Description)
	return nil
}

var todoDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a TODO item completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCompleted(cmd, args[0], true)
	},
}

var todoReopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Mark a completed TODO item open again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setCompleted(cmd, args[0], false)
	},
}

var todoStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the TODO ledger",
	RunE: func(cmd *cobra.Command, args []string) error {
		l, ok := openLedger(cmd)
		if !ok {
			return nil
		}
		st := l.Stats()
		out := cmd.OutOrStdout()
		if todoJSON {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		fmt.Fprintln(out, titleStyle.Render("TODO ledger"), dimStyle.Render(l.Path()))
		fmt.Fprintf(out, "  %d total, %d open, %d completed\n", st.Total, st.Open, st.Completed)
		printBreakdown(out, "By priority", st.ByPriority, []string{"high", "medium", "low"})
		printBreakdown(out, "By effort", st.ByEffort, []string{"small", "medium", "large"})
		printBreakdown(out, "By stage", st.BySource, []string{"analysis", "validation", "refactor"})
		printBreakdown(out, "By file", st.ByFile, nil)
		return nil
	},
}

// printBreakdown prints counts in the given order, then any remaining keys
// by descending count.
func printBreakdown(w io.Writer, title string, counts map[string]int, order []string) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintf(w, "  %s:\n", title)
	seen := make(map[string]bool)
	for _, k := range order {
		if n := counts[k]; n > 0 {
			fmt.Fprintf(w, "    %-12s %d\n", k, n)
		}
		seen[k] = true
	}
	var rest []string
	for k := range counts {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Slice(rest, func(i, j int) bool {
		if counts[rest[i]] != counts[rest[j]] {
			return counts[rest[i]] > counts[rest[j]]
		}
		return rest[i] < rest[j]
	})
	for _, k := range rest {
		fmt.Fprintf(w, "    %-12s %d\n", k, counts[k])
	}
}

var todoExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export TODO items as JSON, YAML, Markdown or SARIF",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := todoFilter()
		if err != nil {
			return err
		}
		if !todoAll && !todoCompleted {
			filter.Status = ledger.StatusAll
		}
		l, ok := openLedger(cmd)
		if !ok {
			return nil
		}
		items := l.Items(filter)

		if todoOut == "" {
			return report.ExportTodos(cmd.OutOrStdout(), items, todoFormat)
		}
		var buf bytes.Buffer
		if err := report.ExportTodos(&buf, items, todoFormat); err != nil {
			return err
		}
		if err := atomic.WriteFile(todoOut, &buf); err != nil {
			return fail(cmd, ExitRuntimeError, fmt.Errorf("writing %s: %w", todoOut, err))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d items to %s\n", len(items), todoOut)
		return nil
	},
}

func init() {
	todoCmd.PersistentFlags().StringVar(&todoLedger, "ledger", "", "TODO ledger file (default: project_todo.json in the current directory)")

	for _, c := range []*cobra.Command{todoListCmd, todoExportCmd} {
		c.Flags().StringVar(&todoFile, "file", "", "Only items for this file")
		c.Flags().StringVar(&todoPriority, "priority", "", "Only items of this priority")
		c.Flags().StringVar(&todoEffort, "effort", "", "Only items of this effort")
		c.Flags().StringVar(&todoSource, "source", "", "Only items raised by this stage")
		c.Flags().BoolVar(&todoAll, "all", false, "Include completed items")
		c.Flags().BoolVar(&todoCompleted, "completed", false, "Only completed items")
	}
	todoListCmd.Flags().BoolVar(&todoJSON, "json", false, "Print JSON")
	todoStatsCmd.Flags().BoolVar(&todoJSON, "json", false, "Print JSON")
	todoExportCmd.Flags().StringVar(&todoFormat, "format", "json", "Export format ("+strings.Join(report.ExportFormats, ", ")+")")
	todoExportCmd.Flags().StringVar(&todoOut, "out", "", "Write to this file instead of stdout")

	todoCmd.AddCommand(todoListCmd)
	todoCmd.AddCommand(todoDoneCmd)
	todoCmd.AddCommand(todoReopenCmd)
	todoCmd.AddCommand(todoStatsCmd)
	todoCmd.AddCommand(todoExportCmd)
}
