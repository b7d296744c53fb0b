package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dshills/triage/internal/config"
	"github.com/dshills/triage/internal/history"
)

var (
	historyLimit int
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analysis runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, ok := openHistory(cmd)
		if !ok {
			return nil
		}
		defer store.Close()

		runs, err := store.Runs(cmd.Context(), historyLimit)
		if err != nil {
			return fail(cmd, ExitRuntimeError, err)
		}
		out := cmd.OutOrStdout()
		if historyJSON {
			return writeJSON(cmd, runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, dimStyle.Render("No runs recorded."))
			return nil
		}

		now := time.Now()
		t := newTable("RUN", "STARTED", "FILES", "FAILURES", "NEW TODOS", "TARGET")
		for _, r := range runs {
			started := humanize.RelTime(r.Started, now, "ago", "from now")
			if r.Canceled {
				started += " (interrupted)"
			}
			t.Row(shortID(r.ID), started, strconv.Itoa(r.Files), strconv.Itoa(r.StageFailures), strconv.Itoa(r.NewTodos), r.Target)
		}
		fmt.Fprintln(out, t.String())
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the per-stage results of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, ok := openHistory(cmd)
		if !ok {
			return nil
		}
		defer store.Close()

		id, err := matchRun(cmd, store, args[0])
		if err != nil {
			return err
		}
		rec, err := store.Get(cmd.Context(), id)
		if err != nil {
			return fail(cmd, ExitRuntimeError, err)
		}
		stages, err := store.Stages(cmd.Context(), id)
		if err != nil {
			return fail(cmd, ExitRuntimeError, err)
		}
		if historyJSON {
			return writeJSON(cmd, struct {
				Run    history.Run           `json:"run"`
				Stages []history.StageRecord `json:"stages"`
			}{rec, stages})
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render("Run "+rec.ID))
		fmt.Fprintf(out, "  %s, %s, %d files, %d skipped\n", rec.Target, rec.Started.Local().Format(time.DateTime), rec.Files, rec.Skipped)
		t := newTable("FILE", "STAGE", "MODEL", "STATUS", "ATTEMPTS", "LATENCY")
		for _, s := range stages {
			status := s.Status
			switch {
			case s.Kind != "":
				status += " (" + s.Kind + ")"
			case s.Cached:
				status += " (cached)"
			}
			t.Row(s.File, s.Stage, s.Provider+"/"+s.Model, status, strconv.Itoa(s.Attempts), s.Latency.String())
		}
		fmt.Fprintln(out, t.String())
		return nil
	},
}

func openHistory(cmd *cobra.Command) (*history.Store, bool) {
	cfg, err := config.Load(flagConfig, nil)
	if err != nil {
		_ = fail(cmd, ExitStartupError, err)
		return nil, false
	}
	path := cfg.HistoryPath
	if path == "" {
		if path, err = config.DefaultHistoryPath(); err != nil {
			_ = fail(cmd, ExitStartupError, err)
			return nil, false
		}
	}
	store, err := history.Open(path)
	if err != nil {
		_ = fail(cmd, ExitStartupError, err)
		return nil, false
	}
	return store, true
}

// matchRun resolves a full run id or the short form `history` prints.
func matchRun(cmd *cobra.Command, store *history.Store, arg string) (string, error) {
	if _, err := store.Get(cmd.Context(), arg); err == nil {
		return arg, nil
	} else if !errors.Is(err, history.ErrNotFound) {
		return "", err
	}
	runs, err := store.Runs(cmd.Context(), 0)
	if err != nil {
		return "", err
	}
	var found string
	for _, r := range runs {
		if strings.HasPrefix(r.ID, arg) {
			if found != "" {
				return "", fmt.Errorf("run id %q is ambiguous", arg)
			}
			found = r.ID
		}
	}
	if found == "" {
		return "", fmt.Errorf("no run with id %q", arg)
	}
	return found, nil
}

// newTable returns a borderless table with a bold header row.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(false).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingRight(2)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			return s
		})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	historyCmd.PersistentFlags().BoolVar(&historyJSON, "json", false, "Print JSON")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list (0 lists all)")
	historyCmd.AddCommand(historyShowCmd)
}
