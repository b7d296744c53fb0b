package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/dshills/triage/internal/todo"
)

// ExportFormats lists the accepted formats of ExportTodos.
var ExportFormats = []string{"json", "yaml", "markdown", "sarif"}

// ExportTodos writes items in the given format, in the order given.
func ExportTodos(w io.Writer, items []todo.Item, format string) error {
	if items == nil {
		items = []todo.Item{}
	}
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			return fmt.Errorf("encoding todos as json: %w", err)
		}
		return nil
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return fmt.Errorf("encoding todos as yaml: %w", err)
		}
		return enc.Close()
	case "markdown", "md":
		_, err := io.WriteString(w, TodoMarkdown(items, time.Now()))
		return err
	case "sarif":
		return writeSARIF(w, items)
	default:
		return fmt.Errorf("unsupported export format %q (want one of %s)", format, strings.Join(ExportFormats, ", "))
	}
}

// TodoMarkdown renders items as a checklist grouped by file, keeping the
// order of items within each file.
func TodoMarkdown(items []todo.Item, now time.Time) string {
	var b strings.Builder
	b.WriteString("# Todos\n")
	if len(items) == 0 {
		b.WriteString("\nNothing tracked yet.\n")
		return b.String()
	}

	var files []string
	byFile := make(map[string][]todo.Item)
	for _, it := range items {
		if _, ok := byFile[it.File]; !ok {
			files = append(files, it.File)
		}
		byFile[it.File] = append(byFile[it.File], it)
	}

	for _, f := range files {
		fmt.Fprintf(&b, "\n## `%s`\n\n", f)
		for _, it := range byFile[f] {
			box := " "
			if it.Completed {
				box = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s (priority %s, effort %s, %s, found %s) `%s`\n",
				box, it.Description, it.Priority, it.Effort, it.Source,
				humanize.RelTime(time.Unix(it.Timestamp, 0), now, "ago", "from now"), it.ID)
		}
	}
	return b.String()
}
