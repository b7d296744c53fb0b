package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dshills/triage/internal/gitctx"
	"github.com/dshills/triage/internal/ledger"
	"github.com/dshills/triage/internal/pipeline"
	"github.com/dshills/triage/internal/todo"
)

// Project report file names.
const (
	ProjectReportFile = "project_report.md"
	TodosFile         = "todos.json"
)

// TopTodos is how many open items the project report lists.
const TopTodos = 10

// Project describes the analysed project for the project report.
type Project struct {
	Name string
	Root string
	// Repo is nil when the project is not a git repository.
	Repo    *gitctx.RepoMeta
	Summary pipeline.Summary
}

// RenderProject writes the project report and the todos.json export. items
// is the whole ledger, not just the items of this run.
func (r *Renderer) RenderProject(p Project, items []todo.Item) error {
	items = append([]todo.Item(nil), items...)
	ledger.SortItems(items)

	var errs []error
	doc := projectDocument(p, items, r.now())
	if err := r.writeMarkdown(ProjectReportFile, doc); err != nil {
		errs = append(errs, err)
	}
	if r.format == "json" {
		data, err := json.MarshalIndent(projectJSON(p, items), "", "  ")
		if err == nil {
			err = r.write("project_report.json", append(data, '\n'))
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("writing project json: %w", err))
		}
	}

	var buf bytes.Buffer
	if err := ExportTodos(&buf, items, "json"); err != nil {
		errs = append(errs, err)
	} else if err := r.write(TodosFile, buf.Bytes()); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

type projectDoc struct {
	Name    string             `json:"name"`
	Root    string             `json:"root"`
	Repo    *gitctx.RepoMeta   `json:"repo,omitempty"`
	Summary pipeline.Summary   `json:"summary"`
	Files   []projectFileEntry `json:"files"`
	Top     []todo.Item        `json:"topTodos"`
}

type projectFileEntry struct {
	Path     string                              `json:"path"`
	Language string                              `json:"language"`
	Size     int64                               `json:"size"`
	Stages   map[pipeline.StageID]pipeline.Status `json:"stages"`
	Todos    int                                 `json:"todos"`
	New      int                                 `json:"newTodos"`
}

func projectJSON(p Project, items []todo.Item) projectDoc {
	doc := projectDoc{Name: p.Name, Root: p.Root, Repo: p.Repo, Summary: p.Summary, Top: topOpen(items, TopTodos)}
	for _, rep := range p.Summary.Reports {
		e := projectFileEntry{
			Path:     rep.Path,
			Language: rep.Language,
			Size:     rep.Size,
			Stages:   make(map[pipeline.StageID]pipeline.Status),
			Todos:    rep.TotalTodos,
			New:      rep.NewTodos,
		}
		for _, res := range rep.Results {
			e.Stages[res.Stage] = res.Status
		}
		doc.Files = append(doc.Files, e)
	}
	return doc
}

func projectDocument(p Project, items []todo.Item, now time.Time) string {
	s := p.Summary
	open := 0
	for _, it := range items {
		if !it.Completed {
			open++
		}
	}
	paths := make([]string, 0, len(s.Reports))
	for _, rep := range s.Reports {
		paths = append(paths, rep.Path)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Project report: %s\n\n", p.Name)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Project:** %s\n", p.Name)
	fmt.Fprintf(&b, "- **Path:** `%s`\n", p.Root)
	if p.Repo != nil {
		dirty := ""
		if p.Repo.Dirty {
			dirty = " (uncommitted changes)"
		}
		fmt.Fprintf(&b, "- **Revision:** %s @ `%s`%s\n", p.Repo.Branch, p.Repo.ShortHead(), dirty)
	}
	fmt.Fprintf(&b, "- **Run:** `%s`\n", s.RunID)
	fmt.Fprintf(&b, "- **Date:** %s\n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- **Duration:** %s\n", s.Duration.Round(time.Second))
	fmt.Fprintf(&b, "- **Files analysed:** %d", s.Files)
	if s.Skipped > 0 {
		fmt.Fprintf(&b, " (%d skipped)", s.Skipped)
	}
	b.WriteString("\n")
	if langs := pipeline.Languages(paths); len(langs) > 0 {
		fmt.Fprintf(&b, "- **Languages:** %s\n", strings.Join(langs, ", "))
	}
	fmt.Fprintf(&b, "- **Stage failures:** %d\n", s.Failures())
	fmt.Fprintf(&b, "- **Todos:** %d open of %d tracked, %d new this run\n", open, len(items), s.NewTodos)
	if s.Canceled {
		b.WriteString("- **Note:** the run was interrupted; files not listed below were not analysed.\n")
	}

	b.WriteString("\n## Files\n\n")
	if len(s.Reports) == 0 {
		b.WriteString("No files were analysed.\n")
	} else {
		b.WriteString("| File | Size |")
		for _, st := range pipeline.Stages {
			fmt.Fprintf(&b, " %s |", st.Title())
		}
		b.WriteString(" Todos |\n|---|---|---|---|---|---|\n")
		for _, rep := range s.Reports {
			fmt.Fprintf(&b, "| [%s](%s) | %s |", rep.Path, StagePath(rep.Path, pipeline.StageAnalysis), humanize.Bytes(uint64(rep.Size)))
			for _, st := range pipeline.Stages {
				fmt.Fprintf(&b, " %s |", stageCell(rep, st))
			}
			fmt.Fprintf(&b, " %d (%d new) |\n", rep.TotalTodos, rep.NewTodos)
		}
	}

	b.WriteString("\n## Top open todos\n\n")
	top := topOpen(items, TopTodos)
	if len(top) == 0 {
		b.WriteString("Nothing open.\n")
	}
	for i, it := range top {
		fmt.Fprintf(&b, "%d. **%s** %s (effort %s, `%s`, from %s)\n", i+1, it.Priority, it.Description, it.Effort, it.File, it.Source)
	}

	b.WriteString("\n## Detailed reports\n")
	for _, st := range pipeline.Stages {
		fmt.Fprintf(&b, "\n### %s\n\n", st.Title())
		n := 0
		for _, rep := range s.Reports {
			if _, ok := rep.Result(st); !ok {
				continue
			}
			fmt.Fprintf(&b, "- [%s](%s)\n", rep.Path, StagePath(rep.Path, st))
			n++
		}
		if n == 0 {
			b.WriteString("None.\n")
		}
	}
	return b.String()
}

func stageCell(rep pipeline.FileReport, st pipeline.StageID) string {
	res, ok := rep.Result(st)
	switch {
	case !ok:
		return "-"
	case res.OK() && res.Cached:
		return "ok (cached)"
	case res.OK():
		return "ok"
	default:
		return fmt.Sprintf("failed: %s", res.Kind)
	}
}

func topOpen(sorted []todo.Item, n int) []todo.Item {
	var out []todo.Item
	for _, it := range sorted {
		if it.Completed {
			continue
		}
		out = append(out, it)
		if len(out) == n {
			break
		}
	}
	return out
}
