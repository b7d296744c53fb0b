package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/triage/internal/gitctx"
)

const (
	hookName        = "post-commit"
	hookMarkerStart = "# >>> triage post-commit hook >>>"
	hookMarkerEnd   = "# <<< triage post-commit hook <<<"
)

var (
	hookFormat     string
	hookForeground bool
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Manage the git post-commit hook",
	Long: "The post-commit hook analyzes the files changed by each commit so the " +
		"TODO ledger follows the code. It never blocks a commit.",
}

var hookInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install triage as a git post-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := gitctx.HookPath(".", hookName)
		if err != nil {
			return fail(cmd, ExitStartupError, err)
		}

		section := generateHookScript(hookFormat, !hookForeground)

		existing, err := os.ReadFile(hookPath)
		if err != nil && !os.IsNotExist(err) {
			return fail(cmd, ExitRuntimeError, fmt.Errorf("reading hook file: %w", err))
		}

		var content string
		if len(existing) == 0 {
			content = "#!/bin/sh\n" + section
		} else {
			content = replaceHookSection(string(existing), section)
		}

		if err := os.MkdirAll(filepath.Dir(hookPath), 0o755); err != nil {
			return fail(cmd, ExitRuntimeError, fmt.Errorf("creating hooks directory: %w", err))
		}
		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fail(cmd, ExitRuntimeError, fmt.Errorf("writing hook file: %w", err))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Installed triage %s hook at %s\n", hookName, hookPath)
		return nil
	},
}

var hookUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the triage post-commit hook",
	RunE: func(cmd *cobra.Command, args []string) error {
		hookPath, err := gitctx.HookPath(".", hookName)
		if err != nil {
			return fail(cmd, ExitStartupError, err)
		}

		existing, err := os.ReadFile(hookPath)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s hook found.\n", hookName)
				return nil
			}
			return fail(cmd, ExitRuntimeError, fmt.Errorf("reading hook file: %w", err))
		}

		content := removeHookSection(string(existing))

		// Only a shebang left: the hook was ours alone.
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || trimmed == "#!/bin/sh" || trimmed == "#!/bin/bash" {
			if err := os.Remove(hookPath); err != nil {
				return fail(cmd, ExitRuntimeError, fmt.Errorf("removing hook file: %w", err))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed triage %s hook at %s\n", hookName, hookPath)
			return nil
		}

		if err := os.WriteFile(hookPath, []byte(content), 0o755); err != nil {
			return fail(cmd, ExitRuntimeError, fmt.Errorf("writing hook file: %w", err))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed triage section from %s\n", hookPath)
		return nil
	},
}

// generateHookScript returns the marked hook section. The first commit of a
// repository has no parent and is skipped.
func generateHookScript(format string, background bool) string {
	line := fmt.Sprintf("triage analyze --since HEAD~1 --format %s .", format)
	if background {
		line = "(" + line + " >/dev/null 2>&1 &)"
	} else {
		line += " || echo \"triage: analysis failed (exit $?), commit kept\""
	}

	var b strings.Builder
	b.WriteString(hookMarkerStart + "\n")
	b.WriteString("if git rev-parse --verify --quiet HEAD~1 >/dev/null; then\n")
	b.WriteString("  " + line + "\n")
	b.WriteString("fi\n")
	b.WriteString(hookMarkerEnd + "\n")
	return b.String()
}

func replaceHookSection(existing, section string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		if !strings.HasSuffix(existing, "\n") {
			existing += "\n"
		}
		return existing + section
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + section + after
}

func removeHookSection(existing string) string {
	startIdx := strings.Index(existing, hookMarkerStart)
	endIdx := strings.Index(existing, hookMarkerEnd)

	if startIdx == -1 || endIdx == -1 {
		return existing
	}

	before := existing[:startIdx]
	after := strings.TrimPrefix(existing[endIdx+len(hookMarkerEnd):], "\n")
	return before + after
}

func init() {
	hookCmd.AddCommand(hookInstallCmd)
	hookCmd.AddCommand(hookUninstallCmd)
	hookInstallCmd.Flags().StringVar(&hookFormat, "format", "markdown", "Report format (markdown, html, json)")
	hookInstallCmd.Flags().BoolVar(&hookForeground, "foreground", false, "Run the analysis before git returns instead of in the background")
}
