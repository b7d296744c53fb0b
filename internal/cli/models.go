package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/triage/internal/config"
	"github.com/dshills/triage/internal/providers"
)

var doctorStage string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Provider and model management",
}

type modelInfo struct {
	Provider string
	Models   []string
}

var knownModels = []modelInfo{
	{
		Provider: "anthropic",
		Models: []string{
			"claude-sonnet-4-6",
			"claude-opus-4-6",
			"claude-haiku-4-5",
		},
	},
	{
		Provider: "openai",
		Models: []string{
			"gpt-5.2",
			"gpt-4.1",
			"gpt-4.1-mini",
			"o3-mini",
		},
	},
	{
		Provider: "gemini",
		Models: []string{
			"gemini-2.5-pro",
			"gemini-2.5-flash",
		},
	},
	{
		Provider: "ollama",
		Models: []string{
			"llama3.3",
			"qwen2.5-coder",
			"deepseek-coder-v2",
			"codellama",
		},
	},
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known providers and models, and the configured stages",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, info := range knownModels {
			fmt.Fprintf(out, "%s:\n", info.Provider)
			for _, m := range info.Models {
				fmt.Fprintf(out, "  - %s\n", m)
			}
			fmt.Fprintln(out)
		}

		cfg, err := config.Load(flagConfig, nil)
		if err != nil {
			return fail(cmd, ExitStartupError, err)
		}
		fmt.Fprintln(out, titleStyle.Render("Configured stages"))
		for _, name := range config.StageNames {
			sc, _ := cfg.Stages.Get(name)
			fmt.Fprintf(out, "  %-10s %s/%s\n", name, sc.Provider, sc.Model)
		}
		return nil
	},
}

var modelsDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that every stage's vendor is configured and responding",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig, nil)
		if err != nil {
			return fail(cmd, ExitStartupError, err)
		}
		if err := cfg.Validate(); err != nil {
			return fail(cmd, ExitStartupError, fmt.Errorf("invalid configuration: %w", err))
		}

		names := config.StageNames
		if doctorStage != "" {
			if _, ok := cfg.Stages.Get(doctorStage); !ok {
				return fmt.Errorf("unknown stage %q", doctorStage)
			}
			names = []string{doctorStage}
		}

		out := cmd.OutOrStdout()
		worst := ExitSuccess
		for _, name := range names {
			sc, _ := cfg.Stages.Get(name)
			fmt.Fprintf(out, "Checking %s (%s/%s)... ", name, sc.Provider, sc.Model)
			code, err := pingStage(cmd.Context(), cfg, sc)
			if err != nil {
				fmt.Fprintln(out, errStyle.Render("FAIL"))
				fmt.Fprintf(cmd.ErrOrStderr(), "  %v\n", err)
				worst = max(worst, code)
				continue
			}
			fmt.Fprintln(out, okStyle.Render("OK"))
		}
		exitCode = worst
		return nil
	},
}

// pingStage sends a trivial request to the stage's vendor. The returned code
// is the exit code the failure maps to.
func pingStage(ctx context.Context, cfg config.Config, sc config.StageConfig) (int, error) {
	client, err := providers.New(sc.Provider, sc.Model, providers.Options{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		Retry:   providers.RetryPolicy{MaxRetries: 0, BaseDelay: time.Second, MaxDelay: time.Second},
	})
	if err != nil {
		return ExitStartupError, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = client.Complete(ctx, providers.Request{
		SystemPrompt: "Respond with exactly: ok",
		UserPrompt:   "ping",
		MaxTokens:    10,
	})
	if err != nil {
		if providers.IsAuthError(err) {
			return ExitStartupError, err
		}
		return ExitRuntimeError, err
	}
	return ExitSuccess, nil
}

func init() {
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsDoctorCmd)
	modelsDoctorCmd.Flags().StringVar(&doctorStage, "stage", "", "Only check this stage (analysis, validation, refactor)")
}
