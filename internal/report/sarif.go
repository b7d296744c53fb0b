package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/triage/internal/todo"
)

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"

// SARIF schema types (v2.1.0), reduced to what a TODO needs.

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name  string      `json:"name"`
	Rules []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	ShortDescription sarifMessage `json:"shortDescription"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	Kind                string            `json:"kind"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints"`
	Properties          sarifProperties   `json:"properties"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifProperties struct {
	Priority string `json:"priority"`
	Effort   string `json:"effort"`
}

// stageRules describes the stage each TODO was raised by.
var stageRules = []sarifRule{
	{ID: "triage/analysis", Name: "analysis", ShortDescription: sarifMessage{Text: "Issue raised by code analysis"}},
	{ID: "triage/validation", Name: "validation", ShortDescription: sarifMessage{Text: "Issue raised by analysis validation"}},
	{ID: "triage/refactor", Name: "refactor", ShortDescription: sarifMessage{Text: "Refactoring suggestion"}},
}

func writeSARIF(w io.Writer, items []todo.Item) error {
	data, err := json.MarshalIndent(buildSARIF(items), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	return nil
}

// buildSARIF maps each item to a result. Completed items are kept as
// "pass" results so code scanning closes them.
func buildSARIF(items []todo.Item) sarifLog {
	results := make([]sarifResult, 0, len(items))
	for _, it := range items {
		res := sarifResult{
			RuleID:              "triage/" + it.Source,
			Kind:                "fail",
			Level:               priorityToLevel(it.Priority),
			Message:             sarifMessage{Text: it.Description},
			PartialFingerprints: map[string]string{"triageId/v1": it.ID},
			Properties:          sarifProperties{Priority: string(it.Priority), Effort: string(it.Effort)},
		}
		if it.Completed {
			res.Kind = "pass"
			res.Level = "none"
		}
		if it.File != "" {
			res.Locations = []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{ArtifactLocation: sarifArtifactLocation{URI: it.File}},
			}}
		}
		results = append(results, res)
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: "triage", Rules: stageRules}},
			Results: results,
		}},
	}
}

// priorityToLevel maps a TODO priority to a SARIF level.
func priorityToLevel(p todo.Priority) string {
	switch p {
	case todo.PriorityHigh:
		return "error"
	case todo.PriorityMedium:
		return "warning"
	default:
		return "note"
	}
}
