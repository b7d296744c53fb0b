package pipeline

import (
	"fmt"
	"strings"
)

const todoFormat = `Finish with a "TODO" section. Each entry is one list item of the form:
- <concrete action> (Priority: critical|high|medium|low, Effort: small|medium|large)

Then repeat the same entries as a fenced json block:
` + "```json" + `
{"todos": [{"description": "...", "priority": "high", "effort": "small"}]}
` + "```" + `
If nothing needs doing, write an empty list.`

const analysisSystemPrompt = `You are an expert code reviewer. You give detailed, precise and constructive analyses of single source files.

Work through the file and identify:
1. Bugs, syntax errors and likely runtime failures.
2. Security problems and vulnerabilities.
3. Anti-patterns, redundant or inefficient code.
4. Readability and maintainability issues, including missing documentation.

Then assess overall quality (structure, naming, modularity, error handling, performance) and propose concrete improvements.

Structure the answer in Markdown sections with clear headings.

` + todoFormat

const validationSystemPrompt = `You are a senior engineer validating another reviewer's analysis of a source file.

1. Confirm or correct each problem the earlier analysis raised.
2. Find problems it missed.
3. For every problem explain why it matters and give a concrete fix with a code example.

Concentrate on bug fixes, structure and readability, performance, and the idioms of the file's language.

Structure the answer in Markdown sections with clear headings and use code blocks for suggestions.

` + todoFormat

const refactorSystemPrompt = `You are a software architect proposing advanced refactorings for a source file.

1. Suggest improvements to architecture, modularity and reuse.
2. Suggest performance work and modernisation using current language features.
3. Suggest changes that make the code easier to test.

For every suggestion state the expected benefit, show the refactored code, and give the effort it would take.

Structure the answer in Markdown sections with clear headings and use code blocks for suggestions.

` + todoFormat

// SystemPrompt returns the system prompt of a stage.
func SystemPrompt(stage StageID) string {
	switch stage {
	case StageValidation:
		return validationSystemPrompt
	case StageRefactor:
		return refactorSystemPrompt
	default:
		return analysisSystemPrompt
	}
}

// BuildUserPrompt quotes the file and any earlier stage output for a stage.
// prior is expected to be already redacted and truncated.
func BuildUserPrompt(stage StageID, path, content string, prior []PriorOutput) string {
	var b strings.Builder

	lang := Language(path)
	switch stage {
	case StageValidation:
		fmt.Fprintf(&b, "Validate the earlier analysis of the %s file `%s` and propose concrete fixes.\n", lang, path)
	case StageRefactor:
		fmt.Fprintf(&b, "Propose advanced refactorings for the %s file `%s`.\n", lang, path)
	default:
		fmt.Fprintf(&b, "Analyse the %s file `%s` in depth.\n", lang, path)
	}

	fence := fenceFor(content)
	b.WriteString("\n## Source\n\n")
	b.WriteString(fence)
	b.WriteString(fenceTag(path))
	b.WriteString("\n")
	b.WriteString(content)
	if !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence)
	b.WriteString("\n")

	for _, p := range prior {
		fmt.Fprintf(&b, "\n## Earlier %s\n\n", strings.ToLower(p.Stage.Title()))
		b.WriteString(p.Text)
		b.WriteString("\n")
	}

	return b.String()
}

// fenceFor returns a backtick fence longer than any backtick run in content.
func fenceFor(content string) string {
	longest, run := 0, 0
	for _, r := range content {
		if r == '`' {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return strings.Repeat("`", max(3, longest+1))
}
