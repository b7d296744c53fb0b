package pipeline

import (
	"path/filepath"
	"strings"
)

var languages = map[string]string{
	".go":    "Go",
	".py":    "Python",
	".js":    "JavaScript",
	".ts":    "TypeScript",
	".tsx":   "TypeScript/React",
	".jsx":   "JavaScript/React",
	".rs":    "Rust",
	".java":  "Java",
	".rb":    "Ruby",
	".cpp":   "C++",
	".cc":    "C++",
	".c":     "C",
	".h":     "C/C++",
	".hpp":   "C++",
	".cs":    "C#",
	".php":   "PHP",
	".swift": "Swift",
	".kt":    "Kotlin",
	".scala": "Scala",
	".sql":   "SQL",
	".sh":    "Shell",
	".yaml":  "YAML",
	".yml":   "YAML",
	".json":  "JSON",
	".tf":    "Terraform",
	".html":  "HTML",
	".css":   "CSS",
	".md":    "Markdown",
}

// Language names the language of a file from its extension, or "Code" when
// the extension is unknown.
func Language(path string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "Code"
}

// Languages lists the distinct known languages of paths in first-seen order.
func Languages(paths []string) []string {
	seen := make(map[string]bool)
	var langs []string
	for _, p := range paths {
		lang := Language(p)
		if lang == "Code" || seen[lang] {
			continue
		}
		seen[lang] = true
		langs = append(langs, lang)
	}
	return langs
}

// fenceTag is the info string used when quoting a file in a prompt.
func fenceTag(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}
