package report

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>{{.Style}}</style>
</head>
<body>
<div class="header">
<span class="header-title">Code analysis report</span>
<span class="header-meta">Generated {{.Generated}}</span>
</div>
{{.Body}}
<div class="footer"><p>Generated by triage</p></div>
</body>
</html>
`))

// html renders a Markdown document into a standalone page. Raw HTML in the
// source is dropped.
func (r *Renderer) html(title, doc string) ([]byte, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(doc), &body); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	err := pageTemplate.Execute(&out, struct {
		Title     string
		Style     template.CSS
		Generated string
		Body      template.HTML
	}{
		Title:     title,
		Style:     template.CSS(stylesheet),
		Generated: r.now().Format("2006-01-02 15:04:05"),
		Body:      template.HTML(body.String()),
	})
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

const stylesheet = `
body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; line-height: 1.6; color: #333; max-width: 1200px; margin: 0 auto; padding: 20px; background-color: #f9f9f9; }
h1, h2, h3, h4, h5, h6 { color: #2c3e50; margin-top: 24px; margin-bottom: 16px; font-weight: 600; }
h1 { font-size: 2em; border-bottom: 1px solid #eaecef; padding-bottom: 0.3em; }
h2 { font-size: 1.5em; border-bottom: 1px solid #eaecef; padding-bottom: 0.3em; }
h3 { font-size: 1.25em; }
a { color: #0366d6; text-decoration: none; }
a:hover { text-decoration: underline; }
pre { background-color: #f6f8fa; border-radius: 3px; padding: 16px; overflow: auto; font-family: 'Courier New', Courier, monospace; }
code { background-color: #f6f8fa; border-radius: 3px; padding: 0.2em 0.4em; font-family: 'Courier New', Courier, monospace; }
pre code { padding: 0; }
blockquote { border-left: 4px solid #dfe2e5; padding: 0 1em; color: #6a737d; margin: 0; }
table { border-collapse: collapse; width: 100%; margin-bottom: 16px; }
table, th, td { border: 1px solid #dfe2e5; }
th, td { padding: 8px 16px; text-align: left; }
th { background-color: #f6f8fa; }
tr:nth-child(even) { background-color: #f6f8fa; }
.header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 20px; }
.header-title { font-size: 1.2em; font-weight: 600; }
.header-meta { font-size: 0.9em; color: #6a737d; }
.footer { margin-top: 40px; padding-top: 20px; border-top: 1px solid #eaecef; text-align: center; font-size: 0.9em; color: #6a737d; }
`
