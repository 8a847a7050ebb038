package notify

import (
	"bytes"
	"html/template"
	"strings"
	textTemplate "text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// reports use GFM tables
var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// ReportData holds everything needed to render a run report
type ReportData struct {
	RunID         string
	SubjectPrefix string
	Markdown      string
	BodyHTML      template.HTML
}

var htmlTemplate = template.Must(template.New("html").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>promptrun report</title>
    <style>
        body { font-family: Helvetica, Arial, sans-serif; font-size: 14px; color: #222; margin: 16px; }
        table { border-collapse: collapse; margin: 12px 0; }
        th, td { border: 1px solid #ccc; padding: 4px 10px; text-align: left; }
        th { background: #eef2f5; }
        code { background: #f4f4f4; padding: 0 3px; }
        .footer { margin-top: 24px; color: #777; font-size: 12px; }
    </style>
</head>
<body>
    {{.BodyHTML}}
    <div class="footer">
        <p>Sent by promptrun, run {{.RunID}}</p>
    </div>
</body>
</html>`))

var plainTemplate = textTemplate.Must(textTemplate.New("text").Parse(`{{.Markdown}}
--
Sent by promptrun, run {{.RunID}}
`))

// RenderHTML renders the report as HTML
func RenderHTML(data *ReportData) (string, error) {
	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderText renders the report as plain text
func RenderText(data *ReportData) (string, error) {
	var buf bytes.Buffer
	if err := plainTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// MarkdownToHTML converts markdown text to HTML
func MarkdownToHTML(md string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// escapeCell keeps a value from breaking a markdown table row
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}
