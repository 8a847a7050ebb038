// Package notify emails a summary of a finished run
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/perbu/promptrun/internal/email"
	"github.com/perbu/promptrun/internal/engine"
)

// maxFailuresListed bounds the failure table in a report
const maxFailuresListed = 50

// Composer builds report emails from run summaries
type Composer struct {
	subjectPrefix string
	to            []string
}

// NewComposer creates a new report composer
func NewComposer(subjectPrefix string, to []string) *Composer {
	return &Composer{subjectPrefix: subjectPrefix, to: to}
}

// Subject generates the email subject line
func (c *Composer) Subject(s *engine.Summary, runErr error) string {
	status := fmt.Sprintf("%d succeeded, %d failed", s.Succeeded, s.Failed)
	if runErr != nil {
		status = "aborted, " + status
	}
	return strings.TrimSpace(fmt.Sprintf("%s run %s: %s", c.subjectPrefix, shortID(s.RunID), status))
}

// Markdown renders the summary as a markdown document
func (c *Composer) Markdown(s *engine.Summary, runErr error) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Run %s\n\n", s.RunID)
	if runErr != nil {
		fmt.Fprintf(&b, "**The run was aborted:** `%s`\n\n", runErr)
	}

	b.WriteString("| Result | Tasks |\n|---|---:|\n")
	rows := []struct {
		name string
		n    int
	}{
		{"Descriptors read", s.Total},
		{"Succeeded", s.Succeeded},
		{"Escalated", s.Escalated},
		{"Failed", s.Failed},
		{"Skipped (already done)", s.Skipped},
		{"Invalid descriptors", s.Invalid},
		{"Not attempted", s.Aborted},
	}
	for _, row := range rows {
		fmt.Fprintf(&b, "| %s | %d |\n", row.name, row.n)
	}
	fmt.Fprintf(&b, "\nDuration: %s\n", s.Duration.Round(time.Second))

	if len(s.Failures) > 0 {
		b.WriteString("\n## Failures\n\n| Task | Target | Attempts | Last error |\n|---|---|---:|---|\n")
		for i, f := range s.Failures {
			if i == maxFailuresListed {
				fmt.Fprintf(&b, "\n...and %d more\n", len(s.Failures)-maxFailuresListed)
				break
			}
			attempts := strconv.Itoa(f.Attempts)
			if f.Stage == engine.StageOutput {
				attempts = "output"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				escapeCell(f.ID), escapeCell(f.Target), attempts, escapeCell(f.Detail))
		}
	}

	return b.String()
}

// Compose builds the report email for a run
func (c *Composer) Compose(s *engine.Summary, runErr error) (*email.Email, error) {
	md := c.Markdown(s, runErr)

	bodyHTML, err := MarkdownToHTML(md)
	if err != nil {
		return nil, fmt.Errorf("failed to convert markdown: %w", err)
	}

	data := &ReportData{
		RunID:         s.RunID,
		SubjectPrefix: c.subjectPrefix,
		Markdown:      md,
		BodyHTML:      bodyHTML,
	}

	htmlContent, err := RenderHTML(data)
	if err != nil {
		return nil, fmt.Errorf("failed to render HTML: %w", err)
	}
	textContent, err := RenderText(data)
	if err != nil {
		return nil, fmt.Errorf("failed to render text: %w", err)
	}

	return &email.Email{
		To:          c.to,
		Subject:     c.Subject(s, runErr),
		HTMLContent: htmlContent,
		TextContent: textContent,
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
