package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/JakeFAU/pagewatch/internal/diff"
	"github.com/JakeFAU/pagewatch/internal/monitor"
)

const defaultSummary = "Content has changed since the last check. Please review the website for updates."

var htmlTemplate = template.Must(template.New("email").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #2563eb;">Content Change Detected</h2>
  <div style="background-color: #f3f4f6; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin: 0 0 10px 0; color: #1f2937;">URL Details</h3>
    <p><strong>Name:</strong> {{.Name}}</p>
    <p><strong>URL:</strong> <a href="{{.URL}}" style="color: #2563eb;">{{.URL}}</a></p>
    <p><strong>Check Time:</strong> {{.CheckedAt}}</p>
  </div>
  <div style="background-color: #fef3c7; padding: 20px; border-radius: 8px; margin: 20px 0; border-left: 4px solid #f59e0b;">
    <h3 style="margin: 0 0 10px 0; color: #92400e;">Changes Detected</h3>
    <p style="color: #92400e;">{{.Summary}}</p>
    {{- if .Diff}}
    <pre style="font-size: 13px; white-space: pre-wrap;">{{.Diff}}</pre>
    {{- end}}
  </div>
  <div style="background-color: #f9fafb; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h3 style="margin: 0 0 10px 0; color: #1f2937;">Content Preview</h3>
    <p style="font-size: 14px; color: #6b7280; font-family: monospace; white-space: pre-wrap;">{{.Preview}}</p>
  </div>
  <div style="text-align: center; margin: 30px 0;">
    <a href="{{.URL}}" style="background-color: #2563eb; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">View Website</a>
  </div>
  <hr style="border: none; border-top: 1px solid #e5e7eb; margin: 30px 0;">
  <p style="font-size: 12px; color: #9ca3af; text-align: center;">
    This notification was sent by pagewatch<br>
    Check ID: {{.CheckID}} | Content Hash: {{.ShortHash}}...
  </p>
</div>
`))

type view struct {
	Name      string
	URL       string
	CheckedAt string
	Summary   string
	Diff      string
	Preview   string
	CheckID   string
	ShortHash string
}

type body struct {
	text string
	html string
}

// changeDiff picks the word diff or, for long content, the character window.
func changeDiff(n monitor.Notification) string {
	if n.PreviousContent == "" || n.CurrentContent == "" {
		return n.RenderedDiff
	}
	if diff.Long(n.PreviousContent, n.CurrentContent) {
		return diff.Window(n.PreviousContent, n.CurrentContent)
	}
	if n.RenderedDiff != "" {
		return n.RenderedDiff
	}
	return diff.Words(n.PreviousContent, n.CurrentContent).Rendered
}

func shortHash(fp string) string {
	if len(fp) > 8 {
		return fp[:8]
	}
	return fp
}

func render(n monitor.Notification) body {
	v := view{
		Name:      n.Target.Name,
		URL:       n.Target.URL,
		CheckedAt: n.Check.CheckedAt.UTC().Format(time.RFC1123),
		Summary:   n.Summary,
		Diff:      changeDiff(n),
		Preview:   n.Check.ContentPreview,
		CheckID:   n.Check.ID,
		ShortHash: shortHash(n.Check.Fingerprint),
	}
	if v.Summary == "" {
		v.Summary = defaultSummary
	}

	var html bytes.Buffer
	if err := htmlTemplate.Execute(&html, v); err != nil {
		// Text body only.
		html.Reset()
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Content Change Detected\n\n")
	fmt.Fprintf(&text, "Name: %s\nURL: %s\nCheck Time: %s\n\n", v.Name, n.Target.URL, v.CheckedAt)
	fmt.Fprintf(&text, "Changes Detected\n%s\n", v.Summary)
	if v.Diff != "" {
		fmt.Fprintf(&text, "\n%s\n", v.Diff)
	}
	fmt.Fprintf(&text, "\nContent Preview\n%s\n\n", v.Preview)
	fmt.Fprintf(&text, "View Website: %s\n\n", n.Target.URL)
	fmt.Fprintf(&text, "Check ID: %s | Content Hash: %s...\n", v.CheckID, v.ShortHash)
	return body{text: text.String(), html: html.String()}
}
