package report

import (
	"fmt"
	"io"
	"time"

	"github.com/assaylab-ai/assay/pkg/types"
)

// MarkdownReport holds data for a Markdown assessment summary.
type MarkdownReport struct {
	Title       string
	RunAt       time.Time
	TraceID     string
	Assessments []types.Assessment
}

// GenerateMarkdown writes a Markdown-formatted report to w.
func GenerateMarkdown(w io.Writer, r *MarkdownReport) error {
	title := r.Title
	if title == "" {
		title = "Assay Assessment Report"
	}

	if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
		return err
	}

	if r.TraceID != "" {
		if _, err := fmt.Fprintf(w, "**Trace:** `%s`\n\n", r.TraceID); err != nil {
			return err
		}
	}
	if !r.RunAt.IsZero() {
		if _, err := fmt.Fprintf(w, "**Run at:** %s\n\n", r.RunAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	summary := Summarize(r.Assessments)
	if _, err := fmt.Fprintf(w, "**Assessments:** %d total — %d expectations, %d feedback (%d with errors)\n\n",
		summary.Total, summary.Expectations, summary.Feedback, summary.FeedbackErrors); err != nil {
		return err
	}

	if len(r.Assessments) == 0 {
		_, err := fmt.Fprintln(w, "_No assessments recorded._")
		return err
	}

	if _, err := fmt.Fprintln(w, "| Name | Kind | Source | Value |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|------|------|--------|-------|"); err != nil {
		return err
	}
	for _, a := range r.Assessments {
		kind := "feedback"
		if a.Expectation != nil {
			kind = "expectation"
		}
		if _, err := fmt.Fprintf(w, "| %s | %s | %s (%s) | %s |\n",
			a.Name, kind, a.Source.SourceID, a.Source.SourceType, renderValue(&a)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}

// renderValue formats an assessment's payload for a table cell.
func renderValue(a *types.Assessment) string {
	switch {
	case a.Expectation != nil:
		return fmt.Sprintf("%v", a.Expectation.Value)
	case a.Feedback != nil && a.Feedback.Error != nil && a.Feedback.Value == nil:
		return "⚠ " + a.Feedback.Error.ErrorCode
	case a.Feedback != nil && a.Feedback.Error != nil:
		return fmt.Sprintf("%v (⚠ %s)", a.Feedback.Value, a.Feedback.Error.ErrorCode)
	case a.Feedback != nil:
		return fmt.Sprintf("%v", a.Feedback.Value)
	default:
		return "—"
	}
}
