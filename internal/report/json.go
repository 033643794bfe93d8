package report

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/assaylab-ai/assay/pkg/types"
)

type JSONReport struct {
	Version     string             `json:"version"`
	Timestamp   string             `json:"timestamp"`
	TraceID     string             `json:"trace_id"`
	Assessments []types.Assessment `json:"assessments"`
	Summary     JSONSummary        `json:"summary"`
}

type JSONSummary struct {
	Total          int            `json:"total"`
	Expectations   int            `json:"expectations"`
	Feedback       int            `json:"feedback"`
	FeedbackErrors int            `json:"feedback_errors"`
	BySourceType   map[string]int `json:"by_source_type"`
}

// Summarize aggregates counts over a trace's assessments.
func Summarize(assessments []types.Assessment) JSONSummary {
	summary := JSONSummary{
		Total:        len(assessments),
		BySourceType: make(map[string]int),
	}
	for _, a := range assessments {
		summary.BySourceType[a.Source.SourceType]++
		if a.Expectation != nil {
			summary.Expectations++
		}
		if a.Feedback != nil {
			summary.Feedback++
			if a.Feedback.Error != nil {
				summary.FeedbackErrors++
			}
		}
	}
	return summary
}

// GenerateJSONReport generates a structured JSON report over a trace's assessments.
func GenerateJSONReport(traceID string, assessments []types.Assessment) ([]byte, error) {
	if assessments == nil {
		assessments = []types.Assessment{}
	}
	report := JSONReport{
		Version:     "1.0",
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		TraceID:     traceID,
		Assessments: assessments,
		Summary:     Summarize(assessments),
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return output, nil
}
