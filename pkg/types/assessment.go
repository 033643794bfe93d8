package types

const (
	SourceTypeHuman    = "HUMAN"
	SourceTypeLLMJudge = "LLM_JUDGE"
	SourceTypeCode     = "CODE"
)

// AssessmentSource identifies who or what produced an assessment:
// a human reviewer, an LLM judge, or programmatic scoring code.
type AssessmentSource struct {
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
}

// Expectation is a ground-truth value recorded against a trace, used as the
// reference when judging the trace's actual output.
type Expectation struct {
	Value any `json:"value"`
}

// AssessmentError records a failure that occurred while producing feedback,
// such as a judge hitting a rate limit.
type AssessmentError struct {
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Feedback is a judgment about a trace. At least one of Value and Error is
// set; both together represent a partial result with a recorded failure.
type Feedback struct {
	Value any              `json:"value"`
	Error *AssessmentError `json:"error,omitempty"`
}

// Assessment is a named judgment attached to a trace (optionally to a single
// span within it). Exactly one of Expectation and Feedback is set.
type Assessment struct {
	AssessmentID     string            `json:"assessment_id,omitempty"`
	TraceID          string            `json:"trace_id"`
	Name             string            `json:"name"`
	SpanID           *string           `json:"span_id,omitempty"`
	Source           AssessmentSource  `json:"source"`
	CreateTimeMS     int64             `json:"create_time_ms"`
	LastUpdateTimeMS int64             `json:"last_update_time_ms"`
	Expectation      *Expectation      `json:"expectation,omitempty"`
	Feedback         *Feedback         `json:"feedback,omitempty"`
	Rationale        *string           `json:"rationale,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}
