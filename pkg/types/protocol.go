package types

import "encoding/json"

// Capability names advertised by a tracker in the initialize result.
const (
	CapabilityAssessments = "assessments"
	CapabilityTraces      = "traces"
	CapabilitySearch      = "search"
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData holds structured error detail.
type ErrorData struct {
	ErrorType string `json:"error_type"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// InitializeParams holds parameters for the initialize method.
type InitializeParams struct {
	ClientName           string   `json:"client_name"`
	ClientVersion        string   `json:"client_version"`
	ProtocolVersion      int      `json:"protocol_version"`
	RequiredCapabilities []string `json:"required_capabilities"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	TrackerVersion        string   `json:"tracker_version"`
	ProtocolVersion       int      `json:"protocol_version"`
	Capabilities          []string `json:"capabilities"`
	Missing               []string `json:"missing"`
	Compatible            bool     `json:"compatible"`
	MaxConcurrentRequests int      `json:"max_concurrent_requests"`
	MaxSearchResults      int      `json:"max_search_results"`
}

// LogTraceParams holds parameters for the log_trace method.
type LogTraceParams struct {
	Info TraceInfo `json:"info"`
	Data TraceData `json:"data"`
}

// LogTraceResult holds the result of the log_trace method.
type LogTraceResult struct {
	TraceID string `json:"trace_id"`
}

// CreateAssessmentParams holds parameters for the create_assessment method.
type CreateAssessmentParams struct {
	Assessment Assessment `json:"assessment"`
}

// UpdateAssessmentParams holds parameters for the update_assessment method.
// Nil optional fields are absent from the payload and left untouched by the
// tracker; only supplied fields are written.
type UpdateAssessmentParams struct {
	TraceID      string            `json:"trace_id"`
	AssessmentID string            `json:"assessment_id"`
	Name         *string           `json:"name,omitempty"`
	Expectation  *Expectation      `json:"expectation,omitempty"`
	Feedback     *Feedback         `json:"feedback,omitempty"`
	Rationale    *string           `json:"rationale,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// DeleteAssessmentParams holds parameters for the delete_assessment method.
type DeleteAssessmentParams struct {
	TraceID      string `json:"trace_id"`
	AssessmentID string `json:"assessment_id"`
}

// DeleteAssessmentResult holds the result of the delete_assessment method.
type DeleteAssessmentResult struct {
	Deleted bool `json:"deleted"`
}

// SearchTracesParams holds parameters for the search_traces method.
type SearchTracesParams struct {
	ExperimentIDs []string `json:"experiment_ids"`
	MaxResults    int      `json:"max_results"`
	PageToken     string   `json:"page_token,omitempty"`
}

// SearchTracesResult holds one page of search results. Each TraceInfo
// carries its assessments embedded.
type SearchTracesResult struct {
	Traces        []TraceInfo `json:"traces"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

// ShutdownResult holds the result of the shutdown method.
type ShutdownResult struct {
	AssessmentsWritten int `json:"assessments_written"`
	TracesLogged       int `json:"traces_logged"`
}
