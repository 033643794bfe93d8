package types

import "encoding/json"

const (
	TraceStatusOK         = "OK"
	TraceStatusError      = "ERROR"
	TraceStatusInProgress = "IN_PROGRESS"
)

// TraceInfo is the stored record of a single execution trace. Assessments
// attached to the trace are embedded directly, so a search returns them
// without a separate fetch per trace.
type TraceInfo struct {
	TraceID         string            `json:"trace_id"`
	ExperimentID    string            `json:"experiment_id"`
	TimestampMS     int64             `json:"timestamp_ms"`
	ExecutionTimeMS int64             `json:"execution_time_ms"`
	Status          string            `json:"status"`
	Tags            map[string]string `json:"tags,omitempty"`
	Assessments     []Assessment      `json:"assessments,omitempty"`
}

// TraceData holds the request/response payload of a trace. The tracker
// stores it opaquely; it is never inspected here.
type TraceData struct {
	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Trace is a materialized trace: its stored info plus payload data.
type Trace struct {
	Info TraceInfo `json:"info"`
	Data TraceData `json:"data"`
}
