package tracking

import (
	"context"
	"time"

	"github.com/assaylab-ai/assay/pkg/types"
)

// LogExpectationRequest holds the arguments for LogExpectation. SpanID and
// Metadata are optional.
type LogExpectationRequest struct {
	TraceID  string
	Name     string
	Value    any
	Source   *types.AssessmentSource
	SpanID   *string
	Metadata map[string]string
}

// LogFeedbackRequest holds the arguments for LogFeedback. At least one of
// Value and Error must be set; both together record a partial result.
type LogFeedbackRequest struct {
	TraceID   string
	Name      string
	Source    *types.AssessmentSource
	Value     any
	Error     *types.AssessmentError
	Rationale *string
	Metadata  map[string]string
}

// UpdateExpectationRequest holds the arguments for UpdateExpectation. Name
// and Metadata are optional; nil fields are left untouched on the backend.
type UpdateExpectationRequest struct {
	AssessmentID string
	TraceID      string
	Value        any
	Name         *string
	Metadata     map[string]string
}

// UpdateFeedbackRequest holds the arguments for UpdateFeedback. All fields
// besides the keys are optional; nil fields are left untouched on the backend.
type UpdateFeedbackRequest struct {
	AssessmentID string
	TraceID      string
	Value        any
	Error        *types.AssessmentError
	Rationale    *string
	Metadata     map[string]string
}

// LogExpectation attaches a ground-truth expectation to a trace and returns
// the created assessment with its backend-assigned ID.
func (c *Client) LogExpectation(ctx context.Context, req LogExpectationRequest) (*types.Assessment, error) {
	if rpcErr := c.requireCapability(types.CapabilityAssessments); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := validateSource(req.Source); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := validateExpectationValue(req.Value); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := c.wait(ctx); rpcErr != nil {
		return nil, rpcErr
	}

	now := time.Now().UnixMilli()
	created, err := c.store.CreateAssessment(ctx, &types.Assessment{
		TraceID:          req.TraceID,
		Name:             req.Name,
		SpanID:           req.SpanID,
		Source:           *req.Source,
		CreateTimeMS:     now,
		LastUpdateTimeMS: now,
		Expectation:      &types.Expectation{Value: req.Value},
		Metadata:         req.Metadata,
	})
	if err != nil {
		c.warn("log expectation failed", "trace_id", req.TraceID, "name", req.Name, "err", err)
		return nil, err
	}
	return created, nil
}

// LogFeedback attaches a judgment to a trace and returns the created
// assessment with its backend-assigned ID.
func (c *Client) LogFeedback(ctx context.Context, req LogFeedbackRequest) (*types.Assessment, error) {
	if rpcErr := c.requireCapability(types.CapabilityAssessments); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := validateSource(req.Source); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := validateFeedback(req.Value, req.Error); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := c.wait(ctx); rpcErr != nil {
		return nil, rpcErr
	}

	now := time.Now().UnixMilli()
	created, err := c.store.CreateAssessment(ctx, &types.Assessment{
		TraceID:          req.TraceID,
		Name:             req.Name,
		Source:           *req.Source,
		CreateTimeMS:     now,
		LastUpdateTimeMS: now,
		Feedback:         &types.Feedback{Value: req.Value, Error: req.Error},
		Rationale:        req.Rationale,
		Metadata:         req.Metadata,
	})
	if err != nil {
		c.warn("log feedback failed", "trace_id", req.TraceID, "name", req.Name, "err", err)
		return nil, err
	}
	return created, nil
}

// UpdateExpectation replaces the value of an existing expectation, and
// optionally its name and metadata. Fields left nil in the request are not
// forwarded and stay untouched on the backend.
func (c *Client) UpdateExpectation(ctx context.Context, req UpdateExpectationRequest) (*types.Assessment, error) {
	if rpcErr := c.requireCapability(types.CapabilityAssessments); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := validateExpectationValue(req.Value); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := c.wait(ctx); rpcErr != nil {
		return nil, rpcErr
	}

	return c.store.UpdateAssessment(ctx, types.UpdateAssessmentParams{
		TraceID:      req.TraceID,
		AssessmentID: req.AssessmentID,
		Name:         req.Name,
		Expectation:  &types.Expectation{Value: req.Value},
		Metadata:     req.Metadata,
	})
}

// UpdateFeedback updates an existing feedback assessment. A new Feedback
// payload is forwarded only when a value or error is supplied; fields left
// nil in the request stay untouched on the backend.
func (c *Client) UpdateFeedback(ctx context.Context, req UpdateFeedbackRequest) (*types.Assessment, error) {
	if rpcErr := c.requireCapability(types.CapabilityAssessments); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := c.wait(ctx); rpcErr != nil {
		return nil, rpcErr
	}

	params := types.UpdateAssessmentParams{
		TraceID:      req.TraceID,
		AssessmentID: req.AssessmentID,
		Rationale:    req.Rationale,
		Metadata:     req.Metadata,
	}
	if req.Value != nil || req.Error != nil {
		params.Feedback = &types.Feedback{Value: req.Value, Error: req.Error}
	}
	return c.store.UpdateAssessment(ctx, params)
}

// DeleteExpectation removes an expectation keyed by (trace_id, assessment_id).
func (c *Client) DeleteExpectation(ctx context.Context, traceID, assessmentID string) error {
	return c.deleteAssessment(ctx, traceID, assessmentID)
}

// DeleteFeedback removes a feedback assessment keyed by (trace_id, assessment_id).
func (c *Client) DeleteFeedback(ctx context.Context, traceID, assessmentID string) error {
	return c.deleteAssessment(ctx, traceID, assessmentID)
}

func (c *Client) deleteAssessment(ctx context.Context, traceID, assessmentID string) error {
	if rpcErr := c.requireCapability(types.CapabilityAssessments); rpcErr != nil {
		return rpcErr
	}
	if rpcErr := c.wait(ctx); rpcErr != nil {
		return rpcErr
	}
	return c.store.DeleteAssessment(ctx, traceID, assessmentID)
}

// SearchTracesRequest holds the arguments for SearchTraces.
type SearchTracesRequest struct {
	ExperimentIDs []string
	MaxResults    int
	PageToken     string
}

// SearchTracesResponse is one page of materialized traces.
type SearchTracesResponse struct {
	Traces        []types.Trace
	NextPageToken string
}

// SearchTraces returns one page of traces for the given experiments. Each
// returned trace carries the assessment list embedded in its stored info,
// passed through unchanged; no per-trace fetch happens.
func (c *Client) SearchTraces(ctx context.Context, req SearchTracesRequest) (*SearchTracesResponse, error) {
	if rpcErr := c.requireCapability(types.CapabilitySearch); rpcErr != nil {
		return nil, rpcErr
	}
	if rpcErr := c.wait(ctx); rpcErr != nil {
		return nil, rpcErr
	}

	result, err := c.store.SearchTraces(ctx, types.SearchTracesParams{
		ExperimentIDs: req.ExperimentIDs,
		MaxResults:    req.MaxResults,
		PageToken:     req.PageToken,
	})
	if err != nil {
		return nil, err
	}

	traces := make([]types.Trace, 0, len(result.Traces))
	for _, info := range result.Traces {
		traces = append(traces, types.Trace{Info: info})
	}
	return &SearchTracesResponse{
		Traces:        traces,
		NextPageToken: result.NextPageToken,
	}, nil
}
