package types_test

import (
	"encoding/json"
	"testing"

	"github.com/assaylab-ai/assay/pkg/types"
)

func TestAssessment_JSON_RoundTrip(t *testing.T) {
	spanID := "span-001"
	rationale := "faithful to the retrieved context"

	original := types.Assessment{
		AssessmentID: "a-001",
		TraceID:      "tr-001",
		Name:         "faithfulness",
		SpanID:       &spanID,
		Source: types.AssessmentSource{
			SourceType: types.SourceTypeLLMJudge,
			SourceID:   "gpt-4o-mini",
		},
		CreateTimeMS:     1700000000000,
		LastUpdateTimeMS: 1700000001000,
		Feedback: &types.Feedback{
			Value: 0.5,
			Error: &types.AssessmentError{
				ErrorCode:    "RATE_LIMIT_EXCEEDED",
				ErrorMessage: "Rate limit for the judge exceeded.",
			},
		},
		Rationale: &rationale,
		Metadata:  map[string]string{"model": "gpt-4o-mini"},
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var restored types.Assessment
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if restored.AssessmentID != original.AssessmentID {
		t.Errorf("AssessmentID: got %q, want %q", restored.AssessmentID, original.AssessmentID)
	}
	if restored.Source != original.Source {
		t.Errorf("Source: got %+v, want %+v", restored.Source, original.Source)
	}
	if restored.SpanID == nil || *restored.SpanID != spanID {
		t.Errorf("SpanID: got %v, want %q", restored.SpanID, spanID)
	}
	if restored.Expectation != nil {
		t.Errorf("Expectation: got %+v, want nil", restored.Expectation)
	}
	if restored.Feedback == nil {
		t.Fatal("Feedback is nil after round-trip")
	}
	if restored.Feedback.Value != 0.5 {
		t.Errorf("Feedback.Value: got %v, want 0.5", restored.Feedback.Value)
	}
	if restored.Feedback.Error == nil || restored.Feedback.Error.ErrorCode != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("Feedback.Error: got %+v", restored.Feedback.Error)
	}
	if restored.Rationale == nil || *restored.Rationale != rationale {
		t.Errorf("Rationale: got %v, want %q", restored.Rationale, rationale)
	}
}

func TestAssessment_OptionalFieldsOmitted(t *testing.T) {
	a := types.Assessment{
		TraceID:     "tr-001",
		Name:        "expected_answer",
		Source:      types.AssessmentSource{SourceType: types.SourceTypeHuman, SourceID: "bob@example.com"},
		Expectation: &types.Expectation{Value: "Paris"},
	}

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	for _, field := range []string{"assessment_id", "span_id", "feedback", "rationale", "metadata"} {
		if _, present := raw[field]; present {
			t.Errorf("field %q present in wire form, want omitted when unset", field)
		}
	}
	if _, present := raw["expectation"]; !present {
		t.Error("expectation missing from wire form")
	}
}

func TestAssessmentSource_ValueEquality(t *testing.T) {
	a := types.AssessmentSource{SourceType: types.SourceTypeHuman, SourceID: "bob@example.com"}
	b := types.AssessmentSource{SourceType: types.SourceTypeHuman, SourceID: "bob@example.com"}
	if a != b {
		t.Error("identical sources compare unequal")
	}

	c := types.AssessmentSource{SourceType: types.SourceTypeLLMJudge, SourceID: "bob@example.com"}
	if a == c {
		t.Error("sources with different types compare equal")
	}
}

func TestErrorCode(t *testing.T) {
	rpcErr := types.NewRPCError(types.ErrInvalidArgument, "bad value", types.ErrTypeInvalidArgument, false, "")
	if got := types.ErrorCode(rpcErr); got != types.ErrTypeInvalidArgument {
		t.Errorf("ErrorCode = %q, want INVALID_ARGUMENT", got)
	}
	if rpcErr.Error() != "bad value" {
		t.Errorf("Error() = %q, want %q", rpcErr.Error(), "bad value")
	}
	if got := types.ErrorCode(nil); got != "" {
		t.Errorf("ErrorCode(nil) = %q, want empty", got)
	}
}
