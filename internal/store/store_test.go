package store_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/assaylab-ai/assay/internal/store"
	"github.com/assaylab-ai/assay/pkg/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return st
}

func logTestTrace(t *testing.T, st *store.Store, traceID, experimentID string, timestampMS int64) {
	t.Helper()
	err := st.LogTrace(types.TraceInfo{
		TraceID:      traceID,
		ExperimentID: experimentID,
		TimestampMS:  timestampMS,
		Status:       types.TraceStatusOK,
		Tags:         map[string]string{"env": "test"},
	}, types.TraceData{})
	if err != nil {
		t.Fatalf("LogTrace(%s): %v", traceID, err)
	}
}

func TestCreateAssessment_AssignsIDAndTimestamps(t *testing.T) {
	st := newTestStore(t)
	logTestTrace(t, st, "tr-1", "exp-1", 100)

	created, err := st.CreateAssessment(&types.Assessment{
		TraceID:     "tr-1",
		Name:        "expected_answer",
		Source:      types.AssessmentSource{SourceType: types.SourceTypeHuman, SourceID: "bob@example.com"},
		Expectation: &types.Expectation{Value: "Paris"},
		Metadata:    map[string]string{"key": "value"},
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	if created.AssessmentID == "" {
		t.Error("AssessmentID not assigned")
	}
	if created.CreateTimeMS == 0 || created.LastUpdateTimeMS == 0 {
		t.Error("timestamps not stamped")
	}

	got, err := st.GetAssessment("tr-1", created.AssessmentID)
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if got.Name != "expected_answer" {
		t.Errorf("Name = %q, want expected_answer", got.Name)
	}
	if got.Expectation == nil || got.Expectation.Value != "Paris" {
		t.Errorf("Expectation = %+v, want value Paris", got.Expectation)
	}
	if got.Feedback != nil {
		t.Errorf("Feedback = %+v, want nil", got.Feedback)
	}
	if got.Metadata["key"] != "value" {
		t.Errorf("Metadata = %v", got.Metadata)
	}
	if got.Source.SourceType != types.SourceTypeHuman || got.Source.SourceID != "bob@example.com" {
		t.Errorf("Source = %+v", got.Source)
	}
}

func TestCreateAssessment_MissingTrace(t *testing.T) {
	st := newTestStore(t)

	_, err := st.CreateAssessment(&types.Assessment{
		TraceID:     "tr-none",
		Name:        "x",
		Source:      types.AssessmentSource{SourceType: types.SourceTypeHuman, SourceID: "bob"},
		Expectation: &types.Expectation{Value: 1.0},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateAssessment_FeedbackWithError(t *testing.T) {
	st := newTestStore(t)
	logTestTrace(t, st, "tr-1", "exp-1", 100)

	created, err := st.CreateAssessment(&types.Assessment{
		TraceID: "tr-1",
		Name:    "faithfulness",
		Source:  types.AssessmentSource{SourceType: types.SourceTypeLLMJudge, SourceID: "gpt-4o-mini"},
		Feedback: &types.Feedback{
			Value: 0.5,
			Error: &types.AssessmentError{ErrorCode: "RATE_LIMIT_EXCEEDED", ErrorMessage: "slow down"},
		},
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	got, err := st.GetAssessment("tr-1", created.AssessmentID)
	if err != nil {
		t.Fatalf("GetAssessment: %v", err)
	}
	if got.Feedback == nil || got.Feedback.Error == nil {
		t.Fatalf("Feedback = %+v, want value and error", got.Feedback)
	}
	// JSON numbers come back as float64.
	if got.Feedback.Value != 0.5 {
		t.Errorf("Feedback.Value = %v, want 0.5", got.Feedback.Value)
	}
	if got.Feedback.Error.ErrorCode != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("ErrorCode = %q", got.Feedback.Error.ErrorCode)
	}
}

func TestUpdateAssessment_PartialUpdate(t *testing.T) {
	st := newTestStore(t)
	logTestTrace(t, st, "tr-1", "exp-1", 100)

	rationale := "original rationale"
	created, err := st.CreateAssessment(&types.Assessment{
		TraceID:   "tr-1",
		Name:      "faithfulness",
		Source:    types.AssessmentSource{SourceType: types.SourceTypeLLMJudge, SourceID: "gpt-4o-mini"},
		Feedback:  &types.Feedback{Value: 0.5},
		Rationale: &rationale,
		Metadata:  map[string]string{"model": "gpt-4o-mini"},
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	// Update only the feedback payload; everything else must stay untouched.
	updated, err := st.UpdateAssessment(types.UpdateAssessmentParams{
		TraceID:      "tr-1",
		AssessmentID: created.AssessmentID,
		Feedback:     &types.Feedback{Value: 1.0},
	})
	if err != nil {
		t.Fatalf("UpdateAssessment: %v", err)
	}

	if updated.Feedback == nil || updated.Feedback.Value != 1.0 {
		t.Errorf("Feedback = %+v, want value 1.0", updated.Feedback)
	}
	if updated.Name != "faithfulness" {
		t.Errorf("Name = %q, want untouched", updated.Name)
	}
	if updated.Rationale == nil || *updated.Rationale != rationale {
		t.Errorf("Rationale = %v, want untouched", updated.Rationale)
	}
	if updated.Metadata["model"] != "gpt-4o-mini" {
		t.Errorf("Metadata = %v, want untouched", updated.Metadata)
	}
	if updated.CreateTimeMS != created.CreateTimeMS {
		t.Errorf("CreateTimeMS changed: %d -> %d", created.CreateTimeMS, updated.CreateTimeMS)
	}
	if updated.LastUpdateTimeMS < created.LastUpdateTimeMS {
		t.Errorf("LastUpdateTimeMS went backwards: %d -> %d", created.LastUpdateTimeMS, updated.LastUpdateTimeMS)
	}
}

func TestUpdateAssessment_NotFound(t *testing.T) {
	st := newTestStore(t)
	logTestTrace(t, st, "tr-1", "exp-1", 100)

	name := "new name"
	_, err := st.UpdateAssessment(types.UpdateAssessmentParams{
		TraceID:      "tr-1",
		AssessmentID: "a-missing",
		Name:         &name,
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteAssessment(t *testing.T) {
	st := newTestStore(t)
	logTestTrace(t, st, "tr-1", "exp-1", 100)

	created, err := st.CreateAssessment(&types.Assessment{
		TraceID:     "tr-1",
		Name:        "expected_answer",
		Source:      types.AssessmentSource{SourceType: types.SourceTypeHuman, SourceID: "bob"},
		Expectation: &types.Expectation{Value: "x"},
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	if err := st.DeleteAssessment("tr-1", created.AssessmentID); err != nil {
		t.Fatalf("DeleteAssessment: %v", err)
	}
	if _, err := st.GetAssessment("tr-1", created.AssessmentID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetAssessment after delete: err = %v, want ErrNotFound", err)
	}
	if err := st.DeleteAssessment("tr-1", created.AssessmentID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestSearchTraces_EmbedsAssessments(t *testing.T) {
	st := newTestStore(t)
	logTestTrace(t, st, "tr-1", "exp-1", 100)
	logTestTrace(t, st, "tr-2", "exp-1", 200)
	logTestTrace(t, st, "tr-other", "exp-2", 300)

	_, err := st.CreateAssessment(&types.Assessment{
		TraceID:  "tr-2",
		Name:     "faithfulness",
		Source:   types.AssessmentSource{SourceType: types.SourceTypeLLMJudge, SourceID: "gpt-4o-mini"},
		Feedback: &types.Feedback{Value: 1.0},
	})
	if err != nil {
		t.Fatalf("CreateAssessment: %v", err)
	}

	result, err := st.SearchTraces(types.SearchTracesParams{
		ExperimentIDs: []string{"exp-1"},
		MaxResults:    10,
	})
	if err != nil {
		t.Fatalf("SearchTraces: %v", err)
	}

	if len(result.Traces) != 2 {
		t.Fatalf("got %d traces, want 2", len(result.Traces))
	}
	// Newest first.
	if result.Traces[0].TraceID != "tr-2" || result.Traces[1].TraceID != "tr-1" {
		t.Errorf("order = [%s, %s], want [tr-2, tr-1]", result.Traces[0].TraceID, result.Traces[1].TraceID)
	}
	if len(result.Traces[0].Assessments) != 1 {
		t.Fatalf("tr-2 has %d assessments, want 1", len(result.Traces[0].Assessments))
	}
	if result.Traces[0].Assessments[0].Name != "faithfulness" {
		t.Errorf("assessment name = %q", result.Traces[0].Assessments[0].Name)
	}
	if result.NextPageToken != "" {
		t.Errorf("NextPageToken = %q, want empty on final page", result.NextPageToken)
	}
}

func TestSearchTraces_PaginationReturnsDisjointPages(t *testing.T) {
	st := newTestStore(t)
	for i := 0; i < 7; i++ {
		logTestTrace(t, st, fmt.Sprintf("tr-%d", i), "exp-1", int64(1000+i))
	}

	seen := make(map[string]bool)
	token := ""
	pages := 0
	for {
		result, err := st.SearchTraces(types.SearchTracesParams{
			ExperimentIDs: []string{"exp-1"},
			MaxResults:    3,
			PageToken:     token,
		})
		if err != nil {
			t.Fatalf("SearchTraces page %d: %v", pages, err)
		}
		for _, tr := range result.Traces {
			if seen[tr.TraceID] {
				t.Fatalf("trace %s returned twice", tr.TraceID)
			}
			seen[tr.TraceID] = true
		}
		pages++
		if result.NextPageToken == "" {
			break
		}
		token = result.NextPageToken
	}

	if len(seen) != 7 {
		t.Errorf("saw %d distinct traces across pages, want 7", len(seen))
	}
	if pages != 3 {
		t.Errorf("took %d pages, want 3", pages)
	}
}

func TestSearchTraces_BadPageToken(t *testing.T) {
	st := newTestStore(t)
	logTestTrace(t, st, "tr-1", "exp-1", 100)

	_, err := st.SearchTraces(types.SearchTracesParams{
		ExperimentIDs: []string{"exp-1"},
		PageToken:     "not-a-token!!!",
	})
	if !errors.Is(err, store.ErrBadPageToken) {
		t.Fatalf("err = %v, want ErrBadPageToken", err)
	}
}

func TestSearchTraces_NoExperiments(t *testing.T) {
	st := newTestStore(t)

	result, err := st.SearchTraces(types.SearchTracesParams{})
	if err != nil {
		t.Fatalf("SearchTraces: %v", err)
	}
	if len(result.Traces) != 0 {
		t.Errorf("got %d traces, want 0", len(result.Traces))
	}
}
