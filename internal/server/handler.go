package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/assaylab-ai/assay/internal/store"
	"github.com/assaylab-ai/assay/pkg/types"
)

const (
	trackerVersion  = "0.2.0"
	protocolVersion = 1
)

// RegisterBuiltinHandlers registers the built-in JSON-RPC handlers on s.
// It reads ASSAY_* env vars to decide which capabilities this tracker serves.
func RegisterBuiltinHandlers(s *Server, st *store.Store) error {
	caps := capabilitiesFromEnv()

	s.RegisterHandler("initialize", handleInitialize(caps))
	s.RegisterHandler("shutdown", handleShutdown)
	s.RegisterHandler("log_trace", handleLogTrace(st))
	s.RegisterHandler("search_traces", handleSearchTraces(st))

	// Assessment methods exist only when the capability is served; a tracker
	// started with assessments disabled answers METHOD_NOT_FOUND, and clients
	// are expected to gate on the capability list from initialize.
	if hasCapability(caps, types.CapabilityAssessments) {
		validator, err := newCreateAssessmentValidator()
		if err != nil {
			return err
		}
		s.RegisterHandler("create_assessment", handleCreateAssessment(st, validator))
		s.RegisterHandler("update_assessment", handleUpdateAssessment(st))
		s.RegisterHandler("delete_assessment", handleDeleteAssessment(st))
	}
	return nil
}

func capabilitiesFromEnv() []string {
	caps := []string{types.CapabilityTraces, types.CapabilitySearch}
	if !envBool("ASSAY_DISABLE_ASSESSMENTS") {
		caps = append(caps, types.CapabilityAssessments)
	}
	return caps
}

func hasCapability(caps []string, name string) bool {
	for _, c := range caps {
		if c == name {
			return true
		}
	}
	return false
}

// envBool treats "1" and "true" as set.
func envBool(key string) bool {
	v := os.Getenv(key)
	return v == "1" || v == "true"
}

// EnvInt reads an int from an env var with a fallback default.
func EnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// requireInitialized gates every method except initialize.
func requireInitialized(session *Session) *types.RPCError {
	if session.State() != StateInitialized {
		return types.NewRPCError(
			types.ErrSessionError,
			"session is not initialized",
			types.ErrTypeSessionError,
			false,
			"call initialize before any other method",
		)
	}
	return nil
}

// invalidParams wraps a params decode failure.
func invalidParams(method string, err error) *types.RPCError {
	return types.NewRPCError(
		types.ErrInvalidArgument,
		"invalid "+method+" params",
		types.ErrTypeInvalidArgument,
		false,
		err.Error(),
	)
}

// mapStoreError translates store failures into the wire error taxonomy.
func mapStoreError(err error) *types.RPCError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return types.NewRPCError(types.ErrNotFound, err.Error(), types.ErrTypeNotFound, false, "")
	case errors.Is(err, store.ErrBadPageToken):
		return types.NewRPCError(types.ErrInvalidArgument, err.Error(), types.ErrTypeInvalidArgument, false,
			"pass a next_page_token from a previous search_traces result, or omit it")
	default:
		return types.NewRPCError(types.ErrStoreError, "store operation failed", types.ErrTypeStoreError, true, err.Error())
	}
}

func handleInitialize(caps []string) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if session.State() != StateUninitialized {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"initialize called on already-initialized session",
				types.ErrTypeSessionError,
				false,
				"initialize may only be called once per session",
			)
		}

		var p types.InitializeParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				"invalid initialize params",
				types.ErrTypeSessionError,
				false,
				err.Error(),
			)
		}

		if p.ProtocolVersion != protocolVersion {
			return nil, types.NewRPCError(
				types.ErrSessionError,
				fmt.Sprintf("protocol version %d not supported; tracker supports version %d", p.ProtocolVersion, protocolVersion),
				types.ErrTypeSessionError,
				false,
				"Upgrade the tracker binary or downgrade the client protocol_version",
			)
		}

		// Compute missing capabilities.
		var missing []string
		for _, req := range p.RequiredCapabilities {
			if !hasCapability(caps, req) {
				missing = append(missing, req)
			}
		}
		compatible := len(missing) == 0
		if missing == nil {
			missing = []string{}
		}

		session.SetState(StateInitialized)

		return &types.InitializeResult{
			TrackerVersion:        trackerVersion,
			ProtocolVersion:       protocolVersion,
			Capabilities:          caps,
			Missing:               missing,
			Compatible:            compatible,
			MaxConcurrentRequests: 64,
			MaxSearchResults:      store.MaxResultsCeiling,
		}, nil
	}
}

func handleShutdown(session *Session, _ json.RawMessage) (any, *types.RPCError) {
	if session.State() != StateInitialized {
		return nil, types.NewRPCError(
			types.ErrSessionError,
			"shutdown called on uninitialized or already-shutting-down session",
			types.ErrTypeSessionError,
			false,
			"call initialize before shutdown",
		)
	}

	session.SetState(StateShuttingDown)
	assessments, traces := session.Stats()

	return &types.ShutdownResult{
		AssessmentsWritten: int(assessments),
		TracesLogged:       int(traces),
	}, nil
}

func handleLogTrace(st *store.Store) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.LogTraceParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("log_trace", err)
		}
		if p.Info.TraceID == "" {
			return nil, types.NewRPCError(types.ErrInvalidArgument,
				"trace missing required field: trace_id", types.ErrTypeInvalidArgument, false,
				"every trace must include a non-empty trace_id")
		}
		if p.Info.ExperimentID == "" {
			return nil, types.NewRPCError(types.ErrInvalidArgument,
				"trace missing required field: experiment_id", types.ErrTypeInvalidArgument, false,
				"every trace must belong to an experiment")
		}
		if p.Info.Status == "" {
			p.Info.Status = types.TraceStatusOK
		}

		if err := st.LogTrace(p.Info, p.Data); err != nil {
			return nil, mapStoreError(err)
		}
		session.RecordTraceLogged()
		return &types.LogTraceResult{TraceID: p.Info.TraceID}, nil
	}
}

func handleCreateAssessment(st *store.Store, validator *paramsValidator) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session); rpcErr != nil {
			return nil, rpcErr
		}

		if err := validator.validate(params); err != nil {
			return nil, types.NewRPCError(types.ErrInvalidArgument,
				"create_assessment params failed schema validation",
				types.ErrTypeInvalidArgument, false, err.Error())
		}

		var p types.CreateAssessmentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("create_assessment", err)
		}

		// Exactly one of expectation/feedback per assessment.
		if (p.Assessment.Expectation == nil) == (p.Assessment.Feedback == nil) {
			return nil, types.NewRPCError(types.ErrInvalidArgument,
				"exactly one of expectation and feedback must be set",
				types.ErrTypeInvalidArgument, false,
				"an assessment is either a ground-truth expectation or a feedback judgment")
		}

		created, err := st.CreateAssessment(&p.Assessment)
		if err != nil {
			return nil, mapStoreError(err)
		}
		session.RecordAssessmentWrite()
		return created, nil
	}
}

func handleUpdateAssessment(st *store.Store) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.UpdateAssessmentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("update_assessment", err)
		}
		if p.TraceID == "" || p.AssessmentID == "" {
			return nil, types.NewRPCError(types.ErrInvalidArgument,
				"update_assessment requires trace_id and assessment_id",
				types.ErrTypeInvalidArgument, false,
				"updates are keyed by (trace_id, assessment_id)")
		}

		updated, err := st.UpdateAssessment(p)
		if err != nil {
			return nil, mapStoreError(err)
		}
		session.RecordAssessmentWrite()
		return updated, nil
	}
}

func handleDeleteAssessment(st *store.Store) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.DeleteAssessmentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("delete_assessment", err)
		}
		if p.TraceID == "" || p.AssessmentID == "" {
			return nil, types.NewRPCError(types.ErrInvalidArgument,
				"delete_assessment requires trace_id and assessment_id",
				types.ErrTypeInvalidArgument, false,
				"deletes are keyed by (trace_id, assessment_id)")
		}

		if err := st.DeleteAssessment(p.TraceID, p.AssessmentID); err != nil {
			return nil, mapStoreError(err)
		}
		return &types.DeleteAssessmentResult{Deleted: true}, nil
	}
}

func handleSearchTraces(st *store.Store) Handler {
	return func(session *Session, params json.RawMessage) (any, *types.RPCError) {
		if rpcErr := requireInitialized(session); rpcErr != nil {
			return nil, rpcErr
		}

		var p types.SearchTracesParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, invalidParams("search_traces", err)
		}

		result, err := st.SearchTraces(p)
		if err != nil {
			return nil, mapStoreError(err)
		}
		return result, nil
	}
}
