package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/assaylab-ai/assay/pkg/types"
)

const (
	clientName      = "assay-go"
	clientVersion   = "0.2.0"
	protocolVersion = 1
)

// RPCStore implements Store against a tracker speaking NDJSON JSON-RPC over
// an io.ReadWriter (a stdio pipe to an assay-tracker process, typically).
// The protocol is sequential request/response; a mutex serializes calls.
type RPCStore struct {
	mu     sync.Mutex // serializes the request/response exchange
	reader *bufio.Scanner
	writer *bufio.Writer
	nextID int64
	caps   []string
	logger *slog.Logger
}

// DialStore performs the initialize handshake over rw and returns a connected
// RPCStore with the tracker's advertised capabilities cached.
func DialStore(rw io.ReadWriter, logger *slog.Logger) (*RPCStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(rw)
	// 10 MB buffer for large search pages.
	const maxScanBuf = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, maxScanBuf), maxScanBuf)

	s := &RPCStore{
		reader: scanner,
		writer: bufio.NewWriter(rw),
		logger: logger,
	}

	var init types.InitializeResult
	err := s.call(context.Background(), "initialize", types.InitializeParams{
		ClientName:      clientName,
		ClientVersion:   clientVersion,
		ProtocolVersion: protocolVersion,
	}, &init)
	if err != nil {
		return nil, err
	}
	s.caps = init.Capabilities
	return s, nil
}

// Capabilities returns the capability names cached from the handshake.
func (s *RPCStore) Capabilities() []string {
	return s.caps
}

// CreateAssessment implements Store.
func (s *RPCStore) CreateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error) {
	var created types.Assessment
	if err := s.call(ctx, "create_assessment", types.CreateAssessmentParams{Assessment: *a}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateAssessment implements Store.
func (s *RPCStore) UpdateAssessment(ctx context.Context, params types.UpdateAssessmentParams) (*types.Assessment, error) {
	var updated types.Assessment
	if err := s.call(ctx, "update_assessment", params, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteAssessment implements Store.
func (s *RPCStore) DeleteAssessment(ctx context.Context, traceID, assessmentID string) error {
	var result types.DeleteAssessmentResult
	return s.call(ctx, "delete_assessment", types.DeleteAssessmentParams{
		TraceID:      traceID,
		AssessmentID: assessmentID,
	}, &result)
}

// SearchTraces implements Store.
func (s *RPCStore) SearchTraces(ctx context.Context, params types.SearchTracesParams) (*types.SearchTracesResult, error) {
	var result types.SearchTracesResult
	if err := s.call(ctx, "search_traces", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LogTrace records a trace on the tracker so assessments can attach to it.
func (s *RPCStore) LogTrace(ctx context.Context, info types.TraceInfo, data types.TraceData) error {
	var result types.LogTraceResult
	return s.call(ctx, "log_trace", types.LogTraceParams{Info: info, Data: data}, &result)
}

// Shutdown ends the tracker session and returns its write counters.
func (s *RPCStore) Shutdown(ctx context.Context) (*types.ShutdownResult, error) {
	var result types.ShutdownResult
	if err := s.call(ctx, "shutdown", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// call performs one request/response exchange. Backend failures come back as
// *types.RPCError unchanged; transport failures are wrapped into one.
func (s *RPCStore) call(ctx context.Context, method string, params any, result any) error {
	if err := ctx.Err(); err != nil {
		return types.NewRPCError(types.ErrEngineError, "call canceled", types.ErrTypeEngineError, false, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID

	rawParams, err := json.Marshal(params)
	if err != nil {
		return types.NewRPCError(types.ErrEngineError, "failed to marshal params", types.ErrTypeEngineError, false, err.Error())
	}

	data, err := json.Marshal(types.Request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  rawParams,
	})
	if err != nil {
		return types.NewRPCError(types.ErrEngineError, "failed to marshal request", types.ErrTypeEngineError, false, err.Error())
	}

	if _, err := s.writer.Write(data); err != nil {
		return types.NewRPCError(types.ErrEngineError, "failed to write request", types.ErrTypeEngineError, true, err.Error())
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return types.NewRPCError(types.ErrEngineError, "failed to write request", types.ErrTypeEngineError, true, err.Error())
	}
	if err := s.writer.Flush(); err != nil {
		return types.NewRPCError(types.ErrEngineError, "failed to flush request", types.ErrTypeEngineError, true, err.Error())
	}

	if !s.reader.Scan() {
		detail := "connection closed"
		if err := s.reader.Err(); err != nil {
			detail = err.Error()
		}
		return types.NewRPCError(types.ErrEngineError, "failed to read response", types.ErrTypeEngineError, true, detail)
	}

	var resp types.Response
	if err := json.Unmarshal(s.reader.Bytes(), &resp); err != nil {
		return types.NewRPCError(types.ErrEngineError, "failed to parse response", types.ErrTypeEngineError, false, err.Error())
	}
	if resp.ID != id {
		s.logger.Error("response id mismatch", "method", method, "want", id, "got", resp.ID)
		return types.NewRPCError(types.ErrEngineError, "response id mismatch", types.ErrTypeEngineError, false, "the tracker answered out of order")
	}
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return types.NewRPCError(types.ErrEngineError, "failed to parse result", types.ErrTypeEngineError, false, err.Error())
		}
	}
	return nil
}
