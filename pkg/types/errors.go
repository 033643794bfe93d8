package types

import "encoding/json"

const (
	ErrInvalidArgument = 1001
	ErrUnsupported     = 1002
	ErrNotFound        = 1004
	ErrStoreError      = 2001
	ErrEngineError     = 3001
	ErrSessionError    = 3003

	ErrTypeInvalidArgument = "INVALID_ARGUMENT"
	ErrTypeUnsupported     = "UNSUPPORTED"
	ErrTypeNotFound        = "NOT_FOUND"
	ErrTypeStoreError      = "STORE_ERROR"
	ErrTypeEngineError     = "ENGINE_ERROR"
	ErrTypeSessionError    = "SESSION_ERROR"
)

// NewRPCError constructs an RPCError with the given fields.
func NewRPCError(code int, message string, errorType string, retryable bool, detail string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data: &ErrorData{
			ErrorType: errorType,
			Retryable: retryable,
			Detail:    detail,
		},
	}
}

// Error implements the error interface. The tracking SDK surfaces every
// failure as this single kind; callers branch on Code or Data.ErrorType,
// not on distinct Go error types.
func (e *RPCError) Error() string {
	return e.Message
}

// ErrorCode returns the error_type string of err when err is an *RPCError,
// or the empty string otherwise.
func ErrorCode(err error) string {
	rpcErr, ok := err.(*RPCError)
	if !ok || rpcErr.Data == nil {
		return ""
	}
	return rpcErr.Data.ErrorType
}

// NewErrorResponse constructs a JSON-RPC error response.
func NewErrorResponse(id int64, err *RPCError) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   err,
	}
}

// NewSuccessResponse constructs a JSON-RPC success response from a result value.
func NewSuccessResponse(id int64, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  raw,
	}, nil
}
