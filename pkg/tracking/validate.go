package tracking

import "github.com/assaylab-ai/assay/pkg/types"

// Validation helpers run locally, before any backend call. Each returns nil
// on success or an INVALID_ARGUMENT error describing the first failure.

func validateSource(source *types.AssessmentSource) *types.RPCError {
	if source == nil {
		return types.NewRPCError(
			types.ErrInvalidArgument,
			"source must be an instance of AssessmentSource",
			types.ErrTypeInvalidArgument,
			false,
			"provide an AssessmentSource with a source_type and source_id",
		)
	}
	return nil
}

func validateExpectationValue(value any) *types.RPCError {
	if value == nil {
		return types.NewRPCError(
			types.ErrInvalidArgument,
			"expectation value cannot be nil",
			types.ErrTypeInvalidArgument,
			false,
			"an expectation records a ground-truth value; provide a non-nil value",
		)
	}
	return nil
}

func validateFeedback(value any, fbErr *types.AssessmentError) *types.RPCError {
	if value == nil && fbErr == nil {
		return types.NewRPCError(
			types.ErrInvalidArgument,
			"either value or error must be provided for feedback",
			types.ErrTypeInvalidArgument,
			false,
			"feedback with both a value and an error records a partial result; feedback with neither records nothing",
		)
	}
	return nil
}
