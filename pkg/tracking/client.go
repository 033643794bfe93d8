package tracking

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/assaylab-ai/assay/pkg/types"
)

// Store is the narrow contract the fluent API needs from a tracking backend.
// The RPC store implements it against a live tracker; tests substitute a fake.
type Store interface {
	// Capabilities returns the capability names the backend advertises.
	Capabilities() []string
	// CreateAssessment persists a new assessment and returns it with its
	// backend-assigned ID.
	CreateAssessment(ctx context.Context, a *types.Assessment) (*types.Assessment, error)
	// UpdateAssessment applies a partial update keyed by (trace_id,
	// assessment_id). Nil fields in params are left untouched.
	UpdateAssessment(ctx context.Context, params types.UpdateAssessmentParams) (*types.Assessment, error)
	// DeleteAssessment removes the assessment keyed by (trace_id, assessment_id).
	DeleteAssessment(ctx context.Context, traceID, assessmentID string) error
	// SearchTraces returns one page of traces, each with its assessments embedded.
	SearchTraces(ctx context.Context, params types.SearchTracesParams) (*types.SearchTracesResult, error)
}

// Client wraps a Store with the fluent assessment API. Each call performs the
// capability gate, validation, and exactly one delegated Store operation.
type Client struct {
	store   Store
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger. The default discards nothing and goes
// nowhere; pass a logger to see warnings for failed calls.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRateLimit caps delegated calls at requestsPerSecond with the given
// burst. Calls block in Wait until a slot is available or ctx is done.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst) }
}

// NewClient creates a Client over the given Store.
func NewClient(store Store, opts ...Option) *Client {
	c := &Client{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// requireCapability fails with an UNSUPPORTED error when the backend does not
// advertise the named capability. Checked on every call, before validation,
// so a backend swap mid-process is picked up immediately.
func (c *Client) requireCapability(name string) *types.RPCError {
	for _, capability := range c.store.Capabilities() {
		if capability == name {
			return nil
		}
	}
	return types.NewRPCError(
		types.ErrUnsupported,
		"this API is not available on the current tracker backend",
		types.ErrTypeUnsupported,
		false,
		"the backend does not advertise the '"+name+"' capability",
	)
}

// wait blocks on the configured rate limiter, if any.
func (c *Client) wait(ctx context.Context) *types.RPCError {
	if c.limiter == nil {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return types.NewRPCError(
			types.ErrEngineError,
			"rate limit wait interrupted",
			types.ErrTypeEngineError,
			true,
			err.Error(),
		)
	}
	return nil
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
