package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mindpattern/voicegate/types"
)

const (
	defaultToolTimeout = 30 * time.Second
	defaultConcurrency = 8
)

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout sets the per-call execution timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithConcurrency caps how many calls run in parallel.
func WithConcurrency(n int) ExecutorOption {
	return func(e *Executor) { e.concurrency = n }
}

// WithRateLimit applies a token-bucket limit across all tool calls.
func WithRateLimit(callsPerSecond float64, burst int) ExecutorOption {
	return func(e *Executor) { e.limiter = rate.NewLimiter(rate.Limit(callsPerSecond), burst) }
}

// Executor runs accumulated tool calls against the registry.
type Executor struct {
	registry    *Registry
	timeout     time.Duration
	concurrency int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewExecutor creates a tool executor over the given registry.
func NewExecutor(registry *Registry, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		registry:    registry,
		timeout:     defaultToolTimeout,
		concurrency: defaultConcurrency,
		logger:      logger.With(zap.String("component", "tool_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs all calls concurrently and returns results in call order.
// Individual failures are absorbed into their ToolResult; Execute itself
// never fails.
func (e *Executor) Execute(ctx context.Context, calls []types.ToolCall) []types.ToolResult {
	results := make([]types.ToolResult, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(gctx, call)
			return nil
		})
	}
	g.Wait()

	return results
}

// ExecuteOne runs a single call with argument validation and a timeout.
func (e *Executor) ExecuteOne(ctx context.Context, call types.ToolCall) types.ToolResult {
	start := time.Now()
	result := types.ToolResult{
		ToolCallID: call.ID,
		Name:       call.Name,
	}

	tool, err := e.registry.Get(call.Name)
	if err != nil {
		result.Error = err.Error()
		result.Duration = time.Since(start)
		e.logger.Error("tool not found", zap.String("name", call.Name))
		return result
	}

	args := json.RawMessage(call.Arguments)
	if call.Arguments == "" {
		args = json.RawMessage("{}")
	}
	if !json.Valid(args) {
		verr := types.NewError(types.ErrToolValidation,
			fmt.Sprintf("tool %s arguments are not valid JSON", call.Name))
		result.Error = verr.Error()
		result.Duration = time.Since(start)
		e.logger.Error("invalid tool arguments",
			zap.String("name", call.Name),
			zap.Int("argument_bytes", len(call.Arguments)))
		return result
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			result.Error = types.NewError(types.ErrRateLimited, "tool rate limit wait aborted").WithCause(err).Error()
			result.Duration = time.Since(start)
			return result
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// Buffered so the worker can exit even when nobody receives after a
	// timeout.
	done := make(chan struct {
		out string
		err error
	}, 1)

	go func() {
		out, err := tool.Execute(execCtx, args)
		select {
		case done <- struct {
			out string
			err error
		}{out, err}:
		case <-execCtx.Done():
		}
	}()

	select {
	case d := <-done:
		result.Duration = time.Since(start)
		if d.err != nil {
			result.Error = types.NewError(types.ErrToolExecution, d.err.Error()).Error()
			e.logger.Error("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(d.err),
				zap.Duration("duration", result.Duration))
		} else {
			result.Output = d.out
			e.logger.Info("tool executed",
				zap.String("name", call.Name),
				zap.Duration("duration", result.Duration))
		}

	case <-execCtx.Done():
		result.Duration = time.Since(start)
		result.Error = types.NewError(types.ErrTimeout,
			fmt.Sprintf("execution timeout after %s", e.timeout)).Error()
		e.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", e.timeout))
	}

	return result
}
