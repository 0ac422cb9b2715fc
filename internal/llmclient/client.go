// Package llmclient adapts the opaque LLM gateway used by every REASONING
// task kind (planner, implementation, testbench, reflection, debug,
// spec-helper). A single Client interface keeps handlers agnostic of the
// concrete provider; BreakerClient wraps any Client with a circuit breaker
// so a failing backend trips open instead of exhausting every task's
// retry budget one at a time.
package llmclient

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Request is a single completion request sent to the LLM gateway.
type Request struct {
	System        string
	Prompt        string
	PriorArtifact string
}

// Response is the gateway's completion result along with usage accounting
// used to populate a Result's CostMetrics.
type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Client completes a single reasoning request against an LLM backend.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// BreakerClient wraps a Client with a circuit breaker: once the wrapped
// client has failed five times in a row, calls
// fail fast with gobreaker.ErrOpenState instead of waiting out the
// backend's own timeout on every task.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a circuit breaker named name. The
// breaker opens after five consecutive failures and probes again after 30
// seconds in the half-open state, via gobreaker's default Timeout
// customized below.
func NewBreakerClient(name string, inner Client) *BreakerClient {
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Complete runs req through the circuit breaker.
func (c *BreakerClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.breaker.Execute(func() (any, error) {
		return c.inner.Complete(ctx, req)
	})
	if err != nil {
		return Response{}, fmt.Errorf("llmclient: %w", err)
	}
	return resp.(Response), nil
}
