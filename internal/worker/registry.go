// Package worker implements the generic consumer loop shared by every
// worker process: decode a delivery, validate it structurally, dispatch it
// by task kind to a registered handler, classify any error the handler
// returns, and either republish for retry, dead-letter, or acknowledge and
// publish a Result.
package worker

import (
	"context"

	"github.com/hdlmesh/taskmesh/internal/contracts"
)

// Handler processes a single Task and returns its Result. A Handler
// signals a transient failure by returning an error wrapped with
// retry.NewRetryableError, and a permanent input failure by returning one
// wrapped with retry.NewInputError. Any other error is published as an
// ordinary FAILURE result immediately, with no retry.
type Handler func(ctx context.Context, task contracts.Task) (contracts.Result, error)

// Registry maps a task kind to the handler that processes it. This is the
// sum-type dispatch table described for the worker loop: a plain map
// rather than any runtime type-switching or subclassing.
type Registry map[contracts.TaskKind]Handler

// Lookup returns the handler registered for kind, or false if none is
// registered.
func (r Registry) Lookup(kind contracts.TaskKind) (Handler, bool) {
	h, ok := r[kind]
	return h, ok
}
