// Package transport carries operations between members and brings back the
// single response each invocation produces.
package transport

import (
	"context"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/operation"
)

// Invoker sends op to target and waits for its response.
type Invoker interface {
	Invoke(ctx context.Context, target addr.Address, op operation.Operation) (any, error)
}

// Handler executes an encoded operation received from caller.
type Handler interface {
	HandleOperation(ctx context.Context, caller addr.Address, payload []byte) (any, error)
}

type HandlerFunc func(ctx context.Context, caller addr.Address, payload []byte) (any, error)

func (f HandlerFunc) HandleOperation(ctx context.Context, caller addr.Address, payload []byte) (any, error) {
	return f(ctx, caller, payload)
}
