// Package node wires a cluster member together: its address, the services it
// hosts and the partition executor operations run on.
package node

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/opexec"
)

type Engine struct {
	id      string
	address addr.Address

	mu       sync.RWMutex
	services map[string]any

	executor *opexec.Executor
}

var _ operation.NodeEngine = &Engine{}

func NewEngine(address addr.Address, executor *opexec.Executor) *Engine {
	return &Engine{
		id:       uuid.NewString(),
		address:  address,
		services: map[string]any{},
		executor: executor,
	}
}

// ID is a random member id, unique per process run.
func (e *Engine) ID() string {
	return e.id
}

func (e *Engine) ThisAddress() addr.Address {
	return e.address
}

func (e *Engine) RegisterService(name string, svc any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.services[name]; ok {
		return migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "service %q is already registered", name)
	}
	e.services[name] = svc

	migrlog.Zero.Debug().
		Str("member", e.id).
		Str("service", name).
		Msg("node: registered service")
	return nil
}

func (e *Engine) Service(name string) (any, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	svc, ok := e.services[name]
	if !ok {
		return nil, migrerror.Newf(migrerror.MIG_UNKNOWN_SERVICE, "service %q is not registered on %s", name, e.address)
	}
	return svc, nil
}

// ServiceNames lists registered services in sorted order.
func (e *Engine) ServiceNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.services))
	for name := range e.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleOperation decodes an operation sent by caller, runs it on its
// partition stripe and returns the response it sent, if any.
func (e *Engine) HandleOperation(ctx context.Context, caller addr.Address, payload []byte) (any, error) {
	op, err := operation.Unmarshal(payload)
	if err != nil {
		migrlog.Zero.Warn().
			Err(err).
			Str("caller", caller.String()).
			Msg("node: failed to decode operation")
		return nil, err
	}
	return e.Execute(ctx, caller, op)
}

// Execute binds op to this member and runs it on its partition stripe.
func (e *Engine) Execute(ctx context.Context, caller addr.Address, op operation.Operation) (any, error) {
	var (
		mu       sync.Mutex
		response any
		answered bool
	)
	op.Bind(operation.Context{
		Node:         e,
		Caller:       caller,
		ServiceName:  op.ServiceName(),
		PartitionID:  op.PartitionID(),
		ReplicaIndex: op.ReplicaIndex(),
		Responder: operation.ResponderFunc(func(v any) error {
			mu.Lock()
			defer mu.Unlock()
			if answered {
				return migrerror.Newf(migrerror.MIG_ILLEGAL_STATE, "operation %s answered twice", op.TypeTag())
			}
			response, answered = v, true
			return nil
		}),
	})

	migrlog.Zero.Debug().
		Str("operation", op.TypeTag()).
		Int32("partition", op.PartitionID()).
		Str("caller", caller.String()).
		Msg("node: executing operation")

	var (
		runErr   error
		finished bool
	)
	if err := e.executor.Execute(ctx, op.PartitionID(), func(ctx context.Context) {
		runErr = op.Run(ctx)
		finished = true
	}); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	if !finished {
		return nil, migrerror.Newf(migrerror.MIG_UNEXPECTED, "operation %s did not complete", op.TypeTag())
	}

	mu.Lock()
	defer mu.Unlock()
	return response, nil
}
