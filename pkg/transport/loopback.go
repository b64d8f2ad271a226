package transport

import (
	"context"
	"sync"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"go.uber.org/atomic"
)

// Loopback connects in-process members. Every call still goes through the
// full request and response encoding.
type Loopback struct {
	mu      sync.RWMutex
	members map[addr.Address]Handler

	callID *atomic.Int64
}

func NewLoopback() *Loopback {
	return &Loopback{
		members: map[addr.Address]Handler{},
		callID:  atomic.NewInt64(0),
	}
}

func (l *Loopback) Register(a addr.Address, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.members[a] = h
}

func (l *Loopback) Unregister(a addr.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.members, a)
}

// Invoker returns an Invoker that calls other members on behalf of self.
func (l *Loopback) Invoker(self addr.Address) Invoker {
	return &loopbackInvoker{
		hub:  l,
		self: self,
	}
}

type loopbackInvoker struct {
	hub  *Loopback
	self addr.Address
}

func (i *loopbackInvoker) Invoke(ctx context.Context, target addr.Address, op operation.Operation) (any, error) {
	i.hub.mu.RLock()
	h, ok := i.hub.members[target]
	i.hub.mu.RUnlock()
	if !ok {
		return nil, migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "member %s is not reachable", target)
	}

	req, err := encodeRequest(i.hub.callID.Inc(), i.self, op)
	if err != nil {
		return nil, err
	}
	callID, caller, body, err := decodeRequest(req)
	if err != nil {
		return nil, err
	}

	v, err := h.HandleOperation(ctx, caller, body)
	_, value, err := decodeResponse(encodeResponse(callID, v, err))
	return value, err
}
