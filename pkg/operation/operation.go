// Package operation defines the unit of work members send to each other and
// the registry that lets a receiver rebuild an operation from its type tag.
package operation

import (
	"context"
	"errors"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/wire"
)

// ErrIllegalState marks faults caused by an expected race, such as a
// topology change observed mid-operation. Any MigError carrying
// MIG_ILLEGAL_STATE matches it.
var ErrIllegalState = migrerror.NewByCode(migrerror.MIG_ILLEGAL_STATE)

func IsIllegalState(err error) bool {
	return errors.Is(err, ErrIllegalState)
}

// Responder delivers the single reply of an operation to its caller.
type Responder interface {
	SendResponse(v any) error
}

type ResponderFunc func(v any) error

func (f ResponderFunc) SendResponse(v any) error {
	return f(v)
}

type noReply struct{}

func (noReply) SendResponse(any) error { return nil }

// NoReply discards responses. Operations nested inside another operation use it,
// only the enclosing operation answers the caller.
var NoReply Responder = noReply{}

// NodeEngine is the view of the local member available to running operations.
type NodeEngine interface {
	ThisAddress() addr.Address
	Service(name string) (any, error)
}

// Context is what an operation is bound to before it runs.
type Context struct {
	Node         NodeEngine
	Caller       addr.Address
	ServiceName  string
	PartitionID  int32
	ReplicaIndex int32
	Responder    Responder
}

type Operation interface {
	// TypeTag names the operation in the registry.
	TypeTag() string
	// ServiceName is the service the operation acts on.
	ServiceName() string

	PartitionID() int32
	ReplicaIndex() int32
	SetPartition(partitionID, replicaIndex int32)

	Bind(c Context)
	Run(ctx context.Context) error

	WriteInternal(w *wire.Writer) error
	ReadInternal(r *wire.Reader) error
}

// Base carries the bookkeeping shared by all operations. Embed it.
type Base struct {
	partitionID  int32
	replicaIndex int32

	opCtx Context
}

func (b *Base) PartitionID() int32 {
	return b.partitionID
}

func (b *Base) ReplicaIndex() int32 {
	return b.replicaIndex
}

func (b *Base) SetPartition(partitionID, replicaIndex int32) {
	b.partitionID = partitionID
	b.replicaIndex = replicaIndex
}

func (b *Base) Bind(c Context) {
	b.opCtx = c
	b.SetPartition(c.PartitionID, c.ReplicaIndex)
}

func (b *Base) OpContext() Context {
	return b.opCtx
}

func (b *Base) Node() NodeEngine {
	return b.opCtx.Node
}

func (b *Base) Caller() addr.Address {
	return b.opCtx.Caller
}

// Service resolves the service the operation was bound to.
func (b *Base) Service() (any, error) {
	if b.opCtx.Node == nil {
		return nil, migrerror.New(migrerror.MIG_ILLEGAL_STATE, "operation is not bound to a node")
	}
	return b.opCtx.Node.Service(b.opCtx.ServiceName)
}

func (b *Base) SendResponse(v any) error {
	if b.opCtx.Responder == nil {
		return nil
	}
	return b.opCtx.Responder.SendResponse(v)
}
