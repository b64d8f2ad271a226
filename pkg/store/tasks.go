package store

import (
	"context"

	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/wire"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	ReplicaSyncTaskTag    = "partmig:mapReplicaSync"
	ClearPartitionTaskTag = "partmig:mapClearPartition"
)

func init() {
	operation.Register(ReplicaSyncTaskTag, func() operation.Operation {
		return &ReplicaSyncTask{}
	})
	operation.Register(ClearPartitionTaskTag, func() operation.Operation {
		return &ClearPartitionTask{}
	})
}

func mapService(op *operation.Base) (*MapService, error) {
	svc, err := op.Service()
	if err != nil {
		return nil, err
	}
	s, ok := svc.(*MapService)
	if !ok {
		return nil, migrerror.Newf(migrerror.MIG_UNKNOWN_SERVICE, "service %T is not a map service", svc)
	}
	return s, nil
}

// ReplicaSyncTask installs a batch of entries into one partition replica.
type ReplicaSyncTask struct {
	operation.Base

	Entries []Entry
}

func NewReplicaSyncTask(partitionID, replicaIndex int32, entries []Entry) *ReplicaSyncTask {
	t := &ReplicaSyncTask{Entries: entries}
	t.SetPartition(partitionID, replicaIndex)
	return t
}

func (t *ReplicaSyncTask) TypeTag() string     { return ReplicaSyncTaskTag }
func (t *ReplicaSyncTask) ServiceName() string { return ServiceName }

func (t *ReplicaSyncTask) WriteInternal(w *wire.Writer) error {
	body, err := msgpack.Marshal(t.Entries)
	if err != nil {
		return migrerror.Newf(migrerror.MIG_CODEC_ERROR, "failed to encode map entries: %w", err)
	}
	if err := wire.CheckInt32Len(len(body)); err != nil {
		return err
	}
	w.WriteBytes(body)
	return nil
}

func (t *ReplicaSyncTask) ReadInternal(r *wire.Reader) error {
	body, err := r.ReadBytes()
	if err != nil {
		return err
	}
	if err := msgpack.Unmarshal(body, &t.Entries); err != nil {
		return migrerror.Newf(migrerror.MIG_CODEC_ERROR, "failed to decode map entries: %w", err)
	}
	return nil
}

func (t *ReplicaSyncTask) Run(context.Context) error {
	s, err := mapService(&t.Base)
	if err != nil {
		return err
	}
	s.install(t.PartitionID(), t.ReplicaIndex(), t.Entries)
	return nil
}

// ClearPartitionTask drops a partition replica on the member it runs on.
type ClearPartitionTask struct {
	operation.Base
}

func NewClearPartitionTask(partitionID, replicaIndex int32) *ClearPartitionTask {
	t := &ClearPartitionTask{}
	t.SetPartition(partitionID, replicaIndex)
	return t
}

func (t *ClearPartitionTask) TypeTag() string     { return ClearPartitionTaskTag }
func (t *ClearPartitionTask) ServiceName() string { return ServiceName }

func (t *ClearPartitionTask) WriteInternal(*wire.Writer) error { return nil }
func (t *ClearPartitionTask) ReadInternal(*wire.Reader) error  { return nil }

func (t *ClearPartitionTask) Run(context.Context) error {
	s, err := mapService(&t.Base)
	if err != nil {
		return err
	}
	s.ClearReplica(t.PartitionID(), t.ReplicaIndex())
	return nil
}
