// Package migration moves the state of one partition replica between members.
//
// The source side (Migrator) collects replication tasks from migration aware
// services and packs them into a Transfer. The destination runs the Transfer:
// it registers the migration as active, replays every task in order and answers
// with a single boolean.
package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/compress"
	"github.com/pg-sharding/partmig/pkg/metrics"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/partition"
	"github.com/pg-sharding/partmig/pkg/spi"
	"github.com/pg-sharding/partmig/pkg/statistics"
	"github.com/pg-sharding/partmig/pkg/wire"
	"github.com/pkg/errors"
)

const TransferTypeTag = "partmig:migrationTransfer"

func init() {
	operation.Register(TransferTypeTag, func() operation.Operation {
		return &Transfer{}
	})
}

// ActiveMigrationRegistry is the part of the partition service a transfer
// needs on the destination.
type ActiveMigrationRegistry interface {
	AddActiveMigration(ctx context.Context, rec *migrations.Record) error
}

var _ ActiveMigrationRegistry = &partition.Service{}

type options struct {
	compressionLevel  int
	invocationTimeout time.Duration
}

type Option func(*options)

// WithCompressionLevel sets the zlib level of the task payload.
func WithCompressionLevel(level int) Option {
	return func(o *options) {
		o.compressionLevel = level
	}
}

// WithInvocationTimeout bounds how long the source waits for the destination
// to answer a transfer. Zero leaves the call bounded by the caller's context only.
func WithInvocationTimeout(d time.Duration) Option {
	return func(o *options) {
		o.invocationTimeout = d
	}
}

// Transfer carries the compressed replication tasks of one partition replica
// from the source member to the destination member.
type Transfer struct {
	operation.Base

	move              bool
	declaredTaskCount int32
	from              addr.Address
	payload           []byte
}

var _ operation.Operation = &Transfer{}

// NewTransfer serializes and compresses tasks right away. tasks are walked
// exactly once, in order; later changes to them are not reflected.
func NewTransfer(partitionID, replicaIndex int32, move bool, tasks []operation.Operation, from addr.Address, opts ...Option) (*Transfer, error) {
	o := options{
		compressionLevel: compress.DefaultCompression,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := wire.CheckInt32Len(len(tasks)); err != nil {
		return nil, err
	}

	w := wire.NewWriter(256)
	w.WriteInt32(int32(len(tasks)))
	for i, task := range tasks {
		if err := operation.WriteObject(w, task); err != nil {
			return nil, errors.Wrapf(err, "failed to serialize migration task %d", i)
		}
	}

	payload, err := compress.Compress(w.Bytes(), o.compressionLevel)
	if err != nil {
		return nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "failed to compress migration tasks: %w", err)
	}
	if err := wire.CheckInt32Len(len(payload)); err != nil {
		return nil, err
	}
	metrics.PayloadBytes.Observe(float64(len(payload)))

	t := &Transfer{
		move:              move,
		declaredTaskCount: int32(len(tasks)),
		from:              from,
		payload:           payload,
	}
	t.SetPartition(partitionID, replicaIndex)

	migrlog.Zero.Debug().
		Int32("partition", partitionID).
		Int32("replica", replicaIndex).
		Int32("tasks", t.declaredTaskCount).
		Int("payload bytes", len(payload)).
		Msg("transfer: prepared migration payload")
	return t, nil
}

func (t *Transfer) TypeTag() string {
	return TransferTypeTag
}

func (t *Transfer) ServiceName() string {
	return partition.ServiceName
}

func (t *Transfer) IsMove() bool {
	return t.move
}

func (t *Transfer) Type() migrations.MigrationType {
	return migrations.TypeOf(t.move)
}

// DeclaredTaskCount is the number of tasks the source packed.
func (t *Transfer) DeclaredTaskCount() int32 {
	return t.declaredTaskCount
}

func (t *Transfer) From() addr.Address {
	return t.from
}

func (t *Transfer) PayloadSize() int {
	return len(t.payload)
}

func (t *Transfer) WriteInternal(w *wire.Writer) error {
	w.WriteBool(t.move)
	w.WriteInt32(t.declaredTaskCount)
	t.from.WriteData(w)
	w.WriteBytes(t.payload)
	return nil
}

func (t *Transfer) ReadInternal(r *wire.Reader) error {
	var err error
	if t.move, err = r.ReadBool(); err != nil {
		return err
	}
	if t.declaredTaskCount, err = r.ReadInt32(); err != nil {
		return err
	}
	if t.from, err = addr.ReadData(r); err != nil {
		return err
	}
	if t.payload, err = r.ReadBytes(); err != nil {
		return err
	}
	return nil
}

// Run executes the transfer on the destination member and responds with true
// only if every task ran without a fault. Faults never escape as errors; the
// returned error only reports a failure to deliver the response.
func (t *Transfer) Run(ctx context.Context) error {
	start := time.Now()
	attempt := statistics.RecordTransferStart(start)

	success := t.execute(ctx, attempt)

	metrics.RecordTransfer(strings.ToLower(t.Type().String()), time.Since(start), success)
	if err := attempt.RecordTransferFinish(time.Now(), success); err != nil {
		migrlog.Zero.Debug().Err(err).Msg("transfer: failed to record statistics")
	}
	return t.SendResponse(success)
}

func (t *Transfer) execute(ctx context.Context, attempt *statistics.Attempt) (success bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logFailure(migrerror.Newf(migrerror.MIG_TRANSFER_ERROR, "panic during migration: %v", r))
			success = false
		}
	}()

	attempt.RecordStartTime(statistics.StatisticsTypeDecode, time.Now())
	tasks, err := t.decodeTasks()
	attempt.RecordFinishTime(statistics.StatisticsTypeDecode, time.Now())
	if err != nil {
		t.logFailure(err)
		return false
	}

	if int32(len(tasks)) != t.declaredTaskCount {
		metrics.TaskCountMismatches.Inc()
		migrlog.Zero.Error().
			Int32("partition", t.PartitionID()).
			Int32("replica", t.ReplicaIndex()).
			Str("from", t.from.String()).
			Int32("declared", t.declaredTaskCount).
			Int("actual", len(tasks)).
			Msg("transfer: migration task count mismatch")
	}

	if err := t.registerActiveMigration(ctx); err != nil {
		t.logFailure(err)
		return false
	}

	attempt.RecordStartTime(statistics.StatisticsTypeReplay, time.Now())
	defer func() {
		attempt.RecordFinishTime(statistics.StatisticsTypeReplay, time.Now())
	}()

	return t.replay(ctx, tasks)
}

func (t *Transfer) decodeTasks() ([]operation.Operation, error) {
	raw, err := compress.Decompress(t.payload)
	if err != nil {
		return nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "failed to decompress migration tasks: %w", err)
	}

	r := wire.NewReader(raw)
	count, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "negative migration task count %d", count)
	}

	tasks := make([]operation.Operation, 0, min(int(count), r.Remaining()))
	for i := int32(0); i < count; i++ {
		task, err := operation.ReadObject(r)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to decode migration task %d", i)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (t *Transfer) registerActiveMigration(ctx context.Context) error {
	node := t.Node()
	if node == nil {
		return migrerror.New(migrerror.MIG_ILLEGAL_STATE, "migration transfer is not bound to a node")
	}
	svc, err := t.Service()
	if err != nil {
		return err
	}
	registry, ok := svc.(ActiveMigrationRegistry)
	if !ok {
		return migrerror.Newf(migrerror.MIG_UNKNOWN_SERVICE, "service %q does not track active migrations", t.ServiceName())
	}

	from := t.from
	rec := migrations.NewRecord(t.PartitionID(), t.ReplicaIndex(), t.move, &from, node.ThisAddress())
	if err := registry.AddActiveMigration(ctx, rec); err != nil {
		return migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "failed to register %s: %w", rec, err)
	}
	return nil
}

func (t *Transfer) replay(ctx context.Context, tasks []operation.Operation) bool {
	event := spi.MigrationEvent{
		Endpoint:     spi.Destination,
		PartitionID:  t.PartitionID(),
		ReplicaIndex: t.ReplicaIndex(),
		Type:         t.Type(),
	}

	for i, task := range tasks {
		if err := t.runTask(ctx, task, event); err != nil {
			metrics.RecordTask(task.ServiceName(), false)

			ev := migrlog.Zero.Error()
			if operation.IsIllegalState(err) {
				ev = migrlog.Zero.Debug()
			}
			ev.Err(err).
				Int32("partition", t.PartitionID()).
				Int32("replica", t.ReplicaIndex()).
				Str("service", task.ServiceName()).
				Str("task", task.TypeTag()).
				Int("index", i).
				Int("remaining", len(tasks)-i-1).
				Msg("transfer: migration task failed, skipping the rest")
			return false
		}
		metrics.RecordTask(task.ServiceName(), true)
	}
	return true
}

func (t *Transfer) runTask(ctx context.Context, task operation.Operation, event spi.MigrationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = migrerror.Newf(migrerror.MIG_TRANSFER_ERROR, "migration task %s panicked: %v", task.TypeTag(), r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	node := t.Node()
	task.Bind(operation.Context{
		Node:         node,
		Caller:       t.from,
		ServiceName:  task.ServiceName(),
		PartitionID:  t.PartitionID(),
		ReplicaIndex: t.ReplicaIndex(),
		Responder:    operation.NoReply,
	})

	svc, err := node.Service(task.ServiceName())
	if err != nil {
		return err
	}
	if aware, ok := svc.(spi.MigrationAwareService); ok {
		if err := aware.BeforeMigration(ctx, event); err != nil {
			return err
		}
	}
	return task.Run(ctx)
}

func (t *Transfer) logFailure(err error) {
	ev := migrlog.Zero.Warn()
	if operation.IsIllegalState(err) {
		ev = migrlog.Zero.Debug()
	}
	ev.Err(err).
		Int32("partition", t.PartitionID()).
		Int32("replica", t.ReplicaIndex()).
		Str("from", t.from.String()).
		Msg("transfer: migration failed")
}

func (t *Transfer) String() string {
	return fmt.Sprintf("MigrationTransfer{partitionId=%d, replicaIndex=%d, move=%t, from=%s, declaredTaskCount=%d, payloadSize=%d}",
		t.PartitionID(), t.ReplicaIndex(), t.move, t.from, t.declaredTaskCount, len(t.payload))
}
