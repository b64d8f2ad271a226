package migration

import (
	"context"
	"time"

	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/spi"
	"github.com/pg-sharding/partmig/pkg/transport"
	"github.com/pkg/errors"
)

// SourceNode is the member a migration starts from.
type SourceNode interface {
	operation.NodeEngine
	ServiceNames() []string
}

// Migrator drives migrations from the source member. It makes exactly one
// attempt per call; deciding whether and when to retry is up to the caller.
type Migrator struct {
	node    SourceNode
	invoker transport.Invoker
	opts    []Option

	invocationTimeout time.Duration
}

func NewMigrator(node SourceNode, invoker transport.Invoker, opts ...Option) *Migrator {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Migrator{
		node:              node,
		invoker:           invoker,
		opts:              opts,
		invocationTimeout: o.invocationTimeout,
	}
}

// PrepareTasks asks every task provider for its share of the replica state.
// Services are visited in name order, which fixes the replay order.
func (m *Migrator) PrepareTasks(ctx context.Context, event spi.MigrationEvent) ([]operation.Operation, error) {
	var tasks []operation.Operation
	for _, name := range m.node.ServiceNames() {
		svc, err := m.node.Service(name)
		if err != nil {
			return nil, err
		}
		if aware, ok := svc.(spi.MigrationAwareService); ok {
			if err := aware.BeforeMigration(ctx, event); err != nil {
				return nil, errors.Wrapf(err, "service %s rejected migration", name)
			}
		}
		provider, ok := svc.(spi.MigrationTaskProvider)
		if !ok {
			continue
		}
		ts, err := provider.PrepareMigrationTasks(ctx, event)
		if err != nil {
			return nil, errors.Wrapf(err, "service %s failed to prepare migration tasks", name)
		}
		tasks = append(tasks, ts...)
	}
	return tasks, nil
}

// Migrate ships the replica described by rec to rec.To() and reports whether
// the destination applied every task.
func (m *Migrator) Migrate(ctx context.Context, rec *migrations.Record) (bool, error) {
	start := time.Now()
	self := m.node.ThisAddress()

	if rec.To().Equal(self) {
		return false, migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "%s targets the source member itself", rec)
	}
	if from := rec.From(); from != nil && !from.Equal(self) {
		migrlog.Zero.Warn().
			Str("migration", rec.String()).
			Str("member", self.String()).
			Msg("migrator: migration source differs from this member")
	}

	event := spi.MigrationEvent{
		Endpoint:     spi.Source,
		PartitionID:  rec.PartitionID(),
		ReplicaIndex: rec.ReplicaIndex(),
		Type:         rec.Type(),
	}
	tasks, err := m.PrepareTasks(ctx, event)
	if err != nil {
		return false, err
	}

	tr, err := NewTransfer(rec.PartitionID(), rec.ReplicaIndex(), rec.IsMoving(), tasks, self, m.opts...)
	if err != nil {
		return false, err
	}

	migrlog.Zero.Info().
		Str("migration", rec.String()).
		Int("tasks", len(tasks)).
		Int("payload bytes", tr.PayloadSize()).
		Msg("migrator: sending migration transfer")

	invokeCtx := ctx
	if m.invocationTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, m.invocationTimeout)
		defer cancel()
	}
	resp, err := m.invoker.Invoke(invokeCtx, rec.To(), tr)
	if err != nil {
		return false, migrerror.Newf(migrerror.MIG_TRANSFER_ERROR, "failed to deliver %s: %w", tr, err)
	}
	ok, isBool := resp.(bool)
	if !isBool {
		return false, migrerror.Newf(migrerror.MIG_TRANSFER_ERROR, "unexpected response %v to %s", resp, tr)
	}

	migrlog.Zero.Info().
		Str("migration", rec.String()).
		Bool("success", ok).
		Dur("elapsed", time.Since(start)).
		Msg("migrator: migration transfer finished")
	return ok, nil
}
