package partition

import (
	"context"

	"github.com/pg-sharding/partmig/pkg/metrics"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/hashfunction"
	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/qdb"
)

const ServiceName = "partmig:partitionService"

// Service owns the partition layout of a member and its registry of
// migrations in flight. Registration happens when a transfer starts on this
// member; removal is left to whoever schedules migrations.
type Service struct {
	db             qdb.MigrationQDB
	hf             hashfunction.HashFunctionType
	partitionCount int32
}

func NewService(db qdb.MigrationQDB, hf hashfunction.HashFunctionType, partitionCount int32) *Service {
	return &Service{
		db:             db,
		hf:             hf,
		partitionCount: partitionCount,
	}
}

func (s *Service) PartitionCount() int32 {
	return s.partitionCount
}

// PartitionID returns the partition owning key.
func (s *Service) PartitionID(key []byte) (int32, error) {
	return hashfunction.PartitionID(key, s.hf, s.partitionCount)
}

func (s *Service) AddActiveMigration(ctx context.Context, rec *migrations.Record) error {
	migrlog.Zero.Debug().
		Str("migration", rec.String()).
		Msg("partition service: add active migration")

	if err := s.db.AddActiveMigration(ctx, migrations.RecordToDb(rec)); err != nil {
		return err
	}
	s.refreshGauge(ctx)
	return nil
}

// RemoveActiveMigration drops the registered migration equal to rec.
// Removing an unknown migration is not an error.
func (s *Service) RemoveActiveMigration(ctx context.Context, rec *migrations.Record) error {
	migrlog.Zero.Debug().
		Str("migration", rec.String()).
		Msg("partition service: remove active migration")

	if err := s.db.RemoveActiveMigration(ctx, migrations.DbKey(rec.Key())); err != nil {
		return err
	}
	s.refreshGauge(ctx)
	return nil
}

func (s *Service) ClearActiveMigrations(ctx context.Context) error {
	if err := s.db.ClearActiveMigrations(ctx); err != nil {
		return err
	}
	metrics.ActiveMigrations.Set(0)
	return nil
}

// ActiveMigration returns the registered migration with the given identity, or nil.
func (s *Service) ActiveMigration(ctx context.Context, key migrations.Key) (*migrations.Record, error) {
	m, err := s.db.GetActiveMigration(ctx, migrations.DbKey(key))
	if err != nil || m == nil {
		return nil, err
	}
	return migrations.RecordFromDb(m)
}

func (s *Service) IsMigrating(ctx context.Context, key migrations.Key) (bool, error) {
	rec, err := s.ActiveMigration(ctx, key)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// ActiveMigrations lists registered migrations, oldest first.
func (s *Service) ActiveMigrations(ctx context.Context) ([]*migrations.Record, error) {
	ms, err := s.db.ListActiveMigrations(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]*migrations.Record, 0, len(ms))
	for _, m := range ms {
		rec, err := migrations.RecordFromDb(m)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	return ret, nil
}

func (s *Service) refreshGauge(ctx context.Context) {
	ms, err := s.db.ListActiveMigrations(ctx)
	if err != nil {
		migrlog.Zero.Warn().Err(err).Msg("partition service: failed to count active migrations")
		return
	}
	metrics.ActiveMigrations.Set(float64(len(ms)))
}
