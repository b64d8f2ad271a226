package migrations

import (
	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/qdb"
)

func RecordToDb(r *Record) *qdb.ActiveMigration {
	m := &qdb.ActiveMigration{
		PartitionID:  r.partitionID,
		ReplicaIndex: r.replicaIndex,
		Move:         r.move,
		ToAddress:    r.to.String(),
		CreatedAt:    r.createdAt,
	}
	if r.from != nil {
		m.FromAddress = r.from.String()
	}
	return m
}

// RecordFromDb restores a record, keeping the stored creation time.
func RecordFromDb(m *qdb.ActiveMigration) (*Record, error) {
	to, err := addr.Parse(m.ToAddress)
	if err != nil {
		return nil, migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "active migration %s: %w", m.Key(), err)
	}
	var from *addr.Address
	if m.FromAddress != "" {
		f, err := addr.Parse(m.FromAddress)
		if err != nil {
			return nil, migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "active migration %s: %w", m.Key(), err)
		}
		from = &f
	}
	r := NewRecord(m.PartitionID, m.ReplicaIndex, m.Move, from, to)
	r.createdAt = m.CreatedAt
	return r, nil
}

// DbKey is the registry key of a record.
func DbKey(k Key) string {
	return qdb.ActiveMigrationKey(k.PartitionID, k.ReplicaIndex, k.Move)
}
