package migrations_test

import (
	"testing"

	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/qdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDbRoundTrip(t *testing.T) {
	is := assert.New(t)

	for _, rec := range []*migrations.Record{
		migrations.NewRecord(17, 0, true, &memberA, memberB),
		migrations.NewRecord(2, 3, false, nil, memberC),
	} {
		m := migrations.RecordToDb(rec)
		is.Equal(migrations.DbKey(rec.Key()), m.Key())
		is.Equal(rec.Key().String(), m.Key())

		got, err := migrations.RecordFromDb(m)
		require.NoError(t, err)
		is.True(rec.Equal(got))
		is.Equal(rec.From(), got.From())
		is.Equal(rec.To(), got.To())
		is.True(rec.CreatedAt().Equal(got.CreatedAt()))
	}
}

func TestRecordFromDbBadAddress(t *testing.T) {
	_, err := migrations.RecordFromDb(&qdb.ActiveMigration{PartitionID: 1, ToAddress: "garbage"})
	assert.Error(t, err)

	_, err = migrations.RecordFromDb(&qdb.ActiveMigration{PartitionID: 1, ToAddress: "h:1", FromAddress: "bad"})
	assert.Error(t, err)
}
