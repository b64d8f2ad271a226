package migrations

import (
	"fmt"
	"strings"
	"time"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/wire"
)

type MigrationType int

const (
	Copy = MigrationType(iota)
	Move
)

func (t MigrationType) String() string {
	switch t {
	case Move:
		return "MOVE"
	case Copy:
		return "COPY"
	default:
		return fmt.Sprintf("MigrationType(%d)", int(t))
	}
}

func TypeOf(move bool) MigrationType {
	if move {
		return Move
	}
	return Copy
}

// Key is the identity of a migration: partition, replica slot and kind.
// Addresses never take part in it, so a Key answers "is this partition/replica
// already migrating" regardless of the members involved.
type Key struct {
	PartitionID  int32
	ReplicaIndex int32
	Move         bool
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%s", k.PartitionID, k.ReplicaIndex, strings.ToLower(TypeOf(k.Move).String()))
}

// Record describes one migration of a partition replica.
// Everything but the creation time is fixed at construction.
type Record struct {
	partitionID  int32
	replicaIndex int32
	move         bool
	from         *addr.Address
	to           addr.Address

	createdAt time.Time
}

// NewRecord builds a record. from is nil when the replica slot had no owner before.
func NewRecord(partitionID, replicaIndex int32, move bool, from *addr.Address, to addr.Address) *Record {
	r := &Record{
		partitionID:  partitionID,
		replicaIndex: replicaIndex,
		move:         move,
		to:           to,
		createdAt:    time.Now(),
	}
	if from != nil {
		f := *from
		r.from = &f
	}
	return r
}

// CopyRecord returns an independent record with the same logical fields
// and a fresh creation time.
func CopyRecord(other *Record) *Record {
	return NewRecord(other.partitionID, other.replicaIndex, other.move, other.from, other.to)
}

func (r *Record) PartitionID() int32 {
	return r.partitionID
}

func (r *Record) ReplicaIndex() int32 {
	return r.replicaIndex
}

func (r *Record) IsMoving() bool {
	return r.move
}

func (r *Record) Type() MigrationType {
	return TypeOf(r.move)
}

// From returns a copy of the source address, or nil.
func (r *Record) From() *addr.Address {
	if r.from == nil {
		return nil
	}
	f := *r.from
	return &f
}

func (r *Record) To() addr.Address {
	return r.to
}

func (r *Record) CreatedAt() time.Time {
	return r.createdAt
}

func (r *Record) Key() Key {
	return Key{PartitionID: r.partitionID, ReplicaIndex: r.replicaIndex, Move: r.move}
}

func (r *Record) Equal(other *Record) bool {
	if r == other {
		return true
	}
	if r == nil || other == nil {
		return false
	}
	return r.Key() == other.Key()
}

// Hash is consistent with Equal.
func (r *Record) Hash() int32 {
	result := r.partitionID
	result = 31*result + r.replicaIndex
	move := int32(0)
	if r.move {
		move = 1
	}
	return 31*result + move
}

func (r *Record) String() string {
	return fmt.Sprintf("MigrationRecord{partitionId=%d, replicaIndex=%d, move=%t, from=%s, to=%s}",
		r.partitionID, r.replicaIndex, r.move, addr.Format(r.from), r.to)
}

// WriteData encodes the record. The creation time is local and never written.
func (r *Record) WriteData(w *wire.Writer) {
	w.WriteInt32(r.partitionID)
	w.WriteInt32(r.replicaIndex)
	w.WriteBool(r.move)
	w.WriteBool(r.from != nil)
	if r.from != nil {
		r.from.WriteData(w)
	}
	r.to.WriteData(w)
}

// ReadRecord decodes a record written by WriteData, stamping a fresh creation time.
func ReadRecord(rd *wire.Reader) (*Record, error) {
	partitionID, err := rd.ReadInt32()
	if err != nil {
		return nil, err
	}
	replicaIndex, err := rd.ReadInt32()
	if err != nil {
		return nil, err
	}
	move, err := rd.ReadBool()
	if err != nil {
		return nil, err
	}
	hasFrom, err := rd.ReadBool()
	if err != nil {
		return nil, err
	}
	var from *addr.Address
	if hasFrom {
		f, err := addr.ReadData(rd)
		if err != nil {
			return nil, err
		}
		from = &f
	}
	to, err := addr.ReadData(rd)
	if err != nil {
		return nil, err
	}
	if partitionID < 0 || replicaIndex < 0 {
		return nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR,
			"invalid migration record: partition %d, replica %d", partitionID, replicaIndex)
	}
	return NewRecord(partitionID, replicaIndex, move, from, to), nil
}
