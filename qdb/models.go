package qdb

import (
	"fmt"
	"time"
)

type ActiveMigration struct {
	PartitionID  int32     `json:"partition_id"`
	ReplicaIndex int32     `json:"replica_index"`
	Move         bool      `json:"move"`
	FromAddress  string    `json:"from_address,omitempty"`
	ToAddress    string    `json:"to_address"`
	CreatedAt    time.Time `json:"created_at"`
}

func ActiveMigrationKey(partitionID, replicaIndex int32, move bool) string {
	kind := "copy"
	if move {
		kind = "move"
	}
	return fmt.Sprintf("%d/%d/%s", partitionID, replicaIndex, kind)
}

func (m *ActiveMigration) Key() string {
	return ActiveMigrationKey(m.PartitionID, m.ReplicaIndex, m.Move)
}
