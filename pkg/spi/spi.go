// Package spi holds the optional capabilities a data service may implement to
// take part in partition migrations.
package spi

import (
	"context"
	"fmt"

	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/pkg/operation"
)

type MigrationEndpoint int

const (
	Source = MigrationEndpoint(iota)
	Destination
)

func (e MigrationEndpoint) String() string {
	switch e {
	case Source:
		return "SOURCE"
	case Destination:
		return "DESTINATION"
	default:
		return fmt.Sprintf("MigrationEndpoint(%d)", int(e))
	}
}

type MigrationEvent struct {
	Endpoint     MigrationEndpoint
	PartitionID  int32
	ReplicaIndex int32
	Type         migrations.MigrationType
}

func (e MigrationEvent) String() string {
	return fmt.Sprintf("MigrationEvent{endpoint=%s, partitionId=%d, replicaIndex=%d, type=%s}",
		e.Endpoint, e.PartitionID, e.ReplicaIndex, e.Type)
}

//go:generate mockgen -source=./pkg/spi/spi.go -destination=./pkg/spi/mock/spi.go -package=mock

// MigrationAwareService is notified before migration tasks touching it run.
// On the destination the hook fires once per task, right before the task.
type MigrationAwareService interface {
	BeforeMigration(ctx context.Context, event MigrationEvent) error
}

// MigrationTaskProvider builds the tasks that rebuild a partition replica's
// state owned by the service on another member.
type MigrationTaskProvider interface {
	PrepareMigrationTasks(ctx context.Context, event MigrationEvent) ([]operation.Operation, error)
}
