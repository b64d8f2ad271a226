package qdb

import (
	"context"
	"fmt"
)

//go:generate mockgen -source=./qdb/qdb.go -destination=./qdb/mock/qdb.go -package=mock

// MigrationQDB stores the migrations currently in flight on a member.
// Records are keyed by ActiveMigrationKey, so adding a migration with the
// same partition, replica and kind replaces the previous entry.
type MigrationQDB interface {
	AddActiveMigration(ctx context.Context, m *ActiveMigration) error
	RemoveActiveMigration(ctx context.Context, key string) error
	GetActiveMigration(ctx context.Context, key string) (*ActiveMigration, error)
	ListActiveMigrations(ctx context.Context) ([]*ActiveMigration, error)
	ClearActiveMigrations(ctx context.Context) error
}

// NewQDB creates the registry backend named by qdbType.
func NewQDB(qdbType string, addr string, backupPath string) (MigrationQDB, error) {
	switch qdbType {
	case "etcd":
		return NewEtcdQDB(addr)
	case "mem", "":
		return RestoreQDB(backupPath)
	default:
		return nil, fmt.Errorf("qdb implementation %s is invalid", qdbType)
	}
}
