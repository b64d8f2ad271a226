package qdb

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pg-sharding/partmig/pkg/metrics"
	"github.com/pg-sharding/partmig/pkg/migrlog"
)

type MemQDB struct {
	mu sync.RWMutex

	Migrations map[string]*ActiveMigration `json:"active_migrations"`

	backupPath string
}

var _ MigrationQDB = &MemQDB{}

func NewMemQDB(backupPath string) (*MemQDB, error) {
	return &MemQDB{
		Migrations: map[string]*ActiveMigration{},
		backupPath: backupPath,
	}, nil
}

// RestoreQDB loads the registry from backupPath, creating an empty backup file
// when none exists yet. An empty path gives a purely in-memory registry.
func RestoreQDB(backupPath string) (*MemQDB, error) {
	qdb, err := NewMemQDB(backupPath)
	if err != nil {
		return nil, err
	}
	if backupPath == "" {
		return qdb, nil
	}
	if _, err := os.Stat(backupPath); err != nil {
		migrlog.Zero.Info().Err(err).Msg("memqdb: backup file does not exist, creating new one")
		f, err := os.Create(backupPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return qdb, nil
	}
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return qdb, nil
	}
	if err := json.Unmarshal(data, qdb); err != nil {
		return nil, err
	}
	if qdb.Migrations == nil {
		qdb.Migrations = map[string]*ActiveMigration{}
	}
	return qdb, nil
}

// DumpState writes the registry to the backup file through a rename.
// Callers hold q.mu.
func (q *MemQDB) DumpState() error {
	if q.backupPath == "" {
		return nil
	}
	tmpPath := q.backupPath + ".tmp"

	state, err := json.MarshalIndent(q, "", "	")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmpPath, state, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, q.backupPath)
}

// ==============================================================================
//                               ACTIVE MIGRATIONS
// ==============================================================================

func (q *MemQDB) AddActiveMigration(_ context.Context, m *ActiveMigration) error {
	migrlog.Zero.Debug().Str("key", m.Key()).Msg("memqdb: add active migration")
	t := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	stored := *m
	err := ExecuteCommands(q.DumpState, NewUpdateCommand(q.Migrations, m.Key(), &stored))
	metrics.RecordQDBOperation("mem", "add", time.Since(t))
	return err
}

func (q *MemQDB) RemoveActiveMigration(_ context.Context, key string) error {
	migrlog.Zero.Debug().Str("key", key).Msg("memqdb: remove active migration")
	t := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	err := ExecuteCommands(q.DumpState, NewDeleteCommand(q.Migrations, key))
	metrics.RecordQDBOperation("mem", "remove", time.Since(t))
	return err
}

func (q *MemQDB) GetActiveMigration(_ context.Context, key string) (*ActiveMigration, error) {
	migrlog.Zero.Debug().Str("key", key).Msg("memqdb: get active migration")
	q.mu.RLock()
	defer q.mu.RUnlock()

	m, ok := q.Migrations[key]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

// ListActiveMigrations returns registered migrations oldest first.
func (q *MemQDB) ListActiveMigrations(_ context.Context) ([]*ActiveMigration, error) {
	migrlog.Zero.Debug().Msg("memqdb: list active migrations")
	q.mu.RLock()
	defer q.mu.RUnlock()

	ret := make([]*ActiveMigration, 0, len(q.Migrations))
	for _, m := range q.Migrations {
		cp := *m
		ret = append(ret, &cp)
	}
	sortActiveMigrations(ret)
	return ret, nil
}

func (q *MemQDB) ClearActiveMigrations(_ context.Context) error {
	migrlog.Zero.Debug().Msg("memqdb: clear active migrations")
	t := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	err := ExecuteCommands(q.DumpState, NewDropCommand(q.Migrations))
	metrics.RecordQDBOperation("mem", "clear", time.Since(t))
	return err
}

func sortActiveMigrations(ms []*ActiveMigration) {
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].Key() < ms[j].Key()
	})
}
