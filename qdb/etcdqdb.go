package qdb

import (
	"context"
	"encoding/json"
	"path"
	"strings"
	"time"

	retry "github.com/sethvargo/go-retry"
	clientv3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/pg-sharding/partmig/pkg/metrics"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
)

type EtcdQDB struct {
	cli *clientv3.Client
}

var _ MigrationQDB = &EtcdQDB{}

const (
	activeMigrationsNamespace = "/active_migrations/"

	etcdDialTimeout = 5 * time.Second
	etcdMaxRetries  = 5
	etcdRetryBase   = 100 * time.Millisecond
)

func NewEtcdQDB(addr string) (*EtcdQDB, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   strings.Split(addr, ","),
		DialTimeout: etcdDialTimeout,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	})
	if err != nil {
		return nil, err
	}

	migrlog.Zero.Debug().
		Str("address", addr).
		Uint("client", migrlog.GetPointer(cli)).
		Msg("etcdqdb: NewEtcdQDB")

	return &EtcdQDB{
		cli: cli,
	}, nil
}

func (q *EtcdQDB) Client() *clientv3.Client {
	return q.cli
}

func (q *EtcdQDB) Close() error {
	return q.cli.Close()
}

func activeMigrationNodePath(key string) string {
	return path.Join(activeMigrationsNamespace, key)
}

// backoff retries transient etcd failures of a single registry call.
func backoff() retry.Backoff {
	return retry.WithMaxRetries(etcdMaxRetries, retry.NewFibonacci(etcdRetryBase))
}

// ==============================================================================
//                               ACTIVE MIGRATIONS
// ==============================================================================

func (q *EtcdQDB) AddActiveMigration(ctx context.Context, m *ActiveMigration) error {
	migrlog.Zero.Debug().
		Str("key", m.Key()).
		Msg("etcdqdb: add active migration")

	t := time.Now()
	bts, err := json.Marshal(m)
	if err != nil {
		migrlog.Zero.Error().Err(err).Msg("etcdqdb: failed to marshal active migration")
		return migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "failed to marshal active migration: %w", err)
	}

	err = retry.Do(ctx, backoff(), func(ctx context.Context) error {
		if _, err := q.cli.Put(ctx, activeMigrationNodePath(m.Key()), string(bts)); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	metrics.RecordQDBOperation("etcd", "add", time.Since(t))
	if err != nil {
		migrlog.Zero.Error().Err(err).Msg("etcdqdb: failed to write active migration")
		return migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "failed to write active migration %s: %w", m.Key(), err)
	}
	return nil
}

func (q *EtcdQDB) RemoveActiveMigration(ctx context.Context, key string) error {
	migrlog.Zero.Debug().
		Str("key", key).
		Msg("etcdqdb: remove active migration")

	t := time.Now()
	err := retry.Do(ctx, backoff(), func(ctx context.Context) error {
		if _, err := q.cli.Delete(ctx, activeMigrationNodePath(key)); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	metrics.RecordQDBOperation("etcd", "remove", time.Since(t))
	if err != nil {
		migrlog.Zero.Error().Err(err).Msg("etcdqdb: failed to delete active migration")
		return migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "failed to delete active migration %s: %w", key, err)
	}
	return nil
}

func (q *EtcdQDB) GetActiveMigration(ctx context.Context, key string) (*ActiveMigration, error) {
	migrlog.Zero.Debug().
		Str("key", key).
		Msg("etcdqdb: get active migration")

	t := time.Now()
	resp, err := q.cli.Get(ctx, activeMigrationNodePath(key))
	metrics.RecordQDBOperation("etcd", "get", time.Since(t))
	if err != nil {
		migrlog.Zero.Error().Err(err).Msg("etcdqdb: failed to get active migration")
		return nil, migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "failed to get active migration %s: %w", key, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}

	var m ActiveMigration
	if err := json.Unmarshal(resp.Kvs[0].Value, &m); err != nil {
		migrlog.Zero.Error().Err(err).Msg("etcdqdb: failed to unmarshal active migration")
		return nil, migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "corrupted active migration %s: %w", key, err)
	}
	return &m, nil
}

func (q *EtcdQDB) ListActiveMigrations(ctx context.Context) ([]*ActiveMigration, error) {
	migrlog.Zero.Debug().Msg("etcdqdb: list active migrations")

	t := time.Now()
	resp, err := q.cli.Get(ctx, activeMigrationsNamespace, clientv3.WithPrefix())
	metrics.RecordQDBOperation("etcd", "list", time.Since(t))
	if err != nil {
		return nil, migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "failed to list active migrations: %w", err)
	}

	ret := make([]*ActiveMigration, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var m ActiveMigration
		if err := json.Unmarshal(kv.Value, &m); err != nil {
			return nil, migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "corrupted active migration %s: %w", string(kv.Key), err)
		}
		ret = append(ret, &m)
	}
	sortActiveMigrations(ret)
	return ret, nil
}

func (q *EtcdQDB) ClearActiveMigrations(ctx context.Context) error {
	migrlog.Zero.Debug().Msg("etcdqdb: clear active migrations")

	t := time.Now()
	_, err := q.cli.Delete(ctx, activeMigrationsNamespace, clientv3.WithPrefix())
	metrics.RecordQDBOperation("etcd", "clear", time.Since(t))
	if err != nil {
		return migrerror.Newf(migrerror.MIG_REGISTRY_ERROR, "failed to clear active migrations: %w", err)
	}
	return nil
}
