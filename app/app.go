package app

import (
	"context"
	"io"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/config"
	"github.com/pg-sharding/partmig/pkg/metrics"
	"github.com/pg-sharding/partmig/pkg/migration"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/hashfunction"
	"github.com/pg-sharding/partmig/pkg/node"
	"github.com/pg-sharding/partmig/pkg/opexec"
	"github.com/pg-sharding/partmig/pkg/partition"
	"github.com/pg-sharding/partmig/pkg/statistics"
	"github.com/pg-sharding/partmig/pkg/store"
	"github.com/pg-sharding/partmig/pkg/transport"
	"github.com/pg-sharding/partmig/qdb"
	"golang.org/x/sync/errgroup"
)

// App is one cluster member with everything it hosts.
type App struct {
	cfg *config.Member

	db       qdb.MigrationQDB
	executor *opexec.Executor

	Engine     *node.Engine
	Partitions *partition.Service
	Maps       *store.MapService
	Migrator   *migration.Migrator

	server *transport.TCPServer
	client *transport.TCPClient
}

func build(cfg *config.Member, address addr.Address, invoker func(self addr.Address) transport.Invoker) (*App, error) {
	hf, err := hashfunction.HashFunctionByName(cfg.HashFunction)
	if err != nil {
		return nil, err
	}
	if err := statistics.InitStatisticsStr(cfg.TimeQuantiles); err != nil {
		return nil, err
	}

	db, err := qdb.NewQDB(cfg.QdbType, cfg.QdbAddr, cfg.QdbBackupPath)
	if err != nil {
		return nil, err
	}

	executor := opexec.New(cfg.ExecutorStripes, cfg.ExecutorQueueSize)
	app := &App{
		cfg:        cfg,
		db:         db,
		executor:   executor,
		Engine:     node.NewEngine(address, executor),
		Partitions: partition.NewService(db, hf, cfg.PartitionCount),
	}
	app.Maps = store.NewMapService(app.Partitions, store.DefaultChunkSize)

	if err := app.Engine.RegisterService(partition.ServiceName, app.Partitions); err != nil {
		return nil, err
	}
	if err := app.Engine.RegisterService(store.ServiceName, app.Maps); err != nil {
		return nil, err
	}
	app.Migrator = migration.NewMigrator(app.Engine, invoker(address),
		migration.WithCompressionLevel(cfg.CompressionLevel),
		migration.WithInvocationTimeout(cfg.InvocationTimeout))

	migrlog.Zero.Info().
		Str("member", app.Engine.ID()).
		Str("address", address.String()).
		Str("qdb", cfg.QdbType).
		Int("stripes", executor.Stripes()).
		Msg("member app: built")
	return app, nil
}

// NewApp builds a member that talks to its peers over TCP.
func NewApp(cfg *config.Member) (*App, error) {
	address := addr.New(cfg.Host, cfg.Port)

	var client *transport.TCPClient
	app, err := build(cfg, address, func(self addr.Address) transport.Invoker {
		client = transport.NewTCPClient(self)
		return client
	})
	if err != nil {
		return nil, err
	}
	app.client = client
	app.server = transport.NewTCPServer(cfg.Address(), cfg.ReusePort, app.Engine)
	return app, nil
}

// NewLoopbackApp builds an in-process member reachable through hub.
func NewLoopbackApp(cfg *config.Member, hub *transport.Loopback) (*App, error) {
	address := addr.New(cfg.Host, cfg.Port)
	app, err := build(cfg, address, hub.Invoker)
	if err != nil {
		return nil, err
	}
	hub.Register(address, app.Engine)
	return app, nil
}

// Start launches the partition executor.
func (app *App) Start() {
	app.executor.Start()
}

// Run starts the member and serves until ctx is done.
func (app *App) Run(ctx context.Context) error {
	app.Start()
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)
	if app.server != nil {
		g.Go(func() error {
			return app.ServeTransport(gctx)
		})
	}
	if app.cfg.MetricsAddr != "" {
		g.Go(func() error {
			return app.ServeMetrics(gctx)
		})
	}
	err := g.Wait()

	migrlog.Zero.Debug().Msg("member app: exit")
	return err
}

func (app *App) ServeTransport(ctx context.Context) error {
	if err := app.server.Listen(); err != nil {
		return err
	}
	return app.server.Serve(ctx)
}

func (app *App) ServeMetrics(ctx context.Context) error {
	exporter := metrics.NewExporter(app.cfg.MetricsAddr)
	go func() {
		<-ctx.Done()
		if err := exporter.Stop(context.Background()); err != nil {
			migrlog.Zero.Error().Err(err).Msg("failed to stop metrics exporter")
		}
	}()
	return exporter.Start()
}

// Close stops the executor and releases client connections and the registry.
func (app *App) Close() {
	app.executor.Stop()
	if app.client != nil {
		_ = app.client.Close()
	}
	if closer, ok := app.db.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			migrlog.Zero.Error().Err(err).Msg("failed to close qdb")
		}
	}
}
