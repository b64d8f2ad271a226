package migration_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/migration"
	"github.com/pg-sharding/partmig/pkg/models/hashfunction"
	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/node"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/opexec"
	"github.com/pg-sharding/partmig/pkg/partition"
	"github.com/pg-sharding/partmig/pkg/spi"
	spimock "github.com/pg-sharding/partmig/pkg/spi/mock"
	"github.com/pg-sharding/partmig/pkg/store"
	"github.com/pg-sharding/partmig/pkg/transport"
	"github.com/pg-sharding/partmig/pkg/wire"
	"github.com/pg-sharding/partmig/qdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	gateTaskTag = "test:gateTask"
	gateService = "test:gate"
)

func init() {
	operation.Register(gateTaskTag, func() operation.Operation {
		return &gateTask{}
	})
}

type member struct {
	engine     *node.Engine
	partitions *partition.Service
	maps       *store.MapService
	migrator   *migration.Migrator
}

func newMember(t *testing.T, hub *transport.Loopback, a addr.Address) *member {
	t.Helper()

	db, err := qdb.NewMemQDB("")
	require.NoError(t, err)

	ex := opexec.New(4, 0)
	ex.Start()
	t.Cleanup(ex.Stop)

	m := &member{
		engine:     node.NewEngine(a, ex),
		partitions: partition.NewService(db, hashfunction.HashFunctionIdent, 16),
	}
	m.maps = store.NewMapService(m.partitions, 2)
	require.NoError(t, m.engine.RegisterService(partition.ServiceName, m.partitions))
	require.NoError(t, m.engine.RegisterService(store.ServiceName, m.maps))

	hub.Register(a, m.engine)
	m.migrator = migration.NewMigrator(m.engine, hub.Invoker(a))
	return m
}

func newCluster(t *testing.T) (*member, *member) {
	hub := transport.NewLoopback()
	return newMember(t, hub, src), newMember(t, hub, dst)
}

func TestMigratorMovesPartition(t *testing.T) {
	is := assert.New(t)
	ctx := context.Background()
	source, dest := newCluster(t)

	for i := range 5 {
		_, err := source.maps.Put(fmt.Sprint(7+16*i), []byte(fmt.Sprint("v", i)))
		require.NoError(t, err)
	}
	_, err := dest.maps.Put("23", []byte("stale"))
	require.NoError(t, err)

	rec := migrations.NewRecord(7, 0, true, &src, dst)
	ok, err := source.migrator.Migrate(ctx, rec)
	require.NoError(t, err)
	is.True(ok)

	is.Equal(source.maps.Entries(7, 0), dest.maps.Entries(7, 0))

	registered, err := dest.partitions.ActiveMigration(ctx, rec.Key())
	require.NoError(t, err)
	require.NotNil(t, registered)
	is.Equal(src, *registered.From())
	is.Equal(dst, registered.To())

	is.Equal([]spi.MigrationEvent{
		{Endpoint: spi.Source, PartitionID: 7, Type: migrations.Move},
	}, source.maps.Events())

	// one clear task plus three chunks, each preceded by the hook
	destEvent := spi.MigrationEvent{Endpoint: spi.Destination, PartitionID: 7, Type: migrations.Move}
	is.Equal([]spi.MigrationEvent{destEvent, destEvent, destEvent, destEvent}, dest.maps.Events())

	require.NoError(t, dest.partitions.RemoveActiveMigration(ctx, rec))
	list, err := dest.partitions.ActiveMigrations(ctx)
	require.NoError(t, err)
	is.Empty(list)
}

func TestMigratorCopyKeepsDestinationData(t *testing.T) {
	is := assert.New(t)
	source, dest := newCluster(t)

	_, err := source.maps.Put("3", []byte("fresh"))
	require.NoError(t, err)
	_, err = dest.maps.Put("19", []byte("kept"))
	require.NoError(t, err)

	ok, err := source.migrator.Migrate(context.Background(), migrations.NewRecord(3, 0, false, nil, dst))
	require.NoError(t, err)
	is.True(ok)
	is.Equal(2, dest.maps.Len(3, 0))
}

func TestMigratorRejectsSelfTarget(t *testing.T) {
	source, _ := newCluster(t)

	_, err := source.migrator.Migrate(context.Background(), migrations.NewRecord(3, 0, true, nil, src))
	assert.Equal(t, migrerror.MIG_INVALID_REQUEST, migrerror.Code(err))
}

func TestMigratorUnreachableDestination(t *testing.T) {
	source, _ := newCluster(t)

	ok, err := source.migrator.Migrate(context.Background(), migrations.NewRecord(3, 0, true, nil, addr.New("10.0.0.99", 1)))
	assert.False(t, ok)
	assert.Equal(t, migrerror.MIG_TRANSFER_ERROR, migrerror.Code(err))
}

func TestMigratorProviderFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	source, dest := newCluster(t)
	provider := spimock.NewMockMigrationTaskProvider(ctrl)
	provider.EXPECT().PrepareMigrationTasks(gomock.Any(), gomock.Any()).Return(nil, assert.AnError)
	require.NoError(t, source.engine.RegisterService("test:provider", provider))

	ok, err := source.migrator.Migrate(context.Background(), migrations.NewRecord(3, 0, true, nil, dst))
	assert.False(t, ok)
	assert.ErrorIs(t, err, assert.AnError)

	list, err := dest.partitions.ActiveMigrations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "nothing reaches the destination")
}

func TestMigratorSourceHookRejects(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	source, _ := newCluster(t)
	hooks := spimock.NewMockMigrationAwareService(ctrl)
	hooks.EXPECT().BeforeMigration(gomock.Any(), spi.MigrationEvent{
		Endpoint:    spi.Source,
		PartitionID: 3,
		Type:        migrations.Move,
	}).Return(assert.AnError)
	require.NoError(t, source.engine.RegisterService("a:hooks", hooks))

	ok, err := source.migrator.Migrate(context.Background(), migrations.NewRecord(3, 0, true, nil, dst))
	assert.False(t, ok)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMigratorReportsRemoteTaskFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	source, dest := newCluster(t)
	j := &journal{}
	require.NoError(t, dest.engine.RegisterService(plainService, plainJournal{j: j}))

	provider := spimock.NewMockMigrationTaskProvider(ctrl)
	provider.EXPECT().PrepareMigrationTasks(gomock.Any(), gomock.Any()).Return(tasks(
		newTask(plainService, "1", noFault),
		newTask(plainService, "2", plainFault),
		newTask(plainService, "3", noFault),
	), nil)
	require.NoError(t, source.engine.RegisterService("test:provider", provider))

	ok, err := source.migrator.Migrate(context.Background(), migrations.NewRecord(3, 0, true, nil, dst))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"run:1", "run:2"}, j.Entries())
}

// gate watches how migration tasks overlap per partition.
type gate struct {
	mu       sync.Mutex
	inFlight map[int32]int
	overlaps int

	rendezvous sync.WaitGroup
}

func (g *gate) enter(pid int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight[pid]++
	if g.inFlight[pid] > 1 {
		g.overlaps++
	}
}

func (g *gate) leave(pid int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight[pid]--
}

type gateTask struct {
	operation.Base

	rendezvous bool
}

func (t *gateTask) TypeTag() string     { return gateTaskTag }
func (t *gateTask) ServiceName() string { return gateService }

func (t *gateTask) WriteInternal(w *wire.Writer) error {
	w.WriteBool(t.rendezvous)
	return nil
}

func (t *gateTask) ReadInternal(r *wire.Reader) error {
	var err error
	t.rendezvous, err = r.ReadBool()
	return err
}

func (t *gateTask) Run(context.Context) error {
	svc, err := t.Service()
	if err != nil {
		return err
	}
	g := svc.(*gate)

	g.enter(t.PartitionID())
	defer g.leave(t.PartitionID())

	if !t.rendezvous {
		time.Sleep(200 * time.Microsecond)
		return nil
	}

	g.rendezvous.Done()
	done := make(chan struct{})
	go func() {
		g.rendezvous.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		return migrerror.New(migrerror.MIG_UNEXPECTED, "partitions did not run in parallel")
	}
}

func transferTo(t *testing.T, pid int32, ts ...operation.Operation) *migration.Transfer {
	tr, err := migration.NewTransfer(pid, 0, true, ts, src)
	require.NoError(t, err)
	return tr
}

func TestTransfersForDifferentPartitionsRunInParallel(t *testing.T) {
	hub := transport.NewLoopback()
	dest := newMember(t, hub, dst)
	g := &gate{inFlight: map[int32]int{}}
	g.rendezvous.Add(2)
	require.NoError(t, dest.engine.RegisterService(gateService, g))

	inv := hub.Invoker(src)
	var wg sync.WaitGroup
	for _, tr := range []*migration.Transfer{
		transferTo(t, 1, &gateTask{rendezvous: true}),
		transferTo(t, 2, &gateTask{rendezvous: true}),
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := inv.Invoke(context.Background(), dst, tr)
			assert.NoError(t, err)
			assert.Equal(t, true, v)
		}()
	}
	wg.Wait()
	assert.Zero(t, g.overlaps)
}

func TestTransfersForSamePartitionNeverOverlap(t *testing.T) {
	hub := transport.NewLoopback()
	dest := newMember(t, hub, dst)
	g := &gate{inFlight: map[int32]int{}}
	require.NoError(t, dest.engine.RegisterService(gateService, g))

	inv := hub.Invoker(src)
	var wg sync.WaitGroup
	for range 10 {
		tr := transferTo(t, 3, &gateTask{}, &gateTask{}, &gateTask{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := inv.Invoke(context.Background(), dst, tr)
			assert.NoError(t, err)
			assert.Equal(t, true, v)
		}()
	}
	wg.Wait()
	assert.Zero(t, g.overlaps)
}

// silentInvoker never answers; it returns only once the call context ends.
type silentInvoker struct{}

func (silentInvoker) Invoke(ctx context.Context, _ addr.Address, _ operation.Operation) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Second):
		return nil, fmt.Errorf("invocation was not bounded")
	}
}

func TestMigratorInvocationTimeout(t *testing.T) {
	source, _ := newCluster(t)
	m := migration.NewMigrator(source.engine, silentInvoker{}, migration.WithInvocationTimeout(50*time.Millisecond))

	start := time.Now()
	ok, err := m.Migrate(context.Background(), migrations.NewRecord(3, 0, true, nil, dst))
	assert.False(t, ok)
	assert.Equal(t, migrerror.MIG_TRANSFER_ERROR, migrerror.Code(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
