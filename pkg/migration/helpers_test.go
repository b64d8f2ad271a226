package migration_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/models/hashfunction"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/partition"
	"github.com/pg-sharding/partmig/pkg/spi"
	"github.com/pg-sharding/partmig/pkg/wire"
	"github.com/pg-sharding/partmig/qdb"
	"github.com/stretchr/testify/require"
)

const (
	journalTaskTag = "test:journalTask"

	journalService = "test:journal"
	plainService   = "test:plain"
)

var (
	src = addr.New("10.0.0.1", 5701)
	dst = addr.New("10.0.0.2", 5701)
)

func init() {
	operation.Register(journalTaskTag, func() operation.Operation {
		return &journalTask{}
	})
}

type fault int32

const (
	noFault = fault(iota)
	plainFault
	illegalStateFault
	panicFault
)

// journal is a data service that remembers what happened to it, in order.
type journal struct {
	mu      sync.Mutex
	entries []string
	events  []spi.MigrationEvent
	callers []addr.Address
}

func (j *journal) append(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) BeforeMigration(_ context.Context, event spi.MigrationEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, "before")
	j.events = append(j.events, event)
	return nil
}

// plainJournal shares the journal but does not take migration hooks.
type plainJournal struct {
	j *journal
}

func journalOf(svc any) *journal {
	switch s := svc.(type) {
	case *journal:
		return s
	case plainJournal:
		return s.j
	default:
		return nil
	}
}

type journalTask struct {
	operation.Base

	service string
	label   string
	fault   fault
}

func newTask(service, label string, f fault) *journalTask {
	return &journalTask{service: service, label: label, fault: f}
}

func (t *journalTask) TypeTag() string     { return journalTaskTag }
func (t *journalTask) ServiceName() string { return t.service }

func (t *journalTask) WriteInternal(w *wire.Writer) error {
	w.WriteString(t.service)
	w.WriteString(t.label)
	w.WriteInt32(int32(t.fault))
	return nil
}

func (t *journalTask) ReadInternal(r *wire.Reader) error {
	var err error
	if t.service, err = r.ReadString(); err != nil {
		return err
	}
	if t.label, err = r.ReadString(); err != nil {
		return err
	}
	f, err := r.ReadInt32()
	if err != nil {
		return err
	}
	t.fault = fault(f)
	return nil
}

func (t *journalTask) Run(context.Context) error {
	svc, err := t.Service()
	if err != nil {
		return err
	}
	if j := journalOf(svc); j != nil {
		j.append("run:" + t.label)
		j.mu.Lock()
		j.callers = append(j.callers, t.Caller())
		j.mu.Unlock()
	}

	switch t.fault {
	case plainFault:
		return migrerror.Newf(migrerror.MIG_UNEXPECTED, "task %s failed", t.label)
	case illegalStateFault:
		return migrerror.Newf(migrerror.MIG_ILLEGAL_STATE, "task %s hit a topology change", t.label)
	case panicFault:
		panic("task " + t.label + " blew up")
	}
	return nil
}

type fakeNode struct {
	address  addr.Address
	services map[string]any
}

func (n *fakeNode) ThisAddress() addr.Address {
	return n.address
}

func (n *fakeNode) Service(name string) (any, error) {
	svc, ok := n.services[name]
	if !ok {
		return nil, migrerror.Newf(migrerror.MIG_UNKNOWN_SERVICE, "service %q is not registered", name)
	}
	return svc, nil
}

type destination struct {
	node       *fakeNode
	journal    *journal
	partitions *partition.Service
}

func newDestination(t *testing.T) *destination {
	db, err := qdb.NewMemQDB("")
	require.NoError(t, err)

	j := &journal{}
	ps := partition.NewService(db, hashfunction.HashFunctionMurmur, 271)
	return &destination{
		node: &fakeNode{
			address: dst,
			services: map[string]any{
				partition.ServiceName: ps,
				journalService:        j,
				plainService:          plainJournal{j: j},
			},
		},
		journal:    j,
		partitions: ps,
	}
}

// deliver ships op through the wire codec and runs it the way a member does,
// returning every response it sent.
func deliver(t *testing.T, d *destination, op operation.Operation) []any {
	t.Helper()

	payload, err := operation.Marshal(op)
	require.NoError(t, err)
	received, err := operation.Unmarshal(payload)
	require.NoError(t, err)

	return runBound(t, d, received)
}

func runBound(t *testing.T, d *destination, op operation.Operation) []any {
	t.Helper()

	var responses []any
	op.Bind(operation.Context{
		Node:         d.node,
		Caller:       src,
		ServiceName:  op.ServiceName(),
		PartitionID:  op.PartitionID(),
		ReplicaIndex: op.ReplicaIndex(),
		Responder: operation.ResponderFunc(func(v any) error {
			responses = append(responses, v)
			return nil
		}),
	})
	require.NoError(t, op.Run(context.Background()))
	return responses
}
