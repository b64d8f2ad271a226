// Package store is a partitioned in-memory map that takes part in
// migrations: it hands its replica state to the source side and rebuilds
// it from replayed tasks on the destination.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrations"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/spi"
)

const (
	ServiceName = "partmig:mapService"

	DefaultChunkSize = 512

	// MaxRecordedEvents bounds the migration event history kept by Events.
	MaxRecordedEvents = 256
)

type Partitioner interface {
	PartitionID(key []byte) (int32, error)
}

type Entry struct {
	Key   string `msgpack:"k"`
	Value []byte `msgpack:"v"`
}

type replicaID struct {
	partitionID  int32
	replicaIndex int32
}

type MapService struct {
	partitioner Partitioner
	chunkSize   int

	mu       sync.RWMutex
	replicas map[replicaID]map[string][]byte
	events   []spi.MigrationEvent
	seen     int64
}

var (
	_ spi.MigrationAwareService = &MapService{}
	_ spi.MigrationTaskProvider = &MapService{}
)

func NewMapService(partitioner Partitioner, chunkSize int) *MapService {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &MapService{
		partitioner: partitioner,
		chunkSize:   chunkSize,
		replicas:    map[replicaID]map[string][]byte{},
	}
}

// Put stores value in the primary replica of the key's partition.
func (s *MapService) Put(key string, value []byte) (int32, error) {
	pid, err := s.partitioner.PartitionID([]byte(key))
	if err != nil {
		return 0, err
	}
	s.install(pid, 0, []Entry{{Key: key, Value: value}})
	return pid, nil
}

func (s *MapService) Get(key string) ([]byte, bool, error) {
	pid, err := s.partitioner.PartitionID([]byte(key))
	if err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.replicas[replicaID{pid, 0}][key]
	return v, ok, nil
}

func (s *MapService) install(partitionID, replicaIndex int32, entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := replicaID{partitionID, replicaIndex}
	m, ok := s.replicas[id]
	if !ok {
		m = map[string][]byte{}
		s.replicas[id] = m
	}
	for _, e := range entries {
		m[e.Key] = append([]byte(nil), e.Value...)
	}
}

// Entries returns the replica content sorted by key.
func (s *MapService) Entries(partitionID, replicaIndex int32) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.replicas[replicaID{partitionID, replicaIndex}]
	ret := make([]Entry, 0, len(m))
	for k, v := range m {
		ret = append(ret, Entry{Key: k, Value: append([]byte(nil), v...)})
	}
	sort.Slice(ret, func(i, j int) bool {
		return ret[i].Key < ret[j].Key
	})
	return ret
}

func (s *MapService) Len(partitionID, replicaIndex int32) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.replicas[replicaID{partitionID, replicaIndex}])
}

// ClearReplica drops everything the member holds for one replica.
func (s *MapService) ClearReplica(partitionID, replicaIndex int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.replicas, replicaID{partitionID, replicaIndex})
}

func (s *MapService) BeforeMigration(_ context.Context, event spi.MigrationEvent) error {
	migrlog.Zero.Debug().
		Str("event", event.String()).
		Msg("map service: before migration")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	if len(s.events) == MaxRecordedEvents {
		copy(s.events, s.events[1:])
		s.events[len(s.events)-1] = event
		return nil
	}
	s.events = append(s.events, event)
	return nil
}

// Events lists the latest MaxRecordedEvents migration events, oldest first.
func (s *MapService) Events() []spi.MigrationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]spi.MigrationEvent(nil), s.events...)
}

// EventCount is the number of migration events seen since start.
func (s *MapService) EventCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen
}

// PrepareMigrationTasks exports the migrating replica in chunks. A move first
// clears whatever stale copy the destination may hold.
func (s *MapService) PrepareMigrationTasks(_ context.Context, event spi.MigrationEvent) ([]operation.Operation, error) {
	entries := s.Entries(event.PartitionID, event.ReplicaIndex)

	var tasks []operation.Operation
	if event.Type == migrations.Move {
		tasks = append(tasks, NewClearPartitionTask(event.PartitionID, event.ReplicaIndex))
	}
	for len(entries) > 0 {
		n := min(s.chunkSize, len(entries))
		tasks = append(tasks, NewReplicaSyncTask(event.PartitionID, event.ReplicaIndex, entries[:n]))
		entries = entries[n:]
	}

	migrlog.Zero.Debug().
		Str("event", event.String()).
		Int("tasks", len(tasks)).
		Msg("map service: prepared migration tasks")
	return tasks, nil
}
