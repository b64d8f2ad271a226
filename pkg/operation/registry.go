package operation

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/wire"
)

type Factory func() Operation

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an operation type decodable. It is meant to be called from init
// and panics on a duplicate tag.
func Register(tag string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[tag]; ok {
		panic(fmt.Sprintf("operation: type tag %q registered twice", tag))
	}
	registry[tag] = f
}

func lookup(tag string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	f, ok := registry[tag]
	return f, ok
}

// RegisteredTags lists known type tags in sorted order.
func RegisteredTags() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tags := make([]string, 0, len(registry))
	for tag := range registry {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// WriteObject encodes op as: string type tag, int32 partition, int32 replica, body.
func WriteObject(w *wire.Writer, op Operation) error {
	tag := op.TypeTag()
	if _, ok := lookup(tag); !ok {
		return migrerror.Newf(migrerror.MIG_UNKNOWN_OPERATION, "operation type %q is not registered", tag)
	}
	w.WriteString(tag)
	w.WriteInt32(op.PartitionID())
	w.WriteInt32(op.ReplicaIndex())
	return op.WriteInternal(w)
}

// ReadObject decodes an operation written by WriteObject.
func ReadObject(r *wire.Reader) (Operation, error) {
	tag, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	f, ok := lookup(tag)
	if !ok {
		return nil, migrerror.Newf(migrerror.MIG_UNKNOWN_OPERATION, "unknown operation type %q", tag)
	}
	partitionID, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	replicaIndex, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}

	op := f()
	op.SetPartition(partitionID, replicaIndex)
	if err := op.ReadInternal(r); err != nil {
		return nil, err
	}
	return op, nil
}

// Marshal is WriteObject into a fresh buffer.
func Marshal(op Operation) ([]byte, error) {
	w := wire.NewWriter(64)
	if err := WriteObject(w, op); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Unmarshal decodes exactly one operation from p.
func Unmarshal(p []byte) (Operation, error) {
	r := wire.NewReader(p)
	op, err := ReadObject(r)
	if err != nil {
		return nil, err
	}
	if r.Remaining() != 0 {
		return nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "%d trailing bytes after %s", r.Remaining(), op.TypeTag())
	}
	return op, nil
}
