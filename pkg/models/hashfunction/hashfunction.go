package hashfunction

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/go-faster/city"
	"github.com/spaolacci/murmur3"
)

type HashFunctionType int

/* Pre-defined hash functions */
const (
	HashFunctionIdent  = HashFunctionType(0)
	HashFunctionMurmur = HashFunctionType(1)
	HashFunctionCity   = HashFunctionType(2)
)

// EncodeUInt64 encodes integer keys before hashing: uvarint in an
// 8 byte buffer, widened to 10 bytes for values >= 2^56.
func EncodeUInt64(input uint64) []byte {
	const ENCODING_BYTES_BIG = binary.MaxVarintLen64
	const ENCODING_BYTES = 8
	const BOUND = 1 << 56 /* 72057594037927936 */

	sz := ENCODING_BYTES
	if input >= BOUND {
		sz = ENCODING_BYTES_BIG
	}

	buf := make([]byte, sz)
	binary.PutUvarint(buf, input)
	return buf
}

// ApplyHashFunction hashes a raw key. The identity function expects the key
// to be an unsigned decimal number and returns it unchanged.
func ApplyHashFunction(key []byte, hf HashFunctionType) (uint64, error) {
	switch hf {
	case HashFunctionIdent:
		n, err := strconv.ParseUint(string(key), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("identity hash requires an unsigned integer key, got %q", key)
		}
		return n, nil
	case HashFunctionMurmur:
		return uint64(murmur3.Sum32(key)), nil
	case HashFunctionCity:
		return uint64(city.Hash32(key)), nil
	default:
		return 0, fmt.Errorf("unknown hash function type: %d", hf)
	}
}

// ApplyHashFunctionUint hashes an integer key.
func ApplyHashFunctionUint(key uint64, hf HashFunctionType) (uint64, error) {
	if hf == HashFunctionIdent {
		return key, nil
	}
	return ApplyHashFunction(EncodeUInt64(key), hf)
}

// PartitionID maps a key onto one of partitionCount partitions.
func PartitionID(key []byte, hf HashFunctionType, partitionCount int32) (int32, error) {
	if partitionCount <= 0 {
		return 0, fmt.Errorf("partition count must be positive, got %d", partitionCount)
	}
	h, err := ApplyHashFunction(key, hf)
	if err != nil {
		return 0, err
	}
	return int32(h % uint64(partitionCount)), nil
}

// HashFunctionByName returns the HashFunctionType for a configured name.
func HashFunctionByName(hfn string) (HashFunctionType, error) {
	switch hfn {
	case "identity", "ident":
		return HashFunctionIdent, nil
	case "murmur", "":
		return HashFunctionMurmur, nil
	case "city":
		return HashFunctionCity, nil
	default:
		return 0, fmt.Errorf("unknown hash function type: %s", hfn)
	}
}

func ToString(hf HashFunctionType) string {
	switch hf {
	case HashFunctionIdent:
		return "identity"
	case HashFunctionMurmur:
		return "murmur"
	case HashFunctionCity:
		return "city"
	}
	return ""
}
