package transport

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/wire"
	"github.com/pkg/errors"
)

const DefaultMaxFrameSize = 64 << 20

// writeFrame writes an int32 length followed by payload.
func writeFrame(w io.Writer, payload []byte) error {
	if err := wire.CheckInt32Len(len(payload)); err != nil {
		return err
	}
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)

	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader, maxSize int) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := int32(binary.BigEndian.Uint32(hdr[:]))
	if n < 0 || int(n) > maxSize {
		return nil, migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "invalid frame length %d", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "short frame")
	}
	return payload, nil
}

// Request: int64 call id, caller address, operation envelope.
func encodeRequest(callID int64, caller addr.Address, op operation.Operation) ([]byte, error) {
	w := wire.NewWriter(128)
	w.WriteInt64(callID)
	caller.WriteData(w)
	if err := operation.WriteObject(w, op); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// decodeRequest returns the call id even when the rest of the request is
// broken, so the caller can still be answered. A zero call id with an error
// means the call id itself could not be read.
func decodeRequest(p []byte) (int64, addr.Address, []byte, error) {
	r := wire.NewReader(p)
	callID, err := r.ReadInt64()
	if err != nil {
		return 0, addr.Address{}, nil, err
	}
	if callID == 0 {
		return 0, addr.Address{}, nil, migrerror.New(migrerror.MIG_CODEC_ERROR, "request without call id")
	}
	caller, err := addr.ReadData(r)
	if err != nil {
		return callID, addr.Address{}, nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "malformed caller address: %w", err)
	}
	body, err := r.ReadFull(r.Remaining())
	if err != nil {
		return callID, addr.Address{}, nil, migrerror.Newf(migrerror.MIG_CODEC_ERROR, "malformed operation: %w", err)
	}
	return callID, caller, body, nil
}

// Response: int64 call id, bool ok, then a bool value when ok or an error
// message otherwise.
func encodeResponse(callID int64, value any, err error) []byte {
	if err == nil {
		switch value.(type) {
		case bool:
		case nil:
			err = migrerror.New(migrerror.MIG_TRANSPORT_ERROR, "operation sent no response")
		default:
			err = migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "unsupported response type %T", value)
		}
	}

	w := wire.NewWriter(32)
	w.WriteInt64(callID)
	if err != nil {
		w.WriteBool(false)
		w.WriteString(err.Error())
		return w.Bytes()
	}
	w.WriteBool(true)
	w.WriteBool(value.(bool))
	return w.Bytes()
}

// decodeResponse returns the call id, the remote value and the remote error.
// A non-nil error with a zero call id means the frame itself is broken.
func decodeResponse(p []byte) (int64, any, error) {
	r := wire.NewReader(p)
	callID, err := r.ReadInt64()
	if err != nil {
		return 0, nil, err
	}
	ok, err := r.ReadBool()
	if err != nil {
		return 0, nil, err
	}
	if !ok {
		msg, err := r.ReadString()
		if err != nil {
			return 0, nil, err
		}
		return callID, nil, &RemoteError{Message: msg}
	}
	v, err := r.ReadBool()
	if err != nil {
		return 0, nil, err
	}
	return callID, v, nil
}

// RemoteError is a failure reported by the member that ran the operation.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote: %s", e.Message)
}
