package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"github.com/pg-sharding/partmig/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flagTag = "test:flag"

func init() {
	operation.Register(flagTag, func() operation.Operation {
		return &flagOp{}
	})
}

// flagOp asks the receiver to answer with its flag.
type flagOp struct {
	operation.Base

	flag  bool
	delay time.Duration
}

func (f *flagOp) TypeTag() string     { return flagTag }
func (f *flagOp) ServiceName() string { return "test:flags" }

func (f *flagOp) WriteInternal(w *wire.Writer) error {
	w.WriteBool(f.flag)
	w.WriteInt64(int64(f.delay))
	return nil
}

func (f *flagOp) ReadInternal(r *wire.Reader) error {
	var err error
	if f.flag, err = r.ReadBool(); err != nil {
		return err
	}
	d, err := r.ReadInt64()
	f.delay = time.Duration(d)
	return err
}

func (f *flagOp) Run(context.Context) error {
	time.Sleep(f.delay)
	return f.SendResponse(f.flag)
}

var (
	memberA = addr.New("10.0.0.1", 5701)
	memberB = addr.New("10.0.0.2", 5701)
)

// flagHandler runs flagOps directly and remembers who called.
type flagHandler struct {
	mu      sync.Mutex
	callers []addr.Address
}

func (h *flagHandler) HandleOperation(ctx context.Context, caller addr.Address, payload []byte) (any, error) {
	h.mu.Lock()
	h.callers = append(h.callers, caller)
	h.mu.Unlock()

	op, err := operation.Unmarshal(payload)
	if err != nil {
		return nil, err
	}
	if op.PartitionID() < 0 {
		return nil, migrerror.New(migrerror.MIG_INVALID_REQUEST, "negative partition")
	}

	var resp any
	op.Bind(operation.Context{
		Caller:    caller,
		Responder: operation.ResponderFunc(func(v any) error { resp = v; return nil }),
	})
	if err := op.Run(ctx); err != nil {
		return nil, err
	}
	return resp, nil
}

func flag(pid int32, v bool) *flagOp {
	op := &flagOp{flag: v}
	op.SetPartition(pid, 0)
	return op
}

func TestFrameRoundTrip(t *testing.T) {
	is := assert.New(t)

	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("hello")))
	require.NoError(t, writeFrame(&buf, nil))
	is.Equal([]byte{0, 0, 0, 5, 'h', 'e', 'l', 'l', 'o', 0, 0, 0, 0}, buf.Bytes())

	p, err := readFrame(&buf, DefaultMaxFrameSize)
	require.NoError(t, err)
	is.Equal([]byte("hello"), p)

	p, err = readFrame(&buf, DefaultMaxFrameSize)
	require.NoError(t, err)
	is.Empty(p)
}

func TestFrameRejectsOversized(t *testing.T) {
	_, err := readFrame(bytes.NewReader([]byte{0, 0, 1, 0}), 16)
	assert.Error(t, err)

	_, err = readFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}), 16)
	assert.Error(t, err)

	_, err = readFrame(bytes.NewReader([]byte{0, 0, 0, 4, 1}), 16)
	assert.Error(t, err)
}

func TestResponseCodec(t *testing.T) {
	is := assert.New(t)

	id, v, err := decodeResponse(encodeResponse(7, true, nil))
	require.NoError(t, err)
	is.Equal(int64(7), id)
	is.Equal(true, v)

	id, v, err = decodeResponse(encodeResponse(8, false, nil))
	require.NoError(t, err)
	is.Equal(int64(8), id)
	is.Equal(false, v)

	id, _, err = decodeResponse(encodeResponse(9, nil, errors.New("boom")))
	is.Equal(int64(9), id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	is.Equal("boom", remote.Message)

	_, _, err = decodeResponse(encodeResponse(10, nil, nil))
	is.ErrorContains(err, "operation sent no response")

	_, _, err = decodeResponse(encodeResponse(11, "yes", nil))
	is.ErrorContains(err, "unsupported response type string")
}

func TestRequestCodec(t *testing.T) {
	is := assert.New(t)

	req, err := encodeRequest(42, memberA, flag(3, true))
	require.NoError(t, err)

	id, caller, body, err := decodeRequest(req)
	require.NoError(t, err)
	is.Equal(int64(42), id)
	is.Equal(memberA, caller)

	op, err := operation.Unmarshal(body)
	require.NoError(t, err)
	is.Equal(int32(3), op.PartitionID())
	is.True(op.(*flagOp).flag)
}

func TestLoopbackInvoke(t *testing.T) {
	is := assert.New(t)

	hub := NewLoopback()
	h := &flagHandler{}
	hub.Register(memberB, h)

	inv := hub.Invoker(memberA)
	v, err := inv.Invoke(context.Background(), memberB, flag(1, true))
	require.NoError(t, err)
	is.Equal(true, v)

	v, err = inv.Invoke(context.Background(), memberB, flag(1, false))
	require.NoError(t, err)
	is.Equal(false, v)

	_, err = inv.Invoke(context.Background(), memberB, flag(-1, true))
	is.ErrorContains(err, "negative partition")

	is.Equal([]addr.Address{memberA, memberA, memberA}, h.callers)

	hub.Unregister(memberB)
	_, err = inv.Invoke(context.Background(), memberB, flag(1, true))
	is.Equal(migrerror.MIG_TRANSPORT_ERROR, migrerror.Code(err))
}

func startServer(t *testing.T, h Handler) addr.Address {
	t.Helper()

	srv := NewTCPServer("127.0.0.1:0", true, h)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})

	a, err := addr.Parse(srv.Addr().String())
	require.NoError(t, err)
	return a
}

func TestTCPInvoke(t *testing.T) {
	is := assert.New(t)

	h := &flagHandler{}
	target := startServer(t, h)

	client := NewTCPClient(memberA)
	t.Cleanup(func() { _ = client.Close() })

	v, err := client.Invoke(context.Background(), target, flag(5, true))
	require.NoError(t, err)
	is.Equal(true, v)

	_, err = client.Invoke(context.Background(), target, flag(-5, true))
	is.ErrorContains(err, "negative partition")

	is.Equal([]addr.Address{memberA, memberA}, h.callers)
}

func TestTCPConcurrentCalls(t *testing.T) {
	target := startServer(t, &flagHandler{})

	client := NewTCPClient(memberA)
	t.Cleanup(func() { _ = client.Close() })

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			op := flag(int32(i), i%2 == 0)
			op.delay = time.Duration(32-i) * 100 * time.Microsecond

			v, err := client.Invoke(context.Background(), target, op)
			assert.NoError(t, err)
			assert.Equal(t, i%2 == 0, v)
		}()
	}
	wg.Wait()
}

func TestTCPInvokeUnreachable(t *testing.T) {
	client := NewTCPClient(memberA)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := client.Invoke(ctx, addr.New("127.0.0.1", 1), flag(1, true))
	assert.Error(t, err)
}

func TestTCPInvokeTimeout(t *testing.T) {
	target := startServer(t, &flagHandler{})

	client := NewTCPClient(memberA)
	t.Cleanup(func() { _ = client.Close() })

	op := flag(1, true)
	op.delay = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Invoke(ctx, target, op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRequestCodecKeepsCallIDOfBrokenRequest(t *testing.T) {
	is := assert.New(t)

	w := wire.NewWriter(16)
	w.WriteInt64(7)
	w.WriteInt32(5701)

	id, _, _, err := decodeRequest(w.Bytes())
	is.Equal(int64(7), id)
	is.Equal(migrerror.MIG_CODEC_ERROR, migrerror.Code(err))

	id, _, _, err = decodeRequest([]byte{0, 1, 2})
	is.Zero(id)
	is.Error(err)
}

func dialRaw(t *testing.T, target addr.Address) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", target.String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestTCPServerAnswersMalformedRequest(t *testing.T) {
	is := assert.New(t)

	h := &flagHandler{}
	conn := dialRaw(t, startServer(t, h))

	// call id and port, then the frame ends before the host
	w := wire.NewWriter(16)
	w.WriteInt64(7)
	w.WriteInt32(5701)
	require.NoError(t, writeFrame(conn, w.Bytes()))

	frame, err := readFrame(conn, DefaultMaxFrameSize)
	require.NoError(t, err)

	id, _, err := decodeResponse(frame)
	is.Equal(int64(7), id)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	is.Contains(remote.Message, "malformed caller address")
	is.Empty(h.callers)
}

func TestTCPServerDropsConnectionWithoutCallID(t *testing.T) {
	conn := dialRaw(t, startServer(t, &flagHandler{}))

	require.NoError(t, writeFrame(conn, []byte{1, 2, 3}))

	_, err := readFrame(conn, DefaultMaxFrameSize)
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) {
		assert.False(t, ne.Timeout(), "connection must be closed, not left hanging")
	} else {
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestTCPSlowDialDoesNotBlockOtherTargets(t *testing.T) {
	fast := startServer(t, &flagHandler{})
	slow := addr.New("127.0.0.1", 1)

	client := NewTCPClient(memberA)
	t.Cleanup(func() { _ = client.Close() })

	dialing := make(chan struct{})
	release := make(chan struct{})
	direct := client.dial
	client.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		if address == slow.String() {
			close(dialing)
			<-release
			return nil, errors.New("unreachable")
		}
		return direct(ctx, network, address)
	}

	slowDone := make(chan error, 1)
	go func() {
		_, err := client.Invoke(context.Background(), slow, flag(1, true))
		slowDone <- err
	}()
	<-dialing

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := client.Invoke(ctx, fast, flag(2, true))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	close(release)
	assert.Equal(t, migrerror.MIG_TRANSPORT_ERROR, migrerror.Code(<-slowDone))
}
