package transport

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	reuse "github.com/libp2p/go-reuseport"
	"github.com/pg-sharding/partmig/pkg/addr"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/operation"
	"go.uber.org/atomic"
)

const DefaultDialTimeout = 5 * time.Second

// TCPServer accepts member connections and runs the operations they send.
// Requests on one connection are handled concurrently; responses are matched
// by call id on the client.
type TCPServer struct {
	address   string
	reusePort bool
	handler   Handler

	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}

	wg     sync.WaitGroup
	closed *atomic.Bool
}

func NewTCPServer(address string, reusePort bool, handler Handler) *TCPServer {
	return &TCPServer{
		address:   address,
		reusePort: reusePort,
		handler:   handler,
		conns:     map[net.Conn]struct{}{},
		closed:    atomic.NewBool(false),
	}
}

func (s *TCPServer) Listen() error {
	var (
		listener net.Listener
		err      error
	)
	if s.reusePort {
		listener, err = reuse.Listen("tcp", s.address)
	} else {
		listener, err = net.Listen("tcp", s.address)
	}
	if err != nil {
		return migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "failed to listen on %s: %w", s.address, err)
	}
	s.listener = listener

	migrlog.Zero.Info().
		Str("address", listener.Addr().String()).
		Msg("tcp server: member is ready to accept migrations")
	return nil
}

// Addr is the bound address, valid after Listen.
func (s *TCPServer) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is done or the server is closed.
func (s *TCPServer) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				s.wg.Wait()
				return nil
			}
			return migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "accept failed: %w", err)
		}

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *TCPServer) serveConn(ctx context.Context, conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	migrlog.Zero.Debug().
		Str("remote", conn.RemoteAddr().String()).
		Msg("tcp server: accepted connection")

	var (
		writeMu sync.Mutex
		calls   sync.WaitGroup
	)
	defer calls.Wait()

	rd := bufio.NewReader(conn)
	for {
		frame, err := readFrame(rd, DefaultMaxFrameSize)
		if err != nil {
			if !s.closed.Load() {
				migrlog.Zero.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("tcp server: connection closed")
			}
			return
		}

		calls.Add(1)
		go func() {
			defer calls.Done()

			var resp []byte
			callID, caller, body, err := decodeRequest(frame)
			switch {
			case err != nil && callID == 0:
				// nothing to answer to; the client fails its pending calls
				migrlog.Zero.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("tcp server: unreadable request, closing connection")
				_ = conn.Close()
				return
			case err != nil:
				migrlog.Zero.Warn().Err(err).Int64("call", callID).Msg("tcp server: malformed request")
				resp = encodeResponse(callID, nil, err)
			default:
				v, err := s.handler.HandleOperation(ctx, caller, body)
				resp = encodeResponse(callID, v, err)
			}

			writeMu.Lock()
			defer writeMu.Unlock()
			if err := writeFrame(conn, resp); err != nil {
				migrlog.Zero.Warn().Err(err).Int64("call", callID).Msg("tcp server: failed to send response")
			}
		}()
	}
}

func (s *TCPServer) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	return err
}

type result struct {
	value any
	err   error
}

type clientConn struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan result
	err     error
}

// TCPClient invokes operations on remote members, one connection per member.
type TCPClient struct {
	self addr.Address
	dial func(ctx context.Context, network, address string) (net.Conn, error)

	mu    sync.Mutex
	conns map[addr.Address]*clientConn

	callID *atomic.Int64
}

var _ Invoker = &TCPClient{}

func NewTCPClient(self addr.Address) *TCPClient {
	d := &net.Dialer{Timeout: DefaultDialTimeout}
	return &TCPClient{
		self:   self,
		dial:   d.DialContext,
		conns:  map[addr.Address]*clientConn{},
		callID: atomic.NewInt64(0),
	}
}

func (c *TCPClient) Invoke(ctx context.Context, target addr.Address, op operation.Operation) (any, error) {
	callID := c.callID.Inc()
	req, err := encodeRequest(callID, c.self, op)
	if err != nil {
		return nil, err
	}

	cc, err := c.connect(ctx, target)
	if err != nil {
		return nil, err
	}

	ch := make(chan result, 1)
	if err := cc.register(callID, ch); err != nil {
		c.drop(target, cc)
		return nil, err
	}

	cc.writeMu.Lock()
	err = writeFrame(cc.conn, req)
	cc.writeMu.Unlock()
	if err != nil {
		cc.forget(callID)
		c.drop(target, cc)
		return nil, migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "failed to send to %s: %w", target, err)
	}

	select {
	case res := <-ch:
		return res.value, res.err
	case <-ctx.Done():
		cc.forget(callID)
		return nil, ctx.Err()
	}
}

func (c *TCPClient) connect(ctx context.Context, target addr.Address) (*clientConn, error) {
	c.mu.Lock()
	cc, ok := c.conns[target]
	c.mu.Unlock()
	if ok {
		return cc, nil
	}

	// dial without c.mu so a slow target does not hold up calls to others
	conn, err := c.dial(ctx, "tcp", target.String())
	if err != nil {
		return nil, migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "failed to connect to %s: %w", target, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.conns[target]; ok {
		_ = conn.Close()
		return cc, nil
	}
	cc = &clientConn{
		conn:    conn,
		pending: map[int64]chan result{},
	}
	c.conns[target] = cc

	go func() {
		cc.readLoop()
		c.drop(target, cc)
	}()
	return cc, nil
}

func (c *TCPClient) drop(target addr.Address, cc *clientConn) {
	c.mu.Lock()
	if c.conns[target] == cc {
		delete(c.conns, target)
	}
	c.mu.Unlock()
	_ = cc.conn.Close()
}

func (c *TCPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for target, cc := range c.conns {
		_ = cc.conn.Close()
		delete(c.conns, target)
	}
	return nil
}

func (cc *clientConn) register(callID int64, ch chan result) error {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.err != nil {
		return cc.err
	}
	cc.pending[callID] = ch
	return nil
}

func (cc *clientConn) forget(callID int64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	delete(cc.pending, callID)
}

func (cc *clientConn) readLoop() {
	rd := bufio.NewReader(cc.conn)
	for {
		frame, err := readFrame(rd, DefaultMaxFrameSize)
		if err != nil {
			cc.fail(migrerror.Newf(migrerror.MIG_TRANSPORT_ERROR, "connection to %s lost: %w", cc.conn.RemoteAddr(), err))
			return
		}
		callID, value, err := decodeResponse(frame)
		if callID == 0 && err != nil {
			cc.fail(err)
			return
		}

		cc.mu.Lock()
		ch, ok := cc.pending[callID]
		delete(cc.pending, callID)
		cc.mu.Unlock()
		if ok {
			ch <- result{value: value, err: err}
		}
	}
}

func (cc *clientConn) fail(err error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	cc.err = err
	for id, ch := range cc.pending {
		ch <- result{err: err}
		delete(cc.pending, id)
	}
}
