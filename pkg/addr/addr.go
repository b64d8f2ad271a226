package addr

import (
	"fmt"
	"net"
	"strconv"

	"github.com/pg-sharding/partmig/pkg/models/migrerror"
	"github.com/pg-sharding/partmig/pkg/wire"
)

// Address identifies a cluster member by host and port.
type Address struct {
	Host string
	Port int32
}

func New(host string, port int32) Address {
	return Address{Host: host, Port: port}
}

// Parse accepts "host:port" (IPv6 hosts in brackets).
func Parse(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "invalid address %q: %v", s, err)
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil || port < 0 || port > 65535 {
		return Address{}, migrerror.Newf(migrerror.MIG_INVALID_REQUEST, "invalid port in address %q", s)
	}
	return New(host, int32(port)), nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

func (a Address) IsZero() bool {
	return a.Host == "" && a.Port == 0
}

func (a Address) Equal(other Address) bool {
	return a.Host == other.Host && a.Port == other.Port
}

// WriteData encodes the address as int32 port, int32 host length, host bytes.
func (a Address) WriteData(w *wire.Writer) {
	w.WriteInt32(a.Port)
	w.WriteString(a.Host)
}

func ReadData(r *wire.Reader) (Address, error) {
	port, err := r.ReadInt32()
	if err != nil {
		return Address{}, err
	}
	host, err := r.ReadString()
	if err != nil {
		return Address{}, err
	}
	return New(host, port), nil
}

// Format is used by log lines where the address may be absent.
func Format(a *Address) string {
	if a == nil {
		return "<none>"
	}
	return fmt.Sprint(*a)
}
