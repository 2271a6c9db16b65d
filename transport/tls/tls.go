package tls

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/networkguild/netconf/v2/internal"
)

// alias it to a private type, so we can make it private when embedding
type framer = internal.Framer

// Transport implements RFC7589 for implementing NETCONF over TLS.
type Transport struct {
	conn *tls.Conn

	*framer

	managedByTransport bool
}

type Opt func(*[]internal.FramerOption)

// WithMaxMessageSize fails incoming messages larger than n bytes.
func WithMaxMessageSize(n int64) Opt {
	return func(o *[]internal.FramerOption) {
		*o = append(*o, internal.WithMaxMessageSize(n))
	}
}

// WithMaxChunkSize limits the chunks written once chunked framing is in use
// to n bytes.
func WithMaxChunkSize(n int) Opt {
	return func(o *[]internal.FramerOption) {
		*o = append(*o, internal.WithMaxChunkSize(n))
	}
}

// Dial will connect to a server via TLS and returns Transport.
func Dial(ctx context.Context, network, addr string, config *tls.Config, opts ...Opt) (*Transport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(conn, config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return newTransport(tlsConn, true, opts...), nil
}

// NewTransport takes an already connected tls transport and returns a new
// Transport.
// The caller is responsible for closing underlying tls connection.
func NewTransport(conn *tls.Conn, opts ...Opt) *Transport {
	return newTransport(conn, false, opts...)
}

func newTransport(conn *tls.Conn, managed bool, opts ...Opt) *Transport {
	var framerOpts []internal.FramerOption
	for _, opt := range opts {
		opt(&framerOpts)
	}

	return &Transport{
		conn:               conn,
		framer:             internal.NewFramer(conn, conn, framerOpts...),
		managedByTransport: managed,
	}
}

// Close will close the underlying transport
// Underlying TLS connection is closed if managed by transport (created by Dial)
func (t *Transport) Close() error {
	if t.managedByTransport {
		return t.conn.Close()
	}
	return nil
}
