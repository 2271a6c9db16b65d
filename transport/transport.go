package transport

import (
	"io"
)

// Transport carries whole NETCONF messages between a session and a device.
// Framing is the transport's concern; callers only see one message per
// reader or writer.
type Transport interface {
	// MsgReader returns a reader positioned at the start of the next
	// message. Only one reader may be outstanding at a time and it reports
	// io.EOF at the end of the message.
	MsgReader() (io.ReadCloser, error)

	// MsgWriter returns a writer for a single message, which is framed and
	// flushed on Close. Only one writer may be open at a time.
	MsgWriter() (io.WriteCloser, error)

	// Close tears down the underlying connection if the transport owns it.
	Close() error
}

// Upgrader is implemented by transports that support switching from
// end-of-message framing to chunked framing once both peers advertise
// base:1.1.
type Upgrader interface {
	Upgrade()
}
