package netconf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	t   *testing.T
	in  chan []byte
	out chan []byte
}

func newTestServer(t *testing.T) *testServer {
	return &testServer{
		t:   t,
		in:  make(chan []byte),
		out: make(chan []byte),
	}
}

func (s *testServer) handle(r io.ReadCloser, w io.WriteCloser) {
	in, err := io.ReadAll(r)
	if err != nil {
		panic(fmt.Sprintf("testerver: failed to read incomming message: %v", err))
	}
	s.t.Logf("testserver recv: %s", in)
	go func() { s.in <- in }()

	out, ok := <-s.out
	if !ok {
		panic("testserver: no message to send")
	}
	s.t.Logf("testserver send: %s", out)

	_, err = w.Write(out)
	if err != nil {
		panic(fmt.Sprintf("testserver: failed to write message: %v", err))
	}

	if err := w.Close(); err != nil {
		panic("testserver: failed to close outbound message")
	}
}

func (s *testServer) queueResp(p []byte)         { go func() { s.out <- p }() }
func (s *testServer) queueRespString(str string) { s.queueResp([]byte(str)) }
func (s *testServer) popReq() ([]byte, error) {
	msg, ok := <-s.in
	if !ok {
		return nil, fmt.Errorf("testserver: no message to read")
	}
	return msg, nil
}

func (s *testServer) transport() *testTransport { return newTestTransport(s.handle) }

type testTransport struct {
	handler func(r io.ReadCloser, w io.WriteCloser)
	out     chan io.ReadCloser
	// msgReceived, msgSent int
}

func newTestTransport(handler func(r io.ReadCloser, w io.WriteCloser)) *testTransport {
	return &testTransport{
		handler: handler,
		out:     make(chan io.ReadCloser),
	}
}

func (s *testTransport) MsgReader() (io.ReadCloser, error) {
	return <-s.out, nil
}

func (s *testTransport) MsgWriter() (io.WriteCloser, error) {
	inr, inw := io.Pipe()
	outr, outw := io.Pipe()

	go func() { s.out <- outr }()
	go s.handler(inr, outw)

	return inw, nil
}

func (s *testTransport) Close() error {
	if len(s.out) > 0 {
		return fmt.Errorf("testtransport: remaining outboard messages not sent at close")
	}
	return nil
}

// scriptedTransport replays msgs in order and records everything written to
// it.
type scriptedTransport struct {
	mu   sync.Mutex
	msgs []string
	sent []string

	upgraded bool
}

func (s *scriptedTransport) MsgReader() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.msgs) == 0 {
		return nil, io.EOF
	}
	msg := s.msgs[0]
	s.msgs = s.msgs[1:]
	return io.NopCloser(strings.NewReader(msg)), nil
}

func (s *scriptedTransport) MsgWriter() (io.WriteCloser, error) {
	return &recordingWriter{t: s}, nil
}

func (s *scriptedTransport) Close() error { return nil }

func (s *scriptedTransport) Upgrade() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upgraded = true
}

func (s *scriptedTransport) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

type recordingWriter struct {
	bytes.Buffer
	t *scriptedTransport
}

func (w *recordingWriter) Close() error {
	w.t.mu.Lock()
	defer w.t.mu.Unlock()
	w.t.sent = append(w.t.sent, w.String())
	return nil
}

const serverHello = `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">` +
	`<capabilities>` +
	`<capability>urn:ietf:params:netconf:base:1.0</capability>` +
	`<capability>urn:ietf:params:netconf:capability:candidate:1.0</capability>` +
	`<capability>urn:ietf:params:xml:ns:yang:ietf-netconf-monitoring?module=ietf-netconf-monitoring&amp;revision=2010-10-04</capability>` +
	`</capabilities>` +
	`<session-id>42</session-id>` +
	`</hello>`

func TestOpen(t *testing.T) {
	tr := &scriptedTransport{msgs: []string{serverHello}}

	sess, err := Open(tr)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), sess.SessionID())
	assert.True(t, sess.HasCapability(CandidateCapability))
	assert.True(t, sess.HasCapability(MonitoringCapability))
	assert.False(t, sess.HasCapability(WithDefaultsCapability))
	assert.ElementsMatch(t, DefaultCapabilities, sess.ClientCapabilities())

	sent := tr.written()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0">`)
	assert.Contains(t, sent[0], `<capability>urn:ietf:params:netconf:base:1.0</capability>`)
	assert.NotContains(t, sent[0], "session-id")

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.False(t, tr.upgraded, "server only speaks base:1.0")
}

func TestOpenUpgradesFraming(t *testing.T) {
	hello := strings.Replace(serverHello,
		`<capability>urn:ietf:params:netconf:base:1.0</capability>`,
		`<capability>urn:ietf:params:netconf:base:1.0</capability><capability>urn:ietf:params:netconf:base:1.1</capability>`,
		1,
	)
	tr := &scriptedTransport{msgs: []string{hello}}

	_, err := Open(tr)
	require.NoError(t, err)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.True(t, tr.upgraded)
}

func TestOpenHandshakeErrors(t *testing.T) {
	tt := []struct {
		name  string
		hello string
	}{
		{
			name:  "no session id",
			hello: `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><capabilities><capability>urn:ietf:params:netconf:base:1.0</capability></capabilities></hello>`,
		},
		{
			name:  "no capabilities",
			hello: `<hello xmlns="urn:ietf:params:xml:ns:netconf:base:1.0"><session-id>1</session-id></hello>`,
		},
		{
			name:  "not a hello",
			hello: `<rpc-reply xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="1"><ok/></rpc-reply>`,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(&scriptedTransport{msgs: []string{tc.hello}})
			require.Error(t, err)
		})
	}
}

func TestSessionClosedTransport(t *testing.T) {
	sess := newSession(&scriptedTransport{})
	sess.recv()

	err := sess.Lock(t.Context(), Running)
	require.ErrorIs(t, err, ErrClosed)
}

func TestRecvMsgUnknownID(t *testing.T) {
	m := NewMetrics(prometheus.NewPedanticRegistry())
	tr := &scriptedTransport{msgs: []string{
		`<rpc-reply xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="7"><ok/></rpc-reply>`,
	}}
	sess := newSession(tr, WithFactory(NewFactory(WithFactoryMetrics(m))))

	require.ErrorContains(t, sess.recvMsg(), "message-id: 7")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesParsed.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RepliesReleased.WithLabelValues("ok")))
}

func TestRecvMsgUnknownRoot(t *testing.T) {
	tr := &scriptedTransport{msgs: []string{`<bogus/>`}}
	sess := newSession(tr)

	require.ErrorContains(t, sess.recvMsg(), "unknown message <bogus>")
}

func TestDoErrorReply(t *testing.T) {
	ts := newTestServer(t)
	d := NewDict()
	sess := newSession(ts.transport(), WithDict(d))
	go sess.recv()

	ts.queueRespString(`<rpc-reply xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="1">` +
		`<rpc-error><error-type>protocol</error-type><error-tag>lock-denied</error-tag><error-severity>error</error-severity>` +
		`<error-message>lock is already held</error-message><error-info><session-id>454</session-id></error-info></rpc-error>` +
		`</rpc-reply>`)

	err := sess.Lock(t.Context(), Candidate)
	require.Error(t, err)

	var rpcErr RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, ErrLockDenied, rpcErr.Tag)
	assert.Equal(t, "454", rpcErr.SessionID)
	assert.EqualError(t, err, "lock is already held")

	// the reply was released and its strings went back to the pool
	assert.Equal(t, 0, d.Len())
}

func TestDoWarningSeverityIgnored(t *testing.T) {
	ts := newTestServer(t)
	sess := newSession(ts.transport(), WithErrorSeverity(SevError))
	go sess.recv()

	ts.queueRespString(`<rpc-reply xmlns="urn:ietf:params:xml:ns:netconf:base:1.0" message-id="1">` +
		`<rpc-error><error-type>application</error-type><error-tag>operation-failed</error-tag><error-severity>warning</error-severity></rpc-error>` +
		`</rpc-reply>`)

	reply, err := sess.Dispatch(t.Context(), `<get-sessions/>`)
	require.NoError(t, err)
	defer FreeReply(reply)

	errReply, ok := reply.(*ErrorReply)
	require.True(t, ok)
	assert.Equal(t, ReplyError, errReply.Type())
	require.Len(t, errReply.RPCErrors(), 1)
	assert.Equal(t, SevWarning, errReply.RPCErrors()[0].Severity)
}

func TestDoNilRequest(t *testing.T) {
	sess := newSession(newTestServer(t).transport())

	_, err := sess.Do(t.Context(), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDoCanceled(t *testing.T) {
	ts := newTestServer(t)
	sess := newSession(ts.transport())
	go sess.recv()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := sess.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)

	_, err = ts.popReq()
	require.NoError(t, err)

	sess.mu.Lock()
	assert.Empty(t, sess.reqs)
	sess.mu.Unlock()
}
