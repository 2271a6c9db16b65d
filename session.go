package netconf

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/networkguild/netconf/v2/transport"
)

// ISession is definition of the operations that this netconf client provides
type ISession interface {
	SessionID() uint64
	ClientCapabilities() []string
	ServerCapabilities() []string
	HasCapability(string) bool
	Dict() *Dict
	Do(context.Context, Request) (Reply, error)
	GetConfig(context.Context, Datastore, ...GetOption) (Reply, error)
	Get(context.Context, ...GetOption) (Reply, error)
	EditConfig(context.Context, Datastore, any, ...EditConfigOption) error
	DiscardChanges(context.Context) error
	CopyConfig(context.Context, any, any) error
	DeleteConfig(context.Context, any) error
	Lock(context.Context, Datastore) error
	Unlock(context.Context, Datastore) error
	GetSchema(context.Context, string, ...GetSchemaOption) (Reply, error)
	KillSession(context.Context, uint32) (Reply, error)
	Close(context.Context) error
	Validate(context.Context, any) error
	Commit(context.Context, ...CommitOption) error
	CancelCommit(context.Context, ...CancelCommitOption) error
	Dispatch(context.Context, string) (Reply, error)
	DispatchTree(context.Context, *Node) (Reply, error)
	CreateSubscription(context.Context, ...CreateSubscriptionOption) error
}

var ErrClosed = errors.New("closed connection")

type sessionConfig struct {
	capabilities        []string
	notificationHandler NotificationHandler
	logger              Logger
	factory             *Factory
	dict                *Dict

	errSeverity []ErrSeverity
}

type SessionOption interface {
	apply(*sessionConfig)
}

type sessionOpt struct{ fn func(cfg *sessionConfig) }

func (o sessionOpt) apply(cl *sessionConfig) { o.fn(cl) }

// WithCapability sets supported client capabilities for the session
func WithCapability(capabilities ...string) SessionOption {
	return sessionOpt{func(cfg *sessionConfig) {
		cfg.capabilities = append(cfg.capabilities, capabilities...)
	}}
}

// WithNotificationHandler sets the notification handler for the session
func WithNotificationHandler(nh NotificationHandler) SessionOption {
	return sessionOpt{func(cfg *sessionConfig) {
		cfg.notificationHandler = nh
	}}
}

// WithLogger sets the logger for the session
func WithLogger(logger Logger) SessionOption {
	return sessionOpt{func(cfg *sessionConfig) {
		cfg.logger = logger
	}}
}

// WithErrorSeverity sets the severity level for errors returned by the server. Defaults are SevWarning, SevError
func WithErrorSeverity(severity ...ErrSeverity) SessionOption {
	return sessionOpt{func(cfg *sessionConfig) {
		cfg.errSeverity = severity
	}}
}

// WithFactory sets the factory building the requests and decoding the replies
// of the session.  Defaults to [DefaultFactory].
func WithFactory(f *Factory) SessionOption {
	return sessionOpt{func(cfg *sessionConfig) {
		cfg.factory = f
	}}
}

// WithDict sets the string pool the error replies of the session are interned
// in.  Defaults to a pool private to the session.
func WithDict(d *Dict) SessionOption {
	return sessionOpt{func(cfg *sessionConfig) {
		cfg.dict = d
	}}
}

// Session represents a netconf session to a one given device.
type Session struct {
	tr      transport.Transport
	logger  Logger
	factory *Factory
	dict    *Dict

	sessionID uint64
	seq       atomic.Uint64

	clientCaps capabilitySet
	serverCaps capabilitySet

	notificationHandler NotificationHandler
	errSeverity         []ErrSeverity

	mu      sync.Mutex
	reqs    map[uint64]*req
	closing bool
	closed  bool
}

// NotificationHandler function allows to work with received notifications.
// A NotificationHandler function can be passed in as an option when calling Open method of Session object
// A typical use of the NotificationHandler function is to retrieve notifications once they are received so
// that they can be parsed and/or stored somewhere.
//
// The notification is released when the handler returns, so the handler must
// copy whatever it keeps.
type NotificationHandler func(msg *Notification)

// Open will create a new Session with the given transport and open it with the
// necessary hello messages.
func Open(transport transport.Transport, opts ...SessionOption) (ISession, error) {
	s := newSession(transport, opts...)

	if err := s.handshake(); err != nil {
		return nil, errors.Join(err, s.tr.Close())
	}

	go s.recv()
	return s, nil
}

func newSession(transport transport.Transport, opts ...SessionOption) *Session {
	cfg := sessionConfig{
		capabilities: DefaultCapabilities,
		logger:       &noOpLogger{},
		errSeverity:  []ErrSeverity{SevWarning, SevError},
	}

	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.factory == nil {
		cfg.factory = DefaultFactory()
	}
	if cfg.dict == nil {
		cfg.dict = NewDict()
	}

	s := &Session{
		tr:                  transport,
		clientCaps:          newCapabilitySet(cfg.capabilities...),
		reqs:                make(map[uint64]*req),
		notificationHandler: cfg.notificationHandler,
		errSeverity:         cfg.errSeverity,
		logger:              cfg.logger,
		factory:             cfg.factory,
		dict:                cfg.dict,
	}
	return s
}

// Close will gracefully close the sessions first by sending a `close-session`
// operation to the remote and then closing the underlying transport
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	callErr := s.closeSession(ctx)

	if err := s.tr.Close(); err != nil &&
		!errors.Is(err, net.ErrClosed) &&
		!errors.Is(err, io.EOF) &&
		!errors.Is(err, syscall.EPIPE) {
		return err
	}

	if !errors.Is(callErr, io.EOF) &&
		!errors.Is(callErr, ErrClosed) {
		return callErr
	}

	return nil
}

func (s *Session) closeSession(ctx context.Context) error {
	req, err := s.factory.NewGenericXMLRequest([]byte(`<close-session/>`), ConstReference)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}

func (s *Session) handshake() error {
	r, err := s.tr.MsgReader()
	if err != nil {
		return err
	}
	defer r.Close()

	clientMsg := Hello{
		Capabilities: s.clientCaps.All(),
	}
	if err := s.writeMsg(&clientMsg); err != nil {
		return fmt.Errorf("failed to write hello message: %w", err)
	}

	var serverMsg Hello
	if err := xml.NewDecoder(r).Decode(&serverMsg); err != nil {
		return fmt.Errorf("failed to read server hello message: %w", err)
	}

	if serverMsg.SessionID == 0 {
		return fmt.Errorf("server did not return a session-id")
	}

	if len(serverMsg.Capabilities) == 0 {
		return fmt.Errorf("server did not return any capabilities")
	}

	s.serverCaps = newCapabilitySet(serverMsg.Capabilities...)
	s.sessionID = serverMsg.SessionID

	const baseCap11 = BaseCapability + ":1.1"
	if s.serverCaps.Has(baseCap11) && s.clientCaps.Has(baseCap11) {
		if upgrader, ok := s.tr.(transport.Upgrader); ok {
			upgrader.Upgrade()
		}
	}

	s.logger.Debugf("session established, sessionId: %d", s.sessionID)
	return nil
}

// SessionID returns the current session ID exchanged in the hello messages.
// Will return 0 if there is no session ID.
func (s *Session) SessionID() uint64 {
	return s.sessionID
}

// ClientCapabilities will return the capabilities initialized with the session.
func (s *Session) ClientCapabilities() []string {
	return s.clientCaps.All()
}

// ServerCapabilities will return the capabilities returned by the server in
// its hello message.
func (s *Session) ServerCapabilities() []string {
	return s.serverCaps.All()
}

// HasCapability checks if server has a given capability.
func (s *Session) HasCapability(cap string) bool {
	return s.serverCaps.Has(cap)
}

// Dict returns the string pool the error replies of the session are interned
// in.
func (s *Session) Dict() *Dict {
	return s.dict
}

type req struct {
	reply chan Reply
	ctx   context.Context
}

func (s *Session) recv() {
	for {
		err := s.recvMsg()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			s.logger.Errorf("failed to read incoming message, sessionId: %d, error: %v", s.sessionID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, req := range s.reqs {
		close(req.reply)
		delete(s.reqs, id)
	}

	if !s.closing {
		s.logger.Errorf("connection closed unexpectedly, sessionId: %d", s.sessionID)
	}
}

func (s *Session) recvMsg() error {
	r, err := s.tr.MsgReader()
	if err != nil {
		return err
	}
	defer func(r io.ReadCloser) {
		if err := r.Close(); err != nil {
			s.logger.Warnf("failed to close reader: %v", err)
		}
	}(r)

	buf := bytes.NewBuffer(make([]byte, 0, 8096))
	_, err = io.Copy(buf, r)
	if err != nil {
		return err
	}

	msg := buf.Bytes()
	root, err := nextStart(xml.NewDecoder(bytes.NewReader(msg)))
	if err != nil {
		return fmt.Errorf("failed to decode incoming message: %w", err)
	}

	switch root.Name {
	case RPCReplyName:
		reply, err := s.factory.ParseReply(msg, s.dict)
		if err != nil {
			return err
		}
		ok, req := s.req(reply.ID())
		if !ok {
			FreeReply(reply)
			return fmt.Errorf("cannot find reply channel for message-id: %d", reply.ID())
		}

		select {
		case req.reply <- reply:
			return nil
		case <-req.ctx.Done():
			FreeReply(reply)
			return fmt.Errorf("message %d context canceled: %s", reply.ID(), req.ctx.Err().Error())
		}
	case NotificationName:
		if s.notificationHandler == nil {
			s.logger.Warnf("Received notification but no handler is set")
			return nil
		}

		notif, err := s.factory.ParseNotification(msg)
		if err != nil {
			return err
		}
		defer FreeNotification(notif)
		s.notificationHandler(notif)
	default:
		return fmt.Errorf("unknown message <%s>, notification and rpc-reply supported", root.Name.Local)
	}
	return nil
}

func (s *Session) req(msgID uint64) (bool, *req) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.reqs[msgID]
	if !ok {
		for i, r := range s.reqs {
			if fb := s.seq.Load(); i == fb {
				delete(s.reqs, fb)
				return true, r
			}
		}
		return false, nil
	}
	delete(s.reqs, msgID)
	return true, req
}

func (s *Session) writeMsg(v any) error {
	w, err := s.tr.MsgWriter()
	if err != nil {
		return err
	}

	if err := xml.NewEncoder(w).Encode(v); err != nil {
		return err
	}
	return w.Close()
}

// call sends req and only reports whether it succeeded.  The reply is
// released.
func (s *Session) call(ctx context.Context, req Request) error {
	reply, err := s.do(ctx, req)
	if err != nil {
		return err
	}
	FreeReply(reply)
	return nil
}

// Do sends req and waits for its reply.  The caller keeps the ownership of
// req and takes the ownership of the returned reply.  An error reply with
// errors of the configured severities is released and returned as error
// instead.
func (s *Session) Do(ctx context.Context, req Request) (Reply, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidArgument)
	}
	return s.do(ctx, req)
}

func (s *Session) do(ctx context.Context, req Request) (Reply, error) {
	msg := &rpcMessage{
		MessageID: s.seq.Add(1),
		Operation: req,
	}

	ch, err := s.send(ctx, msg)
	if err != nil {
		return nil, err
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if errReply, isErr := reply.(*ErrorReply); isErr {
			if err := errReply.Err(s.errSeverity...); err != nil {
				FreeReply(reply)
				return nil, err
			}
		}
		return reply, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.reqs, msg.MessageID)
		s.mu.Unlock()

		select {
		case reply, ok := <-ch:
			if ok {
				FreeReply(reply)
			}
		default:
		}
		return nil, ctx.Err()
	}
}

func (s *Session) send(ctx context.Context, msg *rpcMessage) (chan Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	ch := make(chan Reply, 1)
	s.reqs[msg.MessageID] = &req{
		reply: ch,
		ctx:   ctx,
	}

	if err := s.writeMsg(msg); err != nil {
		delete(s.reqs, msg.MessageID)
		return nil, err
	}

	return ch, nil
}
