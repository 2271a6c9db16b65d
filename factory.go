package netconf

import (
	"errors"
	"fmt"
)

type factoryConfig struct {
	alloc   Allocator
	store   ContentStore
	logger  Logger
	metrics *Metrics
}

type FactoryOption interface {
	apply(*factoryConfig)
}

type factoryOpt struct{ fn func(cfg *factoryConfig) }

func (o factoryOpt) apply(cfg *factoryConfig) { o.fn(cfg) }

// WithAllocator sets the allocator used to duplicate strings for [DupAndOwn].
func WithAllocator(a Allocator) FactoryOption {
	return factoryOpt{func(cfg *factoryConfig) {
		cfg.alloc = a
	}}
}

// WithContentStore sets the store used to duplicate and release content trees
// and XML fragments.
func WithContentStore(s ContentStore) FactoryOption {
	return factoryOpt{func(cfg *factoryConfig) {
		cfg.store = s
	}}
}

// WithFactoryLogger sets the logger for construction failures.
func WithFactoryLogger(logger Logger) FactoryOption {
	return factoryOpt{func(cfg *factoryConfig) {
		cfg.logger = logger
	}}
}

// WithFactoryMetrics sets the metrics updated when messages are built and
// released.
func WithFactoryMetrics(m *Metrics) FactoryOption {
	return factoryOpt{func(cfg *factoryConfig) {
		cfg.metrics = m
	}}
}

// Factory builds requests and decodes replies and notifications.  Everything a
// Factory builds remembers it, so [FreeRequest], [FreeReply] and
// [FreeNotification] release through the same allocator and content store.
//
// A Factory is safe for concurrent use as long as its allocator and content
// store are.
type Factory struct {
	alloc   Allocator
	store   ContentStore
	logger  Logger
	metrics *Metrics
}

// NewFactory returns a Factory using a [PoolAllocator] without limit and a
// [TreeStore] unless configured otherwise.
func NewFactory(opts ...FactoryOption) *Factory {
	cfg := factoryConfig{
		logger: &noOpLogger{},
	}
	for _, opt := range opts {
		opt.apply(&cfg)
	}

	if cfg.alloc == nil {
		cfg.alloc = NewPoolAllocator(0)
	}
	if cfg.store == nil {
		cfg.store = NewTreeStore()
	}

	return &Factory{
		alloc:   cfg.alloc,
		store:   cfg.store,
		logger:  cfg.logger,
		metrics: cfg.metrics,
	}
}

var defaultFactory = NewFactory()

// DefaultFactory returns the Factory shared by sessions opened without
// [WithFactory].
func DefaultFactory() *Factory { return defaultFactory }

// failed logs and counts a construction failure and returns it annotated with
// the operation.
func (f *Factory) failed(k Kind, err error) error {
	reason := "invalid-argument"
	if errors.Is(err, ErrAllocation) {
		reason = "allocation"
		f.logger.Errorf("failed to build %s request: %v", k, err)
	} else {
		f.logger.Warnf("rejected %s request: %v", k, err)
	}
	f.metrics.buildFailed(k, reason)
	return fmt.Errorf("%s: %w", k, err)
}

func (f *Factory) invalid(k Kind, format string, args ...any) error {
	return f.failed(k, fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...))
}

func (f *Factory) header() header {
	return header{f: f}
}

// params acquires the string and tree parameters of one constructor call,
// all with the same ParamType.  The first failure sticks and every parameter
// acquired so far is released by finish.
type params struct {
	f        *Factory
	kind     Kind
	pt       ParamType
	acquired []func()
	err      error
}

func (f *Factory) params(k Kind, pt ParamType) *params {
	p := &params{f: f, kind: k, pt: pt}
	switch pt {
	case ByReference, DupAndOwn, ConstReference:
	default:
		p.err = fmt.Errorf("%w: unknown parameter type %s", ErrInvalidArgument, pt)
	}
	return p
}

func (p *params) text(v []byte) text {
	if p.err != nil || len(v) == 0 {
		return nil
	}
	if p.pt != DupAndOwn {
		return &borrowedParam[[]byte]{v: v}
	}

	dup, err := p.f.alloc.Dup(v)
	if err != nil {
		p.err = err
		return nil
	}
	t := &ownedParam[[]byte]{v: dup, free: p.f.alloc.Free}
	p.acquired = append(p.acquired, t.release)
	return t
}

func (p *params) tree(n *Node) param[*Node] {
	if p.err != nil || n == nil {
		return nil
	}
	if p.pt != DupAndOwn {
		return &borrowedParam[*Node]{v: n}
	}

	dup, err := p.f.store.DupTree(n)
	if err != nil {
		p.err = err
		return nil
	}
	t := &ownedParam[*Node]{v: dup, free: p.f.store.FreeTree}
	p.acquired = append(p.acquired, t.release)
	return t
}

func (p *params) finish() error {
	if p.err == nil {
		p.f.metrics.requestBuilt(p.kind)
		return nil
	}
	for _, release := range p.acquired {
		release()
	}
	p.acquired = nil
	return p.f.failed(p.kind, p.err)
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// isFilter reports whether v looks like a subtree filter, an XPath expression
// or a bare identifier.
func isFilter(v []byte) bool {
	return v[0] == '<' || v[0] == '/' || isAlpha(v[0])
}

// isURLOrConfig reports whether v looks like inline XML config or a URL.
func isURLOrConfig(v []byte) bool {
	return v[0] == '<' || isAlpha(v[0])
}

// NewGenericRequest builds a request sending tree as the operation.  tree must
// be a single root without siblings.
func (f *Factory) NewGenericRequest(tree *Node, pt ParamType) (*GenericRequest, error) {
	if tree == nil {
		return nil, f.invalid(KindGeneric, "content tree is required")
	}
	if !tree.IsSingleRoot() {
		return nil, f.invalid(KindGeneric, "generic rpc must have a single root node")
	}

	p := f.params(KindGeneric, pt)
	req := &GenericRequest{
		header:  f.header(),
		content: p.tree(tree),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewGenericXMLRequest builds a request sending raw as the operation.  raw is
// not interpreted.
func (f *Factory) NewGenericXMLRequest(raw []byte, pt ParamType) (*GenericXMLRequest, error) {
	if len(raw) == 0 {
		return nil, f.invalid(KindGenericXML, "xml content is required")
	}

	p := f.params(KindGenericXML, pt)
	req := &GenericXMLRequest{
		header: f.header(),
		raw:    p.text(raw),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewGetConfigRequest builds a `<get-config>` of source.  filter is optional and
// must be either a subtree filter (starting with `<`) or an XPath expression.
func (f *Factory) NewGetConfigRequest(source Datastore, filter []byte, pt ParamType) (*GetConfigRequest, error) {
	if source.Store == "" {
		return nil, f.invalid(KindGetConfig, "source datastore is required")
	}
	if len(filter) > 0 && !isFilter(filter) {
		return nil, f.invalid(KindGetConfig, "filter must either be an XML subtree or an XPath expression")
	}

	p := f.params(KindGetConfig, pt)
	req := &GetConfigRequest{
		header: f.header(),
		source: source,
		filter: p.text(filter),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewGetRequest builds a `<get>`.  filter follows the rules of
// [Factory.NewGetConfigRequest].
func (f *Factory) NewGetRequest(filter []byte, pt ParamType) (*GetRequest, error) {
	if len(filter) > 0 && !isFilter(filter) {
		return nil, f.invalid(KindGet, "filter must either be an XML subtree or an XPath expression")
	}

	p := f.params(KindGet, pt)
	req := &GetRequest{
		header: f.header(),
		filter: p.text(filter),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewEditConfigRequest builds an `<edit-config>` of target.  content is either
// config (starting with `<`) or a URL.  Empty options are not sent.
func (f *Factory) NewEditConfigRequest(target Datastore, op MergeStrategy, test TestStrategy, errOpt ErrorStrategy, content []byte, pt ParamType) (*EditConfigRequest, error) {
	if len(content) == 0 || !isURLOrConfig(content) {
		return nil, f.invalid(KindEditConfig, "<edit-config> content must either be a URL or a config (XML)")
	}

	p := f.params(KindEditConfig, pt)
	req := &EditConfigRequest{
		header:      f.header(),
		target:      target,
		defaultOp:   op,
		testOption:  test,
		errorOption: errOpt,
		content:     p.text(content),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewCopyConfigRequest builds a `<copy-config>`.  targetURL, when given,
// replaces target.  sourceURLOrConfig, when given, replaces source and is
// either config (starting with `<`) or a URL.
func (f *Factory) NewCopyConfigRequest(target Datastore, targetURL []byte, source Datastore, sourceURLOrConfig []byte, pt ParamType) (*CopyConfigRequest, error) {
	if target.Store == "" && len(targetURL) == 0 {
		return nil, f.invalid(KindCopyConfig, "<copy-config> target is required")
	}
	if source.Store == "" && len(sourceURLOrConfig) == 0 {
		return nil, f.invalid(KindCopyConfig, "<copy-config> source is required")
	}
	if len(sourceURLOrConfig) > 0 && !isURLOrConfig(sourceURLOrConfig) {
		return nil, f.invalid(KindCopyConfig, "<copy-config> source is neither a URL nor a config (XML)")
	}

	p := f.params(KindCopyConfig, pt)
	req := &CopyConfigRequest{
		header:    f.header(),
		target:    target,
		targetURL: p.text(targetURL),
		source:    source,
		sourceSrc: p.text(sourceURLOrConfig),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewDeleteConfigRequest builds a `<delete-config>` of target, or of url when
// given.
func (f *Factory) NewDeleteConfigRequest(target Datastore, url []byte, pt ParamType) (*DeleteConfigRequest, error) {
	if target.Store == "" && len(url) == 0 {
		return nil, f.invalid(KindDeleteConfig, "<delete-config> target is required")
	}

	p := f.params(KindDeleteConfig, pt)
	req := &DeleteConfigRequest{
		header: f.header(),
		target: target,
		url:    p.text(url),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewLockRequest builds a `<lock>` of target.
func (f *Factory) NewLockRequest(target Datastore) *LockRequest {
	f.metrics.requestBuilt(KindLock)
	return &LockRequest{header: f.header(), kind: KindLock, target: target}
}

// NewUnlockRequest builds an `<unlock>` of target.
func (f *Factory) NewUnlockRequest(target Datastore) *LockRequest {
	f.metrics.requestBuilt(KindUnlock)
	return &LockRequest{header: f.header(), kind: KindUnlock, target: target}
}

// NewGetSchemaRequest builds a `<get-schema>`.  identifier is required,
// version and format are optional.
func (f *Factory) NewGetSchemaRequest(identifier, version, format []byte, pt ParamType) (*GetSchemaRequest, error) {
	if len(identifier) == 0 {
		return nil, f.invalid(KindGetSchema, "schema identifier is required")
	}

	p := f.params(KindGetSchema, pt)
	req := &GetSchemaRequest{
		header:     f.header(),
		identifier: p.text(identifier),
		version:    p.text(version),
		format:     p.text(format),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewCommitRequest builds a `<commit>`.  A zero confirmTimeout is not sent,
// leaving the device default.  persist and persistID are optional.
func (f *Factory) NewCommitRequest(confirmed bool, confirmTimeout uint32, persist, persistID []byte, pt ParamType) (*CommitRequest, error) {
	p := f.params(KindCommit, pt)
	req := &CommitRequest{
		header:         f.header(),
		confirmed:      confirmed,
		confirmTimeout: confirmTimeout,
		persist:        p.text(persist),
		persistID:      p.text(persistID),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewDiscardChangesRequest builds a `<discard-changes>`.
func (f *Factory) NewDiscardChangesRequest() *DiscardChangesRequest {
	f.metrics.requestBuilt(KindDiscardChanges)
	return &DiscardChangesRequest{header: f.header()}
}

// NewCancelCommitRequest builds a `<cancel-commit>`.  persistID is optional.
func (f *Factory) NewCancelCommitRequest(persistID []byte, pt ParamType) (*CancelCommitRequest, error) {
	p := f.params(KindCancelCommit, pt)
	req := &CancelCommitRequest{
		header:    f.header(),
		persistID: p.text(persistID),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewValidateRequest builds a `<validate>` of source.  urlOrConfig, when given,
// replaces source and is either config (starting with `<`) or a URL.
func (f *Factory) NewValidateRequest(source Datastore, urlOrConfig []byte, pt ParamType) (*ValidateRequest, error) {
	if source.Store == "" && len(urlOrConfig) == 0 {
		return nil, f.invalid(KindValidate, "<validate> source is required")
	}
	if len(urlOrConfig) > 0 && !isURLOrConfig(urlOrConfig) {
		return nil, f.invalid(KindValidate, "<validate> source is neither a URL nor a config (XML)")
	}

	p := f.params(KindValidate, pt)
	req := &ValidateRequest{
		header:    f.header(),
		source:    source,
		sourceSrc: p.text(urlOrConfig),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewCreateSubscriptionRequest builds a `<create-subscription>`.  All
// parameters are optional; filter follows the rules of
// [Factory.NewGetConfigRequest], start and stop are RFC 3339 date-times.
func (f *Factory) NewCreateSubscriptionRequest(stream, filter, start, stop []byte, pt ParamType) (*CreateSubscriptionRequest, error) {
	if len(filter) > 0 && !isFilter(filter) {
		return nil, f.invalid(KindCreateSubscription, "filter must either be an XML subtree or an XPath expression")
	}

	p := f.params(KindCreateSubscription, pt)
	req := &CreateSubscriptionRequest{
		header:    f.header(),
		stream:    p.text(stream),
		filter:    p.text(filter),
		startTime: p.text(start),
		stopTime:  p.text(stop),
	}
	if err := p.finish(); err != nil {
		return nil, err
	}
	return req, nil
}

// NewKillSessionRequest builds a `<kill-session>` of sessionID.
func (f *Factory) NewKillSessionRequest(sessionID uint32) *KillSessionRequest {
	f.metrics.requestBuilt(KindKillSession)
	return &KillSessionRequest{header: f.header(), sessionID: sessionID}
}
