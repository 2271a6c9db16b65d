package netconf

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"time"
)

// operand splits an argument given as a [Datastore], a [URL], inline config
// (string, []byte or any value marshalled to XML) into the datastore and the
// bytes the factory expects.
func operand(v any) (Datastore, []byte, error) {
	switch v := v.(type) {
	case nil:
		return Datastore{}, nil, fmt.Errorf("%w: missing datastore, url or config", ErrInvalidArgument)
	case Datastore:
		return v, nil, nil
	case *Datastore:
		return *v, nil, nil
	case URL:
		return Datastore{}, []byte(v), nil
	case string:
		return Datastore{}, bytes.TrimSpace([]byte(v)), nil
	case []byte:
		return Datastore{}, bytes.TrimSpace(v), nil
	default:
		b, err := xml.Marshal(v)
		if err != nil {
			return Datastore{}, nil, fmt.Errorf("failed to marshal config: %w", err)
		}
		return Datastore{}, b, nil
	}
}

type (
	defaultMergeStrategy MergeStrategy
	testStrategy         TestStrategy
	errorStrategy        ErrorStrategy
)

func (o defaultMergeStrategy) apply(req *editConfigArgs) { req.op = MergeStrategy(o) }
func (o testStrategy) apply(req *editConfigArgs)         { req.test = TestStrategy(o) }
func (o errorStrategy) apply(req *editConfigArgs)        { req.errOpt = ErrorStrategy(o) }

// WithDefaultMergeStrategy sets the default config merging strategy for the
// <edit-config> operation.  Only [ReplaceConfig], [MergeConfig] and
// [NoMergeStrategy] are valid.
func WithDefaultMergeStrategy(op MergeStrategy) EditConfigOption { return defaultMergeStrategy(op) }

// WithTestStrategy sets the `test-option` in the `<edit-config>` operation.
// This defines what testing should be done the supplied configuration.  See
// the documentation on [TestStrategy] for details on each strategy.
func WithTestStrategy(op TestStrategy) EditConfigOption { return testStrategy(op) }

// WithErrorStrategy sets the `error-option` in the `<edit-config>` operation.
// This defines the behavior when errors are encountered applying the supplied
// config.  See [ErrorStrategy] for the available options.
func WithErrorStrategy(opt ErrorStrategy) EditConfigOption { return errorStrategy(opt) }

type editConfigArgs struct {
	op     MergeStrategy
	test   TestStrategy
	errOpt ErrorStrategy
}

// EditConfigOption is a optional arguments to [Session.EditConfig] method
type EditConfigOption interface {
	apply(*editConfigArgs)
}

// EditConfig issues the `<edit-config>` operation defined in [RFC6241 7.2] for
// updating an existing target config datastore.
//
// `config` is inline config (a string, a []byte or a value marshalled to XML)
// or a [URL].
//
// [RFC6241 7.2]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.2
func (s *Session) EditConfig(ctx context.Context, target Datastore, config any, opts ...EditConfigOption) error {
	var args editConfigArgs
	for _, opt := range opts {
		opt.apply(&args)
	}

	_, content, err := operand(config)
	if err != nil {
		return err
	}

	req, err := s.factory.NewEditConfigRequest(target, args.op, args.test, args.errOpt, content, ConstReference)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// DiscardChanges issues the `<discard-changes>` operation as defined in [RFC6241 8.3.4.2].
// This requires the device to support the [CandidateCapability] capability
//
// [RFC6241 8.3.4.2]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.3.4.2
func (s *Session) DiscardChanges(ctx context.Context) error {
	if !s.serverCaps.Has(CandidateCapability) {
		return fmt.Errorf("server does not support %s capability", CandidateCapability)
	}
	req := s.factory.NewDiscardChangesRequest()
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// CopyConfig issues the `<copy-config>` operation as defined in [RFC6241 7.3]
// for copying an entire config to/from a source and target datastore.
//
// A `<config>` element defining a full config can be used as the source.
//
// If a device supports the [URLCapability] capability than a [URL] object can be used
// for the source or target datastore.
//
// [RFC6241 7.3]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.3
func (s *Session) CopyConfig(ctx context.Context, source, target any) error {
	srcDs, srcCfg, err := operand(source)
	if err != nil {
		return err
	}
	dstDs, dstURL, err := operand(target)
	if err != nil {
		return err
	}

	req, err := s.factory.NewCopyConfigRequest(dstDs, dstURL, srcDs, srcCfg, ConstReference)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// DeleteConfig issues the `<delete-config>` operation as defined in [RFC6241 7.4]
// for deleting a configuration datastore, given as a [Datastore] or a [URL].
//
// [RFC6241 7.4]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.4
func (s *Session) DeleteConfig(ctx context.Context, target any) error {
	ds, url, err := operand(target)
	if err != nil {
		return err
	}

	req, err := s.factory.NewDeleteConfigRequest(ds, url, ConstReference)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// Lock issues the `<lock>` operation as defined in [RFC6241 7.5]
// for locking the entire configuration datastore.
//
// [RFC6241 7.5]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.5
func (s *Session) Lock(ctx context.Context, target Datastore) error {
	req := s.factory.NewLockRequest(target)
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// Unlock issues the `<unlock>` operation as defined in [RFC6241 7.6]
// for releasing a configuration lock, previously obtained with the <lock> operation.
//
// [RFC6241 7.6]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.6
func (s *Session) Unlock(ctx context.Context, target Datastore) error {
	req := s.factory.NewUnlockRequest(target)
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// KillSession issues the `<kill-session>` operation as defined in [RFC6241 7.9]
// for force terminating the NETCONF session.
//
// [RFC6241 7.9]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.9
func (s *Session) KillSession(ctx context.Context, sessionID uint32) (Reply, error) {
	req := s.factory.NewKillSessionRequest(sessionID)
	defer FreeRequest(req)

	return s.do(ctx, req)
}

// Validate issues the `<validate>` operation as defined in [RFC6241 8.6.4.1]
// for validating the contents of the specified configuration, given as a
// [Datastore], a [URL] or inline config. This requires the device to support
// the [ValidateCapability] capability
//
// [RFC6241 8.6.4.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.6.4.1
func (s *Session) Validate(ctx context.Context, source any) error {
	if !s.serverCaps.Has(ValidateCapability) {
		return fmt.Errorf("server does not support %s capability", ValidateCapability)
	}

	ds, cfg, err := operand(source)
	if err != nil {
		return err
	}

	req, err := s.factory.NewValidateRequest(ds, cfg, ConstReference)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}

type commitArgs struct {
	confirmed      bool
	confirmTimeout uint32
	persist        string
	persistID      string
}

// CommitOption is an optional arguments to [Session.Commit] method.
type CommitOption interface {
	apply(*commitArgs)
}

type (
	confirmed        bool
	confirmedTimeout struct {
		time.Duration
	}
)

type (
	persist   string
	PersistID string
)

func (o confirmed) apply(req *commitArgs) { req.confirmed = true }
func (o confirmedTimeout) apply(req *commitArgs) {
	req.confirmed = true
	req.confirmTimeout = uint32(o.Seconds())
}

func (o persist) apply(req *commitArgs) {
	req.confirmed = true
	req.persist = string(o)
}
func (o PersistID) apply(req *commitArgs) { req.persistID = string(o) }

// WithConfirmed will mark the commits as requiring confirmation or will roll back
// after the default timeout on the device (default should be 600s).  The commit
// can be confirmed with another `<commit>` call without the confirmed option,
// extended by calling with `Commit` With `WithConfirmed` or
// `WithConfirmedTimeout` or canceling the commit with a `Session.CancelCommit` call.
// This requires the device to support the [ConfirmedCommitCapability] capability.
//
// [RFC6241 8.4]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.4
func WithConfirmed() CommitOption { return confirmed(true) }

// WithConfirmedTimeout is like `WithConfirmed` but using the given timeout
// duration instead of the device's default.
func WithConfirmedTimeout(timeout time.Duration) CommitOption { return confirmedTimeout{timeout} }

// WithPersist allows you to set an identifier to confirm a commit in another
// sessions. Confirming the commit requires setting the `WithPersistID` in the
// following `Commit` call matching the id set on the confirmed commit.  Will
// mark the commit as confirmed, if not already set.
func WithPersist(id string) CommitOption { return persist(id) }

// WithPersistID is used to confirm a previous commit set with a given
// identifier.  This allows you to confirm a commit from (potentially) another
// session.
func WithPersistID(id string) PersistID { return PersistID(id) }

// Commit will commit a candidate config to the running config as defined in [RFC6241 8.3.4.1].
// This requires the device to support the [CandidateCapability] capability.
//
// [RFC6241 8.3.4.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.3.4.1
func (s *Session) Commit(ctx context.Context, opts ...CommitOption) error {
	if !s.serverCaps.Has(CandidateCapability) {
		return fmt.Errorf("server does not support %s capability", CandidateCapability)
	}

	var args commitArgs
	for _, opt := range opts {
		opt.apply(&args)
	}

	if args.confirmed && !s.serverCaps.Has(ConfirmedCommitCapability) {
		return fmt.Errorf("server does not support %s capability", ConfirmedCommitCapability)
	}
	if args.persistID != "" && args.confirmed {
		return fmt.Errorf("PersistID cannot be used with Confirmed/ConfirmedTimeout or Persist options")
	}

	req, err := s.factory.NewCommitRequest(args.confirmed, args.confirmTimeout, []byte(args.persist), []byte(args.persistID), ConstReference)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// CancelCommitOption is an optional arguments to [Session.CancelCommit] method.
type CancelCommitOption interface {
	applyCancelCommit(*commitArgs)
}

func (o PersistID) applyCancelCommit(req *commitArgs) { req.persistID = string(o) }

// CancelCommit issues the `<cancel-commit/>` operation as defined in [RFC6241 8.4.4.1].
//
// This requires the device to support the [ConfirmedCommitCapability] capability
//
// [RFC6241 8.4.4.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.4.4.1
func (s *Session) CancelCommit(ctx context.Context, opts ...CancelCommitOption) error {
	if !s.serverCaps.Has(ConfirmedCommitCapability) {
		return fmt.Errorf("server does not support %s capability", ConfirmedCommitCapability)
	}

	var args commitArgs
	for _, opt := range opts {
		opt.applyCancelCommit(&args)
	}

	req, err := s.factory.NewCancelCommitRequest([]byte(args.persistID), ConstReference)
	if err != nil {
		return err
	}
	defer FreeRequest(req)

	return s.call(ctx, req)
}

// Dispatch issues a custom `<rpc>` operation given as raw XML.  The markup is
// sent as is.
func (s *Session) Dispatch(ctx context.Context, rpc string) (Reply, error) {
	req, err := s.factory.NewGenericXMLRequest([]byte(rpc), ConstReference)
	if err != nil {
		return nil, err
	}
	defer FreeRequest(req)

	return s.do(ctx, req)
}

// DispatchTree issues a custom `<rpc>` operation given as a content tree with a
// single root.
func (s *Session) DispatchTree(ctx context.Context, tree *Node) (Reply, error) {
	req, err := s.factory.NewGenericRequest(tree, ConstReference)
	if err != nil {
		return nil, err
	}
	defer FreeRequest(req)

	return s.do(ctx, req)
}
