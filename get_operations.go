package netconf

import (
	"context"
	"fmt"
)

type getArgs struct {
	filter string
}

type filter string

func (o filter) apply(req *getArgs) { req.filter = string(o) }

// WithSubtreeFilter sets the subtree `filter` to the `<get>` or `<get-config>` operation.
func WithSubtreeFilter(subtree string) GetOption { return filter(subtree) }

// WithXPathFilter sets an XPath `filter` to the `<get>` or `<get-config>`
// operation.  This requires the device to support the `:xpath` capability.
func WithXPathFilter(xpath string) GetOption { return filter(xpath) }

type GetOption interface {
	apply(*getArgs)
}

func newGetArgs(opts []GetOption) getArgs {
	var args getArgs
	for _, opt := range opts {
		opt.apply(&args)
	}
	return args
}

// GetConfig implements the <get-config> rpc operation defined in [RFC6241 7.1].
// `source` is the datastore to query.
//
// [RFC6241 7.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.1
func (s *Session) GetConfig(ctx context.Context, source Datastore, opts ...GetOption) (Reply, error) {
	args := newGetArgs(opts)
	req, err := s.factory.NewGetConfigRequest(source, []byte(args.filter), ConstReference)
	if err != nil {
		return nil, err
	}
	defer FreeRequest(req)

	return s.do(ctx, req)
}

// Get issues the `<get>` operation as defined in [RFC6241 7.7]
// for retrieving running configuration and device state information.
//
// [RFC6241 7.7] https://www.rfc-editor.org/rfc/rfc6241.html#section-7.7
func (s *Session) Get(ctx context.Context, opts ...GetOption) (Reply, error) {
	args := newGetArgs(opts)
	req, err := s.factory.NewGetRequest([]byte(args.filter), ConstReference)
	if err != nil {
		return nil, err
	}
	defer FreeRequest(req)

	return s.do(ctx, req)
}

type getSchemaArgs struct {
	version string
	format  string
}

// GetSchemaOption is an optional argument to [Session.GetSchema].
type GetSchemaOption interface {
	applyGetSchema(*getSchemaArgs)
}

type (
	schemaVersion string
	schemaFormat  string
)

func (o schemaVersion) applyGetSchema(req *getSchemaArgs) { req.version = string(o) }
func (o schemaFormat) applyGetSchema(req *getSchemaArgs)  { req.format = string(o) }

// WithSchemaVersion requests a given revision of the schema.
func WithSchemaVersion(version string) GetSchemaOption { return schemaVersion(version) }

// WithSchemaFormat requests the schema in the given format, for example `yang`
// or `yin`.
func WithSchemaFormat(format string) GetSchemaOption { return schemaFormat(format) }

// GetSchema issues the `<get-schema>` operation as defined in [RFC6022 3.1] for
// retrieving the schema `identifier` from the device.  This requires the device
// to support the [MonitoringCapability] capability.  The schema is the text of
// the single `<data>` root of the returned [DataReply].
//
// [RFC6022 3.1]: https://www.rfc-editor.org/rfc/rfc6022.html#section-3.1
func (s *Session) GetSchema(ctx context.Context, identifier string, opts ...GetSchemaOption) (Reply, error) {
	if !s.serverCaps.Has(MonitoringCapability) {
		return nil, fmt.Errorf("server does not support %s capability", MonitoringCapability)
	}

	var args getSchemaArgs
	for _, opt := range opts {
		opt.applyGetSchema(&args)
	}

	req, err := s.factory.NewGetSchemaRequest([]byte(identifier), []byte(args.version), []byte(args.format), ConstReference)
	if err != nil {
		return nil, err
	}
	defer FreeRequest(req)

	return s.do(ctx, req)
}
