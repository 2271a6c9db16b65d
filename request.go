package netconf

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	notificationNs = "urn:ietf:params:xml:ns:netconf:notification:1.0"
	monitoringNs   = "urn:ietf:params:xml:ns:yang:ietf-netconf-monitoring"
)

// Kind identifies the operation of a [Request].
type Kind int

const (
	KindGeneric Kind = iota
	KindGenericXML
	KindGetConfig
	KindGet
	KindEditConfig
	KindCopyConfig
	KindDeleteConfig
	KindLock
	KindUnlock
	KindGetSchema
	KindCommit
	KindDiscardChanges
	KindCancelCommit
	KindValidate
	KindCreateSubscription
	KindKillSession

	numKinds
)

var kindNames = [numKinds]string{
	KindGeneric:            "generic",
	KindGenericXML:         "generic-xml",
	KindGetConfig:          "get-config",
	KindGet:                "get",
	KindEditConfig:         "edit-config",
	KindCopyConfig:         "copy-config",
	KindDeleteConfig:       "delete-config",
	KindLock:               "lock",
	KindUnlock:             "unlock",
	KindGetSchema:          "get-schema",
	KindCommit:             "commit",
	KindDiscardChanges:     "discard-changes",
	KindCancelCommit:       "cancel-commit",
	KindValidate:           "validate",
	KindCreateSubscription: "create-subscription",
	KindKillSession:        "kill-session",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Request is a NETCONF operation built by a [Factory].  The set of requests is
// closed: every implementation lives in this package.
//
// A Request is immutable once built and is released with [FreeRequest] by its
// owner, exactly once.
type Request interface {
	xml.Marshaler

	// Kind returns the operation of the request.
	Kind() Kind

	// release gives back whatever the request owns.
	release()
}

// FreeRequest releases everything r owns.  Parameters borrowed with
// [ByReference] or [ConstReference] are left untouched.  A nil r is ignored.
func FreeRequest(r Request) {
	if r == nil {
		return
	}
	r.release()
}

// header is shared by all requests and replies.
type header struct {
	f        *Factory
	released bool
}

// done reports whether the message was already released and marks it so.
func (h *header) done() bool {
	if h.released {
		return true
	}
	h.released = true
	return false
}

func (h *header) releasedRequest(k Kind) {
	if h.f != nil {
		h.f.metrics.requestReleased(k)
	}
}

func nsStart(space, local string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Space: space, Local: local}}
}

func baseStart(local string) xml.StartElement {
	return nsStart(baseNetconfNs, local)
}

// GenericRequest sends a content tree as the operation.
type GenericRequest struct {
	header
	content param[*Node]
}

func (r *GenericRequest) Kind() Kind { return KindGeneric }

// Content returns the tree sent as the operation.
func (r *GenericRequest) Content() *Node {
	if r.content == nil {
		return nil
	}
	return r.content.value()
}

func (r *GenericRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	n := r.Content()
	if n == nil {
		return fmt.Errorf("generic request has no content")
	}
	return e.Encode(n)
}

func (r *GenericRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.content)
	r.content = nil
	r.releasedRequest(KindGeneric)
}

// GenericXMLRequest sends raw markup as the operation.  The markup is opaque
// and written as is inside the `<rpc>` element.
type GenericXMLRequest struct {
	header
	raw text
}

func (r *GenericXMLRequest) Kind() Kind { return KindGenericXML }

// XML returns the markup sent as the operation.
func (r *GenericXMLRequest) XML() string { return textString(r.raw) }

func (r *GenericXMLRequest) rawXML() []byte { return textBytes(r.raw) }

// MarshalXML implements xml.Marshaler by re-encoding the tokens of the
// markup.  Inside an `<rpc>` the markup is written verbatim instead.
func (r *GenericXMLRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	d := xml.NewDecoder(bytes.NewReader(r.rawXML()))
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid generic xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			t.Attr = copyAttrs(t.Attr)
			tok = t
		case xml.ProcInst, xml.Directive:
			continue
		}
		if err := e.EncodeToken(xml.CopyToken(tok)); err != nil {
			return err
		}
	}
}

func (r *GenericXMLRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.raw)
	r.raw = nil
	r.releasedRequest(KindGenericXML)
}

// GetConfigRequest is the `<get-config>` operation defined in [RFC6241 7.1].
//
// [RFC6241 7.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.1
type GetConfigRequest struct {
	header
	source Datastore
	filter text
}

func (r *GetConfigRequest) Kind() Kind        { return KindGetConfig }
func (r *GetConfigRequest) Source() Datastore { return r.source }
func (r *GetConfigRequest) Filter() string    { return textString(r.filter) }

func (r *GetConfigRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Source Datastore  `xml:"source"`
		Filter filterElem `xml:"filter,omitempty"`
	}{
		Source: r.source,
		Filter: textBytes(r.filter),
	}
	return e.EncodeElement(&v, baseStart("get-config"))
}

func (r *GetConfigRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.filter)
	r.filter = nil
	r.releasedRequest(KindGetConfig)
}

// GetRequest is the `<get>` operation defined in [RFC6241 7.7].
//
// [RFC6241 7.7]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.7
type GetRequest struct {
	header
	filter text
}

func (r *GetRequest) Kind() Kind     { return KindGet }
func (r *GetRequest) Filter() string { return textString(r.filter) }

func (r *GetRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Filter filterElem `xml:"filter,omitempty"`
	}{Filter: textBytes(r.filter)}
	return e.EncodeElement(&v, baseStart("get"))
}

func (r *GetRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.filter)
	r.filter = nil
	r.releasedRequest(KindGet)
}

// EditConfigRequest is the `<edit-config>` operation defined in [RFC6241 7.2].
// Content starting with `<` is sent as the `<config>` element, anything else as
// a `<url>`.
//
// [RFC6241 7.2]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.2
type EditConfigRequest struct {
	header
	target      Datastore
	defaultOp   MergeStrategy
	testOption  TestStrategy
	errorOption ErrorStrategy
	content     text
}

func (r *EditConfigRequest) Kind() Kind                      { return KindEditConfig }
func (r *EditConfigRequest) Target() Datastore               { return r.target }
func (r *EditConfigRequest) DefaultOperation() MergeStrategy { return r.defaultOp }
func (r *EditConfigRequest) TestOption() TestStrategy        { return r.testOption }
func (r *EditConfigRequest) ErrorOption() ErrorStrategy      { return r.errorOption }
func (r *EditConfigRequest) Content() string                 { return textString(r.content) }

func (r *EditConfigRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Target               Datastore     `xml:"target"`
		DefaultMergeStrategy MergeStrategy `xml:"default-operation,omitempty"`
		TestStrategy         TestStrategy  `xml:"test-option,omitempty"`
		ErrorStrategy        ErrorStrategy `xml:"error-option,omitempty"`

		Inner []byte `xml:",innerxml"`
		URL   string `xml:"url,omitempty"`
	}{
		Target:               r.target,
		DefaultMergeStrategy: r.defaultOp,
		TestStrategy:         r.testOption,
		ErrorStrategy:        r.errorOption,
	}

	if content := textBytes(r.content); len(content) > 0 && content[0] == '<' {
		v.Inner = wrapConfig(content)
	} else {
		v.URL = string(content)
	}
	return e.EncodeElement(&v, baseStart("edit-config"))
}

func (r *EditConfigRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.content)
	r.content = nil
	r.releasedRequest(KindEditConfig)
}

// CopyConfigRequest is the `<copy-config>` operation defined in [RFC6241 7.3].
// A target URL replaces the target datastore, a source URL or inline config
// replaces the source datastore.
//
// [RFC6241 7.3]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.3
type CopyConfigRequest struct {
	header
	target    Datastore
	targetURL text
	source    Datastore
	sourceSrc text
}

func (r *CopyConfigRequest) Kind() Kind        { return KindCopyConfig }
func (r *CopyConfigRequest) Target() Datastore { return r.target }
func (r *CopyConfigRequest) TargetURL() string { return textString(r.targetURL) }
func (r *CopyConfigRequest) Source() Datastore { return r.source }

// SourceConfig returns the source URL or inline config, if any.
func (r *CopyConfigRequest) SourceConfig() string { return textString(r.sourceSrc) }

func (r *CopyConfigRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Target urlTarget    `xml:"target"`
		Source configSource `xml:"source"`
	}{
		Target: urlTarget{ds: r.target, url: textBytes(r.targetURL)},
		Source: configSource{ds: r.source, inline: textBytes(r.sourceSrc)},
	}
	return e.EncodeElement(&v, baseStart("copy-config"))
}

func (r *CopyConfigRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.targetURL)
	releaseParam(r.sourceSrc)
	r.targetURL, r.sourceSrc = nil, nil
	r.releasedRequest(KindCopyConfig)
}

// DeleteConfigRequest is the `<delete-config>` operation defined in [RFC6241 7.4].
//
// [RFC6241 7.4]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.4
type DeleteConfigRequest struct {
	header
	target Datastore
	url    text
}

func (r *DeleteConfigRequest) Kind() Kind        { return KindDeleteConfig }
func (r *DeleteConfigRequest) Target() Datastore { return r.target }
func (r *DeleteConfigRequest) URL() string       { return textString(r.url) }

func (r *DeleteConfigRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Target urlTarget `xml:"target"`
	}{Target: urlTarget{ds: r.target, url: textBytes(r.url)}}
	return e.EncodeElement(&v, baseStart("delete-config"))
}

func (r *DeleteConfigRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.url)
	r.url = nil
	r.releasedRequest(KindDeleteConfig)
}

// LockRequest is the `<lock>` or `<unlock>` operation defined in [RFC6241 7.5]
// and [RFC6241 7.6].
//
// [RFC6241 7.5]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.5
// [RFC6241 7.6]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.6
type LockRequest struct {
	header
	kind   Kind
	target Datastore
}

func (r *LockRequest) Kind() Kind        { return r.kind }
func (r *LockRequest) Target() Datastore { return r.target }

func (r *LockRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Target Datastore `xml:"target"`
	}{Target: r.target}
	return e.EncodeElement(&v, baseStart(r.kind.String()))
}

func (r *LockRequest) release() {
	if r == nil || r.done() {
		return
	}
	r.releasedRequest(r.kind)
}

// GetSchemaRequest is the `<get-schema>` operation defined in [RFC6022 3.1].
//
// [RFC6022 3.1]: https://www.rfc-editor.org/rfc/rfc6022.html#section-3.1
type GetSchemaRequest struct {
	header
	identifier text
	version    text
	format     text
}

func (r *GetSchemaRequest) Kind() Kind         { return KindGetSchema }
func (r *GetSchemaRequest) Identifier() string { return textString(r.identifier) }
func (r *GetSchemaRequest) Version() string    { return textString(r.version) }
func (r *GetSchemaRequest) Format() string     { return textString(r.format) }

func (r *GetSchemaRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Identifier string `xml:"identifier"`
		Version    string `xml:"version,omitempty"`
		Format     string `xml:"format,omitempty"`
	}{
		Identifier: r.Identifier(),
		Version:    r.Version(),
		Format:     r.Format(),
	}
	return e.EncodeElement(&v, nsStart(monitoringNs, "get-schema"))
}

func (r *GetSchemaRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.identifier)
	releaseParam(r.version)
	releaseParam(r.format)
	r.identifier, r.version, r.format = nil, nil, nil
	r.releasedRequest(KindGetSchema)
}

// CommitRequest is the `<commit>` operation defined in [RFC6241 8.3.4.1] with
// the confirmed commit parameters of [RFC6241 8.4.5.1].
//
// [RFC6241 8.3.4.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.3.4.1
// [RFC6241 8.4.5.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.4.5.1
type CommitRequest struct {
	header
	confirmed      bool
	confirmTimeout uint32
	persist        text
	persistID      text
}

func (r *CommitRequest) Kind() Kind             { return KindCommit }
func (r *CommitRequest) Confirmed() bool        { return r.confirmed }
func (r *CommitRequest) ConfirmTimeout() uint32 { return r.confirmTimeout }
func (r *CommitRequest) Persist() string        { return textString(r.persist) }
func (r *CommitRequest) PersistID() string      { return textString(r.persistID) }

func (r *CommitRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Confirmed      EmptyElement `xml:"confirmed,omitempty"`
		ConfirmTimeout uint32       `xml:"confirm-timeout,omitempty"`
		Persist        string       `xml:"persist,omitempty"`
		PersistID      string       `xml:"persist-id,omitempty"`
	}{
		Confirmed:      EmptyElement(r.confirmed),
		ConfirmTimeout: r.confirmTimeout,
		Persist:        r.Persist(),
		PersistID:      r.PersistID(),
	}
	return e.EncodeElement(&v, baseStart("commit"))
}

func (r *CommitRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.persist)
	releaseParam(r.persistID)
	r.persist, r.persistID = nil, nil
	r.releasedRequest(KindCommit)
}

// DiscardChangesRequest is the `<discard-changes>` operation defined in [RFC6241 8.3.4.2].
//
// [RFC6241 8.3.4.2]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.3.4.2
type DiscardChangesRequest struct {
	header
}

func (r *DiscardChangesRequest) Kind() Kind { return KindDiscardChanges }

func (r *DiscardChangesRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return e.EncodeElement(struct{}{}, baseStart("discard-changes"))
}

func (r *DiscardChangesRequest) release() {
	if r == nil || r.done() {
		return
	}
	r.releasedRequest(KindDiscardChanges)
}

// CancelCommitRequest is the `<cancel-commit>` operation defined in [RFC6241 8.4.4.1].
//
// [RFC6241 8.4.4.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.4.4.1
type CancelCommitRequest struct {
	header
	persistID text
}

func (r *CancelCommitRequest) Kind() Kind        { return KindCancelCommit }
func (r *CancelCommitRequest) PersistID() string { return textString(r.persistID) }

func (r *CancelCommitRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		PersistID string `xml:"persist-id,omitempty"`
	}{PersistID: r.PersistID()}
	return e.EncodeElement(&v, baseStart("cancel-commit"))
}

func (r *CancelCommitRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.persistID)
	r.persistID = nil
	r.releasedRequest(KindCancelCommit)
}

// ValidateRequest is the `<validate>` operation defined in [RFC6241 8.6.4.1].
//
// [RFC6241 8.6.4.1]: https://www.rfc-editor.org/rfc/rfc6241.html#section-8.6.4.1
type ValidateRequest struct {
	header
	source    Datastore
	sourceSrc text
}

func (r *ValidateRequest) Kind() Kind        { return KindValidate }
func (r *ValidateRequest) Source() Datastore { return r.source }

// SourceConfig returns the source URL or inline config, if any.
func (r *ValidateRequest) SourceConfig() string { return textString(r.sourceSrc) }

func (r *ValidateRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Source configSource `xml:"source"`
	}{Source: configSource{ds: r.source, inline: textBytes(r.sourceSrc)}}
	return e.EncodeElement(&v, baseStart("validate"))
}

func (r *ValidateRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.sourceSrc)
	r.sourceSrc = nil
	r.releasedRequest(KindValidate)
}

// CreateSubscriptionRequest is the `<create-subscription>` operation defined
// in [RFC5277 2.1.1].
//
// [RFC5277 2.1.1]: https://www.rfc-editor.org/rfc/rfc5277.html#section-2.1.1
type CreateSubscriptionRequest struct {
	header
	stream    text
	filter    text
	startTime text
	stopTime  text
}

func (r *CreateSubscriptionRequest) Kind() Kind        { return KindCreateSubscription }
func (r *CreateSubscriptionRequest) Stream() string    { return textString(r.stream) }
func (r *CreateSubscriptionRequest) Filter() string    { return textString(r.filter) }
func (r *CreateSubscriptionRequest) StartTime() string { return textString(r.startTime) }
func (r *CreateSubscriptionRequest) StopTime() string  { return textString(r.stopTime) }

func (r *CreateSubscriptionRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		Stream    string     `xml:"stream,omitempty"`
		Filter    filterElem `xml:"filter,omitempty"`
		StartTime string     `xml:"startTime,omitempty"`
		StopTime  string     `xml:"stopTime,omitempty"`
	}{
		Stream:    r.Stream(),
		Filter:    textBytes(r.filter),
		StartTime: r.StartTime(),
		StopTime:  r.StopTime(),
	}
	return e.EncodeElement(&v, nsStart(notificationNs, "create-subscription"))
}

func (r *CreateSubscriptionRequest) release() {
	if r == nil || r.done() {
		return
	}
	releaseParam(r.stream)
	releaseParam(r.filter)
	releaseParam(r.startTime)
	releaseParam(r.stopTime)
	r.stream, r.filter, r.startTime, r.stopTime = nil, nil, nil, nil
	r.releasedRequest(KindCreateSubscription)
}

// KillSessionRequest is the `<kill-session>` operation defined in [RFC6241 7.9].
//
// [RFC6241 7.9]: https://www.rfc-editor.org/rfc/rfc6241.html#section-7.9
type KillSessionRequest struct {
	header
	sessionID uint32
}

func (r *KillSessionRequest) Kind() Kind        { return KindKillSession }
func (r *KillSessionRequest) SessionID() uint32 { return r.sessionID }

func (r *KillSessionRequest) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	v := struct {
		SessionID uint32 `xml:"session-id"`
	}{SessionID: r.sessionID}
	return e.EncodeElement(&v, baseStart("kill-session"))
}

func (r *KillSessionRequest) release() {
	if r == nil || r.done() {
		return
	}
	r.releasedRequest(KindKillSession)
}
