package netconf

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

var (
	RPCReplyName = xml.Name{
		Space: "urn:ietf:params:xml:ns:netconf:base:1.0",
		Local: "rpc-reply",
	}

	NotificationName = xml.Name{
		Space: "urn:ietf:params:xml:ns:netconf:notification:1.0",
		Local: "notification",
	}
)

// Hello is the message exchanged by both peers when a session starts.
type Hello struct {
	XMLName      xml.Name `xml:"urn:ietf:params:xml:ns:netconf:base:1.0 hello"`
	SessionID    uint64   `xml:"session-id,omitempty"`
	Capabilities []string `xml:"capabilities>capability"`
}

type RawXML []byte

func (x *RawXML) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var inner struct {
		Data []byte `xml:",innerxml"`
	}

	if err := d.DecodeElement(&inner, &start); err != nil {
		return err
	}

	*x = inner.Data
	return nil
}

// MarshalXML implements xml.Marshaller.
func (x *RawXML) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	inner := struct {
		Data []byte `xml:",innerxml"`
	}{
		Data: []byte(*x),
	}
	return e.EncodeElement(&inner, start)
}

// rpcMessage is the `<rpc>` envelope of a request.
type rpcMessage struct {
	MessageID uint64
	Operation Request
}

func (msg *rpcMessage) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	if msg.Operation == nil {
		return fmt.Errorf("operation cannot be nil")
	}

	start := xml.StartElement{
		Name: xml.Name{Space: baseNetconfNs, Local: "rpc"},
		Attr: []xml.Attr{{
			Name:  xml.Name{Local: "message-id"},
			Value: strconv.FormatUint(msg.MessageID, 10),
		}},
	}

	if raw, ok := msg.Operation.(interface{ rawXML() []byte }); ok {
		inner := struct {
			Data []byte `xml:",innerxml"`
		}{Data: raw.rawXML()}
		return e.EncodeElement(&inner, start)
	}

	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(msg.Operation); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type ErrSeverity string

const (
	SevError   ErrSeverity = "error"
	SevWarning ErrSeverity = "warning"
)

type ErrType string

const (
	ErrTypeTransport ErrType = "transport"
	ErrTypeRPC       ErrType = "rpc"
	ErrTypeProtocol  ErrType = "protocol"
	ErrTypeApp       ErrType = "application"
)

type ErrTag string

const (
	ErrInUse                 ErrTag = "in-use"
	ErrInvalidValue          ErrTag = "invalid-value"
	ErrTooBig                ErrTag = "too-big"
	ErrMissingAttribute      ErrTag = "missing-attribute"
	ErrBadAttribute          ErrTag = "bad-attribute"
	ErrUnknownAttribute      ErrTag = "unknown-attribute"
	ErrMissingElement        ErrTag = "missing-element"
	ErrBadElement            ErrTag = "bad-element"
	ErrUnknownElement        ErrTag = "unknown-element"
	ErrUnknownNamespace      ErrTag = "unknown-namespace"
	ErrAccesDenied           ErrTag = "access-denied"
	ErrLockDenied            ErrTag = "lock-denied"
	ErrResourceDenied        ErrTag = "resource-denied"
	ErrRollbackFailed        ErrTag = "rollback-failed"
	ErrDataExists            ErrTag = "data-exists"
	ErrDataMissing           ErrTag = "data-missing"
	ErrOperationNotSupported ErrTag = "operation-not-supported"
	ErrOperationFailed       ErrTag = "operation-failed"
	ErrPartialOperation      ErrTag = "partial-operation"
	ErrMalformedMessage      ErrTag = "malformed-message"
)

// RPCError is an `<rpc-error>` resolved from an [ErrorRecord].  Info holds the
// `<error-info>` children without a dedicated field.
type RPCError struct {
	Type          ErrType     `json:"error-type"`
	Tag           ErrTag      `json:"error-tag"`
	Severity      ErrSeverity `json:"error-severity"`
	AppTag        string      `json:"error-app-tag,omitempty"`
	Path          string      `json:"error-path,omitempty"`
	Message       string      `json:"error-message,omitempty"`
	MessageLang   string      `json:"error-message-lang,omitempty"`
	SessionID     string      `json:"session-id,omitempty"`
	BadAttributes []string    `json:"bad-attribute,omitempty"`
	BadElements   []string    `json:"bad-element,omitempty"`
	BadNamespaces []string    `json:"bad-namespace,omitempty"`
	Info          RawXML      `json:"error-info,omitempty"`
}

func (e RPCError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case len(e.BadElements) > 0:
		return fmt.Sprintf("%s: %s", e.Tag, strings.Join(e.BadElements, ", "))
	case len(e.Info) > 0:
		return string(e.Info)
	default:
		return string(e.Tag)
	}
}

type RPCErrors []RPCError

func (errs RPCErrors) Filter(severity ...ErrSeverity) RPCErrors {
	if len(errs) == 0 {
		return nil
	}

	if len(severity) == 0 {
		severity = []ErrSeverity{SevError}
	}

	filteredErrs := make(RPCErrors, 0, len(errs))
	for _, err := range errs {
		if !slices.Contains(severity, err.Severity) {
			continue
		}
		filteredErrs = append(filteredErrs, err)
	}
	return filteredErrs
}

func (errs RPCErrors) Error() string {
	var sb strings.Builder
	for i, err := range errs {
		if i > 0 {
			sb.WriteRune('\n')
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

func (errs RPCErrors) Unwrap() []error {
	boxedErrs := make([]error, len(errs))
	for i, err := range errs {
		boxedErrs[i] = err
	}
	return boxedErrs
}
