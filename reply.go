package netconf

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReplyType identifies the variant of a [Reply].
type ReplyType int

const (
	ReplyData ReplyType = iota
	ReplyOK
	ReplyError
)

func (t ReplyType) String() string {
	switch t {
	case ReplyData:
		return "data"
	case ReplyOK:
		return "ok"
	case ReplyError:
		return "error"
	}
	return fmt.Sprintf("ReplyType(%d)", int(t))
}

// Reply is a decoded `<rpc-reply>`.  The set of replies is closed: it is one of
// [*DataReply], [*OKReply] or [*ErrorReply].
//
// A Reply is owned by whoever received it and released with [FreeReply],
// exactly once.
type Reply interface {
	// ID returns the message-id of the request this reply answers.
	ID() uint64
	Type() ReplyType

	release()
}

// FreeReply releases everything r owns.  A nil r is ignored.
func FreeReply(r Reply) {
	if r == nil {
		return
	}
	r.release()
}

func (h *header) store() ContentStore {
	if h.f != nil {
		return h.f.store
	}
	return defaultFactory.store
}

func (h *header) releasedReply(t ReplyType) {
	if h.f != nil {
		h.f.metrics.replyReleased(t)
	}
}

// DataReply carries the data returned by the server.  Data is the first root of
// a sibling list.
type DataReply struct {
	header
	MessageID uint64
	Data      *Node
}

func (r *DataReply) ID() uint64      { return r.MessageID }
func (r *DataReply) Type() ReplyType { return ReplyData }

// Roots returns a snapshot of the top-level nodes of the reply.
func (r *DataReply) Roots() []*Node {
	if r.Data == nil {
		return nil
	}
	return r.Data.Siblings()
}

func (r *DataReply) String() string {
	var sb strings.Builder
	for _, n := range r.Roots() {
		sb.WriteString(n.String())
	}
	return sb.String()
}

// Decode unmarshals the data of the reply into v.
func (r *DataReply) Decode(v any) error {
	return xml.Unmarshal([]byte(r.String()), v)
}

func (r *DataReply) release() {
	if r == nil || r.done() {
		return
	}

	freeForest(r.store(), r.Data)
	r.Data = nil
	r.releasedReply(ReplyData)
}

// freeForest releases first and the siblings following it.  next is read
// before each root is released, and a root linking to itself ends the walk.
func freeForest(store ContentStore, first *Node) {
	for n := first; n != nil; {
		next := n.next
		store.FreeTree(n)
		if next == n {
			break
		}
		n = next
	}
}

// OKReply is an `<ok/>` reply.
type OKReply struct {
	header
	MessageID uint64
}

func (r *OKReply) ID() uint64      { return r.MessageID }
func (r *OKReply) Type() ReplyType { return ReplyOK }

func (r *OKReply) release() {
	if r == nil || r.done() {
		return
	}
	r.releasedReply(ReplyOK)
}

// ErrorRecord is one `<rpc-error>`.  Strings are handles into the [Dict] of the
// reply.  The `<error-info>` children are split into bad attributes, bad
// elements, bad namespaces and everything else kept undecoded.
type ErrorRecord struct {
	Type        Handle
	Tag         Handle
	Severity    Handle
	AppTag      Handle
	Path        Handle
	Message     Handle
	MessageLang Handle
	SessionID   Handle

	BadAttributes []Handle
	BadElements   []Handle
	BadNamespaces []Handle
	Other         []*Fragment
}

// ErrorReply carries the errors returned by the server.
type ErrorReply struct {
	header
	MessageID uint64
	Records   []ErrorRecord

	dict *Dict
}

// NewErrorReply returns an empty ErrorReply whose records are interned in
// dict.  Records appended to it must only hold handles of dict.
func (f *Factory) NewErrorReply(messageID uint64, dict *Dict) *ErrorReply {
	return &ErrorReply{header: f.header(), MessageID: messageID, dict: dict}
}

func (r *ErrorReply) ID() uint64      { return r.MessageID }
func (r *ErrorReply) Type() ReplyType { return ReplyError }

// Dict returns the string pool of the records.
func (r *ErrorReply) Dict() *Dict { return r.dict }

// RPCErrors resolves the records into [RPCError] values.
func (r *ErrorReply) RPCErrors() RPCErrors {
	if len(r.Records) == 0 {
		return nil
	}

	errs := make(RPCErrors, 0, len(r.Records))
	for i := range r.Records {
		errs = append(errs, r.resolve(&r.Records[i]))
	}
	return errs
}

func (r *ErrorReply) resolve(rec *ErrorRecord) RPCError {
	d := r.dict
	if d == nil {
		d = NewDict()
	}
	lookup := func(hs []Handle) []string {
		if len(hs) == 0 {
			return nil
		}
		out := make([]string, len(hs))
		for i, h := range hs {
			out[i] = d.Lookup(h)
		}
		return out
	}

	var info bytes.Buffer
	for _, frag := range rec.Other {
		info.Write(frag.Raw)
	}

	return RPCError{
		Type:          ErrType(d.Lookup(rec.Type)),
		Tag:           ErrTag(d.Lookup(rec.Tag)),
		Severity:      ErrSeverity(d.Lookup(rec.Severity)),
		AppTag:        d.Lookup(rec.AppTag),
		Path:          d.Lookup(rec.Path),
		Message:       d.Lookup(rec.Message),
		MessageLang:   d.Lookup(rec.MessageLang),
		SessionID:     d.Lookup(rec.SessionID),
		BadAttributes: lookup(rec.BadAttributes),
		BadElements:   lookup(rec.BadElements),
		BadNamespaces: lookup(rec.BadNamespaces),
		Info:          info.Bytes(),
	}
}

// Err returns the errors of the reply matching one of severity (defaults to
// [SevError]) as an error.  It returns nil if none match.
func (r *ErrorReply) Err(severity ...ErrSeverity) error {
	errs := r.RPCErrors().Filter(severity...)
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errs
	}
}

func (r *ErrorReply) release() {
	if r == nil || r.done() {
		return
	}

	store := r.store()
	for i := range r.Records {
		releaseRecord(r.dict, store, &r.Records[i])
	}
	r.Records = nil
	if r.f != nil {
		r.f.metrics.dictSize(r.dict)
	}
	r.releasedReply(ReplyError)
}

func releaseRecord(d *Dict, store ContentStore, rec *ErrorRecord) {
	if d != nil {
		for _, h := range [...]Handle{rec.Type, rec.Tag, rec.Severity, rec.AppTag, rec.Path, rec.Message, rec.MessageLang, rec.SessionID} {
			d.Remove(h)
		}
		for _, list := range [...][]Handle{rec.BadAttributes, rec.BadElements, rec.BadNamespaces} {
			for _, h := range list {
				d.Remove(h)
			}
		}
	}
	for _, frag := range rec.Other {
		store.FreeFragment(frag)
	}
	*rec = ErrorRecord{}
}

// ParseReply decodes an `<rpc-reply>` message.  Error strings are interned in
// dict, falling back to a private Dict when dict is nil.  The returned reply is
// owned by the caller.
func (f *Factory) ParseReply(raw []byte, dict *Dict) (Reply, error) {
	if dict == nil {
		dict = NewDict()
	}

	d := xml.NewDecoder(bytes.NewReader(raw))
	root, err := nextStart(d)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rpc-reply message: %w", err)
	}
	if root.Name != RPCReplyName {
		return nil, fmt.Errorf("unexpected message root <%s>, expected rpc-reply", root.Name.Local)
	}

	var msgID uint64
	for _, attr := range root.Attr {
		if attr.Name.Local != "message-id" {
			continue
		}
		if msgID, err = strconv.ParseUint(strings.TrimSpace(attr.Value), 10, 64); err != nil {
			return nil, fmt.Errorf("invalid message-id %q: %w", attr.Value, err)
		}
	}

	p := replyParser{f: f, d: d, errs: f.NewErrorReply(msgID, dict)}
	if err := p.parse(); err != nil {
		p.discard()
		return nil, fmt.Errorf("failed to decode rpc-reply message: %w", err)
	}

	var reply Reply
	switch {
	case len(p.errs.Records) > 0:
		p.discardData()
		f.metrics.dictSize(dict)
		reply = p.errs
	case p.ok && p.data == nil:
		reply = &OKReply{header: f.header(), MessageID: msgID}
	default:
		reply = &DataReply{header: f.header(), MessageID: msgID, Data: p.data}
	}
	f.metrics.replyParsed(reply.Type())
	return reply, nil
}

var (
	rpcErrorName = xml.Name{Space: baseNetconfNs, Local: "rpc-error"}
	okName       = xml.Name{Space: baseNetconfNs, Local: "ok"}
)

// isDataName reports whether name is the `<data>` wrapper of a reply, either
// the base one or the one of `<get-schema>`.
func isDataName(name xml.Name) bool {
	return name.Local == "data" && (name.Space == baseNetconfNs || name.Space == monitoringNs)
}

type replyParser struct {
	f    *Factory
	d    *xml.Decoder
	errs *ErrorReply
	data *Node
	ok   bool
}

func (p *replyParser) parse() error {
	for {
		tok, err := p.d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name == rpcErrorName:
				var rec ErrorRecord
				err := p.parseError(&rec)
				p.errs.Records = append(p.errs.Records, rec)
				if err != nil {
					return err
				}
			case t.Name == okName:
				p.ok = true
				if err := p.d.Skip(); err != nil {
					return err
				}
			case isDataName(t.Name):
				holder := NewNode(t.Name.Space, t.Name.Local, "")
				holder.Attr = copyAttrs(t.Attr)
				first, err := decodeForest(p.d, holder)
				if err != nil {
					return err
				}
				if first == nil {
					// text only, as the schema of a <get-schema> reply
					if holder.Value != "" {
						p.appendData(holder)
					}
					continue
				}
				for n := first; n != nil; n = n.next {
					n.parent = nil
				}
				p.appendData(first)
			default:
				n := NewNode(t.Name.Space, t.Name.Local, "")
				n.Attr = copyAttrs(t.Attr)
				if _, err := decodeForest(p.d, n); err != nil {
					return err
				}
				p.appendData(n)
			}
		case xml.EndElement:
			return nil
		}
	}
}

func (p *replyParser) appendData(n *Node) {
	if n == nil {
		return
	}
	if p.data == nil {
		p.data = n
		return
	}
	for _, s := range n.Siblings() {
		p.data.InsertSibling(s)
	}
}

func (p *replyParser) parseError(rec *ErrorRecord) error {
	dict := p.errs.dict
	for {
		tok, err := p.d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			var field *Handle
			switch t.Name.Local {
			case "error-type":
				field = &rec.Type
			case "error-tag":
				field = &rec.Tag
			case "error-severity":
				field = &rec.Severity
			case "error-app-tag":
				field = &rec.AppTag
			case "error-path":
				field = &rec.Path
			case "error-message":
				field = &rec.Message
				for _, attr := range t.Attr {
					if attr.Name.Local == "lang" {
						dict.Remove(rec.MessageLang)
						rec.MessageLang = dict.Insert(attr.Value)
					}
				}
			case "error-info":
				if err := p.parseErrorInfo(rec); err != nil {
					return err
				}
				continue
			default:
				if err := p.d.Skip(); err != nil {
					return err
				}
				continue
			}

			s, err := elementText(p.d, t)
			if err != nil {
				return err
			}
			dict.Remove(*field)
			*field = dict.Insert(s)
		case xml.EndElement:
			return nil
		}
	}
}

func (p *replyParser) parseErrorInfo(rec *ErrorRecord) error {
	dict := p.errs.dict
	for {
		tok, err := p.d.Token()
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "bad-attribute", "bad-element", "bad-namespace", "session-id":
				s, err := elementText(p.d, t)
				if err != nil {
					return err
				}
				switch t.Name.Local {
				case "bad-attribute":
					rec.BadAttributes = append(rec.BadAttributes, dict.Insert(s))
				case "bad-element":
					rec.BadElements = append(rec.BadElements, dict.Insert(s))
				case "bad-namespace":
					rec.BadNamespaces = append(rec.BadNamespaces, dict.Insert(s))
				default:
					dict.Remove(rec.SessionID)
					rec.SessionID = dict.Insert(s)
				}
			default:
				raw, err := encodeElement(p.d, t)
				if err != nil {
					return err
				}
				rec.Other = append(rec.Other, &Fragment{Name: t.Name, Raw: raw})
			}
		case xml.EndElement:
			return nil
		}
	}
}

// discard releases whatever was decoded before a failure.
func (p *replyParser) discard() {
	for i := range p.errs.Records {
		releaseRecord(p.errs.dict, p.f.store, &p.errs.Records[i])
	}
	p.errs.Records = nil
	p.discardData()
}

func (p *replyParser) discardData() {
	freeForest(p.f.store, p.data)
	p.data = nil
}

// nextStart returns the first start element of d.
func nextStart(d *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return xml.StartElement{}, io.ErrUnexpectedEOF
		}
		if err != nil {
			return xml.StartElement{}, err
		}
		if t, ok := tok.(xml.StartElement); ok {
			return t, nil
		}
	}
}

// elementText returns the character data of start, read up to its end element.
func elementText(d *xml.Decoder, start xml.StartElement) (string, error) {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return "", err
	}
	return strings.TrimSpace(s), nil
}
