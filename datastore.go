package netconf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
)

type EmptyElement bool

func (e EmptyElement) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	if !e {
		return nil
	}
	// This produces an empty start/end tag (i.e <tag></tag>) vs a self-closing
	// tag (<tag/>) which should be the same in XML.
	//
	// See https://github.com/golang/go/issues/21399
	// or https://github.com/golang/go/issues/26756 for a different hack.
	return enc.EncodeElement(struct{}{}, start)
}

func (e *EmptyElement) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	v := &struct{}{}
	if err := dec.DecodeElement(v, &start); err != nil {
		return err
	}
	*e = v != nil
	return nil
}

type Datastore struct {
	Store  string
	Region string
}

func (s Datastore) String() string {
	if s.Region != "" {
		return fmt.Sprintf("%s (%s)", s.Store, s.Region)
	}
	return s.Store
}

func (s Datastore) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if s.Store == "" {
		return fmt.Errorf("datastores cannot be empty")
	}

	escaped, err := escapeXML(s.Store)
	if err != nil {
		return fmt.Errorf("invalid string element: %w", err)
	}

	inner := "<" + escaped + "/>"
	if s.Region != "" {
		inner = fmt.Sprintf("<configuration-region>%s</configuration-region>%s", s.Region, inner)
	}
	v := struct {
		Elem string `xml:",innerxml"`
	}{Elem: inner}
	return e.EncodeElement(&v, start)
}

func escapeXML(input string) (string, error) {
	buf := &strings.Builder{}
	if err := xml.EscapeText(buf, []byte(input)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

type URL string

func (u URL) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	v := struct {
		URL string `xml:"url"`
	}{string(u)}
	return e.EncodeElement(&v, start)
}

var (
	// Running configuration datastore. Required by RFC6241.
	Running = Datastore{Store: "running"}

	// Candidate configuration datastore.  Supported with the
	// `:candidate` capability defined in RFC6241 section 8.3.
	Candidate = Datastore{Store: "candidate"}

	// Startup configuration datastore.  Supported with the
	// `:startup` capability defined in RFC6241 section 8.7.
	Startup = Datastore{Store: "startup"}
)

// MergeStrategy defines the strategies for merging configuration in a
// `<edit-config> operation`.
//
// *Note*: in RFC6241 7.2 this is called the `operation` attribute and
// `default-operation` parameter.  Since the `operation` term is already
// overloaded this was changed to `MergeStrategy` for a cleaner API.
type MergeStrategy string

const (
	// MergeConfig configuration elements are merged together at the level at
	// which this specified.  Can be used for config elements as well as default
	// defined with [WithDefaultMergeStrategy] option.
	MergeConfig MergeStrategy = "merge"

	// ReplaceConfig defines that the incoming config change should replace the
	// existing config at the level which it is specified.
	ReplaceConfig MergeStrategy = "replace"

	// NoMergeStrategy is only used as a default strategy defined in
	// [WithDefaultMergeStrategy].  Elements must specific one of the other
	// strategies with the `operation` Attribute on elements in the `<config>`
	// subtree.  Elements without the `operation` attribute are ignored.
	NoMergeStrategy MergeStrategy = "none"

	// CreateConfig allows a subtree element to be created only if it doesn't
	// already exist.  Only valid as the `operation` attribute of an element.
	CreateConfig MergeStrategy = "create"

	// DeleteConfig will completely delete subtree from the config only if it
	// already exists.  Only valid as the `operation` attribute of an element.
	DeleteConfig MergeStrategy = "delete"

	// RemoveConfig will remove subtree from the config, silently skipping it
	// when missing.  Only valid as the `operation` attribute of an element.
	RemoveConfig MergeStrategy = "remove"
)

// TestStrategy defines the behavior for testing configuration before applying it in a `<edit-config>` operation.
//
// *Note*: in RFC6241 7.2 this is called the `test-option` parameter.
type TestStrategy string

const (
	// TestThenSet will validate the configuration and only if is valid then
	// apply the configuration to the datastore.
	TestThenSet TestStrategy = "test-then-set"

	// SetOnly will not do any testing before applying it.
	SetOnly TestStrategy = "set"

	// TestOnly will validate the incoming configuration and return the
	// results without modifying the underlying store.
	TestOnly TestStrategy = "test-only"
)

// ErrorStrategy defines the behavior when an error is encountered during a `<edit-config>` operation.
//
// *Note*: in RFC6241 7.2 this is called the `error-option` parameter.
type ErrorStrategy string

const (
	// StopOnError will abort the `<edit-config>` operation on the first error.
	StopOnError ErrorStrategy = "stop-on-error"

	// ContinueOnError will continue to parse the configuration data even if an
	// error is encountered.  Errors are still recorded and reported in the
	// reply.
	ContinueOnError ErrorStrategy = "continue-on-error"

	// RollbackOnError will restore the configuration back to before the
	// `<edit-config>` operation took place.  This requires the device to
	// support the `:rollback-on-error` capability.
	RollbackOnError ErrorStrategy = "rollback-on-error"
)

const (
	configPrefix = "<config"
	configSuffix = "</config>"
)

// wrapConfig puts v inside a `<config>` element unless it already is one.
func wrapConfig(v []byte) []byte {
	if rest, ok := bytes.CutPrefix(v, []byte(configPrefix)); ok && len(rest) > 0 {
		switch rest[0] {
		case '>', '/', ' ', '\t', '\n', '\r':
			return v
		}
	}
	return []byte(fmt.Sprintf("%s\n%s\n%s", configPrefix+">", v, configSuffix))
}

// configSource encodes a `<source>` (or `<target>`) which is a datastore
// unless an inline config or a URL is given.
type configSource struct {
	ds     Datastore
	inline []byte
}

func (s configSource) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	switch {
	case len(s.inline) == 0:
		return s.ds.MarshalXML(e, start)
	case s.inline[0] == '<':
		v := struct {
			Inner []byte `xml:",innerxml"`
		}{wrapConfig(s.inline)}
		return e.EncodeElement(&v, start)
	default:
		return URL(s.inline).MarshalXML(e, start)
	}
}

// urlTarget encodes a `<target>` which is a datastore unless a URL is given.
type urlTarget struct {
	ds  Datastore
	url []byte
}

func (t urlTarget) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if len(t.url) == 0 {
		return t.ds.MarshalXML(e, start)
	}
	return URL(t.url).MarshalXML(e, start)
}

// filterElem encodes a `<filter>`: a subtree filter when it starts with `<`,
// an XPath filter otherwise.
type filterElem []byte

func (f filterElem) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if len(f) == 0 {
		return nil
	}
	if f[0] == '<' {
		v := struct {
			Type  string `xml:"type,attr"`
			Inner []byte `xml:",innerxml"`
		}{Type: "subtree", Inner: f}
		return e.EncodeElement(&v, start)
	}
	v := struct {
		Type   string `xml:"type,attr"`
		Select string `xml:"select,attr"`
	}{Type: "xpath", Select: string(f)}
	return e.EncodeElement(&v, start)
}
