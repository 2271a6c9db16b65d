package netconf

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one element of a content tree.  Siblings form a list where the
// first sibling's previous link points to the last sibling, so a node which is
// alone has itself as previous sibling.
//
// Value is the character data of the element, joined and trimmed.  For mixed
// content the text is kept but not its position: it is encoded before the
// children.
type Node struct {
	Name  xml.Name
	Attr  []xml.Attr
	Value string

	parent *Node
	child  *Node
	next   *Node
	prev   *Node
}

// NewNode returns a standalone node.
func NewNode(space, local, value string) *Node {
	n := &Node{
		Name:  xml.Name{Space: space, Local: local},
		Value: value,
	}
	n.prev = n
	return n
}

func (n *Node) Parent() *Node     { return n.parent }
func (n *Node) FirstChild() *Node { return n.child }
func (n *Node) Next() *Node       { return n.next }

// Prev returns the previous sibling.  For the first sibling this is the last
// sibling of the list.
func (n *Node) Prev() *Node { return n.prev }

// IsSingleRoot reports whether n has no siblings.
func (n *Node) IsSingleRoot() bool {
	return n.next == nil && (n.prev == nil || n.prev == n)
}

// Children returns a snapshot of the children of n.
func (n *Node) Children() []*Node {
	if n.child == nil {
		return nil
	}
	return n.child.Siblings()
}

// Siblings returns a snapshot of n and the siblings following it.
func (n *Node) Siblings() []*Node {
	var out []*Node
	for cur := n; cur != nil; cur = cur.next {
		out = append(out, cur)
		if cur.next == cur {
			break
		}
	}
	return out
}

func (n *Node) first() *Node {
	f := n
	for f.prev != nil && f.prev != f && f.prev.next != nil {
		f = f.prev
	}
	return f
}

// Append adds c as the last child of n and returns c.  c is first unlinked
// from wherever it was.
func (n *Node) Append(c *Node) *Node {
	c.unlink()
	if n.child == nil {
		n.child = c
		c.parent = n
		return c
	}
	return n.child.InsertSibling(c)
}

// InsertSibling adds s at the end of the sibling list of n and returns s.
func (n *Node) InsertSibling(s *Node) *Node {
	s.unlink()
	first := n.first()
	last := first.prev
	if last == nil {
		last = first
	}
	last.next = s
	s.prev = last
	first.prev = s
	s.parent = n.parent
	return s
}

func (n *Node) unlink() {
	if n.prev == nil {
		n.prev = n
	}
	if n.prev == n && n.next == nil {
		if n.parent != nil && n.parent.child == n {
			n.parent.child = nil
		}
		n.parent = nil
		return
	}

	first := n.first()
	if first == n {
		n.next.prev = n.prev
		if n.parent != nil {
			n.parent.child = n.next
		}
	} else {
		n.prev.next = n.next
		if n.next != nil {
			n.next.prev = n.prev
		} else {
			first.prev = n.prev
		}
	}

	n.next = nil
	n.prev = n
	n.parent = nil
}

// Clone returns a deep copy of n and its children.  The copy has no parent
// and no siblings.
func (n *Node) Clone() *Node {
	c := NewNode(n.Name.Space, n.Name.Local, n.Value)
	if n.Attr != nil {
		c.Attr = append([]xml.Attr(nil), n.Attr...)
	}
	for child := n.child; child != nil; child = child.next {
		c.Append(child.Clone())
	}
	return c
}

// MarshalXML implements xml.Marshaler.  The start element is ignored, the
// node is always encoded with its own name.
func (n *Node) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := xml.StartElement{Name: n.Name, Attr: n.Attr}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if n.Value != "" {
		if err := e.EncodeToken(xml.CharData(n.Value)); err != nil {
			return err
		}
	}
	for child := n.child; child != nil; child = child.next {
		if err := e.Encode(child); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

func (n *Node) String() string {
	var sb strings.Builder
	if err := xml.NewEncoder(&sb).Encode(n); err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	return sb.String()
}

// ParseNodes decodes an XML document fragment into a forest and returns its first
// root.  A fragment without any element returns nil.
func ParseNodes(data []byte) (*Node, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	first, err := decodeForest(d, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content tree: %w", err)
	}
	return first, nil
}

// decodeForest reads sibling elements from d until the end element closing
// parent, or until EOF when parent is nil.
func decodeForest(d *xml.Decoder, parent *Node) (*Node, error) {
	var first *Node
	var value strings.Builder
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) && parent == nil {
			return first, nil
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := NewNode(t.Name.Space, t.Name.Local, "")
			n.Attr = copyAttrs(t.Attr)
			if _, err := decodeForest(d, n); err != nil {
				return nil, err
			}
			switch {
			case parent != nil:
				parent.Append(n)
			case first == nil:
				first = n
			default:
				first.InsertSibling(n)
			}
		case xml.CharData:
			if parent != nil {
				value.Write(t)
			}
		case xml.EndElement:
			if parent == nil {
				return nil, fmt.Errorf("unexpected end element %s", t.Name.Local)
			}
			parent.Value = strings.TrimSpace(value.String())
			return parent.child, nil
		}
	}
}

// encodeElement re-encodes start and every token up to its end element.  Each
// element is written with its resolved namespace, so the result stands on its
// own even when prefixes were declared on ancestors.
func encodeElement(d *xml.Decoder, start xml.StartElement) ([]byte, error) {
	var buf bytes.Buffer
	e := xml.NewEncoder(&buf)

	var tok xml.Token = start
	for depth := 0; ; {
		switch t := tok.(type) {
		case xml.StartElement:
			t.Attr = copyAttrs(t.Attr)
			tok = t
			depth++
		case xml.EndElement:
			depth--
		case xml.ProcInst, xml.Directive:
			tok = nil
		}
		if tok != nil {
			if err := e.EncodeToken(xml.CopyToken(tok)); err != nil {
				return nil, err
			}
		}
		if depth == 0 {
			break
		}

		var err error
		if tok, err = d.Token(); err != nil {
			return nil, err
		}
	}

	if err := e.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func copyAttrs(attrs []xml.Attr) []xml.Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]xml.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Fragment is an XML element kept undecoded.
type Fragment struct {
	Name xml.Name
	Raw  []byte
}

func (f *Fragment) String() string {
	if f == nil {
		return ""
	}
	return string(f.Raw)
}

// ContentStore duplicates and releases the content trees and XML fragments held
// by requests, replies and notifications.
type ContentStore interface {
	// DupTree returns a deep copy of n (without its siblings).  It returns an
	// error wrapping [ErrAllocation] if the copy cannot be made.
	DupTree(n *Node) (*Node, error)

	// FreeTree releases n and its children.  n is unlinked from its siblings.
	FreeTree(n *Node)

	// FreeFragment releases an XML fragment.
	FreeFragment(f *Fragment)
}

// TreeStore is the in-process [ContentStore].
type TreeStore struct{}

// NewTreeStore returns a new TreeStore.
func NewTreeStore() *TreeStore { return &TreeStore{} }

func (s *TreeStore) DupTree(n *Node) (*Node, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil tree", ErrAllocation)
	}
	return n.Clone(), nil
}

func (s *TreeStore) FreeTree(n *Node) {
	if n == nil {
		return
	}
	for c := n.child; c != nil; {
		next := c.next
		s.FreeTree(c)
		if next == c {
			break
		}
		c = next
	}
	n.unlink()
	n.Attr = nil
	n.Value = ""
}

func (s *TreeStore) FreeFragment(f *Fragment) {
	if f == nil {
		return
	}
	f.Raw = nil
}
