package netconf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

// Notification is a decoded `<notification>` as defined in [RFC5277 4].  Tree
// is the event content and Fragment the message it was decoded from.
//
// [RFC5277 4]: https://www.rfc-editor.org/rfc/rfc5277.html#section-4
type Notification struct {
	header
	EventTime time.Time
	Tree      *Node
	Fragment  *Fragment
}

func (n *Notification) String() string {
	return n.Fragment.String()
}

// Decode unmarshals the event content into v.
func (n *Notification) Decode(v any) error {
	if n.Tree == nil {
		return fmt.Errorf("notification has no event content")
	}
	return xml.Unmarshal([]byte(n.Tree.String()), v)
}

// FreeNotification releases the event tree and the fragment of n.  A nil n is
// ignored.
func FreeNotification(n *Notification) {
	if n == nil || n.done() {
		return
	}

	store := n.store()
	store.FreeTree(n.Tree)
	store.FreeFragment(n.Fragment)
	n.Tree, n.Fragment = nil, nil
	if n.f != nil {
		n.f.metrics.notificationReleased()
	}
}

// ParseNotification decodes a `<notification>` message.  The returned
// notification is owned by the caller.
func (f *Factory) ParseNotification(raw []byte) (*Notification, error) {
	d := xml.NewDecoder(bytes.NewReader(raw))
	root, err := nextStart(d)
	if err != nil {
		return nil, fmt.Errorf("failed to decode notification message: %w", err)
	}
	if root.Name != NotificationName {
		return nil, fmt.Errorf("unexpected message root <%s>, expected notification", root.Name.Local)
	}

	n := &Notification{header: f.header()}
	var sawTime bool
loop:
	for {
		tok, err := d.Token()
		if err != nil {
			f.store.FreeTree(n.Tree)
			return nil, fmt.Errorf("failed to decode notification message: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch {
			case t.Name.Local == "eventTime":
				s, err := elementText(d, t)
				if err == nil {
					n.EventTime, err = time.Parse(time.RFC3339, s)
				}
				if err != nil {
					f.store.FreeTree(n.Tree)
					return nil, fmt.Errorf("invalid notification eventTime: %w", err)
				}
				sawTime = true
			case n.Tree == nil:
				tree := NewNode(t.Name.Space, t.Name.Local, "")
				tree.Attr = copyAttrs(t.Attr)
				if _, err := decodeForest(d, tree); err != nil {
					return nil, fmt.Errorf("failed to decode notification content: %w", err)
				}
				n.Tree = tree
			default:
				if err := d.Skip(); err != nil {
					f.store.FreeTree(n.Tree)
					return nil, fmt.Errorf("failed to decode notification message: %w", err)
				}
			}
		case xml.EndElement:
			break loop
		}
	}

	if !sawTime {
		f.store.FreeTree(n.Tree)
		return nil, fmt.Errorf("notification is missing eventTime")
	}

	n.Fragment = &Fragment{Name: root.Name, Raw: bytes.Clone(raw)}
	f.metrics.notificationParsed()
	return n, nil
}
