package netconf

import "sync"

// Handle refers to a string interned in a [Dict].  The zero Handle is the empty
// string and is never stored.
type Handle uint32

// Dict is a reference counted string pool.  Error replies store their strings
// as handles into the Dict of the session that decoded them, and give the
// handles back when they are released.
//
// A Dict is safe for concurrent use.
type Dict struct {
	mu      sync.Mutex
	entries []dictEntry
	index   map[string]Handle
	free    []Handle
}

type dictEntry struct {
	s    string
	refs int
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{index: make(map[string]Handle)}
}

// Insert interns s and returns its handle.  Inserting a string already present
// adds a reference to the existing entry.
func (d *Dict) Insert(s string) Handle {
	if s == "" {
		return 0
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if h, ok := d.index[s]; ok {
		d.entries[h-1].refs++
		return h
	}

	var h Handle
	if n := len(d.free); n > 0 {
		h = d.free[n-1]
		d.free = d.free[:n-1]
		d.entries[h-1] = dictEntry{s: s, refs: 1}
	} else {
		d.entries = append(d.entries, dictEntry{s: s, refs: 1})
		h = Handle(len(d.entries))
	}
	d.index[s] = h
	return h
}

// Lookup returns the string of h, or "" if h is not a live handle.
func (d *Dict) Lookup(h Handle) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e := d.entry(h); e != nil {
		return e.s
	}
	return ""
}

// Refs returns the number of references held on h.
func (d *Dict) Refs(h Handle) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e := d.entry(h); e != nil {
		return e.refs
	}
	return 0
}

// Remove drops one reference on h.  The entry is deleted once no reference is
// left.  Removing the zero handle does nothing.
func (d *Dict) Remove(h Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.entry(h)
	if e == nil {
		return
	}
	e.refs--
	if e.refs > 0 {
		return
	}
	delete(d.index, e.s)
	*e = dictEntry{}
	d.free = append(d.free, h)
}

// Len returns the number of distinct strings in the Dict.
func (d *Dict) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

func (d *Dict) entry(h Handle) *dictEntry {
	if h == 0 || int(h) > len(d.entries) {
		return nil
	}
	e := &d.entries[h-1]
	if e.refs == 0 {
		return nil
	}
	return e
}
