package rbtree

import "github.com/pkg/errors"

// Entry is one in-order element of a version: the key, its depth in edges
// from that version's root, and its color at that version.
type Entry struct {
	Key   int64
	Depth int
	Color Color
}

// Iterator streams the entries of one version in ascending key order
// without materializing the whole listing:
//
//	itr, err := tree.Inorder(v)
//	for ; itr.Valid(); itr.Next() {
//		e := itr.Entry()
//		...
//	}
//
// Iterating a published version touches only append-only history, so any
// number of iterators may run concurrently.
type Iterator struct {
	version int64
	stack   []iterFrame
	current Entry
	valid   bool
}

type iterFrame struct {
	node  *Node
	depth int
}

func newIterator(root *Node, version int64) *Iterator {
	itr := &Iterator{version: version}
	itr.pushLeft(root, 0)
	itr.Next()
	return itr
}

// pushLeft descends the left spine of n, stacking every node on the way.
func (itr *Iterator) pushLeft(n *Node, depth int) {
	for n != nil {
		itr.stack = append(itr.stack, iterFrame{node: n, depth: depth})
		n = n.leftAt(itr.version)
		depth++
	}
}

// Valid reports whether Entry currently holds an element.
func (itr *Iterator) Valid() bool {
	return itr.valid
}

// Next advances to the next element in key order.
func (itr *Iterator) Next() {
	if len(itr.stack) == 0 {
		itr.valid = false
		return
	}
	f := itr.stack[len(itr.stack)-1]
	itr.stack = itr.stack[:len(itr.stack)-1]
	itr.current = Entry{
		Key:   f.node.key,
		Depth: f.depth,
		Color: f.node.colorAt(itr.version),
	}
	itr.valid = true
	itr.pushLeft(f.node.rightAt(itr.version), f.depth+1)
}

// Entry returns the element the iterator points at. Only valid while
// Valid() is true.
func (itr *Iterator) Entry() Entry {
	return itr.current
}

// Version returns the version being traversed.
func (itr *Iterator) Version() int64 {
	return itr.version
}

// Inorder returns a lazy in-order iterator over version v.
func (t *Tree) Inorder(v int64) (*Iterator, error) {
	root, err := t.store.rootAt(v)
	if err != nil {
		return nil, errors.Wrap(err, "inorder")
	}
	return newIterator(root, v), nil
}

// Iterate calls fn for each entry of version v in ascending key order until
// fn returns true. Returns true if stopped by fn, false otherwise.
func (t *Tree) Iterate(v int64, fn func(Entry) bool) (bool, error) {
	itr, err := t.Inorder(v)
	if err != nil {
		return false, err
	}
	for ; itr.Valid(); itr.Next() {
		if fn(itr.Entry()) {
			return true, nil
		}
	}
	return false, nil
}

// InorderEntries returns version v's listing as a slice. Published versions
// are immutable, so listings are cached and shared between callers; the
// returned slice must not be modified.
func (t *Tree) InorderEntries(v int64) ([]Entry, error) {
	if entries, ok := t.store.cachedInorder(v); ok {
		return entries, nil
	}
	itr, err := t.Inorder(v)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, 8)
	for ; itr.Valid(); itr.Next() {
		entries = append(entries, itr.Entry())
	}
	t.store.cacheInorder(v, entries)
	return entries, nil
}
