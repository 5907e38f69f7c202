package rbtree

import "github.com/pkg/errors"

// ImmutableTree is a read-only view of one published version. Views read
// only append-only history, so any number of them can be queried
// concurrently, with each other and with views of other versions, provided
// no mutation runs at the same time.
type ImmutableTree struct {
	root    *Node
	version int64
}

// GetImmutable returns a read-only view of version v for querying.
func (t *Tree) GetImmutable(v int64) (*ImmutableTree, error) {
	root, err := t.store.rootAt(v)
	if err != nil {
		return nil, errors.Wrap(err, "immutable view")
	}
	return &ImmutableTree{root: root, version: v}, nil
}

// Version returns the version this view reads.
func (it *ImmutableTree) Version() int64 {
	return it.version
}

// Has reports whether key is present in the view.
func (it *ImmutableTree) Has(key int64) bool {
	return findFrom(it.root, key, it.version) != nil
}

// Successor returns the smallest key strictly greater than key. ok is
// false when no key in the view is greater than key.
func (it *ImmutableTree) Successor(key int64) (succ int64, ok bool) {
	n := successorFrom(it.root, key, it.version)
	if n == nil {
		return 0, false
	}
	return n.key, true
}

// Inorder returns a lazy in-order iterator over the view.
func (it *ImmutableTree) Inorder() *Iterator {
	return newIterator(it.root, it.version)
}

// Iterate calls fn for each entry in ascending key order until fn returns
// true. Returns true if stopped by fn, false otherwise.
func (it *ImmutableTree) Iterate(fn func(Entry) bool) bool {
	for itr := it.Inorder(); itr.Valid(); itr.Next() {
		if fn(itr.Entry()) {
			return true
		}
	}
	return false
}

// Size returns the number of keys in the view.
func (it *ImmutableTree) Size() int64 {
	var size int64
	it.Iterate(func(Entry) bool {
		size++
		return false
	})
	return size
}

// Height returns the number of edges on the longest root-to-leaf path, or
// -1 for an empty view.
func (it *ImmutableTree) Height() int {
	height := -1
	it.Iterate(func(e Entry) bool {
		if e.Depth > height {
			height = e.Depth
		}
		return false
	})
	return height
}
