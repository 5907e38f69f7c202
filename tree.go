package rbtree

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrVersionDoesNotExist is returned if a requested version does not exist.
var ErrVersionDoesNotExist = errors.New("version does not exist")

// ErrVersionOverflow is returned when a mutation would exceed the version
// budget. No partial mutation is published.
var ErrVersionOverflow = errors.New("version budget exhausted")

// Tree is a partially persistent ordered set of int64 keys. Every Insert or
// Delete publishes a new version; every published version stays queryable
// through Successor, Inorder and the immutable views. A query walks one
// root-to-leaf path of that version, so its cost grows with the version's
// height; insertion leaves a red-red pair in place under a red uncle, so the
// height is not bounded logarithmically for every insertion order (ascending
// inserts grow it by about one level per two keys).
// Only the latest version is mutable.
//
// The tree is not safe for concurrent mutation. Published versions are
// append-only history and may be read concurrently with each other; see
// GetImmutable.
type Tree struct {
	store       *nodeStore
	version     int64 // the latest published version
	maxVersions int64
	lg          *zap.Logger

	// workingRoot is the root of the mutation in flight, tracked so
	// rotations at the top of the tree can replace it. Meaningful only
	// between begin and publish.
	workingRoot *Node
}

// NewTree returns an empty tree holding only version 0.
func NewTree() *Tree {
	return NewTreeWithOpts(nil)
}

// NewTreeWithOpts returns an empty tree with the specified options. A nil
// opts selects the defaults.
func NewTreeWithOpts(opts *Options) *Tree {
	if opts == nil {
		opts = DefaultOptions()
	}
	maxVersions := opts.MaxVersions
	if maxVersions == 0 {
		maxVersions = MaxVersions
	}
	cacheSize := opts.CacheSize
	if cacheSize == 0 {
		cacheSize = defaultCacheSize
	}
	lg := opts.Logger
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Tree{
		store:       newNodeStore(lg, cacheSize),
		maxVersions: maxVersions,
		lg:          lg,
	}
}

// Version returns the latest published version.
func (t *Tree) Version() int64 {
	return t.version
}

// VersionCount returns the number of published versions, the empty version
// 0 included.
func (t *Tree) VersionCount() int64 {
	return t.version + 1
}

// VersionExists returns whether or not a version exists.
func (t *Tree) VersionExists(v int64) bool {
	return v >= 0 && v <= t.version
}

// AvailableVersions returns all published versions in ascending order.
func (t *Tree) AvailableVersions() []int {
	res := make([]int, 0, t.version+1)
	for v := int64(0); v <= t.version; v++ {
		res = append(res, int(v))
	}
	return res
}

// Size returns the number of keys live at the latest version.
func (t *Tree) Size() int64 {
	view, _ := t.GetImmutable(t.version)
	return view.Size()
}

// Insert adds key to the set and publishes a new version, returning it.
// Inserting a key already present still consumes a version; the new version
// shares the previous version's root.
func (t *Tree) Insert(key int64) (int64, error) {
	v, err := t.beginMutation()
	if err != nil {
		return 0, errors.Wrapf(err, "insert %d", key)
	}
	t.insertAt(key, v)
	return t.commit(v), nil
}

// Delete removes key from the set and publishes a new version, returning
// it. Deleting an absent key still consumes a version sharing the previous
// root.
func (t *Tree) Delete(key int64) (int64, error) {
	v, err := t.beginMutation()
	if err != nil {
		return 0, errors.Wrapf(err, "delete %d", key)
	}
	if z := findFrom(t.workingRoot, key, v); z != nil {
		t.deleteAt(z, v)
		if isRed(t.workingRoot, v) {
			t.store.setColor(t.workingRoot, Black, v)
		}
	}
	return t.commit(v), nil
}

// Successor returns the smallest key strictly greater than key at version
// v. ok is false when no such key exists. Never mutates state.
func (t *Tree) Successor(key, v int64) (succ int64, ok bool, err error) {
	root, err := t.store.rootAt(v)
	if err != nil {
		return 0, false, errors.Wrapf(err, "successor of %d", key)
	}
	n := successorFrom(root, key, v)
	if n == nil {
		return 0, false, nil
	}
	return n.key, true, nil
}

// Has reports whether key is present at version v.
func (t *Tree) Has(key, v int64) (bool, error) {
	root, err := t.store.rootAt(v)
	if err != nil {
		return false, errors.Wrapf(err, "has %d", key)
	}
	return findFrom(root, key, v) != nil, nil
}

// beginMutation allocates the next version and opens it in the store. The
// working root starts as the latest published root.
func (t *Tree) beginMutation() (int64, error) {
	v := t.version + 1
	if v >= t.maxVersions {
		return 0, errors.Wrapf(ErrVersionOverflow, "version %d exceeds budget of %d", v, t.maxVersions)
	}
	t.store.begin(v)
	t.workingRoot = t.store.roots[t.version]
	return v, nil
}

// commit publishes the working root as version v and advances the version
// counter.
func (t *Tree) commit(v int64) int64 {
	t.store.publish(t.workingRoot, v)
	t.version = v
	t.workingRoot = nil
	return v
}

// insertAt links key as a red leaf under version v and rebalances. Reports
// whether the tree changed.
func (t *Tree) insertAt(key, v int64) bool {
	var parent *Node
	cur := t.workingRoot
	for cur != nil {
		switch {
		case key < cur.key:
			parent, cur = cur, cur.leftAt(v)
		case key > cur.key:
			parent, cur = cur, cur.rightAt(v)
		default:
			// already present
			return false
		}
	}

	n := t.store.newNode(key, v)
	t.store.setParent(n, parent, v)
	switch {
	case parent == nil:
		t.workingRoot = n
	case key < parent.key:
		t.store.setLeft(parent, n, v)
	default:
		t.store.setRight(parent, n, v)
	}

	t.insertFixup(n, v)
	return true
}

// insertFixup walks up from the freshly linked red node resolving red-red
// configurations with the four rotation cases, picked by the sides of the
// parent relative to the grandparent and of the node relative to the
// parent. Rotations apply only against a black uncle; a red uncle leaves
// the subtree in place. Each applied case leaves a black subtree root with
// red children. The overall root is recolored black last.
func (t *Tree) insertFixup(z *Node, v int64) {
	for {
		p := z.parentAt(v)
		if p == nil || isBlack(p, v) {
			break
		}
		g := p.parentAt(v)
		if g == nil {
			break
		}

		pLeft := p == g.leftAt(v)
		var uncle *Node
		if pLeft {
			uncle = g.rightAt(v)
		} else {
			uncle = g.leftAt(v)
		}
		if isRed(uncle, v) {
			break
		}

		if pLeft {
			if z == p.rightAt(v) {
				z = p
				t.rotateLeft(z, v)
				p = z.parentAt(v)
			}
			t.store.setColor(p, Black, v)
			t.store.setColor(g, Red, v)
			t.rotateRight(g, v)
		} else {
			if z == p.leftAt(v) {
				z = p
				t.rotateRight(z, v)
				p = z.parentAt(v)
			}
			t.store.setColor(p, Black, v)
			t.store.setColor(g, Red, v)
			t.rotateLeft(g, v)
		}
	}
	t.store.setColor(t.workingRoot, Black, v)
}

// deleteAt unlinks z under version v and restores black balance when a
// black node left the tree. A node with two children is structurally
// replaced by a fresh node carrying its in-order successor's key, keeping
// node keys immutable for every version that references them.
func (t *Tree) deleteAt(z *Node, v int64) {
	left, right := z.leftAt(v), z.rightAt(v)

	if left == nil || right == nil {
		// leaf or single child: splice z out
		child := left
		if child == nil {
			child = right
		}
		p := z.parentAt(v)
		zColor := z.colorAt(v)
		t.transplant(z, child, p, v)
		t.store.kill(z, v)
		if zColor == Black {
			t.deleteFixup(child, p, v)
		}
		return
	}

	// Two children: the in-order successor s (leftmost of the right
	// subtree, no left child) is spliced out of its position and a fresh
	// node carrying its key takes z's place with z's color.
	s := right
	for l := s.leftAt(v); l != nil; l = s.leftAt(v) {
		s = l
	}
	sColor := s.colorAt(v)
	x := s.rightAt(v)
	sp := s.parentAt(v)

	r := t.store.newNode(s.key, v)
	t.store.setColor(r, z.colorAt(v), v)
	t.store.setLeft(r, left, v)
	t.store.setParent(left, r, v)

	var fixParent *Node
	if sp == z {
		// s is z's immediate right child: its right subtree hangs off the
		// replacement directly
		t.store.setRight(r, x, v)
		t.store.setParent(x, r, v)
		fixParent = r
	} else {
		t.store.setLeft(sp, x, v)
		t.store.setParent(x, sp, v)
		t.store.setRight(r, right, v)
		t.store.setParent(right, r, v)
		fixParent = sp
	}

	t.transplant(z, r, z.parentAt(v), v)
	t.store.kill(z, v)
	t.store.kill(s, v)

	if sColor == Black {
		t.deleteFixup(x, fixParent, v)
	}
}

// transplant puts n (possibly nil) where old stood under p.
func (t *Tree) transplant(old, n, p *Node, v int64) {
	t.store.setParent(n, p, v)
	switch {
	case p == nil:
		t.workingRoot = n
	case old == p.leftAt(v):
		t.store.setLeft(p, n, v)
	default:
		t.store.setRight(p, n, v)
	}
}

// deleteFixup restores equal black weight after a black node left the
// tree. x carries the extra black and may be nil; parent anchors the
// deficit in that case. The standard sibling cases apply: red sibling
// (rotate toward x, recolor), black sibling with black children (recolor
// sibling red, move the deficit up), black sibling with a red child
// (rotate and recolor, done). A missing sibling moves the deficit up.
func (t *Tree) deleteFixup(x, parent *Node, v int64) {
	for x != t.workingRoot && isBlack(x, v) {
		if parent == nil {
			break
		}
		if x == parent.leftAt(v) {
			w := parent.rightAt(v)
			if w != nil && isRed(w, v) {
				t.store.setColor(w, Black, v)
				t.store.setColor(parent, Red, v)
				t.rotateLeft(parent, v)
				w = parent.rightAt(v)
			}
			if w == nil {
				x, parent = parent, parent.parentAt(v)
				continue
			}
			if isBlack(w.leftAt(v), v) && isBlack(w.rightAt(v), v) {
				t.store.setColor(w, Red, v)
				x, parent = parent, parent.parentAt(v)
			} else {
				if isBlack(w.rightAt(v), v) {
					t.store.setColor(w.leftAt(v), Black, v)
					t.store.setColor(w, Red, v)
					t.rotateRight(w, v)
					w = parent.rightAt(v)
				}
				t.store.setColor(w, parent.colorAt(v), v)
				t.store.setColor(parent, Black, v)
				t.store.setColor(w.rightAt(v), Black, v)
				t.rotateLeft(parent, v)
				x, parent = t.workingRoot, nil
			}
		} else {
			w := parent.leftAt(v)
			if w != nil && isRed(w, v) {
				t.store.setColor(w, Black, v)
				t.store.setColor(parent, Red, v)
				t.rotateRight(parent, v)
				w = parent.leftAt(v)
			}
			if w == nil {
				x, parent = parent, parent.parentAt(v)
				continue
			}
			if isBlack(w.rightAt(v), v) && isBlack(w.leftAt(v), v) {
				t.store.setColor(w, Red, v)
				x, parent = parent, parent.parentAt(v)
			} else {
				if isBlack(w.leftAt(v), v) {
					t.store.setColor(w.rightAt(v), Black, v)
					t.store.setColor(w, Red, v)
					t.rotateLeft(w, v)
					w = parent.leftAt(v)
				}
				t.store.setColor(w, parent.colorAt(v), v)
				t.store.setColor(parent, Black, v)
				t.store.setColor(w.leftAt(v), Black, v)
				t.rotateRight(parent, v)
				x, parent = t.workingRoot, nil
			}
		}
	}
	t.store.setColor(x, Black, v)
}

// rotateLeft rotates the subtree rooted at x to the left under version v:
// x's right child y takes x's place, x becomes y's left child and y's old
// left subtree becomes x's right subtree. Every touched field records
// exactly one write at v; untouched nodes keep their identity across
// versions.
func (t *Tree) rotateLeft(x *Node, v int64) {
	y := x.rightAt(v)
	if y == nil {
		t.lg.Panic("left rotation without a right child",
			zap.Int64("key", x.key),
			zap.Int64("version", v),
		)
	}
	b := y.leftAt(v)
	t.store.setRight(x, b, v)
	t.store.setParent(b, x, v)

	p := x.parentAt(v)
	t.store.setParent(y, p, v)
	switch {
	case p == nil:
		t.workingRoot = y
	case x == p.leftAt(v):
		t.store.setLeft(p, y, v)
	default:
		t.store.setRight(p, y, v)
	}

	t.store.setLeft(y, x, v)
	t.store.setParent(x, y, v)
}

// rotateRight is the mirror of rotateLeft.
func (t *Tree) rotateRight(x *Node, v int64) {
	y := x.leftAt(v)
	if y == nil {
		t.lg.Panic("right rotation without a left child",
			zap.Int64("key", x.key),
			zap.Int64("version", v),
		)
	}
	b := y.rightAt(v)
	t.store.setLeft(x, b, v)
	t.store.setParent(b, x, v)

	p := x.parentAt(v)
	t.store.setParent(y, p, v)
	switch {
	case p == nil:
		t.workingRoot = y
	case x == p.leftAt(v):
		t.store.setLeft(p, y, v)
	default:
		t.store.setRight(p, y, v)
	}

	t.store.setRight(y, x, v)
	t.store.setParent(x, y, v)
}
