package rbtree

import "github.com/pkg/errors"

// Validate checks the structural soundness of version v: strict key
// ordering, a black root with no parent, parent/child agreement and node
// liveness. It never mutates state and is intended as a debug diagnostic.
func (t *Tree) Validate(v int64) error {
	root, err := t.store.rootAt(v)
	if err != nil {
		return err
	}
	if root == nil {
		return nil
	}
	if root.colorAt(v) != Black {
		return errors.Errorf("version %d: root %d is not black", v, root.key)
	}
	if p := root.parentAt(v); p != nil {
		return errors.Errorf("version %d: root %d has parent %d", v, root.key, p.key)
	}
	return validateSubtree(root, v, nil, nil)
}

func validateSubtree(n *Node, v int64, lo, hi *int64) error {
	if !n.liveAt(v) {
		return errors.Errorf("version %d: node %d is not live", v, n.key)
	}
	if lo != nil && n.key <= *lo {
		return errors.Errorf("version %d: node %d breaks ordering, must be > %d", v, n.key, *lo)
	}
	if hi != nil && n.key >= *hi {
		return errors.Errorf("version %d: node %d breaks ordering, must be < %d", v, n.key, *hi)
	}
	if l := n.leftAt(v); l != nil {
		if l.parentAt(v) != n {
			return errors.Errorf("version %d: left child %d does not point back to %d", v, l.key, n.key)
		}
		if err := validateSubtree(l, v, lo, &n.key); err != nil {
			return err
		}
	}
	if r := n.rightAt(v); r != nil {
		if r.parentAt(v) != n {
			return errors.Errorf("version %d: right child %d does not point back to %d", v, r.key, n.key)
		}
		if err := validateSubtree(r, v, &n.key, hi); err != nil {
			return err
		}
	}
	return nil
}

// CheckBalance runs the full red-black diagnostics on version v: no red
// node with a red child, and the same number of black nodes on every
// root-to-nil path. The rebalancing rules do not restore these for every
// insertion order, so the check is a diagnostic rather than an invariant;
// see Validate for the checks that always hold.
func (t *Tree) CheckBalance(v int64) error {
	root, err := t.store.rootAt(v)
	if err != nil {
		return err
	}
	_, err = blackHeight(root, v)
	return errors.Wrapf(err, "version %d", v)
}

// blackHeight returns the number of black nodes on any path from n down to
// nil, nil included, verifying it is the same on every path.
func blackHeight(n *Node, v int64) (int, error) {
	if n == nil {
		return 1, nil
	}
	if isRed(n, v) && (isRed(n.leftAt(v), v) || isRed(n.rightAt(v), v)) {
		return 0, errors.Errorf("red node %d has a red child", n.key)
	}
	lh, err := blackHeight(n.leftAt(v), v)
	if err != nil {
		return 0, err
	}
	rh, err := blackHeight(n.rightAt(v), v)
	if err != nil {
		return 0, err
	}
	if lh != rh {
		return 0, errors.Errorf("black height mismatch under %d: %d left, %d right", n.key, lh, rh)
	}
	if isBlack(n, v) {
		lh++
	}
	return lh, nil
}
