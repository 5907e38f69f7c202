package rbtree

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// nodeStore owns every node a tree ever created and the table mapping each
// published version to its root. Nodes are never freed: any root in the
// table may still reach them. All field writes funnel through the store so
// the single in-flight mutation version is enforced in one place; writing
// under any other version is a protocol violation and panics.
type nodeStore struct {
	lg    *zap.Logger
	nodes []*Node
	roots []*Node // roots[v] is the root of version v; index 0 is the empty tree

	// writing is the version of the mutation currently open, or 0 when no
	// mutation is in flight.
	writing int64

	// inorderCache maps a published version to its materialized in-order
	// listing. Published versions are immutable, so entries never go stale.
	inorderCache *lru.Cache
}

func newNodeStore(lg *zap.Logger, cacheSize int) *nodeStore {
	ns := &nodeStore{
		lg:    lg,
		roots: []*Node{nil},
	}
	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			lg.Panic("traversal cache", zap.Int("size", cacheSize), zap.Error(err))
		}
		ns.inorderCache = cache
	}
	return ns
}

func (ns *nodeStore) latestVersion() int64 {
	return int64(len(ns.roots)) - 1
}

func (ns *nodeStore) rootAt(v int64) (*Node, error) {
	if v < 0 || v > ns.latestVersion() {
		return nil, errors.Wrapf(ErrVersionDoesNotExist, "version %d, latest is %d", v, ns.latestVersion())
	}
	return ns.roots[v], nil
}

// begin opens mutation version v. Versions are allocated monotonically:
// only latest+1 may ever be opened.
func (ns *nodeStore) begin(v int64) {
	if ns.writing != 0 {
		ns.lg.Panic("mutation already open",
			zap.Int64("version", v),
			zap.Int64("writing", ns.writing),
		)
	}
	if v != ns.latestVersion()+1 {
		ns.lg.Panic("mutation does not follow the latest version",
			zap.Int64("version", v),
			zap.Int64("latest", ns.latestVersion()),
		)
	}
	ns.writing = v
}

// publish closes mutation v and records root in the root table.
func (ns *nodeStore) publish(root *Node, v int64) {
	ns.assertWriting(v)
	ns.roots = append(ns.roots, root)
	ns.writing = 0
}

func (ns *nodeStore) assertWriting(v int64) {
	if v != ns.writing {
		ns.lg.Panic("field write outside the open mutation",
			zap.Int64("version", v),
			zap.Int64("writing", ns.writing),
		)
	}
}

// newNode allocates a node for key, born red at version v.
func (ns *nodeStore) newNode(key, v int64) *Node {
	ns.assertWriting(v)
	n := &Node{key: key, birth: v}
	n.color.write(v, Red)
	ns.nodes = append(ns.nodes, n)
	return n
}

func (ns *nodeStore) setColor(n *Node, c Color, v int64) {
	if n == nil {
		return
	}
	ns.assertWriting(v)
	if !n.color.write(v, c) {
		ns.lg.Panic("color write to a past version", zap.Int64("key", n.key), zap.Int64("version", v))
	}
}

func (ns *nodeStore) setLeft(n, child *Node, v int64) {
	ns.assertWriting(v)
	if !n.left.write(v, child) {
		ns.lg.Panic("left write to a past version", zap.Int64("key", n.key), zap.Int64("version", v))
	}
}

func (ns *nodeStore) setRight(n, child *Node, v int64) {
	ns.assertWriting(v)
	if !n.right.write(v, child) {
		ns.lg.Panic("right write to a past version", zap.Int64("key", n.key), zap.Int64("version", v))
	}
}

func (ns *nodeStore) setParent(n, parent *Node, v int64) {
	if n == nil {
		return
	}
	ns.assertWriting(v)
	if !n.parent.write(v, parent) {
		ns.lg.Panic("parent write to a past version", zap.Int64("key", n.key), zap.Int64("version", v))
	}
}

// kill marks n as absent from version v on. Death versions are final.
func (ns *nodeStore) kill(n *Node, v int64) {
	ns.assertWriting(v)
	if n.death != 0 {
		ns.lg.Panic("node killed twice",
			zap.Int64("key", n.key),
			zap.Int64("death", n.death),
			zap.Int64("version", v),
		)
	}
	n.death = v
}

func (ns *nodeStore) cachedInorder(v int64) ([]Entry, bool) {
	if ns.inorderCache == nil {
		return nil, false
	}
	cached, ok := ns.inorderCache.Get(v)
	if !ok {
		return nil, false
	}
	return cached.([]Entry), true
}

func (ns *nodeStore) cacheInorder(v int64, entries []Entry) {
	if ns.inorderCache != nil {
		ns.inorderCache.Add(v, entries)
	}
}
