package rbtree

import (
	"encoding/binary"

	"github.com/pkg/errors"
	dbm "github.com/tendermint/tm-db"
)

// Snapshot key space: one record per live node keyed by preorder position,
// plus a root record naming the root position and the node count.
var (
	snapshotNodePrefix = []byte("n/")
	snapshotRootKey    = []byte("r")
)

// snapshotNode is the decoded form of one node record: the key, the color
// at the snapshotted version and the preorder positions of the children
// (-1 for none).
type snapshotNode struct {
	key   int64
	color Color
	left  int64
	right int64
}

func snapshotNodeKey(pos int64) []byte {
	buf := make([]byte, len(snapshotNodePrefix), len(snapshotNodePrefix)+binary.MaxVarintLen64)
	copy(buf, snapshotNodePrefix)
	return binary.AppendVarint(buf, pos)
}

func encodeSnapshotNode(sn snapshotNode) []byte {
	buf := make([]byte, 0, 4*binary.MaxVarintLen64+1)
	buf = binary.AppendVarint(buf, sn.key)
	buf = append(buf, byte(sn.color))
	buf = binary.AppendVarint(buf, sn.left)
	buf = binary.AppendVarint(buf, sn.right)
	return buf
}

func decodeSnapshotNode(raw []byte) (snapshotNode, error) {
	var sn snapshotNode
	key, n := binary.Varint(raw)
	if n <= 0 {
		return sn, errors.New("malformed node record: key")
	}
	raw = raw[n:]
	if len(raw) == 0 {
		return sn, errors.New("malformed node record: color")
	}
	color := Color(raw[0])
	if color != Red && color != Black {
		return sn, errors.Errorf("malformed node record: color %d", raw[0])
	}
	raw = raw[1:]
	left, n := binary.Varint(raw)
	if n <= 0 {
		return sn, errors.New("malformed node record: left")
	}
	raw = raw[n:]
	right, n := binary.Varint(raw)
	if n <= 0 {
		return sn, errors.New("malformed node record: right")
	}
	return snapshotNode{key: key, color: color, left: left, right: right}, nil
}

func encodeSnapshotRoot(rootPos, count int64) []byte {
	buf := make([]byte, 0, 2*binary.MaxVarintLen64)
	buf = binary.AppendVarint(buf, rootPos)
	buf = binary.AppendVarint(buf, count)
	return buf
}

func decodeSnapshotRoot(raw []byte) (rootPos, count int64, err error) {
	rootPos, n := binary.Varint(raw)
	if n <= 0 {
		return 0, 0, errors.New("malformed root record")
	}
	count, n = binary.Varint(raw[n:])
	if n <= 0 {
		return 0, 0, errors.New("malformed root record")
	}
	return rootPos, count, nil
}

// SaveSnapshot writes the live structure of version v into db, one record
// per node plus a root record, committed as a single batch. Colors are
// preserved verbatim. Any dbm.DB works; an in-memory MemDB keeps the whole
// structure off disk.
func (t *Tree) SaveSnapshot(db dbm.DB, v int64) error {
	root, err := t.store.rootAt(v)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}

	batch := db.NewBatch()
	defer batch.Close()

	var count int64
	var walk func(n *Node) (int64, error)
	walk = func(n *Node) (int64, error) {
		if n == nil {
			return -1, nil
		}
		pos := count
		count++
		leftPos, err := walk(n.leftAt(v))
		if err != nil {
			return 0, err
		}
		rightPos, err := walk(n.rightAt(v))
		if err != nil {
			return 0, err
		}
		record := snapshotNode{
			key:   n.key,
			color: n.colorAt(v),
			left:  leftPos,
			right: rightPos,
		}
		if err := batch.Set(snapshotNodeKey(pos), encodeSnapshotNode(record)); err != nil {
			return 0, err
		}
		return pos, nil
	}

	rootPos, err := walk(root)
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	if err := batch.Set(snapshotRootKey, encodeSnapshotRoot(rootPos, count)); err != nil {
		return errors.Wrap(err, "snapshot")
	}
	return errors.Wrap(batch.Write(), "snapshot")
}

// LoadSnapshot rebuilds a tree from a snapshot previously written by
// SaveSnapshot. The loaded structure is published as version 1 of a fresh
// tree configured by opts (nil selects the defaults).
func LoadSnapshot(db dbm.DB, opts *Options) (*Tree, error) {
	raw, err := db.Get(snapshotRootKey)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}
	if raw == nil {
		return nil, errors.New("load snapshot: missing root record")
	}
	rootPos, count, err := decodeSnapshotRoot(raw)
	if err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}

	records := make([]*snapshotNode, count)
	for pos := int64(0); pos < count; pos++ {
		rawNode, err := db.Get(snapshotNodeKey(pos))
		if err != nil {
			return nil, errors.Wrap(err, "load snapshot")
		}
		if rawNode == nil {
			return nil, errors.Errorf("load snapshot: missing node record %d", pos)
		}
		record, err := decodeSnapshotNode(rawNode)
		if err != nil {
			return nil, errors.Wrapf(err, "load snapshot: node record %d", pos)
		}
		records[pos] = &record
	}

	tree := NewTreeWithOpts(opts)
	v := int64(1)
	tree.store.begin(v)

	var build func(pos int64, parent *Node) (*Node, error)
	build = func(pos int64, parent *Node) (*Node, error) {
		if pos < 0 {
			return nil, nil
		}
		if pos >= count {
			return nil, errors.Errorf("load snapshot: node position %d out of range", pos)
		}
		record := records[pos]
		n := tree.store.newNode(record.key, v)
		tree.store.setColor(n, record.color, v)
		tree.store.setParent(n, parent, v)
		left, err := build(record.left, n)
		if err != nil {
			return nil, err
		}
		if left != nil {
			tree.store.setLeft(n, left, v)
		}
		right, err := build(record.right, n)
		if err != nil {
			return nil, err
		}
		if right != nil {
			tree.store.setRight(n, right, v)
		}
		return n, nil
	}

	root, err := build(rootPos, nil)
	if err != nil {
		return nil, err
	}
	tree.workingRoot = root
	tree.commit(v)

	if err := tree.Validate(v); err != nil {
		return nil, errors.Wrap(err, "load snapshot")
	}
	return tree, nil
}
