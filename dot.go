package rbtree

import (
	"io"
	"strconv"

	"github.com/emicklei/dot"
	"github.com/pkg/errors"
)

// WriteDotGraph renders version v as a Graphviz digraph, one node per live
// key filled with its red-black color.
func (t *Tree) WriteDotGraph(w io.Writer, v int64) error {
	root, err := t.store.rootAt(v)
	if err != nil {
		return errors.Wrap(err, "dot graph")
	}

	g := dot.NewGraph(dot.Directed)
	var draw func(n *Node) dot.Node
	draw = func(n *Node) dot.Node {
		gn := g.Node(strconv.FormatInt(n.key, 10))
		gn.Attr("style", "filled")
		gn.Attr("fontcolor", "white")
		if n.colorAt(v) == Red {
			gn.Attr("fillcolor", "red")
		} else {
			gn.Attr("fillcolor", "black")
		}
		if l := n.leftAt(v); l != nil {
			g.Edge(gn, draw(l))
		}
		if r := n.rightAt(v); r != nil {
			g.Edge(gn, draw(r))
		}
		return gn
	}
	if root != nil {
		draw(root)
	}

	_, err = io.WriteString(w, g.String())
	return errors.Wrap(err, "dot graph")
}
