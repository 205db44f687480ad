package bvh

import (
	"github.com/gekko3d/ripple/geom"
)

// Stack depth for traversal. A binary radix tree over 32-bit keys is at most
// 33 levels deep, and at most one extra node is pushed per level.
const traversalStack = 96

// Query walks the tree with an explicit fixed-depth stack and calls visit
// for every leaf whose box overlaps the query box. visit returning false
// stops the traversal early.
func (t *Tree) Query(box geom.Box2D, visit func(leaf *Node) bool) {
	root := t.Root()
	if root == None {
		return
	}
	nodes := t.Nodes.Data

	var stack [traversalStack]int32
	top := 0
	stack[top] = root
	top++

	for top > 0 {
		top--
		node := &nodes[stack[top]]
		if !node.Box.Overlaps(box) {
			continue
		}
		if node.IsLeaf {
			if !visit(node) {
				return
			}
			continue
		}
		stack[top] = node.Left
		top++
		stack[top] = node.Right
		top++
	}
}
