package bvh

import (
	"math/bits"
	"sync/atomic"

	"github.com/gekko3d/ripple/compute"
	"github.com/gekko3d/ripple/geom"
	"github.com/gekko3d/ripple/radix"
)

// LeafSource supplies, for the i-th sorted record, the leaf's bounding box
// and the data index the leaf refers back to.
type LeafSource func(i int, rec radix.SortingRecord) (geom.Box2D, int32)

// Tree is a rebuildable BVH arena sized for a maximum leaf population.
type Tree struct {
	dev       *compute.Device
	Nodes     *compute.Buffer[Node]
	leafCount int
	keys      []uint32 // per-build scratch, reused across frames

	// incremented when a range search exceeds its iteration bound, which
	// only happens if key uniqueness was violated upstream
	RangeOverruns atomic.Uint64
}

func NewTree(dev *compute.Device, name string, binding uint32, maxLeaves int) *Tree {
	capacity := 2*maxLeaves - 1
	if maxLeaves < 1 {
		capacity = 0
	}
	return &Tree{
		dev:   dev,
		Nodes: compute.NewBuffer[Node](name, binding, capacity),
	}
}

func (t *Tree) LeafCount() int { return t.leafCount }

// Root returns the arena index of the root node, or None for an empty tree.
func (t *Tree) Root() int32 {
	switch {
	case t.leafCount == 0:
		return None
	case t.leafCount == 1:
		return 0
	default:
		return int32(t.leafCount)
	}
}

// Build rebuilds the tree over the first active entries of the sorted
// records. Keys must be strictly increasing over that prefix. Three kernels
// run back to back: leaf init, internal-node construction, and the upward
// bounding-volume merge.
func (t *Tree) Build(records []radix.SortingRecord, active int, leaf LeafSource) {
	t.leafCount = active
	if active == 0 {
		return
	}
	nodes := t.Nodes.Data
	l := active

	t.dev.Dispatch("generate leaf nodes", l, func(i int) {
		box, data := leaf(i, records[i])
		nodes[i] = Node{
			IsLeaf:    true,
			Parent:    None,
			Left:      None,
			Right:     None,
			DataIndex: data,
			Box:       box,
		}
	})
	if l == 1 {
		return
	}

	if cap(t.keys) < l {
		t.keys = make([]uint32, l)
	}
	keys := t.keys[:l]
	t.dev.Dispatch("collect sorted keys", l, func(i int) {
		keys[i] = records[i].Key
	})

	t.dev.Dispatch("init internal nodes", l-1, func(i int) {
		nodes[l+i] = Node{
			IsLeaf:    false,
			Parent:    None,
			Left:      None,
			Right:     None,
			DataIndex: None,
			Box:       geom.EmptyBox(),
		}
	})

	// Construction threads write only their own node's child links and each
	// child's parent link; every other field was set by the init kernels, so
	// concurrent threads never touch the same word.
	t.dev.Dispatch("generate binary radix tree", l-1, func(i int) {
		t.buildInternal(nodes, keys, l, i)
	})

	t.dev.Dispatch("merge bounding volumes", l, func(i int) {
		cur := nodes[i].Parent
		for cur != None {
			// the second arrival merges; the first stops, guaranteeing
			// both children are final before their union is taken
			if atomic.AddUint32(&nodes[cur].visit, 1) == 1 {
				return
			}
			node := &nodes[cur]
			node.Box = nodes[node.Left].Box.Union(nodes[node.Right].Box)
			cur = node.Parent
		}
	})
}

// buildInternal determines the leaf range and split of internal node i
// (Karras 2012) and writes the node plus both children's parent links.
func (t *Tree) buildInternal(nodes []Node, keys []uint32, l, i int) {
	delta := func(a, b int) int {
		if b < 0 || b >= l {
			return -1
		}
		return bits.LeadingZeros32(keys[a] ^ keys[b])
	}

	// direction of the node's range, away from the shorter-prefix neighbor
	d := 1
	if delta(i, i+1) < delta(i, i-1) {
		d = -1
	}
	dMin := delta(i, i-d)

	// expand until past the far end, then binary-search the exact bound
	maxIter := log2Ceil(l) + 1
	lMax := 2
	for iter := 0; delta(i, i+lMax*d) > dMin; iter++ {
		lMax <<= 1
		if iter > maxIter {
			t.RangeOverruns.Add(1)
			return
		}
	}
	length := 0
	for step := lMax / 2; step >= 1; step /= 2 {
		if delta(i, i+(length+step)*d) > dMin {
			length += step
		}
	}
	j := i + length*d

	// binary-search the split position within [min(i,j), max(i,j)]
	dNode := delta(i, j)
	split := 0
	for step := (length + 1) / 2; ; step = (step + 1) / 2 {
		if delta(i, i+(split+step)*d) > dNode {
			split += step
		}
		if step == 1 {
			break
		}
	}
	gamma := i + split*d + mini(d, 0)

	var left, right int32
	if mini(i, j) == gamma {
		left = int32(gamma)
	} else {
		left = int32(l + gamma)
	}
	if maxi(i, j) == gamma+1 {
		right = int32(gamma + 1)
	} else {
		right = int32(l + gamma + 1)
	}

	self := int32(l + i)
	nodes[self].Left = left
	nodes[self].Right = right
	nodes[left].Parent = self
	nodes[right].Parent = self
}

func log2Ceil(v int) int {
	return bits.Len(uint(v - 1))
}

func mini(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
