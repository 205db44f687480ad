// Package bvh builds and traverses bounding volume hierarchies over sorted
// Morton keys using Karras-style binary radix trees. The tree is an
// index-addressed arena: parent/child references are plain indices, never
// pointers. For L leaves the arena holds 2L-1 nodes, leaves at [0, L),
// internal nodes at [L, 2L-1), the root at index L.
package bvh

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/ripple/geom"
)

// None marks an absent parent or child reference.
const None int32 = -1

// Node matches the WGSL BvhNode layout:
//
//	struct BvhNode {
//	    is_leaf    : u32;          (4)
//	    parent     : i32;          (4)
//	    left_child : i32;          (4)
//	    right_child: i32;          (4)
//	    data_index : i32;          (4)
//	    visit      : atomic<u32>;  (4)
//	    padding    : u32[2];       (8)
//	    box_min    : vec2<f32>;    (8)
//	    box_max    : vec2<f32>;    (8)
//	}; -> 48 bytes
type Node struct {
	IsLeaf    bool
	Parent    int32
	Left      int32
	Right     int32
	DataIndex int32

	// arrival counter for the bounding-volume merge pass; reset per build
	visit uint32

	Box geom.Box2D
}

func (n *Node) ToBytes() []byte {
	buf := make([]byte, 48)

	var leaf uint32
	if n.IsLeaf {
		leaf = 1
	}
	binary.LittleEndian.PutUint32(buf[0:4], leaf)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(n.Parent))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(n.Left))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(n.Right))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(n.DataIndex))
	binary.LittleEndian.PutUint32(buf[20:24], n.visit)
	// padding at [24:32]

	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(n.Box.Min.X()))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(n.Box.Min.Y()))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(n.Box.Max.X()))
	binary.LittleEndian.PutUint32(buf[44:48], math.Float32bits(n.Box.Max.Y()))
	return buf
}
