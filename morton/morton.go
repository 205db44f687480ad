// Package morton maps 2D positions to 30-bit Z-order keys so that sorting by
// key clusters spatially-near entities.
package morton

import (
	"github.com/gekko3d/ripple/geom"
	"github.com/go-gl/mathgl/mgl32"
)

// Sentinel is the sort key for inactive entities. The top two bits are set,
// so under unsigned ordering every sentinel sorts after every 30-bit key and
// inactive entries collect at the tail of the sorted array.
const Sentinel uint32 = 0xC0000000

// bits of resolution per axis
const axisBits = 15

const axisMax = (1 << axisBits) - 1

// Encode maps a position inside window to a 30-bit Morton key by scaling each
// axis into [0, 2^15) and interleaving the bits. Positions outside the window
// clamp to its edge.
func Encode(window geom.Box2D, pos mgl32.Vec2) uint32 {
	u := quantize(pos.X(), window.Min.X(), window.Max.X())
	v := quantize(pos.Y(), window.Min.Y(), window.Max.Y())
	return spreadBits(u) | spreadBits(v)<<1
}

func quantize(x, lo, hi float32) uint32 {
	span := hi - lo
	if span <= 0 {
		return 0
	}
	scaled := (x - lo) / span * float32(axisMax+1)
	if scaled < 0 {
		return 0
	}
	if scaled > axisMax {
		return axisMax
	}
	return uint32(scaled)
}

// spreadBits spaces the low 15 bits of v so a second axis can interleave.
func spreadBits(v uint32) uint32 {
	v &= axisMax
	v = (v | v<<8) & 0x00FF00FF
	v = (v | v<<4) & 0x0F0F0F0F
	v = (v | v<<2) & 0x33333333
	v = (v | v<<1) & 0x55555555
	return v
}
