package morton

import (
	"testing"

	"github.com/gekko3d/ripple/geom"
	"github.com/go-gl/mathgl/mgl32"
)

func unitWindow() geom.Box2D {
	return geom.Box2D{Min: mgl32.Vec2{-1, -1}, Max: mgl32.Vec2{1, 1}}
}

func TestEncodeInterleavesAxes(t *testing.T) {
	w := unitWindow()

	// the minimum corner is key zero
	if key := Encode(w, mgl32.Vec2{-1, -1}); key != 0 {
		t.Errorf("min corner should encode to 0, got %#x", key)
	}

	// the maximum corner uses all 30 bits
	maxKey := Encode(w, mgl32.Vec2{1, 1})
	if maxKey != 0x3FFFFFFF {
		t.Errorf("max corner should encode to 0x3FFFFFFF, got %#x", maxKey)
	}

	// a pure-x step sets only even bits, a pure-y step only odd bits
	xKey := Encode(w, mgl32.Vec2{1, -1})
	yKey := Encode(w, mgl32.Vec2{-1, 1})
	if xKey&0xAAAAAAAA != 0 {
		t.Errorf("x-only key has odd bits set: %#x", xKey)
	}
	if yKey&0x55555555 != 0 {
		t.Errorf("y-only key has even bits set: %#x", yKey)
	}
	if xKey|yKey != maxKey {
		t.Errorf("axis keys should combine to the max key: %#x | %#x != %#x", xKey, yKey, maxKey)
	}
}

func TestEncodeKeysStayBelowSentinel(t *testing.T) {
	w := unitWindow()
	positions := []mgl32.Vec2{
		{-1, -1}, {1, 1}, {0, 0}, {0.5, -0.25}, {-0.999, 0.999},
	}
	for _, pos := range positions {
		if key := Encode(w, pos); key >= Sentinel {
			t.Errorf("key for %v reaches sentinel range: %#x", pos, key)
		}
	}
}

func TestEncodeClampsOutsideWindow(t *testing.T) {
	w := unitWindow()
	if got, want := Encode(w, mgl32.Vec2{-5, -5}), Encode(w, mgl32.Vec2{-1, -1}); got != want {
		t.Errorf("far-below position should clamp to min corner: %#x vs %#x", got, want)
	}
	if got, want := Encode(w, mgl32.Vec2{5, 5}), Encode(w, mgl32.Vec2{1, 1}); got != want {
		t.Errorf("far-above position should clamp to max corner: %#x vs %#x", got, want)
	}
}

func TestEncodeOrdersNearbyBeforeFar(t *testing.T) {
	w := unitWindow()
	// along the diagonal, keys grow with both axes
	a := Encode(w, mgl32.Vec2{-0.9, -0.9})
	b := Encode(w, mgl32.Vec2{-0.8, -0.8})
	c := Encode(w, mgl32.Vec2{0.9, 0.9})
	if !(a < b && b < c) {
		t.Errorf("keys should grow along the diagonal: %#x, %#x, %#x", a, b, c)
	}
}
