package geom

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Logger is the subset of the host logger the loader reports diagnostics to.
type Logger interface {
	Warnf(format string, args ...any)
}

// GeometryObject is one named object from a Blender export, flattened into
// collidable line segments.
type GeometryObject struct {
	Id    uuid.UUID
	Name  string
	Faces []PolygonFace
}

// Geometry is the result of loading a wavefront-style file: all objects it
// declared, in file order.
type Geometry struct {
	Objects []GeometryObject
}

// AllFaces flattens every object's faces into a single collection, the form
// the collision pipeline consumes.
func (g Geometry) AllFaces() []PolygonFace {
	total := 0
	for _, obj := range g.Objects {
		total += len(obj.Faces)
	}
	faces := make([]PolygonFace, 0, total)
	for _, obj := range g.Objects {
		faces = append(faces, obj.Faces...)
	}
	return faces
}

// LoadBlenderFile reads a Blender .obj export from disk. A missing file or a
// file without the OBJ header marker yields an empty geometry set and an
// error; the caller decides whether that is fatal.
func LoadBlenderFile(path string, log Logger) (Geometry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Geometry{}, errors.Wrapf(err, "open geometry file %q", path)
	}
	defer f.Close()
	return ParseBlender(f, log)
}

// ParseBlender parses the wavefront subset that Blender emits for 2D
// collision geometry:
//
//	o <name>        begin a named object
//	v x y z         vertex position (z ignored)
//	vn x y z        vertex normal (z ignored)
//	l i j           line segment between 1-based vertex indices
//	f i/ti/ni ...   face; each edge of the loop becomes a segment
//
// usemtl, s, comments, and blank lines are skipped. Malformed numeric fields
// parse as zero and are reported through the logger, one line each.
func ParseBlender(r io.Reader, log Logger) (Geometry, error) {
	scanner := bufio.NewScanner(r)

	// Blender exports open with a comment header naming the OBJ format.
	sawHeader := false
	var (
		geometry  Geometry
		current   *GeometryObject
		positions []mgl32.Vec2
		normals   []mgl32.Vec2
	)

	ensureObject := func() *GeometryObject {
		if current == nil {
			geometry.Objects = append(geometry.Objects, GeometryObject{
				Id:   uuid.New(),
				Name: "unnamed",
			})
			current = &geometry.Objects[len(geometry.Objects)-1]
		}
		return current
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.Contains(line, "OBJ") {
				sawHeader = true
			}
			continue
		}
		if !sawHeader {
			return Geometry{}, errors.Errorf("geometry file has no OBJ header before line %d", lineNo)
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "o":
			name := "unnamed"
			if len(fields) > 1 {
				name = fields[1]
			}
			geometry.Objects = append(geometry.Objects, GeometryObject{
				Id:   uuid.New(),
				Name: name,
			})
			current = &geometry.Objects[len(geometry.Objects)-1]

		case "v":
			positions = append(positions, parseVec2(fields[1:], lineNo, log))

		case "vn":
			normals = append(normals, parseVec2(fields[1:], lineNo, log))

		case "l":
			if len(fields) < 3 {
				warnf(log, "line %d: 'l' needs two vertex indices", lineNo)
				continue
			}
			i1, ok1 := vertexIndex(fields[1], len(positions))
			i2, ok2 := vertexIndex(fields[2], len(positions))
			if !ok1 || !ok2 {
				warnf(log, "line %d: 'l' references unknown vertex", lineNo)
				continue
			}
			obj := ensureObject()
			obj.Faces = append(obj.Faces, lineFace(positions[i1], positions[i2]))

		case "f":
			face := parseFaceRefs(fields[1:], len(positions), len(normals), lineNo, log)
			if len(face) < 2 {
				continue
			}
			obj := ensureObject()
			for i := range face {
				a := face[i]
				b := face[(i+1)%len(face)]
				obj.Faces = append(obj.Faces, PolygonFace{
					P1: positions[a.pos], N1: refNormal(normals, positions, a, b),
					P2: positions[b.pos], N2: refNormal(normals, positions, b, a),
				})
			}

		case "usemtl", "s", "mtllib", "g", "vt":
			// irrelevant to collision geometry

		default:
			warnf(log, "line %d: skipping unrecognized record %q", lineNo, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return Geometry{}, errors.Wrap(err, "read geometry file")
	}
	if !sawHeader {
		return Geometry{}, errors.New("geometry file has no OBJ header")
	}
	return geometry, nil
}

// lineFace builds a face for a bare 'l' record. Blender gives lines no
// normals, so both endpoints get the segment direction rotated 90 degrees
// counter-clockwise.
func lineFace(p1, p2 mgl32.Vec2) PolygonFace {
	dir := p2.Sub(p1)
	n := mgl32.Vec2{-dir.Y(), dir.X()}
	if l := n.Len(); l > 1e-6 {
		n = n.Mul(1 / l)
	}
	return PolygonFace{P1: p1, N1: n, P2: p2, N2: n}
}

type faceRef struct {
	pos    int
	normal int // -1 when the file gave none
}

func parseFaceRefs(fields []string, numPos, numNorm, lineNo int, log Logger) []faceRef {
	refs := make([]faceRef, 0, len(fields))
	for _, field := range fields {
		parts := strings.Split(field, "/")
		pos, ok := vertexIndex(parts[0], numPos)
		if !ok {
			warnf(log, "line %d: 'f' references unknown vertex %q", lineNo, field)
			return nil
		}
		normal := -1
		if len(parts) >= 3 && parts[2] != "" {
			if ni, ok := vertexIndex(parts[2], numNorm); ok {
				normal = ni
			}
		}
		refs = append(refs, faceRef{pos: pos, normal: normal})
	}
	return refs
}

func refNormal(normals, positions []mgl32.Vec2, a, b faceRef) mgl32.Vec2 {
	if a.normal >= 0 {
		return normals[a.normal]
	}
	return lineFace(positions[a.pos], positions[b.pos]).N1
}

func parseVec2(fields []string, lineNo int, log Logger) mgl32.Vec2 {
	var v mgl32.Vec2
	for i := 0; i < 2 && i < len(fields); i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			warnf(log, "line %d: malformed number %q, using 0", lineNo, fields[i])
			f = 0
		}
		v[i] = float32(f)
	}
	return v
}

func vertexIndex(field string, count int) (int, bool) {
	idx, err := strconv.Atoi(field)
	if err != nil || idx < 1 || idx > count {
		return 0, false
	}
	return idx - 1, true
}

func warnf(log Logger, format string, args ...any) {
	if log != nil {
		log.Warnf(format, args...)
	}
}
