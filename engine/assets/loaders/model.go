package loaders

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/parallax/engine/assets"
	"github.com/spaghettifunk/parallax/engine/math"
)

// ModelLoader decodes ASCII Wavefront .obj geometry into interleaved
// position+uv vertices and triangle indices. Faces with more than three
// corners are fan-triangulated; negative indices are resolved relative to
// the end of the respective list.
type ModelLoader struct{}

func (ml *ModelLoader) Load(path string, assetType assets.ResourceType, params interface{}) (*assets.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &assets.DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	mesh, err := ml.parse(bufio.NewScanner(f))
	if err != nil {
		return nil, &assets.DecodeError{Path: path, Err: err}
	}

	return &assets.Resource{
		Name:     strings.TrimSuffix(strings.TrimSuffix(path, ".obj"), ".OBJ"),
		FullPath: path,
		Type:     assets.ResourceTypeMesh,
		DataSize: uint64(len(mesh.Vertices))*uint64(5*4) + uint64(len(mesh.Indices))*4,
		Data:     mesh,
	}, nil
}

func (ml *ModelLoader) Unload(*assets.Resource) error {
	return nil
}

type objCorner struct {
	position int
	uv       int
}

func (ml *ModelLoader) parse(scanner *bufio.Scanner) (*assets.MeshData, error) {
	var positions []math.Vec3
	var uvs []math.Vec2

	mesh := &assets.MeshData{}
	seen := make(map[objCorner]uint32)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: vertex needs 3 components", lineNo)
			}
			v, err := parseFloats(fields[1:4])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			positions = append(positions, math.NewVec3(v[0], v[1], v[2]))
		case "vt":
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: texcoord needs 2 components", lineNo)
			}
			v, err := parseFloats(fields[1:3])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			uvs = append(uvs, math.NewVec2(v[0], v[1]))
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least 3 corners", lineNo)
			}
			corners := make([]uint32, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				corner, err := parseCorner(ref, len(positions), len(uvs))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				idx, ok := seen[corner]
				if !ok {
					vert := math.Vertex{Position: positions[corner.position]}
					if corner.uv >= 0 {
						vert.UV = uvs[corner.uv]
					}
					idx = uint32(len(mesh.Vertices))
					mesh.Vertices = append(mesh.Vertices, vert)
					seen[corner] = idx
				}
				corners = append(corners, idx)
			}
			// fan triangulation; for already-triangulated input this is a
			// single iteration
			for i := 1; i+1 < len(corners); i++ {
				mesh.Indices = append(mesh.Indices, corners[0], corners[i], corners[i+1])
			}
		default:
			// vn, o, g, s, usemtl, mtllib are valid but unused here
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return nil, fmt.Errorf("no geometry found")
	}
	return mesh, nil
}

func parseCorner(ref string, positionCount, uvCount int) (objCorner, error) {
	parts := strings.Split(ref, "/")

	pos, err := resolveIndex(parts[0], positionCount)
	if err != nil {
		return objCorner{}, fmt.Errorf("bad position index %q: %w", ref, err)
	}

	uv := -1
	if len(parts) > 1 && parts[1] != "" {
		uv, err = resolveIndex(parts[1], uvCount)
		if err != nil {
			return objCorner{}, fmt.Errorf("bad texcoord index %q: %w", ref, err)
		}
	}
	return objCorner{position: pos, uv: uv}, nil
}

// resolveIndex converts a 1-based (or negative, end-relative) obj index to a
// 0-based slice index, validating the range.
func resolveIndex(field string, count int) (int, error) {
	raw, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	idx := raw
	if idx < 0 {
		idx = count + idx
	} else {
		idx--
	}
	if idx < 0 || idx >= count {
		return 0, fmt.Errorf("index %d out of range (have %d)", raw, count)
	}
	return idx, nil
}

func parseFloats(fields []string) ([]float32, error) {
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}
