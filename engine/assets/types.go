package assets

import (
	"fmt"

	"github.com/spaghettifunk/parallax/engine/math"
)

type ResourceType uint8

const (
	ResourceTypeNone ResourceType = iota
	ResourceTypeMesh
	ResourceTypeImage
)

func (rt ResourceType) String() string {
	switch rt {
	case ResourceTypeMesh:
		return "mesh"
	case ResourceTypeImage:
		return "image"
	default:
		return "none"
	}
}

// Resource is a decoded CPU-side asset, ready to be staged for upload.
type Resource struct {
	Name     string
	FullPath string
	Type     ResourceType
	DataSize uint64
	Data     interface{}
}

// MeshData holds decoded geometry: interleaved position+uv vertices and
// triangle indices.
type MeshData struct {
	Vertices []math.Vertex
	Indices  []uint32
}

// ImageData holds decoded pixels. Pixels are always 8-bit RGBA regardless of
// the source color model.
type ImageData struct {
	Width        uint32
	Height       uint32
	ChannelCount uint8
	Pixels       []uint8
}

// ImageParams tweaks image decoding.
type ImageParams struct {
	FlipY bool
}

// DecodeError reports a malformed or unreadable asset file. It is a
// user-visible load failure, never a crash: the asset simply does not become
// available.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
