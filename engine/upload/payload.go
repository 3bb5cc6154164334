package upload

import (
	"encoding/binary"
	gomath "math"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/parallax/engine/assets"
	"github.com/spaghettifunk/parallax/engine/gpu"
)

// NewMeshPayload packs decoded geometry into its device layout: interleaved
// position+uv vertices (5 float32 each, little endian) followed by uint32
// indices. The whole blob lands in one device-local buffer; Meta records
// where the index data begins.
func NewMeshPayload(request *AssetRequest, mesh *assets.MeshData) (*Payload, error) {
	if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return nil, errors.Newf("mesh %s has no geometry", request.Name)
	}

	vertexBytes := uint64(len(mesh.Vertices)) * 5 * 4
	indexBytes := uint64(len(mesh.Indices)) * 4
	buf := make([]byte, vertexBytes+indexBytes)

	off := 0
	putF32 := func(v float32) {
		binary.LittleEndian.PutUint32(buf[off:], gomath.Float32bits(v))
		off += 4
	}
	for _, v := range mesh.Vertices {
		putF32(v.Position.X)
		putF32(v.Position.Y)
		putF32(v.Position.Z)
		putF32(v.UV.X)
		putF32(v.UV.Y)
	}
	for _, idx := range mesh.Indices {
		binary.LittleEndian.PutUint32(buf[off:], idx)
		off += 4
	}

	return &Payload{
		Request: request,
		Bytes:   buf,
		Desc: gpu.TargetDesc{
			Kind: gpu.ResourceBuffer,
			Size: vertexBytes + indexBytes,
		},
		Meta: ResourceMeta{
			VertexCount:    uint32(len(mesh.Vertices)),
			IndexCount:     uint32(len(mesh.Indices)),
			VertexDataSize: vertexBytes,
		},
	}, nil
}

// NewTexturePayload wraps decoded RGBA pixels for upload into a device-local
// image.
func NewTexturePayload(request *AssetRequest, img *assets.ImageData) (*Payload, error) {
	if img.Width == 0 || img.Height == 0 || len(img.Pixels) == 0 {
		return nil, errors.Newf("texture %s has no pixels", request.Name)
	}
	expected := uint64(img.Width) * uint64(img.Height) * uint64(img.ChannelCount)
	if uint64(len(img.Pixels)) != expected {
		return nil, errors.Newf("texture %s pixel buffer is %d bytes, expected %d", request.Name, len(img.Pixels), expected)
	}

	return &Payload{
		Request: request,
		Bytes:   img.Pixels,
		Desc: gpu.TargetDesc{
			Kind:   gpu.ResourceImage,
			Size:   expected,
			Width:  img.Width,
			Height: img.Height,
		},
		Meta: ResourceMeta{
			Width:        img.Width,
			Height:       img.Height,
			ChannelCount: img.ChannelCount,
		},
	}, nil
}
