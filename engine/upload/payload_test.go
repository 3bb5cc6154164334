package upload

import (
	"encoding/binary"
	gomath "math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/parallax/engine/assets"
	"github.com/spaghettifunk/parallax/engine/gpu"
	pxmath "github.com/spaghettifunk/parallax/engine/math"
)

func TestMeshPayloadLayout(t *testing.T) {
	mesh := &assets.MeshData{
		Vertices: []pxmath.Vertex{
			pxmath.NewVertex(-0.5, -0.5, 0, 0, 0),
			pxmath.NewVertex(0.5, -0.5, 0, 1, 0),
			pxmath.NewVertex(0, 0.5, 0, 0.5, 1),
		},
		Indices: []uint32{0, 1, 2},
	}
	request := NewAssetRequest("tri", AssetMesh, PriorityNormal)

	payload, err := NewMeshPayload(request, mesh)
	require.NoError(t, err)

	assert.Equal(t, gpu.ResourceBuffer, payload.Desc.Kind)
	assert.Equal(t, uint64(3*5*4+3*4), payload.Desc.Size)
	assert.Equal(t, uint32(3), payload.Meta.VertexCount)
	assert.Equal(t, uint32(3), payload.Meta.IndexCount)
	assert.Equal(t, uint64(3*5*4), payload.Meta.VertexDataSize)
	require.Len(t, payload.Bytes, int(payload.Desc.Size))

	// second vertex starts at 20 bytes; its position.x is 0.5
	x := gomath.Float32frombits(binary.LittleEndian.Uint32(payload.Bytes[20:]))
	assert.InDelta(t, 0.5, x, 1e-6)

	// index data begins at VertexDataSize
	idx := binary.LittleEndian.Uint32(payload.Bytes[payload.Meta.VertexDataSize+4:])
	assert.Equal(t, uint32(1), idx)
}

func TestMeshPayloadEmptyGeometry(t *testing.T) {
	request := NewAssetRequest("hollow", AssetMesh, PriorityNormal)

	_, err := NewMeshPayload(request, &assets.MeshData{})
	assert.Error(t, err)

	_, err = NewMeshPayload(request, &assets.MeshData{
		Vertices: []pxmath.Vertex{pxmath.NewVertex(0, 0, 0, 0, 0)},
	})
	assert.Error(t, err, "vertices without indices are not uploadable")
}

func TestTexturePayload(t *testing.T) {
	img := &assets.ImageData{
		Width:        4,
		Height:       2,
		ChannelCount: 4,
		Pixels:       make([]byte, 4*2*4),
	}
	request := NewAssetRequest("checker", AssetTexture, PriorityHigh)

	payload, err := NewTexturePayload(request, img)
	require.NoError(t, err)

	assert.Equal(t, gpu.ResourceImage, payload.Desc.Kind)
	assert.Equal(t, uint64(32), payload.Desc.Size)
	assert.Equal(t, uint32(4), payload.Desc.Width)
	assert.Equal(t, uint32(2), payload.Desc.Height)
	assert.Equal(t, uint8(4), payload.Meta.ChannelCount)
}

func TestTexturePayloadSizeMismatch(t *testing.T) {
	request := NewAssetRequest("torn", AssetTexture, PriorityNormal)

	_, err := NewTexturePayload(request, &assets.ImageData{
		Width:        4,
		Height:       4,
		ChannelCount: 4,
		Pixels:       make([]byte, 10),
	})
	assert.Error(t, err)

	_, err = NewTexturePayload(request, &assets.ImageData{})
	assert.Error(t, err)
}
