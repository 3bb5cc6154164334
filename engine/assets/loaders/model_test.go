package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/parallax/engine/assets"
)

const triangleObj = `
# simple triangle
v 0.0 0.0 0.0
v 1.0 0.0 0.0
v 0.0 1.0 0.0
vt 0.0 0.0
vt 1.0 0.0
vt 0.0 1.0
f 1/1 2/2 3/3
`

const quadObj = `
v -1.0 -1.0 0.0
v 1.0 -1.0 0.0
v 1.0 1.0 0.0
v -1.0 1.0 0.0
vt 0.0 0.0
vt 1.0 0.0
vt 1.0 1.0
vt 0.0 1.0
f 1/1 2/2 3/3 4/4
`

func writeObj(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mesh.obj")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func loadMesh(t *testing.T, content string) *assets.MeshData {
	t.Helper()
	ml := &ModelLoader{}
	res, err := ml.Load(writeObj(t, content), assets.ResourceTypeMesh, nil)
	require.NoError(t, err)
	mesh, ok := res.Data.(*assets.MeshData)
	require.True(t, ok)
	return mesh
}

func TestModelLoaderTriangle(t *testing.T) {
	mesh := loadMesh(t, triangleObj)

	assert.Len(t, mesh.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)
	assert.Equal(t, float32(1.0), mesh.Vertices[1].Position.X)
	assert.Equal(t, float32(1.0), mesh.Vertices[1].UV.X)
}

func TestModelLoaderFanTriangulation(t *testing.T) {
	mesh := loadMesh(t, quadObj)

	assert.Len(t, mesh.Vertices, 4)
	// quad becomes two triangles sharing the first corner
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, mesh.Indices)
}

func TestModelLoaderNegativeIndices(t *testing.T) {
	content := `
v 0.0 0.0 0.0
v 1.0 0.0 0.0
v 0.0 1.0 0.0
f -3 -2 -1
`
	mesh := loadMesh(t, content)
	assert.Len(t, mesh.Vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, mesh.Indices)
}

func TestModelLoaderSharedCornersDeduped(t *testing.T) {
	content := `
v 0.0 0.0 0.0
v 1.0 0.0 0.0
v 0.0 1.0 0.0
v 1.0 1.0 0.0
f 1 2 3
f 2 4 3
`
	mesh := loadMesh(t, content)
	// 6 corners but only 4 unique position/uv pairs
	assert.Len(t, mesh.Vertices, 4)
	assert.Len(t, mesh.Indices, 6)
}

func TestModelLoaderMalformed(t *testing.T) {
	ml := &ModelLoader{}

	cases := map[string]string{
		"index out of range": "v 0 0 0\nf 1 2 3\n",
		"bad float":          "v zero 0 0\nf 1 1 1\n",
		"empty file":         "",
		"face too short":     "v 0 0 0\nv 1 0 0\nf 1 2\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ml.Load(writeObj(t, content), assets.ResourceTypeMesh, nil)
			require.Error(t, err)
			var decodeErr *assets.DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestModelLoaderMissingFile(t *testing.T) {
	ml := &ModelLoader{}
	_, err := ml.Load(filepath.Join(t.TempDir(), "nope.obj"), assets.ResourceTypeMesh, nil)
	var decodeErr *assets.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}
