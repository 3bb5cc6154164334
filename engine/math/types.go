package math

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

// Mat4 is a 4x4 matrix stored column-major, matching the push-constant
// layout consumed by the vertex stage.
type Mat4 struct {
	Data [16]float32
}

// Vertex is a single mesh vertex: position plus texture coordinate,
// interleaved exactly as the vertex input binding expects.
type Vertex struct {
	Position Vec3
	UV       Vec2
}

func NewVec2(x, y float32) Vec2 {
	return Vec2{X: x, Y: y}
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVertex(x, y, z, u, v float32) Vertex {
	return Vertex{Position: NewVec3(x, y, z), UV: NewVec2(u, v)}
}
