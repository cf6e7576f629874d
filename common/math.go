package common

import (
	"math"
)

// Identity resets a 4x4 matrix (flat slice) to the identity matrix.
// The matrix is stored in column-major order.
//
// Parameters:
//   - m: destination slice (must be at least 16 elements)
func Identity(m []float32) {
	for i := range m {
		m[i] = 0
	}
	m[0], m[5], m[10], m[15] = 1, 1, 1, 1
}

// Mul4 multiplies two 4x4 matrices and stores the result in out.
// All matrices are stored in column-major order.
// Result: out = a * b
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - a: left-hand matrix (16 elements)
//   - b: right-hand matrix (16 elements)
func Mul4(out, a, b []float32) {
	var buf [16]float32
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			buf[i*4+j] = sum
		}
	}
	copy(out, buf[:])
}

// Invert4 computes the inverse of a 4x4 column-major matrix using the Laplace
// expansion (cofactor) method. If the matrix is singular (determinant ≈ 0) the
// output is left unchanged and the function returns false.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - m: source matrix (16 elements, column-major)
//
// Returns:
//   - bool: true if the matrix was successfully inverted, false if singular
func Invert4(out, m []float32) bool {
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return false
	}

	invDet := 1.0 / det

	out[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * invDet
	out[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * invDet
	out[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * invDet
	out[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * invDet

	out[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * invDet
	out[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * invDet
	out[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * invDet
	out[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * invDet

	out[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * invDet
	out[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * invDet
	out[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * invDet
	out[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * invDet

	out[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * invDet
	out[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * invDet
	out[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * invDet
	out[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * invDet

	return true
}

// PoseToMatrix builds the 4x4 model matrix T * R for a pose.
// The matrix is stored in column-major order.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - p: the pose to convert
func PoseToMatrix(out []float32, p Pose) {
	x, y, z, w := p.Orientation.X, p.Orientation.Y, p.Orientation.Z, p.Orientation.W

	out[0] = 1 - 2*(y*y+z*z)
	out[1] = 2 * (x*y + w*z)
	out[2] = 2 * (x*z - w*y)
	out[3] = 0

	out[4] = 2 * (x*y - w*z)
	out[5] = 1 - 2*(x*x+z*z)
	out[6] = 2 * (y*z + w*x)
	out[7] = 0

	out[8] = 2 * (x*z + w*y)
	out[9] = 2 * (y*z - w*x)
	out[10] = 1 - 2*(x*x+y*y)
	out[11] = 0

	out[12] = p.Position.X
	out[13] = p.Position.Y
	out[14] = p.Position.Z
	out[15] = 1
}

// ViewMatrix computes the view matrix for an eye pose: the rigid inverse of PoseToMatrix.
// The rotation block is transposed and the translation is rotated back, so no general
// 4x4 inversion is needed.
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - p: the eye pose in reference space
func ViewMatrix(out []float32, p Pose) {
	var m [16]float32
	PoseToMatrix(m[:], p)

	out[0], out[1], out[2], out[3] = m[0], m[4], m[8], 0
	out[4], out[5], out[6], out[7] = m[1], m[5], m[9], 0
	out[8], out[9], out[10], out[11] = m[2], m[6], m[10], 0

	tx, ty, tz := m[12], m[13], m[14]
	out[12] = -(out[0]*tx + out[4]*ty + out[8]*tz)
	out[13] = -(out[1]*tx + out[5]*ty + out[9]*tz)
	out[14] = -(out[2]*tx + out[6]*ty + out[10]*tz)
	out[15] = 1
}

// ProjectionFromFov creates an asymmetric perspective projection from four field-of-view
// half-angles. Clip space follows the Vulkan convention: Y points down and depth maps to [0, 1].
//
// Parameters:
//   - out: destination slice (must be at least 16 elements)
//   - fov: the four half-angles in radians
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
func ProjectionFromFov(out []float32, fov Fov, near, far float32) {
	tanLeft := float32(math.Tan(float64(fov.AngleLeft)))
	tanRight := float32(math.Tan(float64(fov.AngleRight)))
	tanUp := float32(math.Tan(float64(fov.AngleUp)))
	tanDown := float32(math.Tan(float64(fov.AngleDown)))

	tanWidth := tanRight - tanLeft
	tanHeight := tanDown - tanUp

	out[0] = 2 / tanWidth
	out[1] = 0
	out[2] = 0
	out[3] = 0

	out[4] = 0
	out[5] = 2 / tanHeight
	out[6] = 0
	out[7] = 0

	out[8] = (tanRight + tanLeft) / tanWidth
	out[9] = (tanUp + tanDown) / tanHeight
	out[10] = -far / (far - near)
	out[11] = -1

	out[12] = 0
	out[13] = 0
	out[14] = -(far * near) / (far - near)
	out[15] = 0
}

// Distance returns the euclidean distance between two points.
//
// Parameters:
//   - a, b: the points to measure between
//
// Returns:
//   - float32: |b - a|
func Distance(a, b Vec3) float32 {
	d := b.Sub(a)
	return float32(math.Sqrt(float64(d.X*d.X + d.Y*d.Y + d.Z*d.Z)))
}
