package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const epsilon = 1e-5

func assertMatrixNear(t *testing.T, want, got []float32) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], epsilon, "element %d", i)
	}
}

func TestViewMatrixIsRigidInverseOfPose(t *testing.T) {
	s := float32(math.Sin(math.Pi / 8))
	c := float32(math.Cos(math.Pi / 8))

	tests := []struct {
		name string
		pose Pose
	}{
		{name: "identity", pose: IdentityPose()},
		{name: "translation only", pose: Pose{Orientation: Quat{W: 1}, Position: Vec3{X: 0.032, Y: 1.6, Z: -0.2}}},
		{name: "yaw 45 degrees", pose: Pose{Orientation: Quat{Y: s, W: c}, Position: Vec3{X: -0.032, Y: 1.7, Z: 0.1}}},
		{name: "roll 45 degrees", pose: Pose{Orientation: Quat{Z: s, W: c}, Position: Vec3{X: 1, Y: 2, Z: 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var model, view, product, identity [16]float32
			PoseToMatrix(model[:], tt.pose)
			ViewMatrix(view[:], tt.pose)
			Mul4(product[:], view[:], model[:])
			Identity(identity[:])
			assertMatrixNear(t, identity[:], product[:])

			var inverted [16]float32
			require.True(t, Invert4(inverted[:], model[:]))
			assertMatrixNear(t, inverted[:], view[:])
		})
	}
}

func TestProjectionFromFovMapsClipPlanesToUnitDepth(t *testing.T) {
	const near, far = 0.1, 250.0
	fov := Fov{AngleLeft: -math.Pi / 4, AngleRight: math.Pi / 4, AngleUp: math.Pi / 4, AngleDown: -math.Pi / 4}

	var p [16]float32
	ProjectionFromFov(p[:], fov, near, far)

	assert.InDelta(t, 1, p[0], epsilon)
	assert.InDelta(t, -1, p[5], epsilon, "vulkan clip space flips Y")
	assert.InDelta(t, 0, p[8], epsilon)
	assert.InDelta(t, 0, p[9], epsilon)
	assert.Equal(t, float32(-1), p[11])

	depth := func(z float32) float32 {
		clipZ := p[10]*z + p[14]
		clipW := p[11] * z
		return clipZ / clipW
	}
	assert.InDelta(t, 0, depth(-near), epsilon)
	assert.InDelta(t, 1, depth(-far), epsilon)
}

func TestProjectionFromFovAsymmetric(t *testing.T) {
	fov := Fov{AngleLeft: -0.9, AngleRight: 0.7, AngleUp: 0.8, AngleDown: -0.85}

	var p [16]float32
	ProjectionFromFov(p[:], fov, 0.1, 250)

	assert.NotZero(t, p[8], "horizontal skew for an off-center eye")
	assert.NotZero(t, p[9], "vertical skew for an off-center eye")
}

func TestEyeMatricesAreDeterministic(t *testing.T) {
	pose := Pose{Orientation: Quat{X: 0.1, Y: 0.2, Z: 0.05, W: 0.972}, Position: Vec3{X: 0.03, Y: 1.65, Z: -0.4}}
	fov := Fov{AngleLeft: -0.87, AngleRight: 0.76, AngleUp: 0.8, AngleDown: -0.9}

	var v1, v2, p1, p2 [16]float32
	ViewMatrix(v1[:], pose)
	ViewMatrix(v2[:], pose)
	ProjectionFromFov(p1[:], fov, 0.1, 250)
	ProjectionFromFov(p2[:], fov, 0.1, 250)

	for i := range v1 {
		assert.Equal(t, math.Float32bits(v1[i]), math.Float32bits(v2[i]), "view element %d", i)
		assert.Equal(t, math.Float32bits(p1[i]), math.Float32bits(p2[i]), "projection element %d", i)
	}
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5, Distance(Vec3{}, Vec3{X: 3, Y: 4}), epsilon)
	assert.Zero(t, Distance(Vec3{X: 1, Y: 1, Z: 1}, Vec3{X: 1, Y: 1, Z: 1}))
}
