// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// Vec3 is a three component vector in meters.
type Vec3 struct {
	X, Y, Z float32
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Quat is a unit quaternion stored as (x, y, z, w).
type Quat struct {
	X, Y, Z, W float32
}

// Pose is a rigid transform expressed as an orientation followed by a position.
type Pose struct {
	// Orientation rotates from the pose's local frame into the parent frame.
	Orientation Quat
	// Position is the translation of the pose's origin in the parent frame.
	Position Vec3
}

// IdentityPose returns the pose with no rotation and no translation: position (0,0,0), orientation (0,0,0,1).
//
// Returns:
//   - Pose: the identity pose
func IdentityPose() Pose {
	return Pose{Orientation: Quat{W: 1}}
}

// Fov holds the four half-angles of an asymmetric field of view, in radians.
// AngleLeft and AngleDown are typically negative.
type Fov struct {
	AngleLeft  float32
	AngleRight float32
	AngleUp    float32
	AngleDown  float32
}

// Extent2D is a width/height pair in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Offset2D is an x/y pixel offset.
type Offset2D struct {
	X, Y int32
}

// Rect2D is a pixel rectangle.
type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}
