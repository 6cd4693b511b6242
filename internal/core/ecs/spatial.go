package ecs

import "github.com/hmcore/world/internal/core/xmath"

// SpatialIndex is kept in sync with object positions during transform
// propagation.
type SpatialIndex interface {
	UpdateObject(h ObjectHandle, pos xmath.Vec3)
	RemoveObject(h ObjectHandle)
}

// CoordinateSystem holds the unit axes at a location.
type CoordinateSystem struct {
	Forward, Right, Up xmath.Vec3
}

func DefaultCoordinateSystem() CoordinateSystem {
	return CoordinateSystem{
		Forward: xmath.V3(1, 0, 0),
		Right:   xmath.V3(0, 1, 0),
		Up:      xmath.V3(0, 0, 1),
	}
}

// CoordinateSystemProvider supplies location dependent axes, for example
// on a spherical planet.
type CoordinateSystemProvider interface {
	CoordinateSystem(pos xmath.Vec3) CoordinateSystem
}
