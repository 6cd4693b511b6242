package spatial

import (
	"github.com/hmcore/world/internal/core/ecs"
	"github.com/hmcore/world/internal/core/xmath"
)

// Sphere provides coordinate systems on the surface of a sphere: up points
// away from Center, forward follows the world X axis projected onto the
// tangent plane.
type Sphere struct {
	Center xmath.Vec3
}

func (s Sphere) CoordinateSystem(pos xmath.Vec3) ecs.CoordinateSystem {
	up := pos.Sub(s.Center).Normalized()
	if up == (xmath.Vec3{}) {
		return ecs.DefaultCoordinateSystem()
	}
	fwd := tangent(xmath.V3(1, 0, 0), up)
	if fwd == (xmath.Vec3{}) {
		fwd = tangent(xmath.V3(0, 1, 0), up)
	}
	return ecs.CoordinateSystem{
		Forward: fwd,
		Right:   up.Cross(fwd),
		Up:      up,
	}
}

func tangent(axis, up xmath.Vec3) xmath.Vec3 {
	return axis.Sub(up.Mul(axis.Dot(up))).Normalized()
}
