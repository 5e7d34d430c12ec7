package geom

import "math"

// Vec3 is a world-space position. Y is up; the simulation plane is X/Z.
type Vec3 struct{ X, Y, Z float64 }

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z} }

func (a Vec3) Scale(f float64) Vec3 { return Vec3{X: a.X * f, Y: a.Y * f, Z: a.Z * f} }

func (a Vec3) Len() float64 { return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z) }

func (a Vec3) Array() [3]float64 { return [3]float64{a.X, a.Y, a.Z} }

func FromArray(v [3]float64) Vec3 { return Vec3{X: v[0], Y: v[1], Z: v[2]} }

// Dist is the straight-line distance between a and b.
func Dist(a, b Vec3) float64 { return b.Sub(a).Len() }

// YawToward returns the heading in degrees [0,360) that faces from -> to on
// the X/Z plane. 0 faces +Z, 90 faces +X.
func YawToward(from, to Vec3) float64 {
	dx := to.X - from.X
	dz := to.Z - from.Z
	if dx == 0 && dz == 0 {
		return 0
	}
	return NormalizeDeg(math.Atan2(dx, dz) * 180 / math.Pi)
}

func NormalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// AngleDiff is the smallest absolute difference between two headings, in [0,180].
func AngleDiff(a, b float64) float64 {
	d := math.Abs(NormalizeDeg(a) - NormalizeDeg(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// MoveToward steps from cur toward target by at most step units.
func MoveToward(cur, target Vec3, step float64) (Vec3, bool) {
	d := target.Sub(cur)
	l := d.Len()
	if l <= step || l == 0 {
		return target, true
	}
	return cur.Add(d.Scale(step / l)), false
}
