// Package fixed provides the integer-backed fixed-point arithmetic used by
// the simulation. Every quantity that crosses the network or feeds the state
// checksum is a Fixed32; IEEE-754 floats never touch simulation state, which
// is what makes the lockstep byte-identical across platforms.
package fixed

// FracBits is the number of fractional bits in a Fixed32.
const FracBits = 8

// One is the Fixed32 representation of 1.
const One = Fixed32(1 << FracBits)

// Fixed32 is a signed fixed-point scalar with FracBits fractional bits.
type Fixed32 int32

// FromInt converts an integer to fixed-point.
func FromInt(v int) Fixed32 {
	return Fixed32(v << FracBits)
}

// FromRaw wraps a raw fixed-point bit pattern.
func FromRaw(raw int32) Fixed32 {
	return Fixed32(raw)
}

// Raw returns the underlying bit pattern.
func (f Fixed32) Raw() int32 {
	return int32(f)
}

// Int returns the integer part, truncating toward zero.
func (f Fixed32) Int() int {
	if f < 0 {
		return -int(-f >> FracBits)
	}
	return int(f >> FracBits)
}

// Mul multiplies two fixed-point values, rounding toward zero.
func (f Fixed32) Mul(other Fixed32) Fixed32 {
	return Fixed32((int64(f) * int64(other)) / int64(One))
}

// Div divides f by other, rounding toward zero. other must be non-zero.
func (f Fixed32) Div(other Fixed32) Fixed32 {
	return Fixed32((int64(f) << FracBits) / int64(other))
}

// Abs returns the absolute value.
func (f Fixed32) Abs() Fixed32 {
	if f < 0 {
		return -f
	}
	return f
}

// Sqrt returns the integer square root of f in fixed-point, computed with
// Newton's method over int64. Used for distances; never called with negative
// input on simulation paths.
func (f Fixed32) Sqrt() Fixed32 {
	if f <= 0 {
		return 0
	}
	// sqrt(raw * 2^frac) in raw units = sqrt(value) in fixed-point
	n := int64(f) << FracBits
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return Fixed32(x)
}

// Vec2 is a 2D fixed-point vector. Unit positions use Vec2 for sub-tile
// precision; cell-level coordinates stay plain ints.
type Vec2 struct {
	X, Y Fixed32
}

// V2 builds a Vec2 from two fixed-point components.
func V2(x, y Fixed32) Vec2 {
	return Vec2{X: x, Y: y}
}

// V2FromInt builds a Vec2 from integer components.
func V2FromInt(x, y int) Vec2 {
	return Vec2{X: FromInt(x), Y: FromInt(y)}
}

// Add returns v + other.
func (v Vec2) Add(other Vec2) Vec2 {
	return Vec2{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns v - other.
func (v Vec2) Sub(other Vec2) Vec2 {
	return Vec2{X: v.X - other.X, Y: v.Y - other.Y}
}

// DistanceTo returns the euclidean distance between two points.
func (v Vec2) DistanceTo(other Vec2) Fixed32 {
	dx := (v.X - other.X).Abs()
	dy := (v.Y - other.Y).Abs()
	return (dx.Mul(dx) + dy.Mul(dy)).Sqrt()
}

// StepToward moves v up to amount toward target along the straight line
// between them. Returns the new position and the amount of movement actually
// consumed.
func (v Vec2) StepToward(target Vec2, amount Fixed32) (Vec2, Fixed32) {
	dist := v.DistanceTo(target)
	if dist <= amount {
		return target, dist
	}
	// Interpolate: v + (target-v) * amount/dist, in int64 so a truncated
	// ratio does not shorten the step.
	return Vec2{
		X: v.X + Fixed32(int64(target.X-v.X)*int64(amount)/int64(dist)),
		Y: v.Y + Fixed32(int64(target.Y-v.Y)*int64(amount)/int64(dist)),
	}, amount
}
