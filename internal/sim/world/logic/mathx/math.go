package mathx

import "math"

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func Mod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// FloorToInt is math.Floor narrowed to int. Non-finite input maps to math.MinInt so it can never
// land inside a world.
func FloorToInt(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return math.MinInt
	}
	f := math.Floor(v)
	if f <= math.MinInt32 {
		return math.MinInt32
	}
	if f >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

func Lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func Hash2(seed int64, x, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func Hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

// Unit maps a hash to [0, 1).
func Unit(h uint64) float64 {
	return float64(h>>11) / (1 << 53)
}

// Signed maps a hash to [-1, 1).
func Signed(h uint64) float64 {
	return Unit(h)*2 - 1
}
