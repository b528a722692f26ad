package line2d

import (
	"math"
	"math/bits"
)

const (
	// NumOrientations is the number of orientation bins covering [0, 180).
	// Changing it invalidates every persisted template.
	NumOrientations = 8

	// MaxSimilarity is the response of a perfectly aligned feature.
	MaxSimilarity = 4

	// MaxFeatures bounds the features of one template level so that a uint16
	// accumulator holding MaxSimilarity per feature can never overflow.
	MaxFeatures = math.MaxUint16 / MaxSimilarity

	binWidth = 180.0 / NumOrientations

	// boundaryEpsilon is how close, in degrees, an angle must be to a bin
	// boundary to count as lying on it. It absorbs the rounding of a+180.
	boundaryEpsilon = 1e-9
)

// Orientation is a bit set over orientation bins. Quantized pixels and
// template features carry exactly one bit; spread maps may carry several.
type Orientation uint8

// NoOrientation marks a pixel whose gradient is too weak to quantize.
const NoOrientation Orientation = 0

// Quantize maps a gradient direction to a one-hot orientation.
//
// Parameters:
//   - angleDeg: gradient direction in degrees, any range is accepted
//   - magnitude: gradient magnitude
//   - minMagnitude: gradients weaker than this yield NoOrientation
//
// Returns a one-hot Orientation, or NoOrientation for weak gradients and NaN
// input.
//
// # Algorithm
//
// Direction is line-symmetric, so the angle is reduced modulo 180 and split
// into NumOrientations equal bins. Bin i covers (i*w, (i+1)*w] with w =
// 180/NumOrientations, except bin 0 which also owns 0 itself. An angle that
// lies on a boundary therefore resolves to the lower bin. Angles within
// boundaryEpsilon of a boundary are snapped onto it first, so a and a+180
// land in the same bin even when the addition rounds.
func Quantize(angleDeg, magnitude, minMagnitude float64) Orientation {
	if !(magnitude >= minMagnitude) || math.IsNaN(angleDeg) || math.IsInf(angleDeg, 0) {
		return NoOrientation
	}
	a := math.Mod(angleDeg, 180)
	if a < 0 {
		a += 180
	}
	if k := math.Round(a / binWidth); math.Abs(a-k*binWidth) < boundaryEpsilon {
		a = k * binWidth
	}
	if a >= 180 {
		a -= 180
	}
	return FromIndex(binOf(a))
}

func binOf(a float64) int {
	b := int(math.Ceil(a/binWidth)) - 1
	if b < 0 {
		return 0
	}
	if b >= NumOrientations {
		return NumOrientations - 1
	}
	return b
}

// FromIndex returns the one-hot orientation for bin i. Out-of-range indices
// yield NoOrientation.
func FromIndex(i int) Orientation {
	if i < 0 || i >= NumOrientations {
		return NoOrientation
	}
	return Orientation(1 << uint(i))
}

// Valid reports whether exactly one bit is set.
func (o Orientation) Valid() bool {
	return o != 0 && o&(o-1) == 0
}

// Index returns the bin of a one-hot orientation, or -1 if o is not one-hot.
func (o Orientation) Index() int {
	if !o.Valid() {
		return -1
	}
	return bits.TrailingZeros8(uint8(o))
}

// similarity[bin][mask] is the response of a feature in bin against a pixel
// whose spread mask is mask. Built once and read-only afterwards.
var similarity = buildSimilarity()

func buildSimilarity() (t [NumOrientations][256]uint8) {
	for bin := 0; bin < NumOrientations; bin++ {
		for mask := 1; mask < 256; mask++ {
			best := 0
			for j := 0; j < NumOrientations; j++ {
				if mask&(1<<uint(j)) == 0 {
					continue
				}
				if s := MaxSimilarity - circularDistance(bin, j); s > best {
					best = s
				}
			}
			t[bin][mask] = uint8(best)
		}
	}
	return t
}

// circularDistance is the bin distance on the half-circle, 0..NumOrientations/2.
func circularDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d > NumOrientations-d {
		d = NumOrientations - d
	}
	return d
}

// Similarity returns the response of a feature in bin against an orientation
// mask: MaxSimilarity for an exact bin, one less per bin of angular distance,
// zero for orthogonal bins and empty masks.
func Similarity(bin int, mask Orientation) uint8 {
	if bin < 0 || bin >= NumOrientations {
		return 0
	}
	return similarity[bin][mask]
}
