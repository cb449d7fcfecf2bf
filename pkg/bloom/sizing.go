package bloom

import "math"

// OptimalParams returns filter params for expectedItems elements at the
// target false positive rate.
//
//	m = -n*ln(p) / ln(2)^2, rounded up to a multiple of 64
//	k = m/n * ln(2), clamped to [1, MaxHashFunctions]
func OptimalParams(expectedItems int, fpRate float64) Params {
	if expectedItems < 1 {
		expectedItems = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}
	n := float64(expectedItems)
	m := math.Ceil(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	mBits := roundUpToWord(m)

	k := math.Round(float64(mBits) / n * math.Ln2)
	if k < 1 {
		k = 1
	}
	if k > MaxHashFunctions {
		k = MaxHashFunctions
	}
	return Params{MBits: mBits, K: uint8(k)}
}

func roundUpToWord(m float64) uint32 {
	if m < WordBits {
		return WordBits
	}
	max := float64(math.MaxUint32 - math.MaxUint32%WordBits)
	if m > max {
		return uint32(max)
	}
	words := math.Ceil(m / WordBits)
	return uint32(words) * WordBits
}
