package features

import "unicode/utf16"

// rolloutBucket maps a seed to 0..99. It is the 31-multiplier string hash over
// UTF-16 code units with 32-bit wraparound, so buckets match the ones assigned by
// the JavaScript front-ends for the same user and flag.
func rolloutBucket(seed string) int {
	var h int32
	for _, c := range utf16.Encode([]rune(seed)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return int(abs % 100)
}

// InRollout reports whether seed falls inside the first percentage buckets.
func InRollout(seed string, percentage int) bool {
	if percentage >= 100 {
		return true
	}
	if percentage <= 0 {
		return false
	}
	return rolloutBucket(seed) < percentage
}
