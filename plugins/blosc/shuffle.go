package blosc

// Shuffle modes for the "shuffle" configuration key.
const (
	ShuffleNone = 0
	ShuffleByte = 1
	ShuffleBit  = 2
)

// byteShuffle rearranges src as byte planes: byte k of every element is
// grouped together. Elements are typeSize bytes; a trailing remainder
// that does not fill an element is appended untouched.
func byteShuffle(src []byte, typeSize int) []byte {
	if typeSize <= 1 {
		return append([]byte(nil), src...)
	}
	n := len(src) / typeSize
	dst := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for k := 0; k < typeSize; k++ {
			dst[k*n+i] = src[i*typeSize+k]
		}
	}
	copy(dst[n*typeSize:], src[n*typeSize:])
	return dst
}

// byteUnshuffle reverses byteShuffle.
func byteUnshuffle(src []byte, typeSize int) []byte {
	if typeSize <= 1 {
		return append([]byte(nil), src...)
	}
	n := len(src) / typeSize
	dst := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for k := 0; k < typeSize; k++ {
			dst[i*typeSize+k] = src[k*n+i]
		}
	}
	copy(dst[n*typeSize:], src[n*typeSize:])
	return dst
}

// bitShuffle groups bit planes across elements: bit b of every element
// is packed together. Slow reference implementation; the element count
// must be a multiple of 8 for exact packing, otherwise the remainder
// bytes are appended untouched.
func bitShuffle(src []byte, typeSize int) []byte {
	if typeSize < 1 {
		typeSize = 1
	}
	bits := typeSize * 8
	n := len(src) / typeSize
	full := (n / 8) * 8
	if full == 0 {
		return append([]byte(nil), src...)
	}
	dst := make([]byte, len(src))
	for b := 0; b < bits; b++ {
		for i := 0; i < full; i++ {
			byteIdx := i*typeSize + b/8
			bit := (src[byteIdx] >> (b % 8)) & 1
			outPos := b*full + i
			if bit != 0 {
				dst[outPos/8] |= 1 << (outPos % 8)
			}
		}
	}
	copy(dst[full*typeSize:], src[full*typeSize:])
	return dst
}

// bitUnshuffle reverses bitShuffle.
func bitUnshuffle(src []byte, typeSize int) []byte {
	if typeSize < 1 {
		typeSize = 1
	}
	bits := typeSize * 8
	n := len(src) / typeSize
	full := (n / 8) * 8
	if full == 0 {
		return append([]byte(nil), src...)
	}
	dst := make([]byte, len(src))
	for b := 0; b < bits; b++ {
		for i := 0; i < full; i++ {
			inPos := b*full + i
			bit := (src[inPos/8] >> (inPos % 8)) & 1
			if bit != 0 {
				dst[i*typeSize+b/8] |= 1 << (b % 8)
			}
		}
	}
	copy(dst[full*typeSize:], src[full*typeSize:])
	return dst
}

// applyShuffle runs the configured pre-filter over src.
func applyShuffle(mode int, src []byte, typeSize int) []byte {
	switch mode {
	case ShuffleByte:
		return byteShuffle(src, typeSize)
	case ShuffleBit:
		return bitShuffle(src, typeSize)
	default:
		return src
	}
}

// removeShuffle reverses applyShuffle.
func removeShuffle(mode int, src []byte, typeSize int) []byte {
	switch mode {
	case ShuffleByte:
		return byteUnshuffle(src, typeSize)
	case ShuffleBit:
		return bitUnshuffle(src, typeSize)
	default:
		return src
	}
}
