// Package conv holds allocation-conscious number formatting for status
// output. No fmt/strconv dependency so MCU builds stay small.
package conv

// Itoa writes the base-10 representation of n into buf and returns the used
// slice. buf should be length >= 20 for int64. Negative numbers supported.
func Itoa(buf []byte, n int64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	neg := n < 0
	var u uint64
	if neg {
		u = uint64(-n)
	} else {
		u = uint64(n)
	}
	if u == 0 {
		i--
		buf[i] = '0'
	} else {
		for u > 0 && i > 0 {
			i--
			buf[i] = byte('0' + (u % 10))
			u /= 10
		}
	}
	if neg && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

// ItoaStr is Itoa for callers that want a string and can afford the alloc
// (topic segments, log lines).
func ItoaStr(n int64) string {
	var buf [20]byte
	return string(Itoa(buf[:], n))
}

const hexd = "0123456789abcdef"

// Hex8 formats one byte as "0xNN".
func Hex8(b byte) string {
	return string([]byte{'0', 'x', hexd[b>>4], hexd[b&0xF]})
}

// AppendHex8 appends the two hex digits of b (no prefix) to dst.
func AppendHex8(dst []byte, b byte) []byte {
	return append(dst, hexd[b>>4], hexd[b&0xF])
}
