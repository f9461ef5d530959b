package column

import (
	"fmt"

	"github.com/gridcap/gridcap/internal/core"
)

// MACStrLen is the fixed width of a formatted MAC address.
const MACStrLen = 17

const hexDigits = "0123456789ABCDEF"

// PutMAC renders the low 48 bits of v as colon-separated uppercase hex
// pairs into dst at off. It writes exactly MACStrLen bytes and touches no
// other state, so callers may format many addresses into one buffer from
// independent goroutines.
func PutMAC(dst []byte, off int, v uint64) {
	for b := 0; b < 6; b++ {
		octet := byte(v >> uint(40-8*b))
		dst[off] = hexDigits[octet>>4]
		dst[off+1] = hexDigits[octet&0x0f]
		off += 2
		if b < 5 {
			dst[off] = ':'
			off++
		}
	}
}

// FormatMAC renders one packed address: 0xAABBCCDDEEFF → "AA:BB:CC:DD:EE:FF".
func FormatMAC(v uint64) string {
	var buf [MACStrLen]byte
	PutMAC(buf[:], 0, v)
	return string(buf[:])
}

// ParseMAC inverts FormatMAC, recovering the packed 48-bit value.
func ParseMAC(s string) (uint64, error) {
	if len(s) != MACStrLen {
		return 0, fmt.Errorf("%w: mac %q: want %d chars", core.ErrConfigInvalid, s, MACStrLen)
	}
	var v uint64
	for b := 0; b < 6; b++ {
		pos := b * 3
		hi, ok1 := hexVal(s[pos])
		lo, ok2 := hexVal(s[pos+1])
		if !ok1 || !ok2 {
			return 0, fmt.Errorf("%w: mac %q: bad hex pair at %d", core.ErrConfigInvalid, s, pos)
		}
		if b < 5 && s[pos+2] != ':' {
			return 0, fmt.Errorf("%w: mac %q: missing separator at %d", core.ErrConfigInvalid, s, pos+2)
		}
		v = v<<8 | uint64(hi<<4|lo)
	}
	return v, nil
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

// MACColumn transforms a packed int64 address column into a fixed-width
// string column: an offsets table plus the concatenated formatted bytes.
// Each element is independent; the output layout mirrors the payload
// column so sinks handle both identically.
func MACColumn(ints []int64) ([]int32, []byte) {
	offsets := make([]int32, len(ints)+1)
	data := make([]byte, len(ints)*MACStrLen)
	for i, v := range ints {
		offsets[i] = int32(i * MACStrLen)
		PutMAC(data, i*MACStrLen, uint64(v))
	}
	offsets[len(ints)] = int32(len(data))
	return offsets, data
}
