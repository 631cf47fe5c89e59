package rtp

import "github.com/iKadmium/go-rtpmidi/wire"

// Delta times are 7-bit groups, most significant first, with the high bit
// of every byte except the last set as a continuation marker. The MIDI
// maximum is four bytes (28 bits).

const maxDeltaTime = 0x0FFFFFFF

// deltaTimeLen reports how many bytes appendDeltaTime writes for v.
func deltaTimeLen(v uint32) int {
	n := 1
	for v >>= 7; v > 0; v >>= 7 {
		n++
	}
	return n
}

func appendDeltaTime(dst []byte, v uint32) []byte {
	n := deltaTimeLen(v)
	for i := n - 1; i >= 0; i-- {
		b := byte(v>>(uint(i)*7)) & 0x7F
		if i > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

// readDeltaTime decodes one delta time from the front of data and reports
// how many bytes it consumed.
func readDeltaTime(data []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < len(data); i++ {
		v = v<<7 | uint32(data[i]&0x7F)
		if data[i]&0x80 == 0 {
			return v, i + 1, nil
		}
		if i == 3 {
			return 0, 0, errDeltaTimeTooLong
		}
	}
	return 0, 0, wire.ErrTruncatedInput
}
