package core

import (
	"math"
	"strings"
)

// Alphabet is the ordered symbol set of the base-N codec. Its length is the
// radix. It must never contain KeySeparator, ValueSeparator or NegativeSign.
const Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz+/"

// NegativeSign prefixes encodings of negative numbers.
const NegativeSign = "-"

const radix = uint64(len(Alphabet))

var symbolValues = func() [256]int8 {
	var t [256]int8
	for i := range t {
		t[i] = -1
	}
	for i := 0; i < len(Alphabet); i++ {
		t[Alphabet[i]] = int8(i)
	}
	return t
}()

// EncodeBaseN renders n most-significant symbol first. Zero is "0".
func EncodeBaseN(n int64) string {
	if n == 0 {
		return Alphabet[:1]
	}
	neg := n < 0
	var mag uint64
	if neg {
		// Negating in uint64 space keeps math.MinInt64 representable.
		mag = uint64(-(n + 1)) + 1
	} else {
		mag = uint64(n)
	}

	var buf [12]byte // 64 bits need at most 11 base-64 symbols plus the sign
	i := len(buf)
	for mag > 0 {
		i--
		buf[i] = Alphabet[mag%radix]
		mag /= radix
	}
	if neg {
		i--
		buf[i] = NegativeSign[0]
	}
	return string(buf[i:])
}

// DecodeBaseN is the inverse of EncodeBaseN.
func DecodeBaseN(s string) (int64, error) {
	if s == "" {
		return 0, &DecodeError{Field: "number", Value: s, Message: "empty input"}
	}
	digits, neg := strings.CutPrefix(s, NegativeSign)
	if digits == "" {
		return 0, &DecodeError{Field: "number", Value: s, Message: "sign without digits"}
	}

	var mag uint64
	for i := 0; i < len(digits); i++ {
		d := symbolValues[digits[i]]
		if d < 0 {
			return 0, &DecodeError{Field: "number", Value: s, Message: "symbol outside the alphabet"}
		}
		if mag > (math.MaxUint64-uint64(d))/radix {
			return 0, &DecodeError{Field: "number", Value: s, Message: "overflows int64"}
		}
		mag = mag*radix + uint64(d)
	}

	switch {
	case neg && mag == 1<<63:
		return math.MinInt64, nil
	case mag > math.MaxInt64:
		return 0, &DecodeError{Field: "number", Value: s, Message: "overflows int64"}
	case neg:
		return -int64(mag), nil
	default:
		return int64(mag), nil
	}
}
