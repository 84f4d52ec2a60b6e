package utils

import (
	"encoding/hex"
	"strconv"
	"strings"
)

// Uint8Arr redefines how []uint8 is marshalled to JSON
// in order to display it as a list of numbers instead of a string
type Uint8Arr []uint8

func (u Uint8Arr) MarshalJSON() ([]byte, error) {
	if len(u) == 0 {
		return []byte("[]"), nil
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i, b := range u {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Itoa(int(b)))
	}
	sb.WriteByte(']')
	return []byte(sb.String()), nil
}

// ParseHexBytes decodes a hex string into bytes, tolerating an optional
// 0x prefix as well as space, colon and newline separators.
func ParseHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	return hex.DecodeString(s)
}
