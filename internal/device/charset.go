package device

import (
	"encoding/binary"
	"strings"
	"unicode/utf16"
)

// DecodeCharset decodes a device-reported byte string into UTF-8, per
// spec.md §4.A: "Descriptions are decoded from the reported charset
// (ASCII, Latin-1, Shift-JIS, UTF-8, UTF-16 BE/LE, UTF-32) into UTF-8.
// Unknown charsets fall back to ASCII-only with ? for non-printables."
//
// Shift-JIS is decoded for the ASCII and half-width-katakana ranges (the
// bytes that collide with single-byte Latin text); full double-byte
// kanji/kana decoding needs a proper Shift-JIS table, which this package
// does not carry — unmapped double-byte
// sequences fall back to '?' rather than being silently dropped.
func DecodeCharset(raw string, charset string) string {
	b := []byte(raw)
	switch charset {
	case "utf-8":
		return raw
	case "us-ascii":
		return asciiOnly(b)
	case "iso-8859-1", "iso-8859-2":
		return latin1(b)
	case "utf-16be":
		return utf16Decode(b, binary.BigEndian)
	case "utf-16le":
		return utf16Decode(b, binary.LittleEndian)
	case "utf-32be":
		return utf32Decode(b, binary.BigEndian)
	case "utf-32le":
		return utf32Decode(b, binary.LittleEndian)
	case "shift-jis":
		return shiftJIS(b)
	default:
		return asciiOnly(b)
	}
}

func asciiOnly(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		} else if c != 0 {
			sb.WriteByte('?')
		}
	}
	return sb.String()
}

func latin1(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}

func utf16Decode(b []byte, order binary.ByteOrder) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = order.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

func utf32Decode(b []byte, order binary.ByteOrder) string {
	var sb strings.Builder
	for i := 0; i+4 <= len(b); i += 4 {
		sb.WriteRune(rune(order.Uint32(b[i:])))
	}
	return sb.String()
}

// shiftJIS decodes the ASCII/half-width-katakana subset of Shift-JIS
// (single bytes 0x00-0x7f and 0xa1-0xdf); any other byte begins a
// double-byte sequence we cannot resolve without a full JIS table, so it is
// consumed as a pair and rendered as '?'.
func shiftJIS(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c < 0x80:
			if c >= 0x20 || c == 0 {
				if c != 0 {
					sb.WriteByte(c)
				}
			}
		case c >= 0xa1 && c <= 0xdf:
			// Half-width katakana block, U+FF61..U+FF9F.
			sb.WriteRune(rune(0xff61 + int(c) - 0xa1))
		default:
			sb.WriteByte('?')
			if i+1 < len(b) {
				i++
			}
		}
	}
	return sb.String()
}
