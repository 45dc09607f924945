package signal

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Signal's BodyRange.Start/Length are measured in UTF-16 code units
// (matching the JS/Swift/Kotlin Signal clients' native string
// representation), while Go strings are UTF-8 bytes. These helpers
// convert between the two, grounded on d99kris-nchat's gosg.go
// (utf16OffsetToByteOffset / byteOffsetToUtf16Offset), which every
// Signal desktop bridge needs for exactly this reason.

// UTF16OffsetToByteOffset converts a UTF-16 code-unit offset into s
// into the equivalent UTF-8 byte offset.
func UTF16OffsetToByteOffset(s string, utf16Offset int) int {
	if utf16Offset <= 0 {
		return 0
	}
	units := 0
	for byteOffset, r := range s {
		n := 1
		if r > 0xFFFF {
			n = 2
		}
		if units+n > utf16Offset {
			return byteOffset
		}
		units += n
		if units == utf16Offset {
			// advance past this rune's bytes
			return byteOffset + runeByteLen(s[byteOffset:])
		}
	}
	return len(s)
}

// ByteOffsetToUTF16Offset converts a UTF-8 byte offset into s into the
// equivalent UTF-16 code-unit offset.
func ByteOffsetToUTF16Offset(s string, byteOffset int) int {
	if byteOffset <= 0 {
		return 0
	}
	units := 0
	for off, r := range s {
		if off >= byteOffset {
			break
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return units
}

// UTF16Len returns the length of s measured in UTF-16 code units — the
// unit BodyRange.Length is expressed in.
func UTF16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}

func runeByteLen(s string) int {
	if s == "" {
		return 0
	}
	_, size := utf8.DecodeRuneInString(s)
	return size
}

// BoldRange returns a BodyRange covering [0, UTF16Len(name)) with
// BOLD style — the "sender name prefix in bold" formatting both C3 and
// C4 use (spec §4.3, §4.4).
func BoldRange(name string) BodyRange {
	return BodyRange{Start: 0, Length: UTF16Len(name), Style: StyleBold}
}
