package signal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoldRange_ASCIIName(t *testing.T) {
	r := BoldRange("Alice")
	require.Equal(t, BodyRange{Start: 0, Length: 5, Style: StyleBold}, r)
}

func TestUTF16Len_Emoji(t *testing.T) {
	// An emoji outside the BMP (e.g. 😀) is two UTF-16 code units.
	require.Equal(t, 2, UTF16Len("😀"))
	require.Equal(t, 1, UTF16Len("A"))
}

func TestUTF16OffsetRoundTrip(t *testing.T) {
	s := "Alice: 😀 hi"
	for _, u16 := range []int{0, 1, 5, 7, 9} {
		b := UTF16OffsetToByteOffset(s, u16)
		got := ByteOffsetToUTF16Offset(s, b)
		require.Equal(t, u16, got, "u16=%d byte=%d", u16, b)
	}
}
