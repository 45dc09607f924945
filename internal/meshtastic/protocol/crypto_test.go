package protocol

import (
	"testing"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"
)

func TestExtractData_Decoded(t *testing.T) {
	pkt := &meshtastic.MeshPacket{
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte("hello"),
			},
		},
	}
	data, err := ExtractData(pkt)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), data.Payload)
}

func TestExtractData_Encrypted(t *testing.T) {
	pkt := &meshtastic.MeshPacket{
		PayloadVariant: &meshtastic.MeshPacket_Encrypted{Encrypted: []byte{0x01, 0x02}},
	}
	_, err := ExtractData(pkt)
	require.ErrorIs(t, err, ErrEncryptedPayload)
}

func TestExtractData_Unset(t *testing.T) {
	pkt := &meshtastic.MeshPacket{}
	_, err := ExtractData(pkt)
	require.ErrorIs(t, err, ErrUnknownPayloadType)
}

func TestDecodeText(t *testing.T) {
	s, err := DecodeText([]byte("Hello from mesh!"))
	require.NoError(t, err)
	require.Equal(t, "Hello from mesh!", s)

	_, err = DecodeText([]byte{0xff, 0xfe, 0xfd})
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestChannelHash(t *testing.T) {
	h1, err := ChannelHash("LongFast", DefaultKey)
	require.NoError(t, err)
	h2, err := ChannelHash("LongFast", DefaultKey)
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	_, err = ChannelHash("LongFast", nil)
	require.ErrorIs(t, err, ErrInvalidKeyLength)
}

func TestParseKey(t *testing.T) {
	key, err := ParseKey("AQ==")
	require.NoError(t, err)
	require.Len(t, key, 1)
}
