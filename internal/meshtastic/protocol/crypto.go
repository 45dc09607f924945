package protocol

import (
	"encoding/base64"
	"unicode/utf8"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
)

// DefaultKey is the well-known Meshtastic default channel key, commonly
// referenced by its base64 form "AQ==" (which decodes, via the radio
// firmware's single-byte-expansion convention, to this 16-byte AES key).
var DefaultKey = []byte{0xd4, 0xf1, 0xbb, 0x3a, 0x20, 0x29, 0x07, 0x59, 0xf0, 0xbc, 0xff, 0xab, 0xcf, 0x4e, 0x69, 0x01}

// ParseKey converts the common representation of a channel/group key
// (URL-safe base64, as stored in a Meshtastic app's channel URL) to raw
// bytes. The bridge's config.toml group_key is hex and is decoded by
// internal/config, not here.
func ParseKey(key string) ([]byte, error) {
	return base64.URLEncoding.DecodeString(key)
}

// xorHash computes a simple XOR checksum of the provided byte slice,
// used by ChannelHash below.
func xorHash(p []byte) uint8 {
	var code uint8
	for _, b := range p {
		code ^= b
	}
	return code
}

// ChannelHash returns the short hash Meshtastic firmware uses to pick
// between the (up to 8) configured channels for an incoming primary/alt
// broadcast, derived by XORing the channel name and its PSK.
func ChannelHash(channelName string, channelKey []byte) (uint32, error) {
	if len(channelKey) == 0 {
		return 0, ErrInvalidKeyLength
	}
	h := xorHash([]byte(channelName))
	h ^= xorHash(channelKey)
	return uint32(h), nil
}

// ExtractData returns the decoded Data payload of a MeshPacket. Packets
// that are still channel-encrypted are reported via ErrEncryptedPayload
// rather than decrypted here — per spec §1 that is the radio library's
// job, not the bridge's; C3 treats this error as "ignore frame".
func ExtractData(packet *meshtastic.MeshPacket) (*meshtastic.Data, error) {
	switch packet.GetPayloadVariant().(type) {
	case *meshtastic.MeshPacket_Decoded:
		return packet.GetDecoded(), nil
	case *meshtastic.MeshPacket_Encrypted:
		return nil, ErrEncryptedPayload
	default:
		return nil, ErrUnknownPayloadType
	}
}

// DecodeText validates a text-frame payload as UTF-8 and returns it as a
// string. Invalid UTF-8 is reported via ErrInvalidUTF8 so the caller can
// silently drop the frame instead of panicking (spec §7/§9).
func DecodeText(payload []byte) (string, error) {
	if !utf8.Valid(payload) {
		return "", ErrInvalidUTF8
	}
	return string(payload), nil
}
