// Package protocol holds the small set of wire-level helpers the bridge
// needs from the Meshtastic protocol: channel key parsing/hashing and
// MeshPacket payload extraction. Framing and encryption themselves are
// owned by the radio client library (see internal/meshtastic/transport);
// this package only ever sees already-decoded packets.
package protocol

import "errors"

var (
	// ErrUnknownPayloadType is returned when a MeshPacket carries neither
	// a Decoded nor an Encrypted payload variant.
	ErrUnknownPayloadType = errors.New("protocol: unknown mesh packet payload type")

	// ErrEncryptedPayload is returned for MeshPacket_Encrypted variants.
	// Decryption is out of scope for the bridge (spec §1) — channel-key
	// decryption belongs to the radio library; the bridge only ever acts
	// on packets the library has already decoded.
	ErrEncryptedPayload = errors.New("protocol: packet is still channel-encrypted")

	// ErrInvalidUTF8 is returned when a text frame's payload is not
	// valid UTF-8. Frames like this are logged and dropped, never
	// panicked on (see spec §7, §9 — fixes a documented defect in the
	// original source).
	ErrInvalidUTF8 = errors.New("protocol: text payload is not valid UTF-8")

	// ErrInvalidKeyLength is returned when a channel/group key does not
	// decode to the expected byte length.
	ErrInvalidKeyLength = errors.New("protocol: key decoded to the wrong length")
)
