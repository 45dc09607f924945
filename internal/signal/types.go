// Package signal implements the Signal-facing half of the bridge: the
// command spawner (C2) that owns the Signal client, Signal→mesh body
// formatting helpers shared with the bridge's translator (C4), and the
// first-run device-linking bootstrap (part of C7).
package signal

import "github.com/google/uuid"

// GroupMasterKey is opaque to the bridge beyond equality and
// use-as-a-send-target (spec §3).
type GroupMasterKey [32]byte

// Contact is the bridge's projection of a Signal contact (spec §3).
type Contact struct {
	UUID        uuid.UUID
	DisplayName string // empty if unknown
	ProfileKey  []byte // nil if unknown
}

// Group is the bridge's projection of a Signal group the account is a
// member of (used for the one-time "here are your groups" startup
// listing — SPEC_FULL.md's supplemented feature from original_source's
// main.rs, which prints every group's key/title so the operator can
// find the one to put in config.toml).
type Group struct {
	MasterKey GroupMasterKey
	Title     string
}

// BodyStyle mirrors Signal's BodyRange.Style enum. Only the styles the
// bridge actually emits (bold headers) or could plausibly receive are
// named; others round-trip as Style value 0 (NONE) if ever seen.
type BodyStyle int

const (
	StyleNone BodyStyle = iota
	StyleBold
	StyleItalic
	StyleStrikethrough
	StyleMonospace
)

// BodyRange is a UTF-16-code-unit-addressed formatting span over a
// message body, matching Signal's wire representation (gosg.go's
// utf16OffsetToByteOffset/byteOffsetToUtf16Offset is why — see
// bodyrange.go).
type BodyRange struct {
	Start  int
	Length int
	Style  BodyStyle
}

// Thread is the Signal notion of a conversation: either a contact or a
// group, addressed by master key (spec Glossary).
type Thread struct {
	ContactUUID uuid.UUID      // valid when IsGroup is false
	GroupKey    GroupMasterKey // valid when IsGroup is true
	IsGroup     bool
}

func ContactThread(id uuid.UUID) Thread    { return Thread{ContactUUID: id} }
func GroupThread(key GroupMasterKey) Thread { return Thread{GroupKey: key, IsGroup: true} }

// Content is the bridge's projection of an inbound Signal envelope
// relevant to C4. Both plain DataMessage and sync-wrapped SyncMessage
// envelopes (content from the account's own other linked devices)
// normalize to this same shape (spec §4.4 step 1/3).
type Content struct {
	Thread           Thread
	SenderUUID       uuid.UUID
	DestinationUUID  uuid.UUID // destination of a synced own send, when the producer sets it; used for self-redirect normalization
	Timestamp        uint64
	Body             string
	HasBody          bool
	IsSyncOfOwnSend  bool
}
