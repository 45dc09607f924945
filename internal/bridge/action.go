// Package bridge implements the bridge's core: the Action sum type and
// in-memory Model (C6), the Mesh→Signal and Signal→Mesh translators (C3,
// C4), and the event multiplexer (C5) that ties them together with the
// mesh router (internal/meshtastic) and the Signal command spawner
// (internal/signal). This is "the heart of the core" spec §4.5 describes.
package bridge

import (
	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/google/uuid"

	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

// Destination names the recipient of a SendToMesh action.
type Destination struct {
	Broadcast bool
	NodeNum   uint32 // meaningful only when Broadcast is false
}

func BroadcastDestination() Destination { return Destination{Broadcast: true} }
func NodeDestination(num uint32) Destination {
	return Destination{Broadcast: false, NodeNum: num}
}

// SignalCorrelation is attached to a SendToMesh action that originated
// from a Signal message requesting delivery acknowledgement; once the
// mesh send's assigned packet id is known it becomes a PendingAck entry.
type SignalCorrelation struct {
	SenderUUID    uuid.UUID
	SentTimestamp uint64
	Body          string
}

// Received is the payload of Action's Receive variant — one of the
// three shapes the Signal client's push stream produces.
type Received struct {
	Content    *signal.Content // non-nil for the Content sub-variant
	Contacts   bool            // true for the Contacts sub-variant
	QueueEmpty bool            // true for the QueueEmpty sub-variant
}

// Action is the bridge's only inter-component message currency (spec §3).
type Action struct {
	FromRadio *meshtastic.FromRadio

	Receive *Received

	SendToMesh *SendToMesh

	SendToGroup *SendToGroup

	MeshAck *MeshAck

	Link *LinkEvent

	Quit bool
}

type SendToMesh struct {
	Body        string
	Channel     uint32
	Destination Destination
	Correlation *SignalCorrelation
}

type SendToGroup struct {
	Message    string
	MasterKey  signal.GroupMasterKey
	BodyRanges []signal.BodyRange
}

type MeshAck struct {
	PacketID  uint32
	Delivered bool
}

// LinkEvent carries the bootstrap-only linking sub-state-machine's
// events (spec §4.5/§4.7): a new QR url to draw, success, or failure.
type LinkEvent struct {
	URL     string
	Success bool
	Fail    bool
}
