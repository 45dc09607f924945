// Package meshtastic implements the mesh packet router (C1), which
// owns the outstanding-ack table. The Mesh→Signal translator (C3) lives
// in internal/bridge.
package meshtastic

import (
	"sync"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
)

// Ack is the correlation event the router emits when a routing-app
// frame's request_id matches a packet this gateway sent with want_ack.
// It mirrors spec §3's Action::MeshAck variant; internal/bridge wraps
// it into its own Action sum type so this package never imports bridge.
type Ack struct {
	PacketID  uint32
	Delivered bool
	Packet    *meshtastic.MeshPacket
}

// Router is the mesh packet router (C1): it owns the outstanding-ack
// table and surfaces ack correlation events. The caller assigns each
// outbound packet's id itself (the event loop does this, since it
// already needs the id to key the pending-ack table) and simply tells
// the router about it via ObserveOutgoing. It is the Go analogue of the
// `PacketRouter` callback interface the original source's radio library
// required; here it is just a plain struct the event loop calls
// directly.
type Router struct {
	sourceNodeID uint32

	mu          sync.Mutex
	outstanding map[uint32]*meshtastic.MeshPacket

	acks chan<- Ack
}

// NewRouter constructs a Router for the gateway's own node id. acks
// should be buffered enough that the event loop (its sole reader) never
// blocks the router; spec §4.1 expects the outstanding table to stay in
// the tens of entries.
func NewRouter(sourceNodeID uint32, acks chan<- Ack) *Router {
	return &Router{
		sourceNodeID: sourceNodeID,
		outstanding:  map[uint32]*meshtastic.MeshPacket{},
		acks:         acks,
	}
}

// SourceNodeID returns the gateway's own mesh node id.
func (r *Router) SourceNodeID() uint32 {
	return r.sourceNodeID
}

// ObserveOutgoing is called for every mesh packet the bridge sends. If
// the packet requested an ack, it is recorded in the outstanding table
// under its already-assigned id; uncorrelated sends (want_ack false)
// are otherwise untracked.
func (r *Router) ObserveOutgoing(packet *meshtastic.MeshPacket) {
	if !packet.GetWantAck() {
		return
	}
	r.mu.Lock()
	r.outstanding[packet.GetId()] = packet
	r.mu.Unlock()
}

// ObserveIncoming inspects a frame from the radio. If it is a decoded
// packet on the routing app port with a non-zero request_id matching an
// outstanding send, it removes that entry and emits a delivered Ack.
// Any other frame — including a routing ack for an unknown request_id
// — is ignored here silently (spec §4.1, §7): higher-level parsing of
// the frame for bridging purposes is C3's job, not the router's.
func (r *Router) ObserveIncoming(packet *meshtastic.MeshPacket) {
	decoded := packet.GetDecoded()
	if decoded == nil {
		return
	}
	if decoded.GetPortnum() != meshtastic.PortNum_ROUTING_APP {
		return
	}
	requestID := decoded.GetRequestId()
	if requestID == 0 {
		return
	}

	r.mu.Lock()
	original, ok := r.outstanding[requestID]
	if ok {
		delete(r.outstanding, requestID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.acks <- Ack{PacketID: requestID, Delivered: true, Packet: original}
}

// Outstanding returns the number of packets still awaiting an ack, for
// diagnostics/tests.
func (r *Router) Outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outstanding)
}
