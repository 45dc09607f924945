package meshtastic

import (
	"testing"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"
)

func newTestRouter() (*Router, chan Ack) {
	acks := make(chan Ack, 8)
	return NewRouter(0x92345678, acks), acks
}

func TestRouter_OutgoingTracksWantAckUnderItsAssignedId(t *testing.T) {
	r, _ := newTestRouter()

	r.ObserveOutgoing(&meshtastic.MeshPacket{Id: 500, WantAck: true})
	require.Equal(t, 1, r.Outstanding())
}

func TestRouter_OutgoingWithoutWantAckNotTracked(t *testing.T) {
	r, _ := newTestRouter()

	r.ObserveOutgoing(&meshtastic.MeshPacket{Id: 501, WantAck: false})
	require.Equal(t, 0, r.Outstanding())
}

func TestRouter_IncomingRoutingAckDelivers(t *testing.T) {
	r, acks := newTestRouter()

	original := &meshtastic.MeshPacket{Id: 500, WantAck: true}
	r.ObserveOutgoing(original)

	ackFrame := &meshtastic.MeshPacket{
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum:   meshtastic.PortNum_ROUTING_APP,
				RequestId: 500,
			},
		},
	}
	r.ObserveIncoming(ackFrame)

	ack := <-acks
	require.Equal(t, uint32(500), ack.PacketID)
	require.True(t, ack.Delivered)
	require.Equal(t, 0, r.Outstanding())
}

func TestRouter_IncomingUnknownRequestIdDroppedSilently(t *testing.T) {
	r, acks := newTestRouter()

	ackFrame := &meshtastic.MeshPacket{
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum:   meshtastic.PortNum_ROUTING_APP,
				RequestId: 99999,
			},
		},
	}
	r.ObserveIncoming(ackFrame)

	select {
	case ack := <-acks:
		t.Fatalf("expected no ack, got %+v", ack)
	default:
	}
}

func TestRouter_IncomingNonRoutingFrameIgnored(t *testing.T) {
	r, acks := newTestRouter()

	r.ObserveIncoming(&meshtastic.MeshPacket{
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP},
		},
	})

	select {
	case ack := <-acks:
		t.Fatalf("expected no ack, got %+v", ack)
	default:
	}
}
