package mqttbridge

import (
	"testing"
	"time"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

// fakeMessage implements mqtt.Message without a real broker connection,
// so handle's decode path can be exercised directly.
type fakeMessage struct {
	payload []byte
}

func (f *fakeMessage) Duplicate() bool   { return false }
func (f *fakeMessage) Qos() byte         { return 0 }
func (f *fakeMessage) Retained() bool    { return false }
func (f *fakeMessage) Topic() string     { return "msh/US/2/e/LongFast/!aaaa0001" }
func (f *fakeMessage) MessageID() uint16 { return 0 }
func (f *fakeMessage) Payload() []byte   { return f.payload }
func (f *fakeMessage) Ack()              {}

func TestUplink_HandleDecodesServiceEnvelope(t *testing.T) {
	u := &Uplink{frames: make(chan *meshtastic.FromRadio, 1)}

	envelope := &meshtastic.ServiceEnvelope{
		Packet: &meshtastic.MeshPacket{
			From: 0xAAAA0001,
			PayloadVariant: &meshtastic.MeshPacket_Decoded{Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte("hi"),
			}},
		},
	}
	payload, err := proto.Marshal(envelope)
	require.NoError(t, err)

	u.handle(nil, &fakeMessage{payload: payload})

	select {
	case frame := <-u.frames:
		pkt := frame.GetPacket()
		require.Equal(t, uint32(0xAAAA0001), pkt.GetFrom())
		require.Equal(t, "hi", string(pkt.GetDecoded().GetPayload()))
	case <-time.After(time.Second):
		t.Fatal("no frame produced")
	}
}

func TestUplink_HandleDropsEnvelopeWithoutPacket(t *testing.T) {
	u := &Uplink{frames: make(chan *meshtastic.FromRadio, 1)}
	payload, err := proto.Marshal(&meshtastic.ServiceEnvelope{})
	require.NoError(t, err)

	u.handle(nil, &fakeMessage{payload: payload})

	select {
	case <-u.frames:
		t.Fatal("expected no frame for an envelope with no packet")
	case <-time.After(50 * time.Millisecond):
	}
}
