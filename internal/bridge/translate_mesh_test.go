package bridge

import (
	"testing"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

func textPacket(from uint32, channel uint32, body string) *meshtastic.MeshPacket {
	return &meshtastic.MeshPacket{
		From:    from,
		Channel: channel,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte(body),
			},
		},
	}
}

func newTestModel() *Model {
	return NewModel(uuid.New(), signal.GroupMasterKey{0x42}, 1)
}

func TestTranslateFromRadio_BridgesChannelText(t *testing.T) {
	m := newTestModel()
	m.UpsertNode(MeshNodeInfo{Num: 0xAAAA0001, LongName: "Alice", ShortName: "AL"})

	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{
		Packet: textPacket(0xAAAA0001, 1, "Hello from mesh!"),
	}}

	action := TranslateFromRadio(m, frame)
	require.NotNil(t, action)
	require.NotNil(t, action.SendToGroup)
	require.Equal(t, "Alice:\nHello from mesh!", action.SendToGroup.Message)
	require.Equal(t, m.BridgedGroupKey, action.SendToGroup.MasterKey)
	require.Equal(t, []signal.BodyRange{{Start: 0, Length: 5, Style: signal.StyleBold}}, action.SendToGroup.BodyRanges)
}

func TestTranslateFromRadio_UnknownNodeFallsBackToHex(t *testing.T) {
	m := newTestModel()
	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{
		Packet: textPacket(0xAAAA0001, 1, "hi"),
	}}

	action := TranslateFromRadio(m, frame)
	require.NotNil(t, action)
	require.Equal(t, "aaaa0001:\nhi", action.SendToGroup.Message)
}

func TestTranslateFromRadio_PingOnChannelZeroUnicasts(t *testing.T) {
	m := newTestModel()
	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{
		Packet: textPacket(0xAAAA0001, 0, pingBody),
	}}

	action := TranslateFromRadio(m, frame)
	require.NotNil(t, action)
	require.NotNil(t, action.SendToMesh)
	require.Equal(t, pongBody, action.SendToMesh.Body)
	require.Equal(t, uint32(0), action.SendToMesh.Channel)
	require.False(t, action.SendToMesh.Destination.Broadcast)
	require.Equal(t, uint32(0xAAAA0001), action.SendToMesh.Destination.NodeNum)
}

func TestTranslateFromRadio_PingOnBridgedChannelBroadcasts(t *testing.T) {
	m := newTestModel()
	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{
		Packet: textPacket(0xAAAA0001, 1, pingBody),
	}}

	action := TranslateFromRadio(m, frame)
	require.NotNil(t, action)
	require.Equal(t, uint32(1), action.SendToMesh.Channel)
	require.True(t, action.SendToMesh.Destination.Broadcast)
}

func TestTranslateFromRadio_EncryptedPacketIgnored(t *testing.T) {
	m := newTestModel()
	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{
		Packet: &meshtastic.MeshPacket{
			PayloadVariant: &meshtastic.MeshPacket_Encrypted{Encrypted: []byte{1, 2, 3}},
		},
	}}

	require.Nil(t, TranslateFromRadio(m, frame))
}

func TestTranslateFromRadio_InvalidUTF8Ignored(t *testing.T) {
	m := newTestModel()
	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{
		Packet: textPacket(0xAAAA0001, 1, string([]byte{0xff, 0xfe})),
	}}

	require.Nil(t, TranslateFromRadio(m, frame))
}

func TestTranslateFromRadio_OtherChannelIgnored(t *testing.T) {
	m := newTestModel()
	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Packet{
		Packet: textPacket(0xAAAA0001, 3, "hello"),
	}}

	require.Nil(t, TranslateFromRadio(m, frame))
}

func TestTranslateFromRadio_ChannelConfigUpserted(t *testing.T) {
	m := newTestModel()
	frame := &meshtastic.FromRadio{PayloadVariant: &meshtastic.FromRadio_Channel{
		Channel: &meshtastic.Channel{
			Index: 1,
			Settings: &meshtastic.ChannelSettings{
				Name: "gateway",
				Psk:  []byte{0x01},
			},
		},
	}}

	require.Nil(t, TranslateFromRadio(m, frame))
	require.Equal(t, "gateway", m.Channels[1].Name)
}
