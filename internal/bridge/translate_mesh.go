package bridge

import (
	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"

	"github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic/protocol"
	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

const pingBody = "/ping"
const pongBody = "pong!"

// TranslateFromRadio is the Mesh→Signal translator (C3): invoked
// synchronously on Action::FromRadio(frame), it applies spec §4.3's
// decision table and returns at most one follow-up Action (C5 applies
// it before re-entering the select — spec §4.5 step 3's drain).
func TranslateFromRadio(m *Model, frame *meshtastic.FromRadio) *Action {
	switch payload := frame.GetPayloadVariant().(type) {
	case *meshtastic.FromRadio_Channel:
		settings := payload.Channel.GetSettings()
		m.UpsertChannel(ChannelSettings{
			Index: uint32(payload.Channel.GetIndex()),
			Name:  settings.GetName(),
			PSK:   settings.GetPsk(),
		})
		return nil

	case *meshtastic.FromRadio_NodeInfo:
		info := payload.NodeInfo
		user := info.GetUser()
		m.UpsertNode(MeshNodeInfo{
			Num:       info.GetNum(),
			LongName:  user.GetLongName(),
			ShortName: user.GetShortName(),
		})
		return nil

	case *meshtastic.FromRadio_Packet:
		return translatePacket(m, payload.Packet)

	default:
		return nil
	}
}

func translatePacket(m *Model, pkt *meshtastic.MeshPacket) *Action {
	data, err := protocol.ExtractData(pkt)
	if err != nil {
		// Encrypted payload, absent payload, or unknown variant: log
		// and drop (spec §4.3 rows 3-4, §7).
		log.Debug("dropping mesh packet without decoded payload", "err", err)
		return nil
	}

	if data.GetPortnum() != meshtastic.PortNum_TEXT_MESSAGE_APP {
		return nil
	}

	channel := pkt.GetChannel()
	if channel != 0 && channel != m.BridgedChannelIdx {
		return nil
	}

	body, err := protocol.DecodeText(data.GetPayload())
	if err != nil {
		// Invalid UTF-8: log and drop (spec §4.3 row "body invalid UTF-8").
		log.Debug("dropping mesh text frame", "err", err)
		return nil
	}

	if body == pingBody {
		return replyPing(m, pkt, channel)
	}

	if channel != m.BridgedChannelIdx {
		// Text on channel 0 that isn't /ping has no bridged outcome.
		return nil
	}

	return bridgeMeshText(m, pkt, body)
}

func replyPing(m *Model, pkt *meshtastic.MeshPacket, channel uint32) *Action {
	destination := BroadcastDestination()
	if channel == 0 {
		destination = NodeDestination(pkt.GetFrom())
	}
	return &Action{SendToMesh: &SendToMesh{
		Body:        pongBody,
		Channel:     channel,
		Destination: destination,
	}}
}

// bridgeMeshText implements spec §4.3's "Bridging a channel text
// message": look up the sender's name (hex fallback on miss — the fix
// for the source's known panic defect, spec §7/§9), prefix the body
// with a "<name>:\n" header whose name part is bold, and forward to the
// bridged group.
func bridgeMeshText(m *Model, pkt *meshtastic.MeshPacket, body string) *Action {
	name := m.NodeName(pkt.GetFrom())
	message := name + ":\n" + body

	return &Action{SendToGroup: &SendToGroup{
		Message:    message,
		MasterKey:  m.BridgedGroupKey,
		BodyRanges: []signal.BodyRange{signal.BoldRange(name)},
	}}
}
