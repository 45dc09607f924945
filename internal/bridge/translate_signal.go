package bridge

import (
	"fmt"

	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

const (
	helpCommand    = "/help"
	channelCommand = "/channel"

	helpHeader    = "Help:"
	channelHeader = "Channel Details:"
)

// TranslateContent is the Signal→Mesh translator (C4): invoked
// synchronously on Action::Receive(Content), it applies spec §4.4's
// policy gates in order and returns at most one follow-up Action.
func TranslateContent(m *Model, content *signal.Content) *Action {
	thread := normalizeThread(m, content)

	// Gate 2: only the bridged group is in scope.
	if !thread.IsGroup || thread.GroupKey != m.BridgedGroupKey {
		return nil
	}

	// Gate 3: reaction-only/receipt messages carry no body.
	if !content.HasBody {
		return nil
	}

	if action := handleCommand(m, content.Body); action != nil {
		return action
	}

	return bridgeSignalText(m, content)
}

// normalizeThread applies spec §4.4 step 1: a direct-to-self thread
// (the account messaging itself, as sync messages do) is re-targeted
// to the contact thread of the actual destination uuid rather than a
// self-DM thread. Group threads are returned unchanged.
func normalizeThread(m *Model, content *signal.Content) signal.Thread {
	thread := content.Thread
	if content.IsSyncOfOwnSend && !thread.IsGroup && thread.ContactUUID == m.AccountUUID {
		return signal.ContactThread(content.DestinationUUID)
	}
	return thread
}

// handleCommand recognises the Signal-side command vocabulary (spec
// §4.4 step 4 / §6's command table). Returns nil if body is not a
// recognised command.
func handleCommand(m *Model, body string) *Action {
	switch {
	case body == helpCommand:
		return helpReply(m)
	case body == channelCommand:
		return channelReply(m)
	default:
		return nil
	}
}

// helpReply enumerates the supported commands, per
// original_source/tests/signal_to_mesh.rs and tests/edge_cases.rs
// (the tests are authoritative on format — spec §9).
func helpReply(m *Model) *Action {
	message := helpHeader + "\n" + channelCommand + " - show the current bridged channel\n" + helpCommand + " - show this message"
	return &Action{SendToGroup: &SendToGroup{
		Message:    message,
		MasterKey:  m.BridgedGroupKey,
		BodyRanges: []signal.BodyRange{signal.BoldRange(helpHeader)},
	}}
}

// channelReply describes the currently bridged channel's name and PSK
// (spec §4.4 step 4, §8 scenario 7).
func channelReply(m *Model) *Action {
	settings, ok := m.Channels[m.BridgedChannelIdx]
	name := settings.Name
	if !ok || name == "" {
		name = fmt.Sprintf("#%d", m.BridgedChannelIdx)
	}

	message := fmt.Sprintf("%s\nName: %s\nPSK: %x", channelHeader, name, settings.PSK)
	return &Action{SendToGroup: &SendToGroup{
		Message:    message,
		MasterKey:  m.BridgedGroupKey,
		BodyRanges: []signal.BodyRange{signal.BoldRange(channelHeader)},
	}}
}

// bridgeSignalText implements spec §4.4 step 5: the normal bridge
// path. The sender's display name prefixes the mesh body; a
// correlation record is attached so C5 can build the pending-ack
// entry once the mesh send's packet id is known.
func bridgeSignalText(m *Model, content *signal.Content) *Action {
	name := m.ContactName(content.SenderUUID)

	return &Action{SendToMesh: &SendToMesh{
		Body:        name + ":\n" + content.Body,
		Channel:     m.BridgedChannelIdx,
		Destination: BroadcastDestination(),
		Correlation: &SignalCorrelation{
			SenderUUID:    content.SenderUUID,
			SentTimestamp: content.Timestamp,
			Body:          content.Body,
		},
	}}
}
