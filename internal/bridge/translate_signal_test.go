package bridge

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

func TestTranslateContent_BridgesGroupText(t *testing.T) {
	m := newTestModel()
	alice := uuid.New()
	m.MergeContacts([]signal.Contact{{UUID: alice, DisplayName: "Alice"}})

	content := &signal.Content{
		Thread:     signal.GroupThread(m.BridgedGroupKey),
		SenderUUID: alice,
		Timestamp:  111,
		Body:       "hi",
		HasBody:    true,
	}

	action := TranslateContent(m, content)
	require.NotNil(t, action)
	require.NotNil(t, action.SendToMesh)
	require.Equal(t, "Alice:\nhi", action.SendToMesh.Body)
	require.Equal(t, m.BridgedChannelIdx, action.SendToMesh.Channel)
	require.True(t, action.SendToMesh.Destination.Broadcast)
	require.NotNil(t, action.SendToMesh.Correlation)
	require.Equal(t, alice, action.SendToMesh.Correlation.SenderUUID)
	require.Equal(t, uint64(111), action.SendToMesh.Correlation.SentTimestamp)
}

func TestTranslateContent_NonBridgedGroupIgnored(t *testing.T) {
	m := newTestModel()
	other := signal.GroupMasterKey{0x99}
	content := &signal.Content{
		Thread:  signal.GroupThread(other),
		Body:    "hey",
		HasBody: true,
	}

	require.Nil(t, TranslateContent(m, content))
}

func TestTranslateContent_DMIgnored(t *testing.T) {
	m := newTestModel()
	content := &signal.Content{
		Thread:  signal.ContactThread(uuid.New()),
		Body:    "hey",
		HasBody: true,
	}

	require.Nil(t, TranslateContent(m, content))
}

func TestTranslateContent_ReactionOnlyIgnored(t *testing.T) {
	m := newTestModel()
	content := &signal.Content{
		Thread:  signal.GroupThread(m.BridgedGroupKey),
		HasBody: false,
	}

	require.Nil(t, TranslateContent(m, content))
}

func TestTranslateContent_HelpCommand(t *testing.T) {
	m := newTestModel()
	content := &signal.Content{
		Thread:  signal.GroupThread(m.BridgedGroupKey),
		Body:    helpCommand,
		HasBody: true,
	}

	action := TranslateContent(m, content)
	require.NotNil(t, action)
	require.NotNil(t, action.SendToGroup)
	require.Contains(t, action.SendToGroup.Message, channelCommand)
	require.Equal(t, helpHeader, action.SendToGroup.Message[:len(helpHeader)])
}

func TestTranslateContent_ChannelCommand(t *testing.T) {
	m := newTestModel()
	m.UpsertChannel(ChannelSettings{Index: m.BridgedChannelIdx, Name: "gateway"})
	content := &signal.Content{
		Thread:  signal.GroupThread(m.BridgedGroupKey),
		Body:    channelCommand,
		HasBody: true,
	}

	action := TranslateContent(m, content)
	require.NotNil(t, action)
	require.Contains(t, action.SendToGroup.Message, "Channel Details:")
	require.Contains(t, action.SendToGroup.Message, "gateway")
}

func TestTranslateContent_SelfSyncRedirectedToContactIgnored(t *testing.T) {
	m := newTestModel()
	content := &signal.Content{
		Thread:          signal.ContactThread(m.AccountUUID),
		DestinationUUID: uuid.New(),
		Body:            "hi",
		HasBody:         true,
		IsSyncOfOwnSend: true,
	}
	// DestinationUUID is a contact, not the bridged group, so after
	// redirection the thread is still out of scope.
	require.Nil(t, TranslateContent(m, content))
}
