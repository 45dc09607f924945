package bridge

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

func TestModel_NodeName_FallsBackToHex(t *testing.T) {
	m := NewModel(uuid.New(), signal.GroupMasterKey{}, 1)
	require.Equal(t, "aaaa0001", m.NodeName(0xAAAA0001))

	m.UpsertNode(MeshNodeInfo{Num: 0xAAAA0001, LongName: "Alice", ShortName: "AL"})
	require.Equal(t, "Alice", m.NodeName(0xAAAA0001))
}

func TestModel_ContactName_FallsBackToUUID(t *testing.T) {
	m := NewModel(uuid.New(), signal.GroupMasterKey{}, 1)
	id := uuid.New()
	require.Equal(t, id.String(), m.ContactName(id))

	m.MergeContacts([]signal.Contact{{UUID: id, DisplayName: "Alice"}})
	require.Equal(t, "Alice", m.ContactName(id))
}

func TestModel_PendingAck_InsertAndPop(t *testing.T) {
	m := NewModel(uuid.New(), signal.GroupMasterKey{}, 1)
	sender := uuid.New()
	now := time.Unix(1000, 0)

	m.InsertPendingAck(500, PendingAck{SenderUUID: sender, SentTimestamp: 42, Body: "hi"}, now)

	rec, ok := m.PopPendingAck(500)
	require.True(t, ok)
	require.Equal(t, sender, rec.SenderUUID)
	require.Equal(t, uint64(42), rec.SentTimestamp)

	_, ok = m.PopPendingAck(500)
	require.False(t, ok)
}

func TestModel_PendingAck_TTLExpiry(t *testing.T) {
	m := NewModel(uuid.New(), signal.GroupMasterKey{}, 1)
	t0 := time.Unix(1000, 0)
	m.InsertPendingAck(1, PendingAck{Body: "old"}, t0)

	later := t0.Add(pendingAckTTL + time.Second)
	m.InsertPendingAck(2, PendingAck{Body: "new"}, later)

	_, ok := m.PopPendingAck(1)
	require.False(t, ok, "entry older than the TTL should have been evicted on the next insert")

	rec, ok := m.PopPendingAck(2)
	require.True(t, ok)
	require.Equal(t, "new", rec.Body)
}

func TestModel_PendingAck_EvictsOldestWhenFull(t *testing.T) {
	m := NewModel(uuid.New(), signal.GroupMasterKey{}, 1)
	base := time.Unix(1000, 0)
	for i := 0; i < pendingAckEvictionBound; i++ {
		m.InsertPendingAck(uint32(i), PendingAck{Body: "x"}, base.Add(time.Duration(i)*time.Millisecond))
	}
	require.Len(t, m.PendingAcks, pendingAckEvictionBound)

	m.InsertPendingAck(uint32(pendingAckEvictionBound), PendingAck{Body: "newest"}, base.Add(time.Duration(pendingAckEvictionBound)*time.Millisecond))
	require.LessOrEqual(t, len(m.PendingAcks), pendingAckEvictionBound)

	_, ok := m.PopPendingAck(0)
	require.False(t, ok, "the oldest entry should have been evicted to make room")
}
