package bridge

import (
	"time"

	"github.com/google/uuid"

	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

// pendingAckTTL and pendingAckEvictionBound implement spec §5/§9's
// recommended-but-unimplemented-in-source addition: an insert-time
// bound on the pending-ack map so a gateway left running against a
// permanently dead mesh link doesn't accumulate entries forever.
const (
	pendingAckTTL           = 10 * time.Minute
	pendingAckEvictionBound = 1024
)

// MeshNodeInfo is the bridge's projection of a mesh node (spec §3).
type MeshNodeInfo struct {
	Num       uint32
	LongName  string
	ShortName string
}

// ChannelSettings is the bridge's projection of a mesh channel (spec §3).
type ChannelSettings struct {
	Index uint32
	Name  string
	PSK   []byte
}

// PendingAck records a Signal message that is waiting on mesh delivery
// confirmation for the outbound packet it produced (spec §3).
type PendingAck struct {
	SenderUUID    uuid.UUID
	SentTimestamp uint64
	Body          string
	insertedAt    time.Time
}

// Model is the bridge's in-memory state (C6), owned exclusively by the
// event multiplexer (C5) — spec §4.6/§3 invariant "no other component
// mutates it". It carries no locks for that reason.
type Model struct {
	AccountUUID uuid.UUID

	Contacts map[uuid.UUID]signal.Contact
	Groups   map[signal.GroupMasterKey]signal.Group

	// MeshNodes and Channels are maps, not the original source's
	// append-only vectors — see DESIGN.md's Open Question resolution.
	MeshNodes map[uint32]MeshNodeInfo
	Channels  map[uint32]ChannelSettings

	PendingAcks map[uint32]PendingAck

	BridgedGroupKey   signal.GroupMasterKey
	BridgedChannelIdx uint32
}

// NewModel constructs a Model seeded from the Signal account uuid and
// the configured bridge target (spec §4.6: "all collections start
// empty").
func NewModel(accountUUID uuid.UUID, bridgedGroupKey signal.GroupMasterKey, bridgedChannelIdx uint32) *Model {
	return &Model{
		AccountUUID:       accountUUID,
		Contacts:          map[uuid.UUID]signal.Contact{},
		Groups:            map[signal.GroupMasterKey]signal.Group{},
		MeshNodes:         map[uint32]MeshNodeInfo{},
		Channels:          map[uint32]ChannelSettings{},
		PendingAcks:       map[uint32]PendingAck{},
		BridgedGroupKey:   bridgedGroupKey,
		BridgedChannelIdx: bridgedChannelIdx,
	}
}

// UpsertChannel implements the Channel(config) row of spec §4.3's
// decision table.
func (m *Model) UpsertChannel(c ChannelSettings) {
	m.Channels[c.Index] = c
}

// UpsertNode implements the NodeInfo(info) row of spec §4.3's decision
// table.
func (m *Model) UpsertNode(n MeshNodeInfo) {
	m.MeshNodes[n.Num] = n
}

// NodeName returns the mesh node's long name, or the hex-formatted
// node number if the node is unknown — the fix for the source's
// known panic-on-miss defect (spec §7, §9).
func (m *Model) NodeName(num uint32) string {
	if node, ok := m.MeshNodes[num]; ok && node.LongName != "" {
		return node.LongName
	}
	return hexNodeID(num)
}

func hexNodeID(num uint32) string {
	const hexDigits = "0123456789abcdef"
	if num == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for num > 0 {
		i--
		buf[i] = hexDigits[num&0xf]
		num >>= 4
	}
	return string(buf[i:])
}

// ContactName resolves a Signal sender's display name, falling back to
// the stringified uuid (spec §7's directory-lookup-miss handling).
func (m *Model) ContactName(id uuid.UUID) string {
	if c, ok := m.Contacts[id]; ok && c.DisplayName != "" {
		return c.DisplayName
	}
	return id.String()
}

// MergeContacts adds newly-seen contacts to the directory (spec §4.5's
// "Contacts variant" handler feeding back freshly-fetched profiles).
func (m *Model) MergeContacts(fresh []signal.Contact) {
	for _, c := range fresh {
		m.Contacts[c.UUID] = c
	}
}

// InsertPendingAck records a just-sent mesh packet id against the
// Signal message it is bridging, evicting the oldest entries first if
// the table has grown past pendingAckEvictionBound (spec §5, §9).
func (m *Model) InsertPendingAck(packetID uint32, rec PendingAck, now time.Time) {
	rec.insertedAt = now
	m.evictExpired(now)
	if len(m.PendingAcks) >= pendingAckEvictionBound {
		m.evictOldest()
	}
	m.PendingAcks[packetID] = rec
}

// PopPendingAck removes and returns the pending-ack entry for
// packetID, if present — used by the MeshAck handler. TTL and size
// eviction (evictExpired/evictOldest) delete entries directly.
func (m *Model) PopPendingAck(packetID uint32) (PendingAck, bool) {
	rec, ok := m.PendingAcks[packetID]
	if ok {
		delete(m.PendingAcks, packetID)
	}
	return rec, ok
}

func (m *Model) evictExpired(now time.Time) {
	for id, rec := range m.PendingAcks {
		if now.Sub(rec.insertedAt) > pendingAckTTL {
			delete(m.PendingAcks, id)
		}
	}
}

func (m *Model) evictOldest() {
	var oldestID uint32
	var oldestAt time.Time
	first := true
	for id, rec := range m.PendingAcks {
		if first || rec.insertedAt.Before(oldestAt) {
			oldestID, oldestAt, first = id, rec.insertedAt, false
		}
	}
	if !first {
		delete(m.PendingAcks, oldestID)
	}
}
