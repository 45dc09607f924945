package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	meshrouter "github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic"
	"github.com/dq1Mango/meshtastic-2-signal/internal/meshtastic/transport"
	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

const deliveredReaction = "✔️"

// RadioClient is the surface of internal/meshtastic/transport.Client the
// loop needs, named here so the loop package doesn't force its tests to
// build a real serial connection.
type RadioClient interface {
	Frames() <-chan *meshtastic.FromRadio
	SendToRadio(msg *meshtastic.ToRadio) error
}

var _ RadioClient = (*transport.Client)(nil)

// Loop is the event multiplexer (C5) — "the heart of the core" (spec
// §4.5). It owns the Model exclusively and is the only component that
// ever calls the mesh router's or Signal client's methods directly from
// outside their own goroutines.
type Loop struct {
	model  *Model
	radio  RadioClient
	router *meshrouter.Router
	signal *signal.Client
	log    *log.Logger

	actions chan Action
	acks    chan meshrouter.Ack
}

// NewLoop wires a Loop around its already-constructed collaborators.
// router's acks channel must be the same one passed in here.
func NewLoop(model *Model, radio RadioClient, router *meshrouter.Router, signalClient *signal.Client, acks chan meshrouter.Ack, logger *log.Logger) *Loop {
	if logger == nil {
		logger = log.Default()
	}
	return &Loop{
		model:   model,
		radio:   radio,
		router:  router,
		signal:  signalClient,
		log:     logger,
		actions: make(chan Action, 64),
		acks:    acks,
	}
}

// Run drives the main loop until the radio stream ends or Action::Quit
// is observed (spec §4.5 step 4). It also pumps the Signal client's
// push stream and the router's ack stream into the same action channel,
// exactly as spec §2's "C5 selects between these two sources" requires
// — both external sources, once translated to Actions, are
// indistinguishable to the select below.
func (l *Loop) Run(ctx context.Context) error {
	go l.pumpSignalEvents(ctx)
	go l.pumpAcks(ctx)

	frames := l.radio.Frames()

	for {
		var current Action
		select {
		case frame, ok := <-frames:
			if !ok {
				l.log.Info("radio stream closed, shutting down")
				return l.shutdown()
			}
			current = Action{FromRadio: frame}
		case action := <-l.actions:
			current = action
		case <-ctx.Done():
			return l.shutdown()
		}

		if l.apply(current) {
			return l.shutdown()
		}

		// Drain any actions the first one produced synchronously
		// before re-entering the outer select (spec §4.5 step 3).
	drain:
		for {
			select {
			case action := <-l.actions:
				if l.apply(action) {
					return l.shutdown()
				}
			default:
				break drain
			}
		}
	}
}

// apply dispatches one Action per spec §4.5's table, enqueuing any
// follow-up Action it produces rather than recursing. It returns true
// when the loop should terminate.
func (l *Loop) apply(action Action) bool {
	switch {
	case action.Quit:
		return true

	case action.FromRadio != nil:
		if pkt, ok := action.FromRadio.GetPayloadVariant().(*meshtastic.FromRadio_Packet); ok {
			l.router.ObserveIncoming(pkt.Packet)
		}
		if next := TranslateFromRadio(l.model, action.FromRadio); next != nil {
			l.enqueue(*next)
		}

	case action.Receive != nil:
		l.applyReceive(action.Receive)

	case action.SendToMesh != nil:
		l.applySendToMesh(action.SendToMesh)

	case action.SendToGroup != nil:
		l.applySendToGroup(action.SendToGroup)

	case action.MeshAck != nil:
		l.applyMeshAck(action.MeshAck)

	case action.Link != nil:
		// Link events only matter to the bootstrap loop (internal/signal's
		// linking sub-state-machine, spec §4.7); by the time Run is
		// driving the main loop, linking has already completed.
	}
	return false
}

func (l *Loop) applyReceive(r *Received) {
	switch {
	case r.Content != nil:
		if next := TranslateContent(l.model, r.Content); next != nil {
			l.enqueue(*next)
		}

	case r.Contacts:
		l.refreshContacts()

	case r.QueueEmpty:
		// no-op, per spec §4.5's dispatch table.
	}
}

func (l *Loop) refreshContacts() {
	known := make(map[uuid.UUID]struct{}, len(l.model.Contacts))
	for id := range l.model.Contacts {
		known[id] = struct{}{}
	}

	ctx := context.Background()
	fresh, err := l.signal.UpdateContacts(ctx, known)
	if err != nil {
		l.log.Warn("refreshing contacts failed", "err", err)
		return
	}
	l.model.MergeContacts(fresh)
}

// applySendToMesh implements spec §4.5's SendToMesh row: send, then (if
// correlated) record the pending-ack entry under the id this loop
// itself assigned the packet. Keying off the locally-assigned id
// (rather than round-tripping it through a channel the router also
// writes to for uncorrelated sends) avoids a starvation hazard: every
// outgoing packet — correlated or not — would otherwise need a reader,
// and an uncorrelated send (e.g. a /ping reply) never drains one.
func (l *Loop) applySendToMesh(send *SendToMesh) {
	packetID := rand.Uint32()
	packet := &meshtastic.MeshPacket{
		Id:      packetID,
		From:    l.router.SourceNodeID(),
		Channel: send.Channel,
		WantAck: send.Correlation != nil,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{
			Decoded: &meshtastic.Data{
				Portnum: meshtastic.PortNum_TEXT_MESSAGE_APP,
				Payload: []byte(send.Body),
			},
		},
	}
	if !send.Destination.Broadcast {
		packet.To = send.Destination.NodeNum
	} else {
		packet.To = broadcastNodeNum
	}

	l.router.ObserveOutgoing(packet)

	if err := l.radio.SendToRadio(&meshtastic.ToRadio{
		PayloadVariant: &meshtastic.ToRadio_Packet{Packet: packet},
	}); err != nil {
		l.log.Warn("sending to mesh failed", "err", err)
		return
	}

	if send.Correlation == nil {
		return
	}

	l.model.InsertPendingAck(packetID, PendingAck{
		SenderUUID:    send.Correlation.SenderUUID,
		SentTimestamp: send.Correlation.SentTimestamp,
		Body:          send.Correlation.Body,
	}, time.Now())
}

const broadcastNodeNum uint32 = 0xFFFFFFFF

// applySendToGroup implements spec §4.5's SendToGroup row: hand off to
// C2 stamped with the current wall clock. Posted fire-and-forget (spec
// §5: the select and the radio send are the loop's only suspension
// points) so a slow group send never stalls mesh ingress; failures are
// logged asynchronously by the Client itself.
func (l *Loop) applySendToGroup(send *SendToGroup) {
	l.signal.PostToGroup(send.MasterKey, send.Message, send.BodyRanges, uint64(time.Now().UnixMilli()))
}

// applyMeshAck implements spec §4.5's MeshAck row: pop the pending-ack
// entry and, if present, post a delivery-confirmation reaction —
// likewise fire-and-forget.
func (l *Loop) applyMeshAck(ack *MeshAck) {
	if !ack.Delivered {
		return
	}
	rec, ok := l.model.PopPendingAck(ack.PacketID)
	if !ok {
		return
	}

	thread := signal.GroupThread(l.model.BridgedGroupKey)
	l.signal.PostReaction(thread, deliveredReaction, uint64(time.Now().UnixMilli()), rec.SentTimestamp, rec.SenderUUID)
}

// IngestFromRadio lets a supplementary mesh-ingress source (C9's
// optional MQTT uplink) feed a frame into the same dispatch path as the
// serial radio stream, without the loop needing to know which
// transport produced it (SPEC_FULL.md §2/§5).
func (l *Loop) IngestFromRadio(frame *meshtastic.FromRadio) {
	l.enqueue(Action{FromRadio: frame})
}

func (l *Loop) enqueue(action Action) {
	select {
	case l.actions <- action:
	default:
		l.log.Warn("action channel full, dropping action")
	}
}

func (l *Loop) pumpSignalEvents(ctx context.Context) {
	events := l.signal.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			l.enqueue(Action{Receive: &Received{
				Content:    evt.Content,
				Contacts:   evt.Contacts,
				QueueEmpty: evt.QueueEmpty,
			}})
		}
	}
}

func (l *Loop) pumpAcks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ack, ok := <-l.acks:
			if !ok {
				return
			}
			l.enqueue(Action{MeshAck: &MeshAck{PacketID: ack.PacketID, Delivered: ack.Delivered}})
		}
	}
}

// shutdown disconnects the Signal client (spec §4.5 step 4).
func (l *Loop) shutdown() error {
	if err := l.signal.Disconnect(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("disconnecting signal client: %w", err)
	}
	return nil
}
