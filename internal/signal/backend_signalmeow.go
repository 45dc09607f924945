package signal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/mautrix-signal/pkg/signalmeow"
	"go.mau.fi/mautrix-signal/pkg/signalmeow/events"
)

// SignalmeowBackend implements Backend on top of go.mau.fi/mautrix-signal's
// signalmeow client — the real Signal protocol implementation this
// bridge delegates device linking, key exchange, message encryption,
// and content/sync parsing to (spec §1's "consumed as a library").
// Grounded on d99kris-nchat's gosg.go, which wires the same package for
// the same purpose (connection registry, event dispatch, UUID/body-range
// helpers) from a cgo host instead of a pure-Go bridge loop.
type SignalmeowBackend struct {
	client *signalmeow.Client
	log    zerolog.Logger

	events chan Event
}

// NewSignalmeowBackend wraps an already-registered signalmeow client
// and starts translating its event stream into Backend's Event shape.
func NewSignalmeowBackend(ctx context.Context, client *signalmeow.Client, log zerolog.Logger) *SignalmeowBackend {
	b := &SignalmeowBackend{
		client: client,
		log:    log,
		events: make(chan Event, 64),
	}
	go b.pump(ctx)
	return b
}

// pump drains signalmeow's event channel and republishes each event in
// Backend's narrower shape, matching gosg.go's SgEventHandler.HandleEvent
// dispatch switch.
func (b *SignalmeowBackend) pump(ctx context.Context) {
	defer close(b.events)
	sub := b.client.AddListener()
	defer b.client.RemoveListener(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub:
			if !ok {
				return
			}
			b.dispatch(evt)
		}
	}
}

func (b *SignalmeowBackend) dispatch(evt events.SignalEvent) {
	switch e := evt.(type) {
	case *events.ChatEvent:
		content, ok := contentFromChatEvent(e)
		if !ok {
			return
		}
		b.publish(Event{Content: &content})
	case *events.ContactList:
		b.publish(Event{Contacts: true})
	case *events.QueueEmpty:
		b.publish(Event{QueueEmpty: true})
	default:
		b.log.Debug().Str("type", fmt.Sprintf("%T", evt)).Msg("signal: unhandled event")
	}
}

func (b *SignalmeowBackend) publish(evt Event) {
	select {
	case b.events <- evt:
	default:
		b.log.Warn().Msg("signal: event channel full, dropping event")
	}
}

// contentFromChatEvent extracts the bridge's minimal Content shape
// from a signalmeow ChatEvent: the thread is the group when the event
// carries a GroupID, otherwise the sender's contact thread. It does not
// set IsSyncOfOwnSend or DestinationUUID, so the bridge's self-redirect
// normalization never applies to content from this backend.
func contentFromChatEvent(e *events.ChatEvent) (Content, bool) {
	info := e.Info
	data := e.Event.GetDataMessage()
	if data == nil {
		if sync := e.Event.GetSyncMessage(); sync != nil {
			if sent := sync.GetSent(); sent != nil {
				data = sent.GetMessage()
			}
		}
	}
	if data == nil || data.GetBody() == "" {
		return Content{}, false
	}

	sender, err := uuid.Parse(info.Sender.String())
	if err != nil {
		return Content{}, false
	}

	// Timestamp must be the message's sent time, not its server-receive
	// time: it becomes PendingAck.SentTimestamp and then the delivery
	// reaction's target-timestamp, and Signal identifies a message for
	// reactions by (target-author, sent-timestamp) — a server timestamp
	// would target a pair that doesn't exist and the reaction would
	// silently fail to attach.
	content := Content{
		SenderUUID: sender,
		Timestamp:  data.GetTimestamp(),
		Body:       data.GetBody(),
		HasBody:    true,
	}

	if masterKey := info.GroupID; masterKey != nil {
		var key GroupMasterKey
		copy(key[:], masterKey)
		content.Thread = GroupThread(key)
	} else {
		content.Thread = ContactThread(sender)
	}

	return content, true
}

func (b *SignalmeowBackend) SendGroupMessage(ctx context.Context, key GroupMasterKey, message string, ranges []BodyRange, timestamp uint64) error {
	group, err := b.client.Store.GroupStore.GroupByKey(ctx, key[:])
	if err != nil {
		return fmt.Errorf("resolving group: %w", err)
	}
	_, err = b.client.SendGroupMessage(ctx, group.GroupIdentifier, signalmeowDataMessage(message, ranges, timestamp))
	return err
}

func (b *SignalmeowBackend) ReactToMessage(ctx context.Context, thread Thread, reaction string, timestamp, targetTimestamp uint64, targetAuthor uuid.UUID) error {
	recipient, err := recipientForThread(ctx, b.client, thread)
	if err != nil {
		return err
	}
	return b.client.SendReaction(ctx, recipient, reaction, targetAuthor.String(), targetTimestamp, timestamp)
}

func (b *SignalmeowBackend) DeleteMessage(ctx context.Context, thread Thread, targetTimestamp uint64) error {
	recipient, err := recipientForThread(ctx, b.client, thread)
	if err != nil {
		return err
	}
	return b.client.SendDelete(ctx, recipient, targetTimestamp)
}

func (b *SignalmeowBackend) ListContacts(ctx context.Context) ([]Contact, error) {
	raw, err := b.client.Store.ContactStore.LoadAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading contacts: %w", err)
	}
	out := make([]Contact, 0, len(raw))
	for _, c := range raw {
		id, err := uuid.Parse(c.UUID.String())
		if err != nil {
			continue
		}
		out = append(out, Contact{UUID: id, DisplayName: c.ContactName, ProfileKey: c.ProfileKey})
	}
	return out, nil
}

func (b *SignalmeowBackend) RetrieveProfile(ctx context.Context, id uuid.UUID, profileKey []byte) (Contact, error) {
	profile, err := b.client.RetrieveProfileByID(ctx, id.String(), profileKey)
	if err != nil {
		return Contact{}, fmt.Errorf("retrieving profile: %w", err)
	}
	return Contact{UUID: id, DisplayName: profile.Name, ProfileKey: profileKey}, nil
}

func (b *SignalmeowBackend) ListGroups(ctx context.Context) ([]Group, error) {
	raw, err := b.client.Store.GroupStore.AllGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	out := make([]Group, 0, len(raw))
	for _, g := range raw {
		var key GroupMasterKey
		copy(key[:], g.MasterKey)
		out = append(out, Group{MasterKey: key, Title: g.Title})
	}
	return out, nil
}

func (b *SignalmeowBackend) Events() <-chan Event { return b.events }

// AccountUUID returns the linked account's own Signal uuid, used to
// seed Model.AccountUUID (spec §4.6).
func (b *SignalmeowBackend) AccountUUID() uuid.UUID {
	id, err := uuid.Parse(b.client.Store.ACI.String())
	if err != nil {
		return uuid.Nil
	}
	return id
}

func (b *SignalmeowBackend) Close() error {
	return b.client.StopReceiveLoops()
}

func recipientForThread(ctx context.Context, client *signalmeow.Client, thread Thread) (string, error) {
	if thread.IsGroup {
		group, err := client.Store.GroupStore.GroupByKey(ctx, thread.GroupKey[:])
		if err != nil {
			return "", fmt.Errorf("resolving group thread: %w", err)
		}
		return group.GroupIdentifier, nil
	}
	return thread.ContactUUID.String(), nil
}

// signalmeowDataMessage builds the outgoing protobuf DataMessage,
// translating BodyRange into signalmeow's wire BodyRange shape.
func signalmeowDataMessage(message string, ranges []BodyRange, timestamp uint64) *signalmeow.OutgoingMessage {
	out := &signalmeow.OutgoingMessage{
		Body:      message,
		Timestamp: timestamp,
	}
	for _, r := range ranges {
		out.BodyRanges = append(out.BodyRanges, signalmeow.OutgoingBodyRange{
			Start:  r.Start,
			Length: r.Length,
			Style:  bodyStyleToSignalmeow(r.Style),
		})
	}
	return out
}

func bodyStyleToSignalmeow(s BodyStyle) int {
	switch s {
	case StyleBold:
		return 1
	case StyleItalic:
		return 2
	case StyleStrikethrough:
		return 4
	case StyleMonospace:
		return 3
	default:
		return 0
	}
}
