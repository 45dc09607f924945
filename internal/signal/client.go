package signal

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrStoreCorrupt signals an unrecoverable local-store failure — per
// spec §4.2/§7 this is the one Signal-client error that aborts the
// process rather than being surfaced as an Action.
var ErrStoreCorrupt = errors.New("signal: local store is corrupt or unreadable")

// Backend is the narrow surface the command spawner needs from the
// underlying Signal protocol client. It exists so C2's request/response
// plumbing (this file) is independently testable from the concrete
// go.mau.fi/mautrix-signal-backed implementation (backend_signalmeow.go).
type Backend interface {
	SendGroupMessage(ctx context.Context, key GroupMasterKey, message string, ranges []BodyRange, timestamp uint64) error
	ReactToMessage(ctx context.Context, thread Thread, reaction string, timestamp, targetTimestamp uint64, targetAuthor uuid.UUID) error
	DeleteMessage(ctx context.Context, thread Thread, targetTimestamp uint64) error
	ListContacts(ctx context.Context) ([]Contact, error)
	RetrieveProfile(ctx context.Context, id uuid.UUID, profileKey []byte) (Contact, error)
	ListGroups(ctx context.Context) ([]Group, error)
	// Events returns the push stream of inbound envelopes; closed when
	// the underlying connection ends.
	Events() <-chan Event
	Close() error
}

// Event is what Backend.Events() produces — the Go-side equivalent of
// the original source's `Received` enum, kept in this package (rather
// than bridge's Action) so signal never imports bridge.
type Event struct {
	Content    *Content
	Contacts   bool
	QueueEmpty bool
}

// cmd is an internal request posted to the spawner's single goroutine.
// run performs the actual Backend call; the spawner reports its result
// on reply.
type cmd struct {
	run   func(ctx context.Context) (any, error)
	reply chan cmdResult
}

type cmdResult struct {
	value any
	err   error
}

// Client is the Signal command spawner (C2): it owns a Backend
// exclusively and serializes all access to it through a command
// channel, so the rest of the bridge can issue requests without ever
// blocking on (or racing) the underlying protocol client (spec §4.2,
// §9 "C2 owns the Signal client exclusively; it only emits Actions").
type Client struct {
	backend Backend
	log     zerolog.Logger

	cmds chan cmd
	done chan struct{}
}

// NewClient wraps backend. Call Run in its own goroutine to start
// serving commands.
func NewClient(backend Backend, log zerolog.Logger) *Client {
	return &Client{
		backend: backend,
		log:     log,
		cmds:    make(chan cmd),
		done:    make(chan struct{}),
	}
}

// Run serves commands until ctx is cancelled. It is the spawner's
// goroutine body; callers send commands via the typed helper methods
// below, which are safe to call from any goroutine.
func (c *Client) Run(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.cmds:
			value, err := req.run(ctx)
			req.reply <- cmdResult{value: value, err: err}
		}
	}
}

func (c *Client) call(ctx context.Context, run func(ctx context.Context) (any, error)) (any, error) {
	reply := make(chan cmdResult, 1)
	select {
	case c.cmds <- cmd{run: run, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("signal client spawner has stopped")
	}
	select {
	case res := <-reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendToGroup is Cmd::SendToGroup (spec §4.2): send message, with
// ranges, to the group identified by key, stamped with timestamp.
func (c *Client) SendToGroup(ctx context.Context, key GroupMasterKey, message string, ranges []BodyRange, timestamp uint64) error {
	_, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return nil, c.backend.SendGroupMessage(ctx, key, message, ranges, timestamp)
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("signal: SendToGroup failed")
	}
	return err
}

// ReactToThread is Cmd::ReactToThread — posts a reaction (the bridge
// uses this to post "✔️" delivery confirmations, spec §4.5).
func (c *Client) ReactToThread(ctx context.Context, thread Thread, reaction string, timestamp, targetTimestamp uint64, targetAuthor uuid.UUID) error {
	_, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return nil, c.backend.ReactToMessage(ctx, thread, reaction, timestamp, targetTimestamp, targetAuthor)
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("signal: ReactToThread failed")
	}
	return err
}

// post enqueues run on the spawner without waiting for it to execute,
// matching the original source's `spawner.spawn(Cmd{..})` fire-and-forget
// semantics. Spec §5 lists only the select and the radio send as loop
// suspension points, so C5 must not block waiting on a Signal round
// trip; onResult, if non-nil, runs on a background goroutine once the
// command completes.
func (c *Client) post(run func(ctx context.Context) (any, error), onResult func(err error)) {
	go func() {
		reply := make(chan cmdResult, 1)
		select {
		case c.cmds <- cmd{run: run, reply: reply}:
		case <-c.done:
			return
		}
		res := <-reply
		if onResult != nil {
			onResult(res.err)
		}
	}()
}

// PostToGroup is the fire-and-forget counterpart of SendToGroup, used
// by the event loop so a slow group send never stalls mesh ingress.
func (c *Client) PostToGroup(key GroupMasterKey, message string, ranges []BodyRange, timestamp uint64) {
	c.post(func(ctx context.Context) (any, error) {
		return nil, c.backend.SendGroupMessage(ctx, key, message, ranges, timestamp)
	}, func(err error) {
		if err != nil {
			c.log.Warn().Err(err).Msg("signal: SendToGroup failed")
		}
	})
}

// PostReaction is the fire-and-forget counterpart of ReactToThread,
// used by the event loop to post delivery-confirmation reactions
// without stalling mesh ingress.
func (c *Client) PostReaction(thread Thread, reaction string, timestamp, targetTimestamp uint64, targetAuthor uuid.UUID) {
	c.post(func(ctx context.Context) (any, error) {
		return nil, c.backend.ReactToMessage(ctx, thread, reaction, timestamp, targetTimestamp, targetAuthor)
	}, func(err error) {
		if err != nil {
			c.log.Warn().Err(err).Msg("signal: ReactToThread failed")
		}
	})
}

// DeleteMessage is Cmd::DeleteMessage.
func (c *Client) DeleteMessage(ctx context.Context, thread Thread, targetTimestamp uint64) error {
	_, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return nil, c.backend.DeleteMessage(ctx, thread, targetTimestamp)
	})
	return err
}

// ListContacts is Cmd::ListContacts — a reply-channel command.
func (c *Client) ListContacts(ctx context.Context) ([]Contact, error) {
	v, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return c.backend.ListContacts(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Contact), nil
}

// RetrieveProfile is Cmd::RetrieveProfile.
func (c *Client) RetrieveProfile(ctx context.Context, id uuid.UUID, profileKey []byte) (Contact, error) {
	v, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return c.backend.RetrieveProfile(ctx, id, profileKey)
	})
	if err != nil {
		return Contact{}, err
	}
	return v.(Contact), nil
}

// ListGroups is Cmd::ListGroups, used once at startup to print the
// account's groups so the operator can find the bridged group's key
// (SPEC_FULL.md supplemented feature, grounded in original_source's
// main.rs `list_groups` startup printout).
func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	v, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return c.backend.ListGroups(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]Group), nil
}

// Subscribe returns the backend's push stream of inbound envelopes
// directly; spec §4.2 describes this as "begins pushing inbound
// envelopes... indefinitely" rather than a one-shot reply, so unlike
// the other commands it bypasses the single command channel.
func (c *Client) Subscribe() <-chan Event {
	return c.backend.Events()
}

// Disconnect asks the backend to close. Spec §4.5 step 4: "C2 is asked
// to disconnect the Signal client" on loop termination.
func (c *Client) Disconnect() error {
	return c.backend.Close()
}

// UpdateContacts refreshes the contact directory via ListContacts +
// RetrieveProfile, returning only the newly-seen contacts (callers
// merge these into the Model — spec §4.5's "Contacts variant" handler,
// grounded on original_source's update_contacts).
func (c *Client) UpdateContacts(ctx context.Context, known map[uuid.UUID]struct{}) ([]Contact, error) {
	all, err := c.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}

	var fresh []Contact
	for _, contact := range all {
		if _, ok := known[contact.UUID]; ok {
			continue
		}
		profile, err := c.RetrieveProfile(ctx, contact.UUID, contact.ProfileKey)
		if err != nil {
			// best-effort: a profile we can't fetch yet just stays
			// absent from the directory until a future refresh.
			continue
		}
		fresh = append(fresh, profile)
	}
	return fresh, nil
}
