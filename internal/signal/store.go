package signal

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.mau.fi/mautrix-signal/pkg/signalmeow"
	"go.mau.fi/mautrix-signal/pkg/signalmeow/store"
	"go.mau.fi/util/dbutil"
)

// storeLinker adapts signalmeow's device-linking provisioning flow to
// the Linker interface link.go's bootstrap loop drives.
type storeLinker struct {
	container *store.Container
	log       zerolog.Logger
	onLinked  func(*signalmeow.Client)
}

// OpenOrLink opens (creating if necessary) the Signal key/session store
// at dbPath and returns a ready Backend. If the store has no registered
// account yet, it runs the linking sub-state-machine first (spec §4.7:
// "If the store is not yet registered, runs the linking sub-state-machine
// before the Model is constructed").
//
// Grounded on original_source/soMuchSignal/src/main.rs's
// SqliteStore::open_with_passphrase / is_registered / link_device /
// Manager::load_registered sequence, translated onto
// go.mau.fi/mautrix-signal's dbutil-backed store container (the same
// sqlite-via-dbutil pattern d99kris-nchat's gosg.go uses for its own
// signalmeow store).
func OpenOrLink(ctx context.Context, dbPath, deviceName string, log zerolog.Logger) (*SignalmeowBackend, error) {
	db, err := dbutil.NewFromConfig("meshtastic-2-signal", dbutil.Config{
		PoolConfig: dbutil.PoolConfig{
			Type: "sqlite3",
			URI:  dbPath,
		},
	}, dbutil.ZeroLogger(log))
	if err != nil {
		return nil, fmt.Errorf("opening signal store: %w", err)
	}

	container := store.NewStore(db, dbutil.ZeroLogger(log))
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("migrating signal store: %w", ErrStoreCorrupt)
	}

	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading signal devices: %w", ErrStoreCorrupt)
	}

	var client *signalmeow.Client
	if len(devices) == 0 {
		linker := &storeLinker{container: container, log: log}
		linked := make(chan *signalmeow.Client, 1)
		linker.onLinked = func(c *signalmeow.Client) { linked <- c }

		if err := LinkAccount(ctx, linker, deviceName); err != nil {
			return nil, fmt.Errorf("linking signal device: %w", err)
		}
		client = <-linked
	} else {
		client, err = signalmeow.NewClient(ctx, devices[0], log)
		if err != nil {
			return nil, fmt.Errorf("loading signal account: %w", err)
		}
	}

	if err := client.StartReceiveLoops(ctx); err != nil {
		return nil, fmt.Errorf("starting signal receive loop: %w", err)
	}

	return NewSignalmeowBackend(ctx, client, log), nil
}

// LinkDevice implements Linker by running signalmeow's provisioning
// flow and translating its events into LinkEvent (URL, Success, Fail).
func (l *storeLinker) LinkDevice(ctx context.Context, deviceName string) (<-chan LinkEvent, error) {
	out := make(chan LinkEvent, 8)
	provisioning := signalmeow.PerformProvisioning(ctx, l.container, deviceName)

	go func() {
		defer close(out)
		for resp := range provisioning {
			switch {
			case resp.Err != nil:
				l.log.Warn().Err(resp.Err).Msg("signal: linking attempt failed")
				out <- LinkEvent{Fail: true}
				return
			case resp.ProvisioningURL != "":
				out <- LinkEvent{URL: resp.ProvisioningURL}
			case resp.Client != nil:
				if l.onLinked != nil {
					l.onLinked(resp.Client)
				}
				out <- LinkEvent{Success: true}
				return
			}
		}
	}()

	return out, nil
}
