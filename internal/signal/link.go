package signal

import (
	"context"
	"fmt"
	"os"

	"github.com/mdp/qrterminal"
)

// LinkEvent mirrors the bootstrap-only Action::Link variant (spec §3),
// kept in this package so the bootstrap loop below can consume it
// without importing bridge.
type LinkEvent struct {
	URL     string
	Success bool
	Fail    bool
}

// Linker is the narrow surface a concrete Signal backend exposes for
// first-run device linking (spec §4.7/§6's bootstrap UX): it starts a
// linking attempt and pushes LinkEvents until the attempt succeeds or
// fails.
type Linker interface {
	LinkDevice(ctx context.Context, deviceName string) (<-chan LinkEvent, error)
}

// LinkAccount runs the linking sub-state-machine (spec §4.5 step 1,
// §4.7): draw the QR for each new URL, retry on failure, return once
// the backend reports success. Grounded on original_source's
// soMuchSignal/src/main.rs draw_linking_screen/link_device loop, with
// qrterminal in place of the original's hand-rolled qrcodegen painter
// (SPEC_FULL.md §6).
func LinkAccount(ctx context.Context, linker Linker, deviceName string) error {
	for {
		events, err := linker.LinkDevice(ctx, deviceName)
		if err != nil {
			return fmt.Errorf("starting device link: %w", err)
		}

		success, retry, err := drainLinkEvents(ctx, events)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		if !retry {
			return fmt.Errorf("device linking failed")
		}
		// retry == true loops back to LinkDevice again.
	}
}

func drainLinkEvents(ctx context.Context, events <-chan LinkEvent) (success, retry bool, err error) {
	for {
		select {
		case <-ctx.Done():
			return false, false, ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return false, false, fmt.Errorf("link event stream closed unexpectedly")
			}
			switch {
			case evt.URL != "":
				drawLinkingScreen(evt.URL)
			case evt.Success:
				return true, false, nil
			case evt.Fail:
				return false, true, nil
			}
		}
	}
}

// drawLinkingScreen prints the linking URL as a terminal QR code, plus
// the raw URL as a plain-text fallback for terminals that can't render
// one legibly (SPEC_FULL.md §6).
func drawLinkingScreen(url string) {
	fmt.Fprintln(os.Stdout, "Scan this QR code with the Signal app to link this gateway:")
	qrterminal.GenerateHalfBlock(url, qrterminal.L, os.Stdout)
	fmt.Fprintln(os.Stdout, "Or open this URL on a linked device:", url)
}
