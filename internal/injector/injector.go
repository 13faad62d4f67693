// Package injector turns transcript text into synthetic keyboard input
// through the RemoteDesktop portal session, one item at a time.
package injector

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/fsm"
	"github.com/mvankamp/dictum/internal/portal"
)

// queueCapacity bounds pending injections; a full queue back-pressures
// callers instead of dropping text.
const queueCapacity = 32

// clipboardTimeout caps the wl-copy subprocess in clipboard mode.
const clipboardTimeout = 2 * time.Second

// Keyboard is the injection surface of the desktop controller.
type Keyboard interface {
	PressKeysym(ctx context.Context, keysym int32) error
	ReleaseKeysym(ctx context.Context, keysym int32) error
	TapKeysym(ctx context.Context, keysym int32) error
}

// Hooks receive injection failures so the session can record them without
// the injector knowing about the hub or the IPC surface.
type Hooks struct {
	// StashPending stores text whose injection failed with a portal error.
	StashPending func(text string)
	// RecordError records a non-fatal local injection failure.
	RecordError func(message string)
}

// Injector drains a serial queue of transcripts into keystrokes.
type Injector struct {
	kb     Keyboard
	delay  time.Duration
	mode   string
	events chan<- fsm.Event
	hooks  Hooks
	logger *slog.Logger

	queue chan string
}

// New starts the queue drain goroutine, which exits when ctx is cancelled.
func New(ctx context.Context, kb Keyboard, cfg config.InjectionConfig, events chan<- fsm.Event, hooks Hooks, logger *slog.Logger) *Injector {
	if hooks.StashPending == nil {
		hooks.StashPending = func(string) {}
	}
	if hooks.RecordError == nil {
		hooks.RecordError = func(string) {}
	}

	i := &Injector{
		kb:     kb,
		delay:  time.Duration(cfg.TypingDelayMS) * time.Millisecond,
		mode:   cfg.Mode,
		events: events,
		hooks:  hooks,
		logger: logger,
		queue:  make(chan string, queueCapacity),
	}
	go i.drain(ctx)
	return i
}

// Enqueue submits text for injection, blocking while the queue is full.
func (i *Injector) Enqueue(ctx context.Context, text string) error {
	select {
	case i.queue <- text:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue injection: %w", ctx.Err())
	}
}

// drain processes queued items one at a time, preserving submission order.
func (i *Injector) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-i.queue:
			i.emit(ctx, fsm.EventTranscriptReady)

			err := i.inject(ctx, text)
			switch {
			case err == nil:
				i.emit(ctx, fsm.EventInjectionDone)
			case portal.IsPortalError(err):
				i.logger.Error("injection failed, portal session unusable", "error", err.Error())
				i.hooks.StashPending(text)
				i.emit(ctx, fsm.EventError)
			default:
				i.logger.Error("injection failed", "error", err.Error())
				i.hooks.RecordError("injection failed: " + err.Error())
				i.emit(ctx, fsm.EventInjectionDone)
			}
		}
	}
}

func (i *Injector) emit(ctx context.Context, ev fsm.Event) {
	select {
	case i.events <- ev:
	case <-ctx.Done():
	}
}

// inject dispatches on the configured injection mode.
func (i *Injector) inject(ctx context.Context, text string) error {
	if i.mode == config.InjectionModeClipboard {
		return i.pasteViaClipboard(ctx, text)
	}
	return i.TypeText(ctx, text)
}

// TypeText maps each character to a keysym and taps it, sleeping the
// typing delay between keys. Streaming deltas reuse this primitive so
// partial text follows the same path as batch transcripts.
func (i *Injector) TypeText(ctx context.Context, text string) error {
	for _, r := range text {
		keysym := charToKeysym(r)
		if keysym == 0 {
			i.logger.Debug("skipping character with no keysym", "rune", fmt.Sprintf("U+%04X", r))
			continue
		}
		if err := i.kb.TapKeysym(ctx, keysym); err != nil {
			return err
		}
		if i.delay > 0 {
			select {
			case <-time.After(i.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return nil
}

// pasteViaClipboard copies the text with wl-copy and taps Ctrl+V through
// the portal session.
func (i *Injector) pasteViaClipboard(ctx context.Context, text string) error {
	if err := runClipboardCopy(ctx, text); err != nil {
		return err
	}

	if err := i.kb.PressKeysym(ctx, keysymControlL); err != nil {
		return err
	}
	if err := i.kb.TapKeysym(ctx, keysymLowerV); err != nil {
		_ = i.kb.ReleaseKeysym(ctx, keysymControlL)
		return err
	}
	return i.kb.ReleaseKeysym(ctx, keysymControlL)
}

// runClipboardCopy pipes text into wl-copy.
func runClipboardCopy(ctx context.Context, text string) error {
	cmdCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "wl-copy", "--trim-newline")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open wl-copy stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start wl-copy: %w", err)
	}
	if _, err := stdin.Write([]byte(text)); err != nil {
		_ = stdin.Close()
		_ = cmd.Wait()
		return fmt.Errorf("write wl-copy stdin: %w", err)
	}
	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for wl-copy: %w", err)
	}
	return nil
}
