// Package session composes the shortcut, desktop, audio, transcription,
// and injection subsystems into one capture cycle, and supervises session
// restarts across portal failures.
package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/desktop"
	"github.com/mvankamp/dictum/internal/fsm"
	"github.com/mvankamp/dictum/internal/hub"
	"github.com/mvankamp/dictum/internal/injector"
	"github.com/mvankamp/dictum/internal/portal"
	"github.com/mvankamp/dictum/internal/shortcuts"
	"github.com/mvankamp/dictum/internal/transcriber"
)

// repeatThreshold separates compositor key-repeat noise from an
// intentional second press: gaps at or below it are ignored while
// recording or streaming.
const repeatThreshold = 100 * time.Millisecond

// Outcome describes why a session returned without error.
type Outcome int

// OutcomeRestart asks the supervisor to rebuild sessions against the
// current config.
const OutcomeRestart Outcome = 1

// ShortcutSource is the session-facing surface of the shortcut controller.
type ShortcutSource interface {
	Activated() <-chan shortcuts.Activation
	Deactivated() <-chan shortcuts.Activation
	Close() error
}

// Keyboard is the session-facing surface of the desktop controller.
type Keyboard interface {
	injector.Keyboard
	RestoreToken() string
	Close() error
}

// Recording is an in-progress batch capture.
type Recording interface {
	Stop(ctx context.Context) (string, error)
}

// Streaming is an in-progress live capture.
type Streaming interface {
	Frames() <-chan []int16
	Stop()
}

// Recorder opens captures in either mode.
type Recorder interface {
	Start() (Recording, error)
	StartStreaming() (Streaming, error)
}

// Transcriber runs batch transcriptions and streaming sessions.
type Transcriber interface {
	IsStreaming() bool
	Transcribe(ctx context.Context, audioPath string) (string, error)
	RunStreamingSession(ctx context.Context, in transcriber.StreamInput) error
}

// Notifier pushes externally visible state changes onto the IPC surface.
type Notifier interface {
	NotifyState()
	NotifyPortalConnected()
	NotifyLastTranscript(text string)
	NotifyLastError(message string)
}

// Deps are the collaborator constructors a session builds from; tests
// substitute stubs here.
type Deps struct {
	NewShortcuts          func(ctx context.Context, cfg config.ShortcutConfig) (ShortcutSource, error)
	NewKeyboard           func(ctx context.Context, restoreToken string) (Keyboard, error)
	NewRecorder           func(cfg config.AudioConfig) Recorder
	NewTranscriber        func(cfg config.TranscriberConfig) Transcriber
	WriteShortcutRegistry func(ctx context.Context, cfg config.ShortcutConfig) error
}

// loop bundles the per-session collaborators and mutable cycle state.
type loop struct {
	cfg      config.Config
	hub      *hub.Hub
	notifier Notifier
	logger   *slog.Logger

	transcriber Transcriber
	recorder    Recorder
	injector    *injector.Injector
	events      chan fsm.Event
	errs        chan error

	state     fsm.State
	recording Recording
	streaming *streamingSession
}

// Run executes one session between portal failures. It returns
// OutcomeRestart when the restart latch fires, or an error when a portal
// session is lost.
func Run(ctx context.Context, cfg config.Config, deps Deps, h *hub.Hub, notifier Notifier, logger *slog.Logger) (Outcome, error) {
	tokenPath := cfg.TokenPath()
	token := desktop.LoadRestoreToken(tokenPath, logger)

	if deps.WriteShortcutRegistry != nil {
		if err := deps.WriteShortcutRegistry(ctx, cfg.Shortcut); err != nil {
			logger.Warn("failed to write shortcut registry (non-GNOME?)", "error", err.Error())
		}
	}

	sc, err := deps.NewShortcuts(ctx, cfg.Shortcut)
	if err != nil {
		return 0, err
	}
	defer sc.Close()
	logger.Info("global shortcuts session ready")

	kb, err := deps.NewKeyboard(ctx, token)
	if err != nil && token != "" {
		logger.Warn("remote desktop with restore token failed, retrying without", "error", err.Error())
		_ = os.Remove(tokenPath)
		kb, err = deps.NewKeyboard(ctx, "")
	}
	if err != nil {
		return 0, err
	}
	defer kb.Close()
	logger.Info("remote desktop session ready")

	if newToken := kb.RestoreToken(); newToken != "" {
		if err := desktop.SaveRestoreToken(tokenPath, newToken); err != nil {
			logger.Warn("failed to save restore token", "error", err.Error())
		}
	}

	l := &loop{
		cfg:         cfg,
		hub:         h,
		notifier:    notifier,
		logger:      logger,
		transcriber: deps.NewTranscriber(cfg.Transcriber),
		recorder:    deps.NewRecorder(cfg.Audio),
		events:      make(chan fsm.Event, 32),
		errs:        make(chan error, 1),
		state:       fsm.StateIdle,
	}

	l.injector = injector.New(ctx, kb, cfg.Injection, l.events, injector.Hooks{
		StashPending: func(text string) { h.SetPendingInjection(text) },
		RecordError:  l.recordError,
	}, logger)

	h.SetPortalConnected(true)
	notifier.NotifyPortalConnected()
	l.setState(fsm.StateIdle)

	return l.run(ctx, sc)
}

// run is the session select loop.
func (l *loop) run(ctx context.Context, sc ShortcutSource) (Outcome, error) {
	lastActivated := time.Now()

	for {
		select {
		case <-ctx.Done():
			l.teardownStreaming()
			return 0, ctx.Err()

		case act, open := <-sc.Activated():
			if !open {
				l.teardownStreaming()
				return 0, &portal.Error{Op: "shortcut signals", Err: errors.New("activation stream closed")}
			}
			if act.ID != l.cfg.Shortcut.ID {
				continue
			}

			if l.state == fsm.StateRecording || l.state == fsm.StateStreaming {
				now := time.Now()
				gap := now.Sub(lastActivated)
				lastActivated = now
				if gap <= repeatThreshold {
					// Compositor key repeat while the shortcut is held.
					continue
				}
				if l.state == fsm.StateRecording {
					l.stopRecording(ctx)
				} else {
					l.stopStreaming()
				}
				continue
			}

			next, ok := fsm.Transition(l.state, fsm.EventActivated)
			if !ok {
				l.logger.Debug("ignoring activation", "state", string(l.state))
				continue
			}
			lastActivated = time.Now()

			if l.transcriber.IsStreaming() {
				l.startStreaming(ctx)
			} else {
				l.startRecording(next)
			}

		case <-sc.Deactivated():
			// Toggle semantics: releases are drained and ignored.

		case ev := <-l.events:
			next, ok := fsm.Transition(l.state, ev)
			if !ok {
				continue
			}
			if next == fsm.StateIdle {
				l.teardownStreaming()
			}
			l.setState(next)
			if ev == fsm.EventError {
				// Portal-class injection failure; hand the session back for
				// recovery. The pending text is already stashed in the hub.
				return 0, &portal.Error{Op: "inject text", Err: errors.New("portal session unusable")}
			}

		case err := <-l.errs:
			l.teardownStreaming()
			return 0, err

		case <-l.hub.RestartRequested():
			l.logger.Info("session restart requested")
			l.teardownStreaming()
			return OutcomeRestart, nil
		}
	}
}

// startRecording begins a batch capture after an Activated transition.
func (l *loop) startRecording(next fsm.State) {
	handle, err := l.recorder.Start()
	if err != nil {
		l.logger.Error("failed to start recording", "error", err.Error())
		l.recordError("failed to start recording: " + err.Error())
		return
	}
	l.recording = handle
	l.setState(next)
	l.clearError()
}

// stopRecording finishes a batch capture: transcribe, then enqueue.
func (l *loop) stopRecording(ctx context.Context) {
	l.setState(fsm.StateTranscribing)

	handle := l.recording
	l.recording = nil
	if handle == nil {
		l.setState(fsm.StateIdle)
		return
	}

	audioPath, err := handle.Stop(ctx)
	if err != nil {
		l.logger.Error("failed to stop recording", "error", err.Error())
		l.recordError("failed to stop recording: " + err.Error())
		l.setState(fsm.StateIdle)
		return
	}

	transcript, err := l.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		l.logger.Error("transcription failed", "error", err.Error())
		l.recordError("transcription failed: " + err.Error())
		l.setState(fsm.StateIdle)
		return
	}
	if transcript == "" {
		l.logger.Info("empty transcript, returning to idle")
		l.setState(fsm.StateIdle)
		return
	}

	l.hub.SetLastTranscript(transcript)
	l.notifier.NotifyLastTranscript(transcript)

	if err := l.injector.Enqueue(ctx, transcript); err != nil {
		l.logger.Error("failed to enqueue text", "error", err.Error())
		l.recordError("failed to enqueue text: " + err.Error())
		l.setState(fsm.StateIdle)
	}
}

// startStreaming begins a live capture piped into the realtime session.
func (l *loop) startStreaming(ctx context.Context) {
	capture, err := l.recorder.StartStreaming()
	if err != nil {
		l.logger.Error("failed to start streaming capture", "error", err.Error())
		l.recordError("failed to start streaming: " + err.Error())
		l.setState(fsm.StateIdle)
		return
	}

	s := newStreamingSession(capture)
	l.streaming = s

	go func() {
		err := l.transcriber.RunStreamingSession(ctx, transcriber.StreamInput{
			SampleRate: l.cfg.Audio.SampleRate,
			Frames:     capture.Frames(),
			Stop:       s.stop,
			Typer:      l.injector,
			Publish: func(text string) {
				l.hub.SetLastTranscript(text)
				l.notifier.NotifyLastTranscript(text)
			},
		})
		if err != nil && ctx.Err() == nil {
			if portal.IsPortalError(err) {
				select {
				case l.errs <- err:
				default:
				}
				return
			}
			l.logger.Error("streaming session error", "error", err.Error())
			l.recordError("streaming error: " + err.Error())
		}
		// Completion (or a local failure) closes the cycle.
		select {
		case l.events <- fsm.EventInjectionDone:
		case <-ctx.Done():
		}
	}()

	l.setState(fsm.StateStreaming)
	l.clearError()
}

// stopStreaming stops audio capture and signals the realtime task to
// drain; the task posts InjectionDone once the server finalizes.
func (l *loop) stopStreaming() {
	l.setState(fsm.StateTranscribing)

	if l.streaming == nil {
		l.setState(fsm.StateIdle)
		return
	}
	l.streaming.capture.Stop()
	l.streaming.signalStop()
}

// teardownStreaming releases a live capture when the cycle ends.
func (l *loop) teardownStreaming() {
	if l.streaming == nil {
		return
	}
	l.streaming.capture.Stop()
	l.streaming.signalStop()
	l.streaming = nil
}

// setState applies and publishes a state change.
func (l *loop) setState(s fsm.State) {
	l.state = s
	l.hub.SetState(s)
	l.notifier.NotifyState()
}

func (l *loop) recordError(message string) {
	l.hub.SetLastError(message)
	l.notifier.NotifyLastError(message)
}

func (l *loop) clearError() {
	l.hub.SetLastError("")
	l.notifier.NotifyLastError("")
}

// streamingSession holds the live capture and its one-shot drain signal.
type streamingSession struct {
	capture Streaming
	stop    chan struct{}
	stopped bool
}

func newStreamingSession(capture Streaming) *streamingSession {
	return &streamingSession{capture: capture, stop: make(chan struct{})}
}

func (s *streamingSession) signalStop() {
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
}
