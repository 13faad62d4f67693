package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/fsm"
	"github.com/mvankamp/dictum/internal/hub"
)

func TestSuperviseRecoversAfterSessionError(t *testing.T) {
	t.Setenv("DICTUM_RESTORE_TOKEN_PATH", t.TempDir()+"/restore_token")

	h := hub.New(config.Default())
	notifier := &recordingNotifier{hub: h}

	deps := Deps{
		NewShortcuts: func(context.Context, config.ShortcutConfig) (ShortcutSource, error) {
			return nil, errors.New("portal gone")
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- Supervise(context.Background(), deps, h, notifier, discard())
	}()

	// The failed session marks the portal disconnected and enters recovery.
	deadline := time.After(5 * time.Second)
	for {
		states := notifier.stateSeq()
		if len(states) > 0 && states[len(states)-1] == fsm.StateRecoveringSession {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("never entered RecoveringSession, states %v", states)
		case <-time.After(10 * time.Millisecond):
		}
	}
	require.False(t, h.PortalConnected())

	// Shutdown during backoff ends the supervisor.
	h.RequestShutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

func TestSuperviseShutdownEndsRunningSession(t *testing.T) {
	t.Setenv("DICTUM_RESTORE_TOKEN_PATH", t.TempDir()+"/restore_token")

	h := hub.New(config.Default())
	notifier := &recordingNotifier{hub: h}

	sc := newStubShortcuts()
	deps := Deps{
		NewShortcuts: func(context.Context, config.ShortcutConfig) (ShortcutSource, error) {
			return sc, nil
		},
		NewKeyboard: func(context.Context, string) (Keyboard, error) {
			return &stubKeyboard{}, nil
		},
		NewRecorder:    func(config.AudioConfig) Recorder { return &stubRecorder{} },
		NewTranscriber: func(cfg config.TranscriberConfig) Transcriber { return &fakeStreamingTranscriber{} },
	}

	done := make(chan error, 1)
	go func() {
		done <- Supervise(context.Background(), deps, h, notifier, discard())
	}()

	notifier.waitForStates(t, []fsm.State{fsm.StateIdle})

	h.RequestShutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}

func TestSuperviseRestartRebuildsAgainstCurrentConfig(t *testing.T) {
	t.Setenv("DICTUM_RESTORE_TOKEN_PATH", t.TempDir()+"/restore_token")

	h := hub.New(config.Default())
	notifier := &recordingNotifier{hub: h}

	var triggers []string
	sessionReady := make(chan struct{}, 4)
	deps := Deps{
		NewShortcuts: func(_ context.Context, cfg config.ShortcutConfig) (ShortcutSource, error) {
			triggers = append(triggers, cfg.Trigger)
			sessionReady <- struct{}{}
			return newStubShortcuts(), nil
		},
		NewKeyboard: func(context.Context, string) (Keyboard, error) {
			return &stubKeyboard{}, nil
		},
		NewRecorder:    func(config.AudioConfig) Recorder { return &stubRecorder{} },
		NewTranscriber: func(cfg config.TranscriberConfig) Transcriber { return &fakeStreamingTranscriber{} },
	}

	done := make(chan error, 1)
	go func() {
		done <- Supervise(context.Background(), deps, h, notifier, discard())
	}()

	<-sessionReady

	// A config mutation followed by the restart latch rebinds the shortcut.
	h.MutateConfig(func(c *config.Config) { c.Shortcut.Trigger = "<Control>F10" })
	h.RequestRestart()

	select {
	case <-sessionReady:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not restart")
	}
	require.Equal(t, []string{"<Super>space", "<Control>F10"}, triggers)

	h.RequestShutdown()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not shut down")
	}
}
