package session

import (
	"context"
	"log/slog"

	"github.com/mvankamp/dictum/internal/audio"
	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/desktop"
	"github.com/mvankamp/dictum/internal/portal"
	"github.com/mvankamp/dictum/internal/shortcuts"
	"github.com/mvankamp/dictum/internal/transcriber"
)

// DefaultDeps wires the production collaborators against one portal
// connection.
func DefaultDeps(conn *portal.Conn, logger *slog.Logger) Deps {
	return Deps{
		NewShortcuts: func(ctx context.Context, cfg config.ShortcutConfig) (ShortcutSource, error) {
			return shortcuts.New(ctx, conn, cfg, logger)
		},
		NewKeyboard: func(ctx context.Context, restoreToken string) (Keyboard, error) {
			return desktop.New(ctx, conn, restoreToken, logger)
		},
		NewRecorder: func(cfg config.AudioConfig) Recorder {
			return pulseRecorder{recorder: audio.NewRecorder(cfg, logger)}
		},
		NewTranscriber: func(cfg config.TranscriberConfig) Transcriber {
			return transcriber.New(cfg, logger)
		},
		WriteShortcutRegistry: shortcuts.WriteDconf,
	}
}

// pulseRecorder adapts the audio package's concrete handles to the
// session interfaces.
type pulseRecorder struct {
	recorder *audio.Recorder
}

func (p pulseRecorder) Start() (Recording, error) {
	handle, err := p.recorder.Start()
	if err != nil {
		return nil, err
	}
	return handle, nil
}

func (p pulseRecorder) StartStreaming() (Streaming, error) {
	handle, err := p.recorder.StartStreaming()
	if err != nil {
		return nil, err
	}
	return handle, nil
}
