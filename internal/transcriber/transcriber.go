// Package transcriber dispatches speech-to-text to the configured backend:
// a whisper.cpp subprocess, the Mistral batch HTTP API, a local ONNX
// transducer, or the Mistral realtime WebSocket flow.
package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mvankamp/dictum/internal/config"
)

// ErrStreamingProvider is returned when Transcribe is called on the
// realtime provider, which only supports the streaming session flow.
var ErrStreamingProvider = errors.New("streaming provider has no batch transcription")

// Transcriber runs batch transcriptions for the configured provider.
type Transcriber struct {
	cfg    config.TranscriberConfig
	client *http.Client
	logger *slog.Logger
}

// New constructs a transcriber from provider configuration.
func New(cfg config.TranscriberConfig, logger *slog.Logger) *Transcriber {
	return &Transcriber{cfg: cfg, client: &http.Client{}, logger: logger}
}

// IsStreaming reports whether the active provider uses the realtime flow.
func (t *Transcriber) IsStreaming() bool {
	return t.cfg.IsStreaming()
}

// Transcribe runs the batch path on one audio file and returns the trimmed
// transcript. The audio file is deleted on every outcome; ownership
// transfers to the transcriber on call.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	defer func() {
		if err := os.Remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("failed to remove temp audio file", "path", audioPath, "error", err.Error())
		}
	}()

	switch t.cfg.Provider {
	case config.ProviderWhisperCpp:
		return transcribeWhisperCpp(ctx, t.cfg.WhisperCpp, audioPath, t.logger)
	case config.ProviderMistral:
		return transcribeMistral(ctx, t.client, t.cfg.Mistral, audioPath, t.logger)
	case config.ProviderParakeet:
		return transcribeParakeet(t.cfg.Parakeet, audioPath, t.logger)
	case config.ProviderMistralRealtime:
		return "", ErrStreamingProvider
	default:
		return "", fmt.Errorf("unknown transcriber provider %q", t.cfg.Provider)
	}
}
