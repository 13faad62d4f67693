package transcriber

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvankamp/dictum/internal/config"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func tempAudioFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF fake"), 0o600))
	return path
}

func whisperConfig(command string, args ...string) config.TranscriberConfig {
	cfg := config.Default().Transcriber
	cfg.Provider = config.ProviderWhisperCpp
	cfg.WhisperCpp = config.WhisperCppConfig{Command: command, Args: args}
	return cfg
}

func TestTranscribeWhisperCppCapturesTrimmedStdout(t *testing.T) {
	tr := New(whisperConfig("/bin/echo", "hello world"), discard())
	path := tempAudioFile(t)

	text, err := tr.Transcribe(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "hello world", text)
}

func TestTranscribeWhisperCppSubstitutesAudioPlaceholder(t *testing.T) {
	tr := New(whisperConfig("/bin/echo", "-n", "{audio_file}"), discard())
	path := tempAudioFile(t)

	text, err := tr.Transcribe(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, path, text)
}

func TestTranscribeWhisperCppEmptyStdout(t *testing.T) {
	tr := New(whisperConfig("/bin/echo", "-n", ""), discard())

	text, err := tr.Transcribe(context.Background(), tempAudioFile(t))
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestTranscribeWhisperCppNonZeroExitFails(t *testing.T) {
	tr := New(whisperConfig("/bin/sh", "-c", "echo bad >&2; exit 3"), discard())

	_, err := tr.Transcribe(context.Background(), tempAudioFile(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad")
}

func TestTranscribeDeletesAudioFileOnSuccess(t *testing.T) {
	tr := New(whisperConfig("/bin/echo", "ok"), discard())
	path := tempAudioFile(t)

	_, err := tr.Transcribe(context.Background(), path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestTranscribeDeletesAudioFileOnFailure(t *testing.T) {
	tr := New(whisperConfig("/bin/false"), discard())
	path := tempAudioFile(t)

	_, err := tr.Transcribe(context.Background(), path)
	require.Error(t, err)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestTranscribeMistralPostsMultipartAndParsesText(t *testing.T) {
	var gotAuth, gotModel, gotFile string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotModel = r.FormValue("model")
		f, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		gotFile = header.Filename
		json.NewEncoder(w).Encode(map[string]string{"text": "  hello from the api  "})
	}))
	defer srv.Close()

	cfg := config.Default().Transcriber
	cfg.Provider = config.ProviderMistral
	cfg.Mistral = config.MistralConfig{APIKey: "sk-test", Model: "voxtral-mini-2602", Endpoint: srv.URL}

	tr := New(cfg, discard())
	path := tempAudioFile(t)

	text, err := tr.Transcribe(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, "hello from the api", text)
	require.Equal(t, "Bearer sk-test", gotAuth)
	require.Equal(t, "voxtral-mini-2602", gotModel)
	require.Equal(t, filepath.Base(path), gotFile)
}

func TestTranscribeMistralNon2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := config.Default().Transcriber
	cfg.Provider = config.ProviderMistral
	cfg.Mistral.Endpoint = srv.URL

	tr := New(cfg, discard())
	path := tempAudioFile(t)

	_, err := tr.Transcribe(context.Background(), path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "401")

	// The audio file is deleted on failure too.
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestTranscribeRealtimeProviderRejectsBatchCall(t *testing.T) {
	cfg := config.Default().Transcriber
	cfg.Provider = config.ProviderMistralRealtime

	tr := New(cfg, discard())
	require.True(t, tr.IsStreaming())

	_, err := tr.Transcribe(context.Background(), tempAudioFile(t))
	require.ErrorIs(t, err, ErrStreamingProvider)
}

func TestTranscribeParakeetMissingModelFails(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := config.Default().Transcriber
	cfg.Provider = config.ProviderParakeet

	tr := New(cfg, discard())
	_, err := tr.Transcribe(context.Background(), tempAudioFile(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not downloaded")
}

func TestIsStreamingFalseForBatchProviders(t *testing.T) {
	for _, provider := range []string{config.ProviderWhisperCpp, config.ProviderMistral, config.ProviderParakeet} {
		cfg := config.Default().Transcriber
		cfg.Provider = provider
		require.False(t, New(cfg, discard()).IsStreaming(), provider)
	}
}
