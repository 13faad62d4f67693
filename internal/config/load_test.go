package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := LoadPath(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadEmptyTomlGivesDefaults(t *testing.T) {
	cfg, err := loadFromString("")
	require.NoError(t, err)
	require.Equal(t, ProviderWhisperCpp, cfg.Transcriber.Provider)
	require.Equal(t, "whisper-cpp", cfg.Transcriber.WhisperCpp.Command)
	require.Equal(t, 16000, cfg.Audio.SampleRate)
	require.Equal(t, 1, cfg.Audio.Channels)
	require.Equal(t, InjectionModeType, cfg.Injection.Mode)
}

func TestLoadLegacyTranscriberMigratesCommandAndArgs(t *testing.T) {
	cfg, err := loadFromString(`
[transcriber]
command = "/usr/local/bin/my-whisper"
args = ["-m", "model.bin", "{audio_file}"]
`)
	require.NoError(t, err)
	require.Equal(t, ProviderWhisperCpp, cfg.Transcriber.Provider)
	require.Equal(t, "/usr/local/bin/my-whisper", cfg.Transcriber.WhisperCpp.Command)
	require.Equal(t, []string{"-m", "model.bin", "{audio_file}"}, cfg.Transcriber.WhisperCpp.Args)
}

func TestLoadLegacyFormatPreservesOtherSections(t *testing.T) {
	cfg, err := loadFromString(`
[shortcut]
trigger = "<Control>d"

[transcriber]
command = "my-whisper"

[audio]
sample_rate = 48000
`)
	require.NoError(t, err)
	require.Equal(t, "<Control>d", cfg.Shortcut.Trigger)
	require.Equal(t, "my-whisper", cfg.Transcriber.WhisperCpp.Command)
	require.Equal(t, 48000, cfg.Audio.SampleRate)
}

func TestLoadNewFormatPreservesProvider(t *testing.T) {
	cfg, err := loadFromString(`
[transcriber]
provider = "mistral"

[transcriber.mistral]
api_key = "sk-test"
`)
	require.NoError(t, err)
	require.Equal(t, ProviderMistral, cfg.Transcriber.Provider)
	require.Equal(t, "sk-test", cfg.Transcriber.Mistral.APIKey)
	// Untouched sub-records keep their defaults.
	require.Equal(t, DefaultMistralModel, cfg.Transcriber.Mistral.Model)
	require.Equal(t, "whisper-cpp", cfg.Transcriber.WhisperCpp.Command)
}

func TestLoadUnknownFieldsIgnored(t *testing.T) {
	cfg, err := loadFromString(`
nonsense = true

[shortcut]
trigger = "<Super>d"
future_field = 42
`)
	require.NoError(t, err)
	require.Equal(t, "<Super>d", cfg.Shortcut.Trigger)
}

func TestSaveRoundTripEqualsOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	cfg := Default()
	cfg.Shortcut.Trigger = "<Control>F10"
	cfg.Transcriber.Provider = ProviderMistralRealtime
	cfg.Transcriber.MistralRealtime.APIKey = "sk-rt"
	cfg.Audio.SampleRate = 24000

	require.NoError(t, cfg.SavePath(path))

	loaded, err := LoadPath(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestSaveDefaultsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, Default().SavePath(path))

	loaded, err := LoadPath(path)
	require.NoError(t, err)
	require.Equal(t, Default(), loaded)
}

func TestLoadMalformedTomlFails(t *testing.T) {
	_, err := loadFromString(`[shortcut`)
	require.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown provider", mutate: func(c *Config) { c.Transcriber.Provider = "siri" }},
		{name: "unknown injection mode", mutate: func(c *Config) { c.Injection.Mode = "telepathy" }},
		{name: "negative typing delay", mutate: func(c *Config) { c.Injection.TypingDelayMS = -1 }},
		{name: "three channels", mutate: func(c *Config) { c.Audio.Channels = 3 }},
		{name: "sample rate too low", mutate: func(c *Config) { c.Audio.SampleRate = 4000 }},
		{name: "sample rate too high", mutate: func(c *Config) { c.Audio.SampleRate = 96000 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestTokenPathEnvOverride(t *testing.T) {
	t.Setenv("DICTUM_RESTORE_TOKEN_PATH", "/tmp/dictum-test-token")
	require.Equal(t, "/tmp/dictum-test-token", Default().TokenPath())
}

func TestTokenPathDefaultUnderConfigHome(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	os.Unsetenv("DICTUM_RESTORE_TOKEN_PATH")
	require.Equal(t, filepath.Join(dir, "dictum", "restore_token"), Default().TokenPath())
}

func TestIsStreamingOnlyForRealtimeProvider(t *testing.T) {
	cfg := Default()
	require.False(t, cfg.Transcriber.IsStreaming())
	cfg.Transcriber.Provider = ProviderMistralRealtime
	require.True(t, cfg.Transcriber.IsStreaming())
}
