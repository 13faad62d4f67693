package config

import (
	"os"
	"path/filepath"
)

// Default endpoints used when the config leaves them empty.
const (
	DefaultMistralEndpoint         = "https://api.mistral.ai/v1/audio/transcriptions"
	DefaultMistralRealtimeEndpoint = "wss://api.mistral.ai/v1/audio/transcriptions/realtime"
	DefaultMistralModel            = "voxtral-mini-2602"
	DefaultMistralRealtimeModel    = "voxtral-mini-transcribe-realtime-2602"
	DefaultParakeetModel           = "parakeet-tdt-0.6b-v3"
)

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Shortcut: ShortcutConfig{
			ID:          "dictate",
			Description: "Dictate",
			Trigger:     "<Super>space",
		},
		Transcriber: TranscriberConfig{
			Provider:   ProviderWhisperCpp,
			WhisperCpp: WhisperCppConfig{Command: "whisper-cpp", Args: []string{}},
			Mistral: MistralConfig{
				Model: DefaultMistralModel,
			},
			MistralRealtime: MistralRealtimeConfig{
				Model: DefaultMistralRealtimeModel,
			},
			Parakeet: ParakeetConfig{
				Model:             DefaultParakeetModel,
				ExecutionProvider: "auto",
			},
		},
		Injection: InjectionConfig{
			TypingDelayMS: 5,
			Mode:          InjectionModeType,
		},
		Persistence: PersistenceConfig{
			TokenPath: filepath.Join(configHome(), "dictum", "restore_token"),
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
	}
}

// configHome resolves XDG_CONFIG_HOME with the ~/.config fallback.
func configHome() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return xdg
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config")
}

// FilePath is the standard config file location.
func FilePath() string {
	return filepath.Join(configHome(), "dictum", "config.toml")
}

// TokenPath resolves the restore-token path, honoring the
// DICTUM_RESTORE_TOKEN_PATH environment override.
func (c Config) TokenPath() string {
	if override := os.Getenv("DICTUM_RESTORE_TOKEN_PATH"); override != "" {
		return override
	}
	return c.Persistence.TokenPath
}
