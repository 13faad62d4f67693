// Package config loads, validates, defaults, and persists dictum configuration.
package config

// Provider names accepted in transcriber.provider.
const (
	ProviderWhisperCpp      = "whisper-cpp"
	ProviderMistral         = "mistral"
	ProviderMistralRealtime = "mistral-realtime"
	ProviderParakeet        = "parakeet"
)

// Injection modes accepted in injection.mode.
const (
	InjectionModeType      = "type"
	InjectionModeClipboard = "clipboard"
)

// Config is the fully materialized runtime configuration used by dictum.
type Config struct {
	Shortcut    ShortcutConfig    `toml:"shortcut"`
	Transcriber TranscriberConfig `toml:"transcriber"`
	Injection   InjectionConfig   `toml:"injection"`
	Persistence PersistenceConfig `toml:"persistence"`
	Audio       AudioConfig       `toml:"audio"`
}

// ShortcutConfig identifies the single global shortcut bound per session.
type ShortcutConfig struct {
	ID          string `toml:"id" json:"id"`
	Description string `toml:"description" json:"description"`
	Trigger     string `toml:"trigger" json:"trigger"`
}

// TranscriberConfig holds settings for every provider; Provider selects the
// active one. All sub-records are always present so provider switches via
// the control surface never lose settings.
type TranscriberConfig struct {
	Provider        string                `toml:"provider" json:"provider"`
	WhisperCpp      WhisperCppConfig      `toml:"whisper_cpp" json:"whisper_cpp"`
	Mistral         MistralConfig         `toml:"mistral" json:"mistral"`
	MistralRealtime MistralRealtimeConfig `toml:"mistral_realtime" json:"mistral_realtime"`
	Parakeet        ParakeetConfig        `toml:"parakeet" json:"parakeet"`
}

// WhisperCppConfig runs a local transcription subprocess. Args may contain
// the {audio_file} placeholder.
type WhisperCppConfig struct {
	Command string   `toml:"command" json:"command"`
	Args    []string `toml:"args" json:"args"`
}

// MistralConfig targets the batch audio transcription HTTP API.
type MistralConfig struct {
	APIKey   string `toml:"api_key" json:"api_key"`
	Model    string `toml:"model" json:"model"`
	Endpoint string `toml:"endpoint" json:"endpoint"`
}

// MistralRealtimeConfig targets the realtime WebSocket transcription API.
type MistralRealtimeConfig struct {
	APIKey   string `toml:"api_key" json:"api_key"`
	Model    string `toml:"model" json:"model"`
	Endpoint string `toml:"endpoint" json:"endpoint"`
}

// ParakeetConfig selects a locally downloaded ONNX transducer model.
type ParakeetConfig struct {
	Model             string `toml:"model" json:"model"`
	ExecutionProvider string `toml:"execution_provider" json:"execution_provider"`
}

// InjectionConfig controls how transcripts become keystrokes.
type InjectionConfig struct {
	TypingDelayMS int    `toml:"typing_delay_ms" json:"typing_delay_ms"`
	Mode          string `toml:"mode" json:"mode"`
}

// PersistenceConfig locates on-disk daemon state.
type PersistenceConfig struct {
	TokenPath string `toml:"token_path" json:"token_path"`
}

// AudioConfig controls the capture format requested from the input device.
type AudioConfig struct {
	SampleRate int `toml:"sample_rate" json:"sample_rate"`
	Channels   int `toml:"channels" json:"channels"`
}

// IsStreaming reports whether the active provider uses the realtime flow.
func (t TranscriberConfig) IsStreaming() bool {
	return t.Provider == ProviderMistralRealtime
}
