package transcriber

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/models"
)

// transcribeParakeet runs local transducer inference on the captured WAV.
// Inference runs on the calling goroutine and blocks it until decoding
// finishes; other goroutines keep running meanwhile.
func transcribeParakeet(cfg config.ParakeetConfig, audioPath string, logger *slog.Logger) (string, error) {
	if !models.IsAvailable(cfg.Model) {
		return "", fmt.Errorf("model %q is not downloaded", cfg.Model)
	}
	dir := models.Dir(cfg.Model)

	samples, sampleRate, err := readWavSamples(audioPath)
	if err != nil {
		return "", err
	}

	recognizerConfig := sherpa.OfflineRecognizerConfig{
		FeatConfig: sherpa.FeatureConfig{
			SampleRate: sampleRate,
			FeatureDim: 80,
		},
		ModelConfig: sherpa.OfflineModelConfig{
			Transducer: sherpa.OfflineTransducerModelConfig{
				Encoder: filepath.Join(dir, "encoder.int8.onnx"),
				Decoder: filepath.Join(dir, "decoder.int8.onnx"),
				Joiner:  filepath.Join(dir, "joiner.int8.onnx"),
			},
			Tokens:     filepath.Join(dir, "tokens.txt"),
			NumThreads: 4,
			Provider:   executionProvider(cfg.ExecutionProvider),
			ModelType:  "nemo_transducer",
		},
	}

	logger.Info("running local inference", "model", cfg.Model, "samples", len(samples))

	recognizer := sherpa.NewOfflineRecognizer(&recognizerConfig)
	if recognizer == nil {
		return "", fmt.Errorf("create recognizer for model %q", cfg.Model)
	}
	defer sherpa.DeleteOfflineRecognizer(recognizer)

	stream := sherpa.NewOfflineStream(recognizer)
	if stream == nil {
		return "", fmt.Errorf("create recognition stream for model %q", cfg.Model)
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(sampleRate, samples)
	recognizer.Decode(stream)

	transcript := strings.TrimSpace(stream.GetResult().Text)
	logger.Info("transcription complete", "chars", len(transcript))
	return transcript, nil
}

// executionProvider maps the config choice onto a sherpa provider name.
func executionProvider(choice string) string {
	if choice == "cuda" {
		return "cuda"
	}
	return "cpu"
}
