package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/mvankamp/dictum/internal/config"
)

// audioFilePlaceholder is substituted with the capture path in subprocess args.
const audioFilePlaceholder = "{audio_file}"

// transcribeWhisperCpp runs the configured command and captures its stdout
// as the transcript.
func transcribeWhisperCpp(ctx context.Context, cfg config.WhisperCppConfig, audioPath string, logger *slog.Logger) (string, error) {
	args := make([]string, 0, len(cfg.Args))
	for _, arg := range cfg.Args {
		args = append(args, strings.ReplaceAll(arg, audioFilePlaceholder, audioPath))
	}

	logger.Info("running transcription command", "command", cfg.Command, "args", args)

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("transcription command failed: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	transcript := strings.TrimSpace(stdout.String())
	logger.Info("transcription complete", "chars", len(transcript))
	return transcript, nil
}
