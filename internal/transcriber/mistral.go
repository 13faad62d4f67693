package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvankamp/dictum/internal/config"
)

// mistralResponse is the transcription API response body.
type mistralResponse struct {
	Text string `json:"text"`
}

// transcribeMistral POSTs the audio file as a multipart form and parses
// the transcript from the JSON response.
func transcribeMistral(ctx context.Context, client *http.Client, cfg config.MistralConfig, audioPath string, logger *slog.Logger) (string, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = config.DefaultMistralEndpoint
	}
	logger.Info("sending audio to transcription API", "model", cfg.Model, "endpoint", endpoint)

	fileBytes, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("model", cfg.Model); err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := part.Write(fileBytes); err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("build multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed mistralResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}

	transcript := strings.TrimSpace(parsed.Text)
	logger.Info("transcription complete", "chars", len(transcript))
	return transcript, nil
}
