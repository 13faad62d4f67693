// Package models resolves, checks, downloads, and deletes the local ONNX
// transducer models used by the parakeet transcriber.
package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// requiredFiles must all be present for a model to count as available.
var requiredFiles = []string{
	"encoder.int8.onnx",
	"decoder.int8.onnx",
	"joiner.int8.onnx",
	"tokens.txt",
}

// Quantized transducer repos the downloader knows about.
const (
	v2BaseURL = "https://huggingface.co/csukuangfj/sherpa-onnx-nemo-parakeet-tdt-0.6b-v2-int8/resolve/main"
	v3BaseURL = "https://huggingface.co/csukuangfj/sherpa-onnx-nemo-parakeet-tdt-0.6b-v3-int8/resolve/main"
)

// BaseDir is the model storage root under the XDG data directory.
func BaseDir() string {
	data := os.Getenv("XDG_DATA_HOME")
	if data == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			data = ".local/share"
		} else {
			data = filepath.Join(home, ".local", "share")
		}
	}
	return filepath.Join(data, "dictum", "models")
}

// Dir is the directory holding one named model.
func Dir(model string) string {
	return filepath.Join(BaseDir(), model)
}

// IsAvailable reports whether every required model file exists on disk.
func IsAvailable(model string) bool {
	dir := Dir(model)
	for _, f := range requiredFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			return false
		}
	}
	return true
}

// RequiredFiles lists the files a complete model consists of.
func RequiredFiles() []string {
	return append([]string(nil), requiredFiles...)
}

// baseURL resolves the download repo for a known model name.
func baseURL(model string) (string, error) {
	switch model {
	case "parakeet-tdt-0.6b-v2":
		return v2BaseURL, nil
	case "parakeet-tdt-0.6b-v3":
		return v3BaseURL, nil
	default:
		return "", fmt.Errorf("unknown model %q", model)
	}
}

// Delete removes a downloaded model directory. Deleting a model that was
// never downloaded is not an error.
func Delete(model string) error {
	dir := Dir(model)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return os.RemoveAll(dir)
}
