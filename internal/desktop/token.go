package desktop

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LoadRestoreToken reads a restore token from disk. A missing, empty, or
// unreadable file yields the empty token; unreadable files are removed so
// the next rotation starts clean.
func LoadRestoreToken(path string, logger *slog.Logger) string {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("no restore token file, starting fresh")
			return ""
		}
		logger.Warn("restore token unreadable, starting fresh", "error", err.Error())
		_ = os.Remove(path)
		return ""
	}

	token := strings.TrimSpace(string(content))
	if token == "" {
		logger.Info("restore token file is empty, starting fresh")
		return ""
	}
	logger.Info("loaded restore token", "path", path)
	return token
}

// SaveRestoreToken writes a restore token with user-only permissions.
func SaveRestoreToken(path, token string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	// WriteFile permissions are masked by umask; force the exact mode.
	if err := os.Chmod(path, 0o600); err != nil {
		return fmt.Errorf("chmod token: %w", err)
	}
	return nil
}
