package desktop

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadRestoreTokenMissingFile(t *testing.T) {
	token := LoadRestoreToken(filepath.Join(t.TempDir(), "restore_token"), discard())
	require.Empty(t, token)
}

func TestLoadRestoreTokenEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore_token")
	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
	require.Empty(t, LoadRestoreToken(path, discard()))
}

func TestSaveAndLoadRestoreTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "restore_token")
	require.NoError(t, SaveRestoreToken(path, "opaque-token-value"))

	require.Equal(t, "opaque-token-value", LoadRestoreToken(path, discard()))
}

func TestSaveRestoreTokenSetsUserOnlyMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore_token")
	require.NoError(t, SaveRestoreToken(path, "tok"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestSaveRestoreTokenOverwritesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore_token")
	require.NoError(t, SaveRestoreToken(path, "first"))
	require.NoError(t, SaveRestoreToken(path, "second"))
	require.Equal(t, "second", LoadRestoreToken(path, discard()))
}
