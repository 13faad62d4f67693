package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/fsm"
)

func TestHubStateDefaultsToIdle(t *testing.T) {
	h := New(config.Default())
	require.Equal(t, fsm.StateIdle, h.State())
}

func TestHubRoundTripsFields(t *testing.T) {
	h := New(config.Default())

	h.SetState(fsm.StateRecording)
	require.Equal(t, fsm.StateRecording, h.State())

	h.SetPortalConnected(true)
	require.True(t, h.PortalConnected())

	h.SetLastTranscript("hello world")
	require.Equal(t, "hello world", h.LastTranscript())

	h.SetLastError("boom")
	require.Equal(t, "boom", h.LastError())
	h.SetLastError("")
	require.Empty(t, h.LastError())

	h.SetPendingInjection("stashed")
	require.Equal(t, "stashed", h.PendingInjection())
}

func TestHubMutateConfigReturnsSnapshot(t *testing.T) {
	h := New(config.Default())
	got := h.MutateConfig(func(c *config.Config) {
		c.Shortcut.Trigger = "<Control>F10"
	})
	require.Equal(t, "<Control>F10", got.Shortcut.Trigger)
	require.Equal(t, "<Control>F10", h.Config().Shortcut.Trigger)
}

func TestLatchRequestBeforeWaitReturnsImmediately(t *testing.T) {
	l := NewLatch()
	l.Request()

	select {
	case <-l.Wait():
	case <-time.After(time.Second):
		t.Fatal("latch did not resolve")
	}

	// The permit is consumed; a second receive blocks until re-requested.
	select {
	case <-l.Wait():
		t.Fatal("latch resolved twice from one request")
	default:
	}
}

func TestLatchCollapsesRepeatedRequests(t *testing.T) {
	l := NewLatch()
	l.Request()
	l.Request()
	l.Request()

	<-l.Wait()
	select {
	case <-l.Wait():
		t.Fatal("repeated requests accumulated permits")
	default:
	}
}

func TestHubDownloadLifecycle(t *testing.T) {
	h := New(config.Default())

	_, ok := h.Download("parakeet-tdt-0.6b-v3")
	require.False(t, ok)

	h.SetDownload("parakeet-tdt-0.6b-v3", DownloadState{Phase: DownloadRunning, Percent: 40})
	d, ok := h.Download("parakeet-tdt-0.6b-v3")
	require.True(t, ok)
	require.Equal(t, DownloadRunning, d.Phase)
	require.Equal(t, 40, d.Percent)

	h.ClearDownload("parakeet-tdt-0.6b-v3")
	_, ok = h.Download("parakeet-tdt-0.6b-v3")
	require.False(t, ok)
}
