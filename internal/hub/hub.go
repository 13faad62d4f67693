// Package hub holds cross-task daemon state behind one mutex.
//
// The hub is the only shared mutable store in the process. It never emits
// notifications itself; callers that change externally visible state pair
// the write with a notification on the IPC surface.
package hub

import (
	"sync"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/fsm"
)

// Download phases recorded per model. ModelStatus reports DownloadRunning
// as "downloading"; the other phases are not reported over IPC.
const (
	DownloadRunning  = "downloading"
	DownloadComplete = "complete"
	DownloadFailed   = "failed"
)

// DownloadState is the last observed status of one model download.
type DownloadState struct {
	Phase   string
	Percent int
	Err     string
}

// Hub is the shared state container lent to the IPC surface, the session
// loop, and the recovery supervisor.
type Hub struct {
	mu               sync.Mutex
	state            fsm.State
	cfg              config.Config
	portalConnected  bool
	lastTranscript   string
	lastError        string
	pendingInjection string
	downloads        map[string]DownloadState

	restart  *Latch
	shutdown *Latch
}

// New constructs a hub seeded with the loaded configuration.
func New(cfg config.Config) *Hub {
	return &Hub{
		state:     fsm.StateIdle,
		cfg:       cfg,
		downloads: make(map[string]DownloadState),
		restart:   NewLatch(),
		shutdown:  NewLatch(),
	}
}

// State returns the current lifecycle state.
func (h *Hub) State() fsm.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// SetState records the current lifecycle state.
func (h *Hub) SetState(s fsm.State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
}

// Config returns a snapshot of the active configuration.
func (h *Hub) Config() config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// SetConfig replaces the active configuration.
func (h *Hub) SetConfig(cfg config.Config) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
}

// MutateConfig applies fn to the configuration under the lock and returns
// the resulting snapshot.
func (h *Hub) MutateConfig(fn func(*config.Config)) config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.cfg)
	return h.cfg
}

// PortalConnected reports whether portal sessions are currently live.
func (h *Hub) PortalConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.portalConnected
}

// SetPortalConnected records portal session liveness.
func (h *Hub) SetPortalConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.portalConnected = connected
}

// LastTranscript returns the most recent non-empty transcript.
func (h *Hub) LastTranscript() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastTranscript
}

// SetLastTranscript records the most recent transcript.
func (h *Hub) SetLastTranscript(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTranscript = text
}

// LastError returns the most recent per-operation error, empty when clear.
func (h *Hub) LastError() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// SetLastError records or clears the most recent per-operation error.
func (h *Hub) SetLastError(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastError = text
}

// PendingInjection returns text stashed by a portal-failed injection.
func (h *Hub) PendingInjection() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingInjection
}

// SetPendingInjection stashes text whose injection failed with a portal
// error. The daemon does not re-inject it automatically after recovery;
// the control surface decides what to do with the holdover.
func (h *Hub) SetPendingInjection(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pendingInjection = text
}

// Download returns the recorded state of one model download.
func (h *Hub) Download(model string) (DownloadState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.downloads[model]
	return d, ok
}

// SetDownload records the state of one model download.
func (h *Hub) SetDownload(model string, d DownloadState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.downloads[model] = d
}

// ClearDownload removes a finished download record.
func (h *Hub) ClearDownload(model string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.downloads, model)
}

// RequestRestart resolves the session-restart latch.
func (h *Hub) RequestRestart() { h.restart.Request() }

// RestartRequested returns a channel that receives once a restart has been
// requested.
func (h *Hub) RestartRequested() <-chan struct{} { return h.restart.Wait() }

// RequestShutdown resolves the process-shutdown latch.
func (h *Hub) RequestShutdown() { h.shutdown.Request() }

// ShutdownRequested returns a channel that receives once shutdown has been
// requested.
func (h *Hub) ShutdownRequested() <-chan struct{} { return h.shutdown.Wait() }
