package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/hub"
	"github.com/mvankamp/dictum/internal/models"
	"github.com/mvankamp/dictum/internal/shortcuts"
)

// Server owns the exported daemon object. Property values mirror the hub;
// every mutation writes through the hub first, then the property, so a
// successful method call is immediately readable through the matching
// property.
type Server struct {
	conn       *dbus.Conn
	hub        *hub.Hub
	downloader *models.Downloader
	logger     *slog.Logger
	props      *prop.Properties
}

// NewServer constructs the IPC server over an established bus connection.
func NewServer(conn *dbus.Conn, h *hub.Hub, downloader *models.Downloader, logger *slog.Logger) *Server {
	return &Server{conn: conn, hub: h, downloader: downloader, logger: logger}
}

// Export publishes the daemon object and claims the well-known bus name.
func (s *Server) Export() error {
	cfg := s.hub.Config()

	propsSpec := map[string]map[string]*prop.Prop{
		InterfaceName: {
			"State":             newProp(string(s.hub.State())),
			"ShortcutTrigger":   newProp(cfg.Shortcut.Trigger),
			"TranscriberConfig": newProp(mustJSON(cfg.Transcriber)),
			"InjectionConfig":   newProp(mustJSON(cfg.Injection)),
			"SampleRate":        newProp(uint32(cfg.Audio.SampleRate)),
			"Channels":          newProp(uint16(cfg.Audio.Channels)),
			"PortalConnected":   newProp(s.hub.PortalConnected()),
			"LastTranscript":    newProp(s.hub.LastTranscript()),
			"LastError":         newProp(s.hub.LastError()),
		},
	}

	props, err := prop.Export(s.conn, ObjectPath, propsSpec)
	if err != nil {
		return fmt.Errorf("export properties: %w", err)
	}
	s.props = props

	methods := &daemonMethods{server: s}
	if err := s.conn.Export(methods, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("export methods: %w", err)
	}

	node := &introspect.Node{
		Name: ObjectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:    InterfaceName,
				Methods: introspect.Methods(methods),
				Properties: []introspect.Property{
					{Name: "State", Type: "s", Access: "read"},
					{Name: "ShortcutTrigger", Type: "s", Access: "read"},
					{Name: "TranscriberConfig", Type: "s", Access: "read"},
					{Name: "InjectionConfig", Type: "s", Access: "read"},
					{Name: "SampleRate", Type: "u", Access: "read"},
					{Name: "Channels", Type: "q", Access: "read"},
					{Name: "PortalConnected", Type: "b", Access: "read"},
					{Name: "LastTranscript", Type: "s", Access: "read"},
					{Name: "LastError", Type: "s", Access: "read"},
				},
				Signals: []introspect.Signal{
					{Name: "TranscriptionComplete", Args: []introspect.Arg{{Name: "text", Type: "s"}}},
					{Name: "ErrorOccurred", Args: []introspect.Arg{{Name: "message", Type: "s"}}},
					{Name: "DownloadProgress", Args: []introspect.Arg{
						{Name: "model", Type: "s"}, {Name: "percent", Type: "y"},
					}},
				},
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := s.conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %q already taken", BusName)
	}

	s.logger.Info("IPC interface registered", "bus_name", BusName, "path", ObjectPath)
	return nil
}

func newProp(value interface{}) *prop.Prop {
	return &prop.Prop{Value: value, Writable: false, Emit: prop.EmitTrue}
}

// NotifyState publishes the hub's current state.
func (s *Server) NotifyState() {
	s.props.SetMust(InterfaceName, "State", string(s.hub.State()))
}

// NotifyPortalConnected publishes portal liveness.
func (s *Server) NotifyPortalConnected() {
	s.props.SetMust(InterfaceName, "PortalConnected", s.hub.PortalConnected())
}

// NotifyLastTranscript publishes a completed transcript.
func (s *Server) NotifyLastTranscript(text string) {
	s.props.SetMust(InterfaceName, "LastTranscript", text)
	if err := s.conn.Emit(ObjectPath, InterfaceName+".TranscriptionComplete", text); err != nil {
		s.logger.Warn("failed to emit TranscriptionComplete", "error", err.Error())
	}
}

// NotifyLastError publishes or clears the last per-operation error.
func (s *Server) NotifyLastError(message string) {
	s.props.SetMust(InterfaceName, "LastError", message)
	if message == "" {
		return
	}
	if err := s.conn.Emit(ObjectPath, InterfaceName+".ErrorOccurred", message); err != nil {
		s.logger.Warn("failed to emit ErrorOccurred", "error", err.Error())
	}
}

// emitDownloadProgress publishes model download progress.
func (s *Server) emitDownloadProgress(model string, percent int) {
	if err := s.conn.Emit(ObjectPath, InterfaceName+".DownloadProgress", model, uint8(percent)); err != nil {
		s.logger.Warn("failed to emit DownloadProgress", "error", err.Error())
	}
}

// refreshConfigProps re-publishes every config-derived property.
func (s *Server) refreshConfigProps(cfg config.Config) {
	s.props.SetMust(InterfaceName, "ShortcutTrigger", cfg.Shortcut.Trigger)
	s.props.SetMust(InterfaceName, "TranscriberConfig", mustJSON(cfg.Transcriber))
	s.props.SetMust(InterfaceName, "InjectionConfig", mustJSON(cfg.Injection))
	s.props.SetMust(InterfaceName, "SampleRate", uint32(cfg.Audio.SampleRate))
	s.props.SetMust(InterfaceName, "Channels", uint16(cfg.Audio.Channels))
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

// daemonMethods is the method surface exported at the object path.
type daemonMethods struct {
	server *Server
}

// SetShortcut updates the shortcut trigger, persists the config, writes
// the compositor registry, and restarts the session to rebind.
func (m *daemonMethods) SetShortcut(trigger string) *dbus.Error {
	s := m.server
	cfg := s.hub.MutateConfig(func(c *config.Config) { c.Shortcut.Trigger = trigger })

	if err := cfg.Save(); err != nil {
		return dbus.MakeFailedError(fmt.Errorf("save config: %w", err))
	}
	if err := shortcuts.WriteDconf(context.Background(), cfg.Shortcut); err != nil {
		s.logger.Warn("failed to write shortcut registry (non-GNOME?)", "error", err.Error())
	}

	s.props.SetMust(InterfaceName, "ShortcutTrigger", trigger)
	s.hub.RequestRestart()
	return nil
}

// SetTranscriberConfig replaces the transcriber configuration from JSON.
func (m *daemonMethods) SetTranscriberConfig(configJSON string) *dbus.Error {
	s := m.server

	var transcriberCfg config.TranscriberConfig
	if err := json.Unmarshal([]byte(configJSON), &transcriberCfg); err != nil {
		return invalidArgs(fmt.Errorf("invalid transcriber config JSON: %w", err))
	}

	candidate := s.hub.Config()
	candidate.Transcriber = transcriberCfg
	if err := candidate.Validate(); err != nil {
		return invalidArgs(err)
	}

	s.hub.SetConfig(candidate)
	if err := candidate.Save(); err != nil {
		return dbus.MakeFailedError(fmt.Errorf("save config: %w", err))
	}

	s.props.SetMust(InterfaceName, "TranscriberConfig", mustJSON(candidate.Transcriber))
	s.hub.RequestRestart()
	return nil
}

// SetInjectionConfig replaces the injection configuration from JSON.
func (m *daemonMethods) SetInjectionConfig(configJSON string) *dbus.Error {
	s := m.server

	var injectionCfg config.InjectionConfig
	if err := json.Unmarshal([]byte(configJSON), &injectionCfg); err != nil {
		return invalidArgs(fmt.Errorf("invalid injection config JSON: %w", err))
	}

	candidate := s.hub.Config()
	candidate.Injection = injectionCfg
	if err := candidate.Validate(); err != nil {
		return invalidArgs(err)
	}

	s.hub.SetConfig(candidate)
	if err := candidate.Save(); err != nil {
		return dbus.MakeFailedError(fmt.Errorf("save config: %w", err))
	}

	s.props.SetMust(InterfaceName, "InjectionConfig", mustJSON(candidate.Injection))
	s.hub.RequestRestart()
	return nil
}

// SetAudio updates the capture format.
func (m *daemonMethods) SetAudio(sampleRate uint32, channels uint16) *dbus.Error {
	s := m.server

	candidate := s.hub.Config()
	candidate.Audio.SampleRate = int(sampleRate)
	candidate.Audio.Channels = int(channels)
	if err := candidate.Validate(); err != nil {
		return invalidArgs(err)
	}

	s.hub.SetConfig(candidate)
	if err := candidate.Save(); err != nil {
		return dbus.MakeFailedError(fmt.Errorf("save config: %w", err))
	}

	s.props.SetMust(InterfaceName, "SampleRate", sampleRate)
	s.props.SetMust(InterfaceName, "Channels", channels)
	s.hub.RequestRestart()
	return nil
}

// ReloadConfig re-reads the config file from disk.
func (m *daemonMethods) ReloadConfig() *dbus.Error {
	s := m.server

	cfg, err := config.Load()
	if err != nil {
		return dbus.MakeFailedError(fmt.Errorf("reload config: %w", err))
	}
	s.hub.SetConfig(cfg)
	s.refreshConfigProps(cfg)
	s.logger.Info("configuration reloaded via IPC")
	return nil
}

// ClearRestoreToken deletes the stored portal restore token so the next
// session prompts for fresh consent.
func (m *daemonMethods) ClearRestoreToken() *dbus.Error {
	s := m.server

	tokenPath := s.hub.Config().TokenPath()
	if err := os.Remove(tokenPath); err != nil && !os.IsNotExist(err) {
		return dbus.MakeFailedError(fmt.Errorf("remove token: %w", err))
	}
	s.logger.Info("restore token cleared via IPC")
	return nil
}

// Quit shuts the daemon down.
func (m *daemonMethods) Quit() *dbus.Error {
	s := m.server
	s.logger.Info("quit requested via IPC")
	s.hub.RequestShutdown()
	return nil
}

// DownloadModel starts a detached model download. Progress is observable
// through the DownloadProgress signal and ModelStatus.
func (m *daemonMethods) DownloadModel(model string) *dbus.Error {
	s := m.server

	if d, ok := s.hub.Download(model); ok && d.Phase == hub.DownloadRunning {
		return nil
	}
	s.hub.SetDownload(model, hub.DownloadState{Phase: hub.DownloadRunning})

	go func() {
		err := s.downloader.Download(context.Background(), model, func(percent int) {
			s.hub.SetDownload(model, hub.DownloadState{Phase: hub.DownloadRunning, Percent: percent})
			s.emitDownloadProgress(model, percent)
		})
		if err != nil {
			s.logger.Error("model download failed", "model", model, "error", err.Error())
			s.hub.SetDownload(model, hub.DownloadState{Phase: hub.DownloadFailed, Err: err.Error()})
			return
		}
		s.hub.SetDownload(model, hub.DownloadState{Phase: hub.DownloadComplete, Percent: 100})
		s.emitDownloadProgress(model, 100)
	}()

	return nil
}

// DeleteModel removes a downloaded model.
func (m *daemonMethods) DeleteModel(model string) *dbus.Error {
	s := m.server

	if err := models.Delete(model); err != nil {
		return dbus.MakeFailedError(fmt.Errorf("delete model: %w", err))
	}
	s.hub.ClearDownload(model)
	return nil
}

// ModelStatus reports "available", "downloading", or "not_downloaded".
func (m *daemonMethods) ModelStatus(model string) (string, *dbus.Error) {
	s := m.server

	if models.IsAvailable(model) {
		return "available", nil
	}
	if d, ok := s.hub.Download(model); ok && d.Phase == hub.DownloadRunning {
		return "downloading", nil
	}
	return "not_downloaded", nil
}

func invalidArgs(err error) *dbus.Error {
	return dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs", []interface{}{err.Error()})
}
