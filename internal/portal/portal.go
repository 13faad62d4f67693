// Package portal wraps the xdg-desktop-portal request/response protocol
// and the capability checks dictum requires at startup.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// AppID is registered with the host portal registry before any portal
// session is created. GNOME's GlobalShortcuts backend rejects apps that
// skip registration.
const AppID = "io.github.mvankamp.Dictum"

// Portal interface names shared with the controllers built on this package.
const (
	GlobalShortcutsInterface = "org.freedesktop.portal.GlobalShortcuts"
	RemoteDesktopInterface   = "org.freedesktop.portal.RemoteDesktop"
)

const (
	portalDest = "org.freedesktop.portal.Desktop"
	portalPath = "/org/freedesktop/portal/desktop"

	registryInterface       = "org.freedesktop.host.portal.Registry"
	requestInterface        = "org.freedesktop.portal.Request"
	globalShortcutsIface    = GlobalShortcutsInterface
	remoteDesktopIface      = RemoteDesktopInterface
	minGlobalShortcutsVers  = uint32(1)
	minRemoteDesktopVersion = uint32(2)
)

// DeviceKeyboard is the RemoteDesktop device bitmask bit for keyboards.
const DeviceKeyboard = uint32(1)

// Conn is a session-bus connection with the portal request plumbing attached.
type Conn struct {
	bus    *dbus.Conn
	logger *slog.Logger
}

// Connect opens the session bus and registers the app id with the host
// portal registry.
func Connect(ctx context.Context, logger *slog.Logger) (*Conn, error) {
	bus, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	c := &Conn{bus: bus, logger: logger}
	if err := c.register(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Bus exposes the underlying connection for the IPC surface.
func (c *Conn) Bus() *dbus.Conn {
	return c.bus
}

// register announces the app id to the host portal registry. The call has
// no reply by contract.
func (c *Conn) register(ctx context.Context) error {
	obj := c.bus.Object(portalDest, portalPath)
	call := obj.CallWithContext(ctx, registryInterface+".Register", dbus.FlagNoReplyExpected,
		AppID, map[string]dbus.Variant{})
	if call.Err != nil {
		return &Error{Op: "register app id", Err: call.Err}
	}
	c.logger.Info("registered app id with portal", "app_id", AppID)
	return nil
}

// CheckCapabilities verifies the portal interfaces and versions dictum
// needs. Failures here are startup-fatal.
func (c *Conn) CheckCapabilities(ctx context.Context) error {
	obj := c.bus.Object(portalDest, portalPath)

	gsVersion, err := versionProperty(obj, globalShortcutsIface)
	if err != nil {
		return fmt.Errorf("GlobalShortcuts interface not available: %w", err)
	}
	if gsVersion < minGlobalShortcutsVers {
		return fmt.Errorf("GlobalShortcuts version %d < %d", gsVersion, minGlobalShortcutsVers)
	}

	rdVersion, err := versionProperty(obj, remoteDesktopIface)
	if err != nil {
		return fmt.Errorf("RemoteDesktop interface not available: %w", err)
	}
	if rdVersion < minRemoteDesktopVersion {
		return fmt.Errorf("RemoteDesktop version %d < %d", rdVersion, minRemoteDesktopVersion)
	}

	devices, err := obj.GetProperty(remoteDesktopIface + ".AvailableDeviceTypes")
	if err != nil {
		return fmt.Errorf("query AvailableDeviceTypes: %w", err)
	}
	mask, ok := devices.Value().(uint32)
	if !ok {
		return fmt.Errorf("AvailableDeviceTypes has unexpected type %T", devices.Value())
	}
	if mask&DeviceKeyboard == 0 {
		return fmt.Errorf("keyboard not in AvailableDeviceTypes (mask %#x)", mask)
	}

	c.logger.Info("portal capabilities verified",
		"global_shortcuts_version", gsVersion,
		"remote_desktop_version", rdVersion,
		"device_types", mask)
	return nil
}

func versionProperty(obj dbus.BusObject, iface string) (uint32, error) {
	v, err := obj.GetProperty(iface + ".version")
	if err != nil {
		return 0, err
	}
	version, ok := v.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("version property has unexpected type %T", v.Value())
	}
	return version, nil
}

// Request performs one portal method call and waits for the matching
// Response signal. The options map is extended with the handle token; args
// precede options in the method signature.
func (c *Conn) Request(ctx context.Context, iface, method string, options map[string]dbus.Variant, args ...interface{}) (map[string]dbus.Variant, error) {
	token := handleToken()
	expected := expectedRequestPath(c.bus, token)

	signals := make(chan *dbus.Signal, 8)
	c.bus.Signal(signals)
	defer c.bus.RemoveSignal(signals)

	matchOpts := []dbus.MatchOption{
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
		dbus.WithMatchObjectPath(expected),
	}
	if err := c.bus.AddMatchSignalContext(ctx, matchOpts...); err != nil {
		return nil, &Error{Op: "subscribe portal response", Err: err}
	}
	defer func() { _ = c.bus.RemoveMatchSignal(matchOpts...) }()

	if options == nil {
		options = map[string]dbus.Variant{}
	}
	options["handle_token"] = dbus.MakeVariant(token)

	callArgs := append(append([]interface{}{}, args...), options)
	obj := c.bus.Object(portalDest, portalPath)

	var requestPath dbus.ObjectPath
	call := obj.CallWithContext(ctx, iface+"."+method, 0, callArgs...)
	if call.Err != nil {
		return nil, &Error{Op: iface + "." + method, Err: call.Err}
	}
	if err := call.Store(&requestPath); err != nil {
		return nil, &Error{Op: iface + "." + method, Err: err}
	}

	// Older portals may hand back a request path that differs from the
	// predicted one; watch that path as well.
	if requestPath != expected {
		extraOpts := []dbus.MatchOption{
			dbus.WithMatchInterface(requestInterface),
			dbus.WithMatchMember("Response"),
			dbus.WithMatchObjectPath(requestPath),
		}
		if err := c.bus.AddMatchSignalContext(ctx, extraOpts...); err != nil {
			return nil, &Error{Op: "subscribe portal response", Err: err}
		}
		defer func() { _ = c.bus.RemoveMatchSignal(extraOpts...) }()
	}

	for {
		select {
		case <-ctx.Done():
			return nil, &Error{Op: iface + "." + method, Err: ctx.Err()}
		case sig, open := <-signals:
			if !open {
				return nil, &Error{Op: iface + "." + method, Err: fmt.Errorf("signal channel closed")}
			}
			if sig.Name != requestInterface+".Response" {
				continue
			}
			if sig.Path != expected && sig.Path != requestPath {
				continue
			}
			return parseResponse(iface+"."+method, sig)
		}
	}
}

// parseResponse unpacks a Request.Response signal body.
func parseResponse(op string, sig *dbus.Signal) (map[string]dbus.Variant, error) {
	if len(sig.Body) < 2 {
		return nil, &Error{Op: op, Err: fmt.Errorf("malformed response body (%d fields)", len(sig.Body))}
	}
	code, ok := sig.Body[0].(uint32)
	if !ok {
		return nil, &Error{Op: op, Err: fmt.Errorf("response code has type %T", sig.Body[0])}
	}
	if code != 0 {
		return nil, &Error{Op: op, Err: fmt.Errorf("portal response code %d", code)}
	}
	results, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return nil, &Error{Op: op, Err: fmt.Errorf("response results have type %T", sig.Body[1])}
	}
	return results, nil
}

// SessionPath extracts a session handle from CreateSession results.
func SessionPath(results map[string]dbus.Variant) (dbus.ObjectPath, error) {
	v, ok := results["session_handle"]
	if !ok {
		return "", fmt.Errorf("CreateSession results missing session_handle")
	}
	switch handle := v.Value().(type) {
	case string:
		return dbus.ObjectPath(handle), nil
	case dbus.ObjectPath:
		return handle, nil
	default:
		return "", fmt.Errorf("session_handle has unexpected type %T", handle)
	}
}

// Call performs a plain portal method call with no request object.
func (c *Conn) Call(ctx context.Context, iface, method string, args ...interface{}) error {
	obj := c.bus.Object(portalDest, portalPath)
	if call := obj.CallWithContext(ctx, iface+"."+method, 0, args...); call.Err != nil {
		return &Error{Op: iface + "." + method, Err: call.Err}
	}
	return nil
}

// CloseSession closes a portal session object.
func (c *Conn) CloseSession(ctx context.Context, session dbus.ObjectPath) error {
	obj := c.bus.Object(portalDest, session)
	if call := obj.CallWithContext(ctx, "org.freedesktop.portal.Session.Close", 0); call.Err != nil {
		return &Error{Op: "Session.Close", Err: call.Err}
	}
	return nil
}

// Subscribe routes signals matching the given options to a fresh channel.
// The returned cancel func removes the match and the channel.
func (c *Conn) Subscribe(ctx context.Context, opts ...dbus.MatchOption) (<-chan *dbus.Signal, func(), error) {
	signals := make(chan *dbus.Signal, 32)
	c.bus.Signal(signals)
	if err := c.bus.AddMatchSignalContext(ctx, opts...); err != nil {
		c.bus.RemoveSignal(signals)
		return nil, nil, &Error{Op: "subscribe portal signals", Err: err}
	}
	cancel := func() {
		_ = c.bus.RemoveMatchSignal(opts...)
		c.bus.RemoveSignal(signals)
	}
	return signals, cancel, nil
}

// handleToken generates a unique portal handle token.
func handleToken() string {
	return "dictum_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// expectedRequestPath predicts the request object path the portal will use
// for this sender and token.
func expectedRequestPath(bus *dbus.Conn, token string) dbus.ObjectPath {
	sender := strings.TrimPrefix(bus.Names()[0], ":")
	sender = strings.ReplaceAll(sender, ".", "_")
	return dbus.ObjectPath("/org/freedesktop/portal/desktop/request/" + sender + "/" + token)
}
