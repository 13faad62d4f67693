// Package desktop owns the RemoteDesktop portal session used for keyboard
// injection and the restore token that re-opens it without a consent prompt.
package desktop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/mvankamp/dictum/internal/portal"
)

// Keysym press/release states for NotifyKeyboardKeysym.
const (
	keyStateReleased = uint32(0)
	keyStatePressed  = uint32(1)
)

// persistModeExplicitlyRevoked keeps the grant until the user revokes it.
const persistModeExplicitlyRevoked = uint32(2)

// Controller holds an active RemoteDesktop session.
type Controller struct {
	conn         *portal.Conn
	session      dbus.ObjectPath
	restoreToken string
	logger       *slog.Logger
}

// New creates a RemoteDesktop session, selects the keyboard device, and
// starts the session. A non-empty restoreToken skips the consent prompt;
// the portal may hand back a rotated token via RestoreToken.
func New(ctx context.Context, conn *portal.Conn, restoreToken string, logger *slog.Logger) (*Controller, error) {
	createOpts := map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant(sessionToken()),
	}
	results, err := conn.Request(ctx, portal.RemoteDesktopInterface, "CreateSession", createOpts)
	if err != nil {
		return nil, err
	}
	session, err := portal.SessionPath(results)
	if err != nil {
		return nil, &portal.Error{Op: "RemoteDesktop.CreateSession", Err: err}
	}
	logger.Info("remote desktop session created", "session", string(session))

	selectOpts := map[string]dbus.Variant{
		"types":        dbus.MakeVariant(portal.DeviceKeyboard),
		"persist_mode": dbus.MakeVariant(persistModeExplicitlyRevoked),
	}
	if restoreToken != "" {
		selectOpts["restore_token"] = dbus.MakeVariant(restoreToken)
	}
	if _, err := conn.Request(ctx, portal.RemoteDesktopInterface, "SelectDevices", selectOpts, session); err != nil {
		return nil, err
	}

	startResults, err := conn.Request(ctx, portal.RemoteDesktopInterface, "Start", nil, session, "")
	if err != nil {
		return nil, err
	}

	devices, _ := startResults["devices"].Value().(uint32)
	if devices&portal.DeviceKeyboard == 0 {
		return nil, &portal.Error{
			Op:  "RemoteDesktop.Start",
			Err: fmt.Errorf("keyboard not granted (devices %#x)", devices),
		}
	}

	newToken, _ := startResults["restore_token"].Value().(string)
	if newToken != "" {
		logger.Info("received restore token from portal")
	}
	logger.Info("remote desktop session started", "devices", devices)

	return &Controller{
		conn:         conn,
		session:      session,
		restoreToken: newToken,
		logger:       logger,
	}, nil
}

// RestoreToken is the token received from Start, empty when none was issued.
func (c *Controller) RestoreToken() string {
	return c.restoreToken
}

// PressKeysym sends a keysym press event.
func (c *Controller) PressKeysym(ctx context.Context, keysym int32) error {
	return c.notifyKeysym(ctx, keysym, keyStatePressed)
}

// ReleaseKeysym sends a keysym release event.
func (c *Controller) ReleaseKeysym(ctx context.Context, keysym int32) error {
	return c.notifyKeysym(ctx, keysym, keyStateReleased)
}

// TapKeysym sends a keysym press followed by its release.
func (c *Controller) TapKeysym(ctx context.Context, keysym int32) error {
	if err := c.PressKeysym(ctx, keysym); err != nil {
		return err
	}
	return c.ReleaseKeysym(ctx, keysym)
}

func (c *Controller) notifyKeysym(ctx context.Context, keysym int32, state uint32) error {
	return c.conn.Call(ctx, portal.RemoteDesktopInterface, "NotifyKeyboardKeysym",
		c.session, map[string]dbus.Variant{}, keysym, state)
}

// Close releases the portal session object.
func (c *Controller) Close() error {
	return c.conn.CloseSession(context.Background(), c.session)
}

func sessionToken() string {
	return "dictum_session_" + uuid.NewString()[:8]
}
