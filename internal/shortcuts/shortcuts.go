// Package shortcuts owns the GlobalShortcuts portal session and surfaces
// activation signals as channels.
package shortcuts

import (
	"context"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/portal"
)

// newShortcut is the wire shape one BindShortcuts entry marshals to: (sa{sv}).
type newShortcut struct {
	ID   string
	Data map[string]dbus.Variant
}

// Activation is one Activated or Deactivated signal from the compositor.
type Activation struct {
	ID        string
	Timestamp uint64
}

// Controller holds the GlobalShortcuts session and its signal streams.
type Controller struct {
	conn    *portal.Conn
	session dbus.ObjectPath
	logger  *slog.Logger

	activated   chan Activation
	deactivated chan Activation
	unsubscribe func()
	done        chan struct{}
}

// New creates a GlobalShortcuts session and binds the configured shortcut.
// Signal channels are live before BindShortcuts returns so no activation
// is lost to a subscribe race.
func New(ctx context.Context, conn *portal.Conn, cfg config.ShortcutConfig, logger *slog.Logger) (*Controller, error) {
	createOpts := map[string]dbus.Variant{
		"session_handle_token": dbus.MakeVariant("dictum_shortcuts_" + uuid.NewString()[:8]),
	}
	results, err := conn.Request(ctx, portal.GlobalShortcutsInterface, "CreateSession", createOpts)
	if err != nil {
		return nil, err
	}
	session, err := portal.SessionPath(results)
	if err != nil {
		return nil, &portal.Error{Op: "GlobalShortcuts.CreateSession", Err: err}
	}
	logger.Debug("global shortcuts session created", "session", string(session))

	signals, unsubscribe, err := conn.Subscribe(ctx,
		dbus.WithMatchInterface(portal.GlobalShortcutsInterface),
	)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		conn:        conn,
		session:     session,
		logger:      logger,
		activated:   make(chan Activation, 16),
		deactivated: make(chan Activation, 16),
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}
	go c.dispatch(signals)

	shortcut := newShortcut{
		ID: cfg.ID,
		Data: map[string]dbus.Variant{
			"description":       dbus.MakeVariant(cfg.Description),
			"preferred_trigger": dbus.MakeVariant(cfg.Trigger),
		},
	}
	bindResults, err := conn.Request(ctx, portal.GlobalShortcutsInterface, "BindShortcuts", nil,
		session, []newShortcut{shortcut}, "")
	if err != nil {
		c.Close()
		return nil, err
	}

	bound := boundIDs(bindResults)
	logger.Info("bound shortcuts", "ids", bound, "trigger", cfg.Trigger)
	if !contains(bound, cfg.ID) {
		logger.Warn("shortcut not in bound list; compositor may have assigned a different trigger",
			"id", cfg.ID)
	}

	return c, nil
}

// Activated streams shortcut activation events.
func (c *Controller) Activated() <-chan Activation {
	return c.activated
}

// Deactivated streams shortcut deactivation events.
func (c *Controller) Deactivated() <-chan Activation {
	return c.deactivated
}

// Close tears down the signal subscription and the portal session.
func (c *Controller) Close() error {
	select {
	case <-c.done:
		return nil
	default:
	}
	close(c.done)
	c.unsubscribe()
	return c.conn.CloseSession(context.Background(), c.session)
}

// dispatch converts raw bus signals into typed activations for this session.
func (c *Controller) dispatch(signals <-chan *dbus.Signal) {
	for {
		select {
		case <-c.done:
			return
		case sig, open := <-signals:
			if !open {
				return
			}
			act, kind, ok := parseSignal(c.session, sig)
			if !ok {
				continue
			}
			var out chan Activation
			if kind == portal.GlobalShortcutsInterface+".Activated" {
				out = c.activated
			} else {
				out = c.deactivated
			}
			select {
			case out <- act:
			case <-c.done:
				return
			}
		}
	}
}

// parseSignal extracts an activation from an Activated/Deactivated signal
// belonging to the given session.
func parseSignal(session dbus.ObjectPath, sig *dbus.Signal) (Activation, string, bool) {
	switch sig.Name {
	case portal.GlobalShortcutsInterface + ".Activated",
		portal.GlobalShortcutsInterface + ".Deactivated":
	default:
		return Activation{}, "", false
	}
	if len(sig.Body) < 3 {
		return Activation{}, "", false
	}
	if handle, ok := sig.Body[0].(dbus.ObjectPath); ok && handle != session {
		return Activation{}, "", false
	}
	id, ok := sig.Body[1].(string)
	if !ok {
		return Activation{}, "", false
	}
	ts, _ := sig.Body[2].(uint64)
	return Activation{ID: id, Timestamp: ts}, sig.Name, true
}

func boundIDs(results map[string]dbus.Variant) []string {
	v, ok := results["shortcuts"]
	if !ok {
		return nil
	}
	entries, ok := v.Value().([][]interface{})
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if len(entry) == 0 {
			continue
		}
		if id, ok := entry[0].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
