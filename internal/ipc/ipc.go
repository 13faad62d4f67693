// Package ipc serves the daemon's session-bus interface: properties,
// methods, and signals consumed by the settings control surface.
package ipc

// Well-known bus identity of the daemon interface.
const (
	BusName       = "io.github.mvankamp.Dictum.Daemon"
	ObjectPath    = "/io/github/mvankamp/Dictum/Daemon"
	InterfaceName = "io.github.mvankamp.Dictum.Daemon1"
)
