// Package cli parses the daemon's small command-line surface.
package cli

import (
	"fmt"
	"strings"
)

// Parsed is the resolved invocation.
type Parsed struct {
	ShowHelp    bool
	ShowVersion bool
}

// Parse resolves flags; the bare invocation runs the daemon.
func Parse(args []string) (Parsed, error) {
	var parsed Parsed

	for _, arg := range args {
		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
		case "--version":
			parsed.ShowVersion = true
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}
			return Parsed{}, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	return parsed, nil
}

// HelpText is the user-facing usage output.
func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [flags]

Runs the dictation daemon: binds the configured global shortcut, captures
microphone audio on toggle, transcribes it, and types the result into the
focused application. Control it over the session bus at %[2]s.

Flags:
  -h, --help      Show help
  --version       Show version
`, binaryName, "io.github.mvankamp.Dictum.Daemon")
}
