package shortcuts

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/mvankamp/dictum/internal/config"
	"github.com/mvankamp/dictum/internal/portal"
)

// WriteDconf writes the shortcut binding to GNOME's dconf registry so the
// compositor picks up new triggers without user interaction. Callers treat
// failure as benign: non-GNOME desktops have no such registry.
func WriteDconf(ctx context.Context, cfg config.ShortcutConfig) error {
	path := fmt.Sprintf("/org/gnome/settings-daemon/global-shortcuts/%s/shortcuts", portal.AppID)
	value := dconfValue(cfg)

	cmdCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "dconf", "write", path, value)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("dconf write: %w (%s)", err, out)
	}
	return nil
}

// dconfValue formats the shortcut as a GVariant text value matching GNOME's
// global-shortcuts schema.
func dconfValue(cfg config.ShortcutConfig) string {
	return fmt.Sprintf(
		"[('%s', {'shortcuts': <['%s']>, 'description': <'%s'>})]",
		cfg.ID, cfg.Trigger, cfg.Description,
	)
}
