package shortcuts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mvankamp/dictum/internal/config"
)

func TestDconfValueMatchesGnomeSchema(t *testing.T) {
	value := dconfValue(config.ShortcutConfig{
		ID:          "dictate",
		Description: "Dictate",
		Trigger:     "<Super>t",
	})

	require.Equal(t,
		"[('dictate', {'shortcuts': <['<Super>t']>, 'description': <'Dictate'>})]",
		value,
	)
}
