package iap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActivate(t *testing.T) {
	t.Cleanup(resetActive)

	require.Nil(t, Active())

	plugin := newTestPlugin(&fakeBackend{})
	Activate(plugin)
	require.Same(t, plugin, Active())

	require.Panics(t, func() {
		Activate(newTestPlugin(&fakeBackend{}))
	})
	require.Same(t, plugin, Active())
}
