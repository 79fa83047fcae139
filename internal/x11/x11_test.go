package x11

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixEnvDisabled(t *testing.T) {
	h, err := NewHandler(false, nil, "")
	require.NoError(t, err)

	env := map[string]string{"PATH": "/bin", "DISPLAY": ":0"}
	got := h.FixEnv(env)
	assert.Equal(t, env, got)
	got["PATH"] = "changed"
	assert.Equal(t, "/bin", env["PATH"], "FixEnv returns a copy")
	assert.Empty(t, h.InitCommands())
}

func TestFixEnvDefaultDisplay(t *testing.T) {
	h, err := NewHandler(true, nil, "")
	require.NoError(t, err)

	got := h.FixEnv(map[string]string{"DISPLAY": ":0", "XAUTHORITY": "/home/u/.Xauthority"})
	assert.Equal(t, ":15", got["DISPLAY"])
	assert.NotContains(t, got, "XAUTHORITY")
	assert.Empty(t, h.InitCommands())
}

func TestFixEnvWithCookie(t *testing.T) {
	display := 3
	h, err := NewHandler(true, &display, "0a1b2c")
	require.NoError(t, err)

	got := h.FixEnv(nil)
	assert.Equal(t, ":3", got["DISPLAY"])
	assert.Equal(t, AuthorityPath, got["XAUTHORITY"])
	assert.Equal(t, []string{
		"xauth -f /tmp/.reprobox_xauthority add :3 MIT-MAGIC-COOKIE-1 0a1b2c",
	}, h.InitCommands())
}

func TestNewHandlerValidation(t *testing.T) {
	negative := -1
	_, err := NewHandler(true, &negative, "")
	assert.Error(t, err)

	_, err = NewHandler(true, nil, "not-hex")
	assert.Error(t, err)
}
