package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/s7tya/managed-minecraft-server/mcproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAsleepConfig() *AsleepConfig {
	return &AsleepConfig{
		MOTD:          "Join to start the server",
		VersionName:   "Not Proxying",
		Protocol:      767,
		MaxPlayers:    100,
		OnlinePlayers: 1,
	}
}

func TestAsleepStatus_StatusResponse(t *testing.T) {
	config := testAsleepConfig()
	config.StartingMOTD = "Starting, please wait"
	status, err := NewAsleepStatus(config)
	require.NoError(t, err)

	dormant := status.StatusResponse(Dormant)
	assert.Equal(t, "Join to start the server", dormant.Description.PlainText())
	assert.Equal(t, mcproto.StatusVersion{Name: "Not Proxying", Protocol: 767}, dormant.Version)
	assert.Equal(t, 1, dormant.Players.Online)
	assert.Equal(t, 100, dormant.Players.Max)

	starting := status.StatusResponse(Starting)
	assert.Equal(t, "Starting, please wait", starting.Description.PlainText())

	withoutStarting, err := NewAsleepStatus(testAsleepConfig())
	require.NoError(t, err)
	assert.Equal(t, "Join to start the server", withoutStarting.StatusResponse(Starting).Description.PlainText())
}

func TestLoadFavicon(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "icon.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	favicon, err := LoadFavicon(path)
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,iVBORw==", favicon)

	_, err = LoadFavicon(filepath.Join(dir, "missing.png"))
	assert.Error(t, err)
}

func newTestLoader(t *testing.T, content string) (*asleepConfigLoader, *asleepResponder, string) {
	base, err := NewAsleepStatus(testAsleepConfig())
	require.NoError(t, err)
	responder := newAsleepResponder(base)

	fileName := filepath.Join(t.TempDir(), "asleep.json")
	if content != "" {
		require.NoError(t, os.WriteFile(fileName, []byte(content), 0o644))
	}
	return newAsleepConfigLoader(fileName, responder), responder, fileName
}

func TestAsleepConfigLoader_Load(t *testing.T) {
	loader, responder, _ := newTestLoader(t, `{
		"description": {"text": "Sleeping", "color": "gold"},
		"startingDescription": "Waking up",
		"maxPlayers": 20
	}`)

	require.NoError(t, loader.Load())

	status := responder.Status()
	assert.Equal(t, "Sleeping", status.Description.Text)
	assert.Equal(t, "gold", status.Description.Color)
	require.NotNil(t, status.StartingDescription)
	assert.Equal(t, "Waking up", status.StartingDescription.PlainText())
	assert.Equal(t, 20, status.MaxPlayers)
	// omitted fields keep the flag values
	assert.Equal(t, "Not Proxying", status.VersionName)
	assert.Equal(t, 1, status.OnlinePlayers)
}

func TestAsleepConfigLoader_MissingFile(t *testing.T) {
	loader, responder, _ := newTestLoader(t, "")
	before := responder.Status()

	require.NoError(t, loader.Load())
	assert.Same(t, before, responder.Status())

	assert.Error(t, loader.Reload())
	assert.Same(t, before, responder.Status())
}

func TestAsleepConfigLoader_InvalidFile(t *testing.T) {
	loader, _, _ := newTestLoader(t, `{"description": 12}`)
	assert.Error(t, loader.Load())
}

func TestAsleepConfigLoader_FaviconPath(t *testing.T) {
	dir := t.TempDir()
	iconPath := filepath.Join(dir, "icon.png")
	require.NoError(t, os.WriteFile(iconPath, []byte{0x89, 'P', 'N', 'G'}, 0o644))

	loader, responder, fileName := newTestLoader(t, "")
	require.NoError(t, os.WriteFile(fileName, []byte(`{"favicon": "`+filepath.ToSlash(iconPath)+`"}`), 0o644))

	require.NoError(t, loader.Load())
	assert.Equal(t, "data:image/png;base64,iVBORw==", responder.Status().Favicon)
}

func TestAsleepConfigLoader_ReloadDoesNotLeakBetweenReads(t *testing.T) {
	config := testAsleepConfig()
	config.StartingMOTD = "flag starting"
	base, err := NewAsleepStatus(config)
	require.NoError(t, err)
	responder := newAsleepResponder(base)

	fileName := filepath.Join(t.TempDir(), "asleep.json")
	require.NoError(t, os.WriteFile(fileName, []byte(`{"startingDescription": "file starting"}`), 0o644))
	loader := newAsleepConfigLoader(fileName, responder)
	require.NoError(t, loader.Load())
	assert.Equal(t, "file starting", responder.Status().StartingDescription.PlainText())

	require.NoError(t, os.WriteFile(fileName, []byte(`{}`), 0o644))
	require.NoError(t, loader.Reload())
	assert.Equal(t, "flag starting", responder.Status().StartingDescription.PlainText())
	assert.Equal(t, "flag starting", base.StartingDescription.PlainText())
}

func TestAsleepConfigLoader_WatchForChanges(t *testing.T) {
	loader, responder, fileName := newTestLoader(t, `{"description": "first"}`)
	loader.debounce = 10 * time.Millisecond
	require.NoError(t, loader.Load())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, loader.WatchForChanges(ctx))

	require.NoError(t, os.WriteFile(fileName, []byte(`{"description": "second"}`), 0o644))

	assert.Eventually(t, func() bool {
		return responder.Status().Description.PlainText() == "second"
	}, 2*time.Second, 10*time.Millisecond)
}
