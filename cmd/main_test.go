package main

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dexter-KBD/trackball-layers/internal/config"
	"github.com/Dexter-KBD/trackball-layers/internal/features"
)

func parse(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("trackball-layers"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	ctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, ctx
}

func TestParseCommands(t *testing.T) {
	cli, ctx := parse(t)
	assert.Equal(t, "run", ctx.Command())
	assert.True(t, cli.Run.Watch)
	assert.Equal(t, "info", cli.LogLevel)

	cli, ctx = parse(t, "serve", "--port", "9090", "--open", "--log-level", "debug")
	assert.Equal(t, "serve", ctx.Command())
	assert.Equal(t, 9090, cli.Serve.Port)
	assert.True(t, cli.Serve.Open)
	assert.Equal(t, "debug", cli.LogLevel)

	cli, ctx = parse(t, "--config", "/tmp/tl.toml", "config", "init", "--force")
	assert.Equal(t, "config init", ctx.Command())
	assert.Equal(t, "/tmp/tl.toml", cli.ConfigPath)
	assert.True(t, cli.Config.Init.Force)

	cli, _ = parse(t, "run", "--no-watch")
	assert.False(t, cli.Run.Watch)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "key", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = newLogger("verbose", &buf)
	assert.Error(t, err)
}

func TestPrintDevices(t *testing.T) {
	devices := []features.Device{
		{Name: "usb-Logitech_USB_Receiver-event-mouse", Path: "/dev/input/event2", Type: features.DeviceTypeMouse},
		{Name: "usb-Ploopy_Corporation_Trackball-event-mouse", Path: "/dev/input/event5", Type: features.DeviceTypeMouse},
		{Name: "usb-Topre_REALFORCE-event-kbd", Path: "/dev/input/event3", Type: features.DeviceTypeKeyboard},
	}

	var buf bytes.Buffer
	printDevices(&buf, devices, config.DevicePrefsConfig{})
	assert.Equal(t, ""+
		"  mouse    usb-Logitech_USB_Receiver-event-mouse -> /dev/input/event2\n"+
		"* mouse    usb-Ploopy_Corporation_Trackball-event-mouse -> /dev/input/event5\n"+
		"* keyboard usb-Topre_REALFORCE-event-kbd -> /dev/input/event3\n",
		buf.String())

	buf.Reset()
	printDevices(&buf, nil, config.DevicePrefsConfig{})
	assert.Contains(t, buf.String(), "見つかりませんでした")
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	g := &Globals{ConfigPath: path}

	var out bytes.Buffer
	require.NoError(t, (&ConfigInitCmd{}).Run(g, &out))
	assert.Contains(t, out.String(), path)

	assert.Error(t, (&ConfigInitCmd{}).Run(g, io.Discard))
	require.NoError(t, (&ConfigInitCmd{Force: true}).Run(g, io.Discard))

	out.Reset()
	require.NoError(t, (&ConfigShowCmd{}).Run(g, &out))
	assert.Contains(t, out.String(), "[translator]")
	assert.Contains(t, out.String(), `held_button = "KC_BTN3"`)
}

func TestLoadConfigFallsBackToDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, config.SaveConfig(path, config.DefaultConfig()))
	g := &Globals{ConfigPath: path}

	cfg, got := g.loadConfig(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, path, got)
	assert.Equal(t, config.DefaultConfig(), cfg)
}
