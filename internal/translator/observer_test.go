package translator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
)

func TestObserverRecordsExitTimes(t *testing.T) {
	e, host := newTestEngine(t)
	o := e.Observer

	assert.False(t, e.cooldowns.Active(host.now, 1000))

	o.LayerStateSet(scrollLayer)
	assert.False(t, e.cooldowns.ScrollExit.Set)

	host.advance(300)
	exit := host.now
	assert.Equal(t, baseLayer, o.LayerStateSet(baseLayer))
	assert.Equal(t, Stamp{At: exit, Set: true}, e.cooldowns.ScrollExit)
	assert.False(t, e.cooldowns.NavigationExit.Set)

	host.advance(999)
	assert.True(t, e.cooldowns.Active(host.now, 1000))
	host.advance(1)
	assert.False(t, e.cooldowns.Active(host.now, 1000))

	o.LayerStateSet(navLayer)
	host.advance(10)
	o.LayerStateSet(baseLayer)
	assert.Equal(t, Stamp{At: host.now, Set: true}, e.cooldowns.NavigationExit)
	assert.Equal(t, exit, e.cooldowns.ScrollExit.At)
}

func TestObserverSetsCPIByHighestLayer(t *testing.T) {
	e, host := newTestEngine(t)
	o := e.Observer

	o.LayerStateSet(baseLayer)
	o.LayerStateSet(scrollLayer)
	o.LayerStateSet(volumeLayer)
	o.LayerStateSet(navLayer.On(1))
	o.LayerStateSet(baseLayer.On(3))

	assert.Equal(t, []uint16{1200, 100, 100, 100, 1200}, host.cpis)
	assert.Equal(t, uint16(1200), o.CPI())

	host.defaultCPI = 600
	o.LayerStateSet(baseLayer)
	assert.Equal(t, uint16(600), o.CPI())
}

func TestObserverHoldsButtonOnNavigationLayer(t *testing.T) {
	e, host := newTestEngine(t)
	o := e.Observer

	o.LayerStateSet(navLayer)
	o.LayerStateSet(navLayer.On(1))
	o.LayerStateSet(navLayer)

	assert.True(t, o.Held())
	assert.Equal(t, []keycode.Keycode{keycode.KC_BTN3}, host.registered)
	assert.Equal(t, 1, host.down[keycode.KC_BTN3])

	o.LayerStateSet(scrollLayer)
	o.LayerStateSet(baseLayer)

	assert.False(t, o.Held())
	assert.Equal(t, []keycode.Keycode{keycode.KC_BTN3}, host.released)
	assert.Equal(t, 0, host.down[keycode.KC_BTN3])
}

func TestObserverReleaseOnShutdown(t *testing.T) {
	e, host := newTestEngine(t)
	o := e.Observer

	o.Release()
	assert.Empty(t, host.released)

	o.LayerStateSet(navLayer)
	o.Release()
	o.Release()
	assert.Equal(t, []keycode.Keycode{keycode.KC_BTN3}, host.released)
	assert.False(t, o.Held())
}

func TestObserverReleasesPressedButtonAfterConfigChange(t *testing.T) {
	e, host := newTestEngine(t)

	e.Observer.LayerStateSet(navLayer)

	cfg := DefaultConfig()
	cfg.HeldButton = keycode.KC_BTN2
	require.NoError(t, e.SetConfig(cfg))

	// 押したのは BTN3 なので、離すのも BTN3
	e.Observer.LayerStateSet(baseLayer)
	assert.False(t, e.Observer.Held())
	assert.Equal(t, []keycode.Keycode{keycode.KC_BTN3}, host.released)
	assert.Equal(t, 0, host.down[keycode.KC_BTN3])
	assert.Equal(t, 0, host.down[keycode.KC_BTN2])

	// 次にナビゲーションレイヤーに入ると新しい設定のボタンを押す
	e.Observer.LayerStateSet(navLayer)
	e.Observer.Release()
	assert.Equal(t, []keycode.Keycode{keycode.KC_BTN3, keycode.KC_BTN2}, host.registered)
	assert.Equal(t, []keycode.Keycode{keycode.KC_BTN3, keycode.KC_BTN2}, host.released)
	assert.Equal(t, 0, host.down[keycode.KC_BTN2])
}

func TestEngineSetConfigKeepsState(t *testing.T) {
	e, host := newTestEngine(t)

	e.Translator.Task(Report{Y: -7}, volumeLayer)
	e.Observer.LayerStateSet(navLayer)

	cfg := DefaultConfig()
	cfg.Layers.Navigation = 3
	cfg.VolumeDivider = 2
	require.NoError(t, e.SetConfig(cfg))

	assert.Equal(t, 2, e.Translator.State().VolumeAccumulator)

	// レイヤー4はもう監視対象ではないので抜けても記録しない
	// ナビゲーションレイヤーが無効になったのでボタンは離される
	e.Observer.LayerStateSet(baseLayer)
	assert.False(t, e.cooldowns.NavigationExit.Set)
	assert.Equal(t, 0, host.down[keycode.KC_BTN3])
	assert.Len(t, host.released, 1)

	bad := DefaultConfig()
	bad.VolumeDivider = 0
	assert.Error(t, e.SetConfig(bad))
	assert.Equal(t, 2, e.Config().VolumeDivider)
}

func TestSnapshot(t *testing.T) {
	e, host := newTestEngine(t)

	e.Observer.LayerStateSet(navLayer)
	e.Translator.Task(Report{Y: 4}, navLayer)
	host.advance(120)

	s := e.Snapshot(host.now)
	assert.Equal(t, navLayer, s.Layers)
	assert.Equal(t, uint8(4), s.HighestLayer)
	assert.True(t, s.ButtonHeld)
	assert.Equal(t, uint16(100), s.CPI)
	assert.Equal(t, uint32(120), s.LastNavigation)
	assert.False(t, s.InCooldown)
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.ScrollDivisorH = 0
	cfg.MaxScrollEventsPerCycle = 0
	cfg.MaxVolumeDelta = 1
	cfg.NavigationThreshold = 0
	cfg.Layers.Navigation = 40
	cfg.HeldButton = keycode.DRAG_SCROLL
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scroll divisors")
	assert.Contains(t, err.Error(), "layer 40")

	_, err = NewEngine(cfg, newFakeHost())
	assert.Error(t, err)
}

func TestRoundingModeText(t *testing.T) {
	var m RoundingMode
	require.NoError(t, m.UnmarshalText([]byte("floor-ceil")))
	assert.Equal(t, RoundFloorCeil, m)
	require.NoError(t, m.UnmarshalText([]byte("TRUNCATE")))
	assert.Equal(t, RoundTruncate, m)
	assert.Error(t, m.UnmarshalText([]byte("nearest")))

	text, err := RoundFloorCeil.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "floor-ceil", string(text))
}
