package firmware

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dexter-KBD/trackball-layers/internal/consts"
	"github.com/Dexter-KBD/trackball-layers/internal/features"
	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/keymap"
	"github.com/Dexter-KBD/trackball-layers/internal/layer"
	"github.com/Dexter-KBD/trackball-layers/internal/translator"
)

// fakePointer は送信内容を文字列で記録する
type fakePointer struct {
	calls  []string
	closed bool
}

func (p *fakePointer) Move(dx, dy int32) error {
	p.calls = append(p.calls, fmt.Sprintf("move %d %d", dx, dy))
	return nil
}

func (p *fakePointer) Scroll(v, h int32) error {
	p.calls = append(p.calls, fmt.Sprintf("scroll %d %d", v, h))
	return nil
}

func (p *fakePointer) Button(code uint16, pressed bool) error {
	p.calls = append(p.calls, fmt.Sprintf("button 0x%x %v", code, pressed))
	return nil
}

func (p *fakePointer) Key(code uint16, pressed bool) error {
	p.calls = append(p.calls, fmt.Sprintf("key %d %v", code, pressed))
	return nil
}

func (p *fakePointer) Close() error {
	p.closed = true
	return nil
}

func (p *fakePointer) reset() {
	p.calls = nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testOptions() Options {
	opts := DefaultOptions()
	opts.DPIOptions = []uint16{1200, 600}
	return opts
}

func newTestRuntime(t *testing.T, cfg translator.Config, km keymap.Keymap, opts Options) (*Runtime, *fakePointer, *fakeClock) {
	t.Helper()
	p := &fakePointer{}
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := New(cfg, km, opts, p, logger, WithClock(clock.now))
	require.NoError(t, err)
	return r, p, clock
}

func press(code uint16) features.Frame {
	return features.Frame{Buttons: []features.ButtonEvent{{Code: code, Pressed: true}}}
}

func release(code uint16) features.Frame {
	return features.Frame{Buttons: []features.ButtonEvent{{Code: code, Pressed: false}}}
}

func TestBaseLayerPassesMotionAndButtons(t *testing.T) {
	r, p, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	r.HandleFrame(features.Frame{DX: 3, DY: -4})
	r.HandleFrame(press(consts.BtnLeft))
	r.HandleFrame(release(consts.BtnLeft))
	r.HandleFrame(press(consts.BtnTask))
	r.HandleFrame(press(consts.BtnForward))

	assert.Equal(t, []string{
		"move 3 -4",
		"button 0x110 true",
		"button 0x110 false",
		"button 0x112 true",
		"button 0x115 true",
	}, p.calls)
}

func TestDragScroll(t *testing.T) {
	r, p, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	r.HandleFrame(press(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b11), r.Layers())
	assert.Empty(t, p.calls)

	// 感度が 100/1200 になるので 36 -> 3 -> 1 回
	r.HandleFrame(features.Frame{DX: 36, DY: 36})
	assert.Equal(t, []string{"scroll 0 1", "scroll -1 0"}, p.calls)

	p.reset()
	r.HandleFrame(release(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b1), r.Layers())
	r.HandleFrame(features.Frame{DX: 5})
	assert.Equal(t, []string{"move 5 0"}, p.calls)

	st := r.Status()
	assert.True(t, st.InCooldown)
	assert.Equal(t, uint16(1200), st.CPI)
}

func TestPollDrainsScrollRemainder(t *testing.T) {
	cfg := translator.DefaultConfig()
	cfg.LayerCPI = nil
	r, p, _ := newTestRuntime(t, cfg, keymap.Default(), testOptions())

	r.HandleFrame(press(consts.BtnMiddle))
	r.HandleFrame(features.Frame{DX: 10})
	r.Poll()
	r.Poll()
	r.Poll()

	assert.Equal(t, []string{"scroll 0 1", "scroll 0 1", "scroll 0 1"}, p.calls)
	assert.InDelta(t, 0.3333, r.Status().State.ScrollH, 0.001)
}

func TestKeyboardLayerKeyNavigates(t *testing.T) {
	r, p, clock := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	r.SetKeyboardKeys([]int{30, 183})
	assert.True(t, r.Layers().Cmp(4))
	assert.Equal(t, []string{"button 0x112 true"}, p.calls)

	// 感度 100 なので 24 -> 2
	p.reset()
	r.HandleFrame(features.Frame{DX: 12, DY: 24})
	assert.Equal(t, []string{
		"key 29 true",
		"key 109 true",
		"key 109 false",
		"key 29 false",
		"move 1 0",
	}, p.calls)

	p.reset()
	clock.advance(100 * time.Millisecond)
	r.HandleFrame(features.Frame{DY: -24})
	assert.Equal(t, []string{"move 0 -2"}, p.calls)

	p.reset()
	clock.advance(101 * time.Millisecond)
	r.HandleFrame(features.Frame{DY: -24})
	assert.Equal(t, []string{
		"key 29 true",
		"key 104 true",
		"key 104 false",
		"key 29 false",
	}, p.calls)

	p.reset()
	r.SetKeyboardKeys(nil)
	assert.Equal(t, []string{"button 0x112 false"}, p.calls)
	assert.Equal(t, layer.State(1), r.Layers())
}

func TestKeyboardLayerKeyVolume(t *testing.T) {
	cfg := translator.DefaultConfig()
	cfg.LayerCPI = nil
	r, p, _ := newTestRuntime(t, cfg, keymap.Default(), testOptions())

	r.SetKeyboardKeys([]int{184})
	r.HandleFrame(features.Frame{DX: 7, DY: -12})

	assert.Equal(t, []string{
		"key 115 true",
		"key 115 false",
		"key 115 true",
		"key 115 false",
	}, p.calls)
	assert.Equal(t, 2, r.Status().State.VolumeAccumulator)
}

func TestReleaseUsesKeycodeResolvedOnPress(t *testing.T) {
	km := keymap.Default()
	km[2] = keymap.Layout{
		keycode.KC_TRNS, keycode.KC_TRNS, keycode.KC_TRNS,
		keycode.KC_TRNS, keycode.KC_MPLY, keycode.KC_TRNS,
	}
	r, p, _ := newTestRuntime(t, translator.DefaultConfig(), km, testOptions())

	r.SetKeyboardKeys([]int{184})
	r.HandleFrame(press(consts.BtnLeft))
	r.SetKeyboardKeys(nil)
	r.HandleFrame(release(consts.BtnLeft))

	assert.Equal(t, []string{"key 164 true", "key 164 false"}, p.calls)
}

func TestLayerKeysFromKeymap(t *testing.T) {
	km := keymap.Default()
	km[0] = keymap.Layout{
		keycode.TG(2), keycode.MO(4), keycode.DRAG_SCROLL,
		keycode.KC_BTN2, keycode.KC_BTN1, keycode.DPI_CONFIG,
	}
	r, p, _ := newTestRuntime(t, translator.DefaultConfig(), km, testOptions())

	r.HandleFrame(press(consts.BtnSide))
	r.HandleFrame(release(consts.BtnSide))
	assert.Equal(t, layer.State(0b101), r.Layers())

	r.HandleFrame(press(consts.BtnExtra))
	assert.Equal(t, layer.State(0b10101), r.Layers())
	r.HandleFrame(press(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b10111), r.Layers())
	r.HandleFrame(release(consts.BtnExtra))
	r.HandleFrame(release(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b101), r.Layers())

	r.HandleFrame(press(consts.BtnSide))
	r.HandleFrame(release(consts.BtnSide))
	assert.Equal(t, layer.State(0b1), r.Layers())

	// MO(4) の間だけボタン3が押される
	assert.Equal(t, []string{"button 0x112 true", "button 0x112 false"}, p.calls)
}

func TestDPIConfigCycles(t *testing.T) {
	km := keymap.Default()
	km[0] = keymap.Layout{
		keycode.KC_BTN4, keycode.KC_BTN5, keycode.DRAG_SCROLL,
		keycode.KC_BTN2, keycode.KC_BTN1, keycode.DPI_CONFIG,
	}
	r, p, _ := newTestRuntime(t, translator.DefaultConfig(), km, testOptions())

	r.HandleFrame(press(consts.BtnTask))
	r.HandleFrame(release(consts.BtnTask))
	st := r.Status()
	assert.Equal(t, 1, st.DPIIndex)
	assert.Equal(t, uint16(600), st.DPI)

	// 600/1200 なので端数は持ち越される
	r.HandleFrame(features.Frame{DX: 1})
	r.HandleFrame(features.Frame{DX: 1})
	r.HandleFrame(features.Frame{DX: 1})
	assert.Equal(t, []string{"move 1 0"}, p.calls)

	r.HandleFrame(press(consts.BtnTask))
	assert.Equal(t, 0, r.Status().DPIIndex)
}

func TestMotionFilterOption(t *testing.T) {
	opts := testOptions()
	opts.SmoothingFactor = 0.5
	opts.WarmUpCount = 0
	r, p, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), opts)

	r.HandleFrame(features.Frame{DX: 10})
	r.Poll()
	r.HandleFrame(features.Frame{DX: 2})

	// 10*0.5 = 5, 2*0.5+5*0.5 = 3.5 -> 4
	assert.Equal(t, []string{"move 5 0", "move 4 0"}, p.calls)
}

func TestCloseReleasesEverything(t *testing.T) {
	r, p, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	r.HandleFrame(press(consts.BtnLeft))
	r.SetKeyboardKeys([]int{183})
	p.reset()

	r.Close()
	assert.ElementsMatch(t, []string{"button 0x110 false", "button 0x112 false"}, p.calls)
	assert.False(t, r.Status().ButtonHeld)
}

func TestReconfigure(t *testing.T) {
	r, _, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	r.SetKeyboardKeys([]int{184})
	r.HandleFrame(features.Frame{DY: -60 * 12})

	r.SetKeyboardKeys(nil)

	cfg := translator.DefaultConfig()
	cfg.VolumeDivider = 3
	opts := testOptions()
	opts.DPIIndex = 1
	require.NoError(t, r.Reconfigure(cfg, keymap.Default(), opts))
	assert.Equal(t, 1, r.Status().DPIIndex)
	assert.Equal(t, uint16(600), r.Status().CPI)

	// 実行中に切り替えた index は同じ設定の再読み込みでは戻らない
	r.cycleDPI()
	require.NoError(t, r.Reconfigure(cfg, keymap.Default(), opts))
	assert.Equal(t, 0, r.Status().DPIIndex)

	bad := testOptions()
	bad.DPIIndex = 5
	assert.Error(t, r.Reconfigure(cfg, keymap.Default(), bad))

	badCfg := translator.DefaultConfig()
	badCfg.VolumeDivider = 0
	assert.Error(t, r.Reconfigure(badCfg, keymap.Default(), testOptions()))
}

func TestDragScrollReleaseAfterReconfigure(t *testing.T) {
	r, _, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	r.HandleFrame(press(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b11), r.Layers())

	cfg := translator.DefaultConfig()
	cfg.Layers.Scroll = 3
	require.NoError(t, r.Reconfigure(cfg, keymap.Default(), testOptions()))

	// 押したときのスクロールレイヤーが戻る
	r.HandleFrame(release(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b1), r.Layers())

	r.HandleFrame(press(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b1001), r.Layers())
	r.HandleFrame(release(consts.BtnMiddle))
	assert.Equal(t, layer.State(0b1), r.Layers())
}

func TestReconfigureBaseLayer(t *testing.T) {
	r, _, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	cfg := translator.DefaultConfig()
	cfg.Layers.Base = 3
	require.NoError(t, r.Reconfigure(cfg, keymap.Default(), testOptions()))
	assert.Equal(t, layer.State(0b1000), r.Layers())
	assert.Equal(t, layer.State(0b1000), r.Status().Layers)
}

func TestMotionFilterResetsOnLayerChange(t *testing.T) {
	cfg := translator.DefaultConfig()
	cfg.LayerCPI = nil
	opts := testOptions()
	opts.SmoothingFactor = 0.5
	opts.WarmUpCount = 1
	r, p, _ := newTestRuntime(t, cfg, keymap.Default(), opts)

	r.HandleFrame(features.Frame{DX: 10})
	r.HandleFrame(features.Frame{DX: 10})
	r.HandleFrame(press(consts.BtnMiddle))
	r.HandleFrame(release(consts.BtnMiddle))
	p.reset()

	// 履歴が消えているのでウォームアップからやり直す
	r.HandleFrame(features.Frame{DX: 4})
	assert.Equal(t, []string{"move 4 0"}, p.calls)
}

func TestStatusJSON(t *testing.T) {
	r, _, _ := newTestRuntime(t, translator.DefaultConfig(), keymap.Default(), testOptions())

	data, err := json.Marshal(r.Status())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Contains(t, m, "layers")
	assert.Contains(t, m, "state")
	assert.Contains(t, m, "dpi")
	assert.Equal(t, 1200.0, m["cpi"])
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, DefaultOptions().Validate())

	opts := DefaultOptions()
	opts.NativeCPI = 0
	assert.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.DPIOptions = nil
	assert.Error(t, opts.Validate())

	opts = DefaultOptions()
	opts.LayerKeys = map[uint16]uint8{183: 40}
	assert.Error(t, opts.Validate())

	_, err := New(translator.DefaultConfig(), keymap.Default(), opts, &fakePointer{}, slog.Default())
	assert.Error(t, err)
}
