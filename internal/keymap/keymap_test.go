package keymap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/layer"
)

func TestResolveFallsThroughTransparentLayers(t *testing.T) {
	km := Default()

	assert.Equal(t, keycode.KC_BTN1, km.Resolve(0, 4))
	assert.Equal(t, keycode.DRAG_SCROLL, km.Resolve(0, 2))

	// レイヤー1と4は透過なのでベースのキーになる
	scroll := layer.State(0).On(1)
	assert.Equal(t, keycode.KC_BTN2, km.Resolve(scroll, 3))

	nav := layer.State(0).On(4)
	assert.Equal(t, keycode.KC_BTN4, km.Resolve(nav, 0))
}

func TestResolveHigherLayerWins(t *testing.T) {
	km := Default()
	km[2] = Layout{
		keycode.KC_TRNS, keycode.KC_TRNS, keycode.KC_MUTE,
		keycode.KC_TRNS, keycode.KC_TRNS, keycode.KC_NO,
	}

	s := layer.State(0).On(1).On(2)
	assert.Equal(t, keycode.KC_MUTE, km.Resolve(s, 2))
	assert.Equal(t, keycode.KC_NO, km.Resolve(s, 5))
	assert.Equal(t, keycode.KC_BTN1, km.Resolve(s, 4))

	// 無効なレイヤーは参照しない
	assert.Equal(t, keycode.DRAG_SCROLL, km.Resolve(layer.State(0).On(1), 2))
}

func TestResolveOutOfRange(t *testing.T) {
	km := Default()
	assert.Equal(t, keycode.KC_NO, km.Resolve(0, -1))
	assert.Equal(t, keycode.KC_NO, km.Resolve(0, Positions))
	assert.Equal(t, keycode.KC_NO, Keymap{}.Resolve(0, 0))
}

func TestFromNames(t *testing.T) {
	km, err := FromNames(map[string][]string{
		"0": {"KC_BTN4", "KC_BTN5", "DRAG_SCROLL", "KC_BTN2", "KC_BTN1", "KC_BTN3"},
		"1": {"_______", "_______", "_______", "_______", "_______", "_______"},
		"4": {"KC_TRNS", "KC_TRNS", "KC_TRNS", "KC_TRNS", "KC_TRNS", "KC_TRNS"},
	})
	require.NoError(t, err)
	assert.Equal(t, Default(), km)
	assert.Equal(t, []uint8{0, 1, 4}, km.Layers())

	back, err := FromNames(km.Names())
	require.NoError(t, err)
	assert.Equal(t, km, back)
}

func TestFromNamesErrors(t *testing.T) {
	_, err := FromNames(map[string][]string{"x": make([]string, Positions)})
	assert.Error(t, err)

	_, err = FromNames(map[string][]string{"0": {"KC_BTN1"}})
	assert.Error(t, err)

	_, err = FromNames(map[string][]string{"0": {"KC_BTN1", "KC_BTN2", "KC_BTN3", "KC_BTN4", "KC_BTN5", "KC_NOPE"}})
	assert.Error(t, err)
}
