package keymap

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/layer"
)

// Positions はトラックボールの物理ボタン数
const Positions = 6

// Layout は1レイヤー分のボタン配置
type Layout [Positions]keycode.Keycode

// Keymap はレイヤー番号ごとのボタン配置
type Keymap map[uint8]Layout

// Default は Ploopy 型トラックボールの既定キーマップ
// レイヤー1と4はすべて透過で、ベースレイヤーの動作をそのまま使う
func Default() Keymap {
	trns := Layout{
		keycode.KC_TRNS, keycode.KC_TRNS, keycode.KC_TRNS,
		keycode.KC_TRNS, keycode.KC_TRNS, keycode.KC_TRNS,
	}
	return Keymap{
		0: {
			keycode.KC_BTN4, keycode.KC_BTN5, keycode.DRAG_SCROLL,
			keycode.KC_BTN2, keycode.KC_BTN1, keycode.KC_BTN3,
		},
		1: trns,
		4: trns,
	}
}

// Resolve はアクティブなレイヤーを上から順に探し、透過でない最初のキーを返す
// ベースレイヤー（0）は常に参照される
func (km Keymap) Resolve(state layer.State, pos int) keycode.Keycode {
	if pos < 0 || pos >= Positions {
		return keycode.KC_NO
	}
	state = state.On(0)
	for l := int(state.Highest()); l >= 0; l-- {
		if !state.Cmp(uint8(l)) {
			continue
		}
		layout, ok := km[uint8(l)]
		if !ok {
			continue
		}
		if kc := layout[pos]; kc != keycode.KC_TRNS {
			return kc
		}
	}
	return keycode.KC_NO
}

// Layers は定義済みのレイヤー番号を昇順で返す
func (km Keymap) Layers() []uint8 {
	layers := make([]uint8, 0, len(km))
	for l := range km {
		layers = append(layers, l)
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i] < layers[j] })
	return layers
}

// FromNames は設定ファイルの表記（レイヤー番号 -> キー名の配列）からキーマップを作る
func FromNames(names map[string][]string) (Keymap, error) {
	km := Keymap{}
	for key, row := range names {
		l, err := strconv.ParseUint(key, 10, 8)
		if err != nil || l >= layer.MaxLayers {
			return nil, fmt.Errorf("invalid layer %q in keymap", key)
		}
		if len(row) != Positions {
			return nil, fmt.Errorf("layer %d: expected %d keys, got %d", l, Positions, len(row))
		}
		var layout Layout
		for i, name := range row {
			kc, err := keycode.Parse(name)
			if err != nil {
				return nil, fmt.Errorf("layer %d position %d: %w", l, i, err)
			}
			layout[i] = kc
		}
		km[uint8(l)] = layout
	}
	return km, nil
}

// Names は FromNames の逆変換
func (km Keymap) Names() map[string][]string {
	names := make(map[string][]string, len(km))
	for l, layout := range km {
		row := make([]string, Positions)
		for i, kc := range layout {
			row[i] = kc.String()
		}
		names[strconv.Itoa(int(l))] = row
	}
	return names
}
