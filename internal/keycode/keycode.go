package keycode

import "fmt"

// Keycode はキーマップ上の1つのアクション
//
// 0x0000-0x02ff は Linux の input-event-codes.h のキー/ボタンコードをそのまま使う。
// 0x7000 以降はレイヤー操作などの特殊キー。
type Keycode uint16

// 通常キー（input-event-codes.hより）
const (
	KC_NO      Keycode = 0x000
	KC_ESC     Keycode = 1
	KC_TAB     Keycode = 15
	KC_ENT     Keycode = 28
	KC_LCTL    Keycode = 29
	KC_LSFT    Keycode = 42
	KC_LALT    Keycode = 56
	KC_SPC     Keycode = 57
	KC_HOME    Keycode = 102
	KC_UP      Keycode = 103
	KC_PGUP    Keycode = 104
	KC_LEFT    Keycode = 105
	KC_RGHT    Keycode = 106
	KC_END     Keycode = 107
	KC_DOWN    Keycode = 108
	KC_PGDN    Keycode = 109
	KC_MUTE    Keycode = 113
	KC_VOLD    Keycode = 114
	KC_VOLU    Keycode = 115
	KC_LGUI    Keycode = 125
	KC_WBAK    Keycode = 158
	KC_WFWD    Keycode = 159
	KC_MNXT    Keycode = 163
	KC_MPLY    Keycode = 164
	KC_MPRV    Keycode = 165
	KC_BTN1    Keycode = 0x110 // 左
	KC_BTN2    Keycode = 0x111 // 右
	KC_BTN3    Keycode = 0x112 // 中
	KC_BTN4    Keycode = 0x113 // 戻る
	KC_BTN5    Keycode = 0x114 // 進む
	maxBasicKC Keycode = 0x2ff
)

// 特殊キー
const (
	moBase      Keycode = 0x7100
	tgBase      Keycode = 0x7200
	DRAG_SCROLL Keycode = 0x7e00
	DPI_CONFIG  Keycode = 0x7e01
	KC_TRNS     Keycode = 0x7fff
)

// MO はレイヤーを押している間だけ有効にするキーを返す
func MO(layer uint8) Keycode { return moBase | Keycode(layer&0x1f) }

// TG はレイヤーをトグルするキーを返す
func TG(layer uint8) Keycode { return tgBase | Keycode(layer&0x1f) }

// IsBasic は uinput にそのまま送れるキーかどうかを返す
func (k Keycode) IsBasic() bool { return k != KC_NO && k <= maxBasicKC }

// IsMouseButton はマウスボタンかどうかを返す
func (k Keycode) IsMouseButton() bool { return k >= KC_BTN1 && k <= KC_BTN5 }

// ButtonBit はマウスボタンのレポート上のビットを返す
func (k Keycode) ButtonBit() uint8 {
	if !k.IsMouseButton() {
		return 0
	}
	return 1 << (k - KC_BTN1)
}

// MomentaryLayer は MO(n) の場合にレイヤー番号を返す
func (k Keycode) MomentaryLayer() (uint8, bool) {
	if k&0xff00 != moBase {
		return 0, false
	}
	return uint8(k & 0x1f), true
}

// ToggleLayer は TG(n) の場合にレイヤー番号を返す
func (k Keycode) ToggleLayer() (uint8, bool) {
	if k&0xff00 != tgBase {
		return 0, false
	}
	return uint8(k & 0x1f), true
}

func (k Keycode) String() string {
	if l, ok := k.MomentaryLayer(); ok {
		return fmt.Sprintf("MO(%d)", l)
	}
	if l, ok := k.ToggleLayer(); ok {
		return fmt.Sprintf("TG(%d)", l)
	}
	if name, ok := namesByCode[k]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", uint16(k))
}

// Mod は修飾キーのビット
type Mod uint8

const (
	ModLCtrl Mod = 1 << iota
	ModLShift
	ModLAlt
	ModLGui
)

var modKeys = []struct {
	mod  Mod
	code Keycode
	name string
}{
	{ModLCtrl, KC_LCTL, "LCTL"},
	{ModLShift, KC_LSFT, "LSFT"},
	{ModLAlt, KC_LALT, "LALT"},
	{ModLGui, KC_LGUI, "LGUI"},
}

// Keys は押下順の修飾キーを返す
func (m Mod) Keys() []Keycode {
	var keys []Keycode
	for _, mk := range modKeys {
		if m&mk.mod != 0 {
			keys = append(keys, mk.code)
		}
	}
	return keys
}

// Combo は修飾キー付きのキー（LCTL(KC_PGDN) など）
type Combo struct {
	Mods Mod
	Key  Keycode
}

// LCTL は Ctrl 付きのキーを返す
func LCTL(k Keycode) Combo { return Combo{Mods: ModLCtrl, Key: k} }

func (c Combo) String() string {
	s := c.Key.String()
	for i := len(modKeys) - 1; i >= 0; i-- {
		if c.Mods&modKeys[i].mod != 0 {
			s = modKeys[i].name + "(" + s + ")"
		}
	}
	return s
}
