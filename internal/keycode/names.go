package keycode

import (
	"fmt"
	"strconv"
	"strings"
)

var codesByName = map[string]Keycode{
	"KC_NO":             KC_NO,
	"XXXXXXX":           KC_NO,
	"KC_TRNS":           KC_TRNS,
	"KC_TRANSPARENT":    KC_TRNS,
	"_______":           KC_TRNS,
	"KC_ESC":            KC_ESC,
	"KC_TAB":            KC_TAB,
	"KC_ENT":            KC_ENT,
	"KC_ENTER":          KC_ENT,
	"KC_SPC":            KC_SPC,
	"KC_LCTL":           KC_LCTL,
	"KC_LSFT":           KC_LSFT,
	"KC_LALT":           KC_LALT,
	"KC_LGUI":           KC_LGUI,
	"KC_HOME":           KC_HOME,
	"KC_END":            KC_END,
	"KC_UP":             KC_UP,
	"KC_DOWN":           KC_DOWN,
	"KC_LEFT":           KC_LEFT,
	"KC_RGHT":           KC_RGHT,
	"KC_RIGHT":          KC_RGHT,
	"KC_PGUP":           KC_PGUP,
	"KC_PGDN":           KC_PGDN,
	"KC_MUTE":           KC_MUTE,
	"KC_VOLU":           KC_VOLU,
	"KC_AUDIO_VOL_UP":   KC_VOLU,
	"KC_VOLD":           KC_VOLD,
	"KC_AUDIO_VOL_DOWN": KC_VOLD,
	"KC_WBAK":           KC_WBAK,
	"KC_WFWD":           KC_WFWD,
	"KC_MNXT":           KC_MNXT,
	"KC_MPLY":           KC_MPLY,
	"KC_MPRV":           KC_MPRV,
	"KC_BTN1":           KC_BTN1,
	"KC_BTN2":           KC_BTN2,
	"KC_BTN3":           KC_BTN3,
	"KC_BTN4":           KC_BTN4,
	"KC_BTN5":           KC_BTN5,
	"DRAG_SCROLL":       DRAG_SCROLL,
	"DPI_CONFIG":        DPI_CONFIG,
}

// 英字キーの並び（input-event-codes.hの行ごとの先頭コード）
var letterRows = []struct {
	start   Keycode
	letters string
}{
	{16, "QWERTYUIOP"},
	{30, "ASDFGHJKL"},
	{44, "ZXCVBNM"},
}

var namesByCode = map[Keycode]string{}

// 逆引きに使わない別名
var aliases = map[string]struct{}{
	"XXXXXXX":           {},
	"_______":           {},
	"KC_TRANSPARENT":    {},
	"KC_ENTER":          {},
	"KC_RIGHT":          {},
	"KC_AUDIO_VOL_UP":   {},
	"KC_AUDIO_VOL_DOWN": {},
}

func init() {
	for _, row := range letterRows {
		for i, r := range row.letters {
			codesByName["KC_"+string(r)] = row.start + Keycode(i)
		}
	}
	// 数字キーは KEY_1(2) から KEY_0(11)
	for i := 1; i <= 10; i++ {
		codesByName["KC_"+strconv.Itoa(i%10)] = Keycode(i + 1)
	}
	for name, code := range codesByName {
		if _, alias := aliases[name]; !alias {
			namesByCode[code] = name
		}
	}
}

// Parse はキー名（KC_BTN1, MO(1), TG(2), DRAG_SCROLL など）をキーコードに変換する
func Parse(name string) (Keycode, error) {
	name = strings.TrimSpace(name)
	if inner, ok := unwrap(name, "MO"); ok {
		l, err := parseLayer(inner)
		if err != nil {
			return KC_NO, fmt.Errorf("invalid keycode %q: %w", name, err)
		}
		return MO(l), nil
	}
	if inner, ok := unwrap(name, "TG"); ok {
		l, err := parseLayer(inner)
		if err != nil {
			return KC_NO, fmt.Errorf("invalid keycode %q: %w", name, err)
		}
		return TG(l), nil
	}
	if code, ok := codesByName[strings.ToUpper(name)]; ok {
		return code, nil
	}
	return KC_NO, fmt.Errorf("unknown keycode %q", name)
}

// ParseCombo は LCTL(KC_PGDN) のような修飾キー付きの表記を解析する
func ParseCombo(name string) (Combo, error) {
	name = strings.TrimSpace(name)
	var mods Mod
	for {
		matched := false
		for _, mk := range modKeys {
			if inner, ok := unwrap(name, mk.name); ok {
				mods |= mk.mod
				name = inner
				matched = true
				break
			}
		}
		if !matched {
			break
		}
	}
	k, err := Parse(name)
	if err != nil {
		return Combo{}, err
	}
	if !k.IsBasic() {
		return Combo{}, fmt.Errorf("keycode %s cannot be tapped", k)
	}
	return Combo{Mods: mods, Key: k}, nil
}

func unwrap(s, fn string) (string, bool) {
	prefix := fn + "("
	if !strings.HasPrefix(strings.ToUpper(s), prefix) || !strings.HasSuffix(s, ")") {
		return "", false
	}
	return strings.TrimSpace(s[len(prefix) : len(s)-1]), true
}

func parseLayer(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, err
	}
	if n > 31 {
		return 0, fmt.Errorf("layer %d out of range", n)
	}
	return uint8(n), nil
}

// MarshalText はキー名として書き出す
func (k Keycode) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText はキー名を読み込む
func (k *Keycode) UnmarshalText(text []byte) error {
	code, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = code
	return nil
}

// MarshalText は LCTL(KC_PGDN) 形式で書き出す
func (c Combo) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText は LCTL(KC_PGDN) 形式を読み込む
func (c *Combo) UnmarshalText(text []byte) error {
	combo, err := ParseCombo(string(text))
	if err != nil {
		return err
	}
	*c = combo
	return nil
}
