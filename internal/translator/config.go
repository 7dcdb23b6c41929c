package translator

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/layer"
)

// RoundingMode はスクロール蓄積値から整数のスクロール回数を取り出す方法
type RoundingMode int

const (
	// RoundTruncate は小数部を切り捨てる（0方向への丸め）
	RoundTruncate RoundingMode = iota
	// RoundFloorCeil は正の値を floor、負の値を ceil で丸める
	// 結果は RoundTruncate と同じだが、符号ごとに別の関数を使う従来の挙動を残している
	RoundFloorCeil
)

func (m RoundingMode) ticks(acc float64) int {
	switch m {
	case RoundFloorCeil:
		if acc > 0 {
			return int(math.Floor(acc))
		}
		return int(math.Ceil(acc))
	default:
		return int(math.Trunc(acc))
	}
}

func (m RoundingMode) String() string {
	switch m {
	case RoundTruncate:
		return "truncate"
	case RoundFloorCeil:
		return "floor-ceil"
	default:
		return fmt.Sprintf("RoundingMode(%d)", int(m))
	}
}

// MarshalText は設定ファイル用の名前を返す
func (m RoundingMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText は設定ファイルの名前を読み込む
func (m *RoundingMode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "truncate", "":
		*m = RoundTruncate
	case "floor-ceil", "floor_ceil":
		*m = RoundFloorCeil
	default:
		return fmt.Errorf("unknown rounding mode %q", text)
	}
	return nil
}

// Layers は各動作に割り当てるレイヤー番号
type Layers struct {
	Base       uint8
	Scroll     uint8
	Volume     uint8
	Navigation uint8
}

// Config はトランスレータとオブザーバーの設定
type Config struct {
	Layers Layers

	ScrollDivisorH          float64
	ScrollDivisorV          float64
	MaxScrollEventsPerCycle int
	Rounding                RoundingMode

	VolumeDivider  int
	MaxVolumeDelta int
	VolumeUp       keycode.Keycode
	VolumeDown     keycode.Keycode

	NavigationInterval  uint32 // ms
	NavigationThreshold int
	NextCombo           keycode.Combo
	PrevCombo           keycode.Combo

	ExitCooldown uint32 // ms
	HeldButton   keycode.Keycode
	LayerCPI     map[uint8]uint16
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Layers: Layers{
			Base:       0,
			Scroll:     1,
			Volume:     2,
			Navigation: 4,
		},
		ScrollDivisorH:          3.0,
		ScrollDivisorV:          3.0,
		MaxScrollEventsPerCycle: 1,
		Rounding:                RoundTruncate,
		VolumeDivider:           5,
		MaxVolumeDelta:          40,
		VolumeUp:                keycode.KC_VOLU,
		VolumeDown:              keycode.KC_VOLD,
		NavigationInterval:      200,
		NavigationThreshold:     2,
		NextCombo:               keycode.LCTL(keycode.KC_PGDN),
		PrevCombo:               keycode.LCTL(keycode.KC_PGUP),
		ExitCooldown:            1000,
		HeldButton:              keycode.KC_BTN3,
		LayerCPI: map[uint8]uint16{
			1: 100,
			2: 100,
			4: 100,
		},
	}
}

// Validate は設定値の整合性を確認する
func (c Config) Validate() error {
	var errs []error
	if c.ScrollDivisorH <= 0 || c.ScrollDivisorV <= 0 {
		errs = append(errs, errors.New("scroll divisors must be positive"))
	}
	if c.MaxScrollEventsPerCycle < 1 {
		errs = append(errs, errors.New("max scroll events per cycle must be at least 1"))
	}
	if c.VolumeDivider <= 0 {
		errs = append(errs, errors.New("volume divider must be positive"))
	}
	if c.MaxVolumeDelta < c.VolumeDivider {
		errs = append(errs, errors.New("max volume delta must be at least the volume divider"))
	}
	if c.NavigationThreshold <= 0 {
		errs = append(errs, errors.New("navigation threshold must be positive"))
	}
	for _, l := range []uint8{c.Layers.Base, c.Layers.Scroll, c.Layers.Volume, c.Layers.Navigation} {
		if l >= layer.MaxLayers {
			errs = append(errs, fmt.Errorf("layer %d out of range", l))
		}
	}
	if !c.HeldButton.IsBasic() {
		errs = append(errs, fmt.Errorf("held button %s is not a plain key", c.HeldButton))
	}
	return errors.Join(errs...)
}
