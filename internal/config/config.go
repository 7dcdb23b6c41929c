package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Dexter-KBD/trackball-layers/internal/firmware"
	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/keymap"
	"github.com/Dexter-KBD/trackball-layers/internal/translator"
)

// AppName は設定ディレクトリ名に使う
const AppName = "trackball-layers"

// Config はアプリケーション全体の設定を表す構造体
type Config struct {
	Translator  TranslatorConfig    `toml:"translator" json:"translator"`
	Layers      LayersConfig        `toml:"layers" json:"layers"`
	LayerCPI    map[string]uint16   `toml:"layer_cpi" json:"layer_cpi"`
	DPI         DPIConfig           `toml:"dpi" json:"dpi"`
	Keymap      map[string][]string `toml:"keymap" json:"keymap"`
	Input       InputConfig         `toml:"input" json:"input"`
	Motion      MotionConfig        `toml:"motion" json:"motion"`
	DevicePrefs DevicePrefsConfig   `toml:"device_prefs" json:"device_prefs"`
}

// TranslatorConfig はスクロール・音量・タブ移動の変換パラメータ
type TranslatorConfig struct {
	ScrollDivisorH          float64                 `toml:"scroll_divisor_h" json:"scroll_divisor_h"`
	ScrollDivisorV          float64                 `toml:"scroll_divisor_v" json:"scroll_divisor_v"`
	MaxScrollEventsPerCycle int                     `toml:"max_scroll_events_per_cycle" json:"max_scroll_events_per_cycle"`
	Rounding                translator.RoundingMode `toml:"rounding" json:"rounding"`
	VolumeDivider           int                     `toml:"volume_divider" json:"volume_divider"`
	MaxVolumeDelta          int                     `toml:"max_volume_delta" json:"max_volume_delta"`
	VolumeUp                keycode.Keycode         `toml:"volume_up" json:"volume_up"`
	VolumeDown              keycode.Keycode         `toml:"volume_down" json:"volume_down"`
	NavigationIntervalMS    uint32                  `toml:"navigation_interval_ms" json:"navigation_interval_ms"`
	NavigationThreshold     int                     `toml:"navigation_threshold" json:"navigation_threshold"`
	NextCombo               keycode.Combo           `toml:"next_combo" json:"next_combo"`
	PrevCombo               keycode.Combo           `toml:"prev_combo" json:"prev_combo"`
	ExitCooldownMS          uint32                  `toml:"exit_cooldown_ms" json:"exit_cooldown_ms"`
	HeldButton              keycode.Keycode         `toml:"held_button" json:"held_button"`
}

// LayersConfig は各動作に割り当てるレイヤー番号
type LayersConfig struct {
	Base       uint8 `toml:"base" json:"base"`
	Scroll     uint8 `toml:"scroll" json:"scroll"`
	Volume     uint8 `toml:"volume" json:"volume"`
	Navigation uint8 `toml:"navigation" json:"navigation"`
}

// DPIConfig は感度の設定
type DPIConfig struct {
	NativeCPI uint16   `toml:"native_cpi" json:"native_cpi"`
	Options   []uint16 `toml:"options" json:"options"`
	Index     int      `toml:"index" json:"index"`
}

// InputConfig は物理ボタンとレイヤーキーの設定
type InputConfig struct {
	// キーマップの位置 0-5 に対応する evdev のボタンコード
	ButtonCodes []uint16   `toml:"button_codes" json:"button_codes"`
	LayerKeys   []LayerKey `toml:"layer_keys" json:"layer_keys"`
}

// LayerKey はキーボードのキーを押している間レイヤーを有効にする
type LayerKey struct {
	Key   uint16 `toml:"key" json:"key"`
	Layer uint8  `toml:"layer" json:"layer"`
}

// MotionConfig はモーション制御の設定
type MotionConfig struct {
	FilterSmoothingFactor float64       `toml:"filter_smoothing_factor" json:"filter_smoothing_factor"`
	FilterWarmUpCount     int           `toml:"filter_warm_up_count" json:"filter_warm_up_count"`
	PollInterval          time.Duration `toml:"poll_interval" json:"poll_interval"`
}

// DevicePrefsConfig はデバイス設定の設定
type DevicePrefsConfig struct {
	PreferredKeyboardDevice string `toml:"preferred_keyboard_device" json:"preferred_keyboard_device"`
	PreferredMouseDevice    string `toml:"preferred_mouse_device" json:"preferred_mouse_device"`
	GrabTrackball           bool   `toml:"grab_trackball" json:"grab_trackball"`
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() *Config {
	tc := translator.DefaultConfig()
	opts := firmware.DefaultOptions()

	layerCPI := make(map[string]uint16, len(tc.LayerCPI))
	for l, cpi := range tc.LayerCPI {
		layerCPI[strconv.Itoa(int(l))] = cpi
	}

	var layerKeys []LayerKey
	for key, l := range opts.LayerKeys {
		layerKeys = append(layerKeys, LayerKey{Key: key, Layer: l})
	}
	sort.Slice(layerKeys, func(i, j int) bool { return layerKeys[i].Key < layerKeys[j].Key })

	return &Config{
		Translator: TranslatorConfig{
			ScrollDivisorH:          tc.ScrollDivisorH,
			ScrollDivisorV:          tc.ScrollDivisorV,
			MaxScrollEventsPerCycle: tc.MaxScrollEventsPerCycle,
			Rounding:                tc.Rounding,
			VolumeDivider:           tc.VolumeDivider,
			MaxVolumeDelta:          tc.MaxVolumeDelta,
			VolumeUp:                tc.VolumeUp,
			VolumeDown:              tc.VolumeDown,
			NavigationIntervalMS:    tc.NavigationInterval,
			NavigationThreshold:     tc.NavigationThreshold,
			NextCombo:               tc.NextCombo,
			PrevCombo:               tc.PrevCombo,
			ExitCooldownMS:          tc.ExitCooldown,
			HeldButton:              tc.HeldButton,
		},
		Layers: LayersConfig{
			Base:       tc.Layers.Base,
			Scroll:     tc.Layers.Scroll,
			Volume:     tc.Layers.Volume,
			Navigation: tc.Layers.Navigation,
		},
		LayerCPI: layerCPI,
		DPI: DPIConfig{
			NativeCPI: opts.NativeCPI,
			Options:   opts.DPIOptions,
			Index:     opts.DPIIndex,
		},
		Keymap: keymap.Default().Names(),
		Input: InputConfig{
			ButtonCodes: opts.ButtonCodes[:],
			LayerKeys:   layerKeys,
		},
		Motion: MotionConfig{
			FilterSmoothingFactor: opts.SmoothingFactor,
			FilterWarmUpCount:     opts.WarmUpCount,
			PollInterval:          10 * time.Millisecond,
		},
		DevicePrefs: DevicePrefsConfig{
			PreferredKeyboardDevice: "",
			PreferredMouseDevice:    "",
			GrabTrackball:           true,
		},
	}
}

// GetDefaultConfigDir はユーザー設定ディレクトリ配下のアプリ用ディレクトリを返す
func GetDefaultConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultConfigPath はデフォルトの設定ファイルパスを返す
func DefaultConfigPath() (string, error) {
	dir, err := GetDefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// LoadConfig は設定ファイルから設定を読み込む
func LoadConfig(configPath string) (*Config, error) {
	// ファイルが存在しない場合はデフォルト設定を保存して返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config := DefaultConfig()
		if err := SaveConfig(configPath, config); err != nil {
			return config, err
		}
		return config, nil
	}

	config, err := decode(func(c *Config) (toml.MetaData, error) {
		return toml.DecodeFile(configPath, c)
	})
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to load %s: %w", configPath, err)
	}
	return config, nil
}

// Decode は TOML 文字列から設定を読み込む（省略した項目はデフォルト値）
func Decode(data string) (*Config, error) {
	return decode(func(c *Config) (toml.MetaData, error) {
		return toml.Decode(data, c)
	})
}

// decode はデフォルト値の上に TOML を読み込む
// マップはマージせず、ファイルに書かれていればそれだけを使う
func decode(fn func(*Config) (toml.MetaData, error)) (*Config, error) {
	config := DefaultConfig()
	defaults := DefaultConfig()
	config.LayerCPI = nil
	config.Keymap = nil

	md, err := fn(config)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown keys: %v", undecoded)
	}
	if !md.IsDefined("layer_cpi") {
		config.LayerCPI = defaults.LayerCPI
	}
	if !md.IsDefined("keymap") {
		config.Keymap = defaults.Keymap
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig は設定をTOMLファイルに保存する
func SaveConfig(configPath string, config *Config) error {
	// 設定ディレクトリの作成
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// 一時ファイルに書いてから置き換える
	tmp, err := os.CreateTemp(configDir, ".config-*.toml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	// TOML形式でエンコードして書き込み
	if err := toml.NewEncoder(tmp).Encode(config); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), configPath)
}

// Validate は設定値の整合性を確認する
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.TranslatorConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.KeymapConfig(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.RuntimeOptions(); err != nil {
		errs = append(errs, err)
	}
	if c.Motion.PollInterval <= 0 {
		errs = append(errs, errors.New("motion.poll_interval must be positive"))
	}
	return errors.Join(errs...)
}

// TranslatorConfig はトランスレータ用の設定に変換する
func (c *Config) TranslatorConfig() (translator.Config, error) {
	t := c.Translator
	tc := translator.Config{
		Layers: translator.Layers{
			Base:       c.Layers.Base,
			Scroll:     c.Layers.Scroll,
			Volume:     c.Layers.Volume,
			Navigation: c.Layers.Navigation,
		},
		ScrollDivisorH:          t.ScrollDivisorH,
		ScrollDivisorV:          t.ScrollDivisorV,
		MaxScrollEventsPerCycle: t.MaxScrollEventsPerCycle,
		Rounding:                t.Rounding,
		VolumeDivider:           t.VolumeDivider,
		MaxVolumeDelta:          t.MaxVolumeDelta,
		VolumeUp:                t.VolumeUp,
		VolumeDown:              t.VolumeDown,
		NavigationInterval:      t.NavigationIntervalMS,
		NavigationThreshold:     t.NavigationThreshold,
		NextCombo:               t.NextCombo,
		PrevCombo:               t.PrevCombo,
		ExitCooldown:            t.ExitCooldownMS,
		HeldButton:              t.HeldButton,
		LayerCPI:                make(map[uint8]uint16, len(c.LayerCPI)),
	}
	for key, cpi := range c.LayerCPI {
		l, err := strconv.ParseUint(key, 10, 8)
		if err != nil {
			return tc, fmt.Errorf("invalid layer %q in layer_cpi", key)
		}
		if cpi == 0 {
			return tc, fmt.Errorf("layer_cpi.%s must be positive", key)
		}
		tc.LayerCPI[uint8(l)] = cpi
	}
	if err := tc.Validate(); err != nil {
		return tc, err
	}
	return tc, nil
}

// KeymapConfig はキーマップに変換する
func (c *Config) KeymapConfig() (keymap.Keymap, error) {
	if len(c.Keymap) == 0 {
		return keymap.Default(), nil
	}
	km, err := keymap.FromNames(c.Keymap)
	if err != nil {
		return nil, err
	}
	if _, ok := km[0]; !ok {
		return nil, errors.New("keymap must define layer 0")
	}
	return km, nil
}

// RuntimeOptions はランタイム用の設定に変換する
func (c *Config) RuntimeOptions() (firmware.Options, error) {
	opts := firmware.Options{
		NativeCPI:       c.DPI.NativeCPI,
		DPIOptions:      c.DPI.Options,
		DPIIndex:        c.DPI.Index,
		ButtonCodes:     firmware.DefaultButtonCodes,
		LayerKeys:       make(map[uint16]uint8, len(c.Input.LayerKeys)),
		SmoothingFactor: c.Motion.FilterSmoothingFactor,
		WarmUpCount:     c.Motion.FilterWarmUpCount,
	}
	if len(c.Input.ButtonCodes) > 0 {
		if len(c.Input.ButtonCodes) != keymap.Positions {
			return opts, fmt.Errorf("input.button_codes: expected %d codes, got %d", keymap.Positions, len(c.Input.ButtonCodes))
		}
		copy(opts.ButtonCodes[:], c.Input.ButtonCodes)
	}
	for _, lk := range c.Input.LayerKeys {
		if _, dup := opts.LayerKeys[lk.Key]; dup {
			return opts, fmt.Errorf("input.layer_keys: key %d listed twice", lk.Key)
		}
		opts.LayerKeys[lk.Key] = lk.Layer
	}
	if c.Motion.FilterSmoothingFactor < 0 || c.Motion.FilterSmoothingFactor >= 1 {
		return opts, errors.New("motion.filter_smoothing_factor must be in [0, 1)")
	}
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}
