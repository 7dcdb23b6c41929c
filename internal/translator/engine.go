package translator

import (
	"fmt"

	"github.com/Dexter-KBD/trackball-layers/internal/layer"
)

// Engine はオブザーバーとトランスレータをまとめ、共有するクールダウン状態を持つ
type Engine struct {
	cfg        Config
	cooldowns  Cooldowns
	Observer   *Observer
	Translator *Translator
}

// NewEngine は設定を検証してエンジンを作成する
func NewEngine(cfg Config, host Host) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid translator config: %w", err)
	}
	e := &Engine{cfg: cfg}
	e.Observer = NewObserver(&e.cfg, host, &e.cooldowns)
	e.Translator = New(&e.cfg, host, &e.cooldowns)
	return e, nil
}

// Config は現在の設定を返す
func (e *Engine) Config() Config {
	return e.cfg
}

// SetConfig は蓄積値を保ったまま設定を差し替える
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid translator config: %w", err)
	}
	layersChanged := cfg.Layers != e.cfg.Layers
	e.cfg = cfg
	if layersChanged {
		e.Observer.rewatch()
	}
	return nil
}

// Snapshot は状態表示用のスナップショット
type Snapshot struct {
	Layers         layer.State `json:"layers"`
	HighestLayer   uint8       `json:"highest_layer"`
	State          State       `json:"state"`
	CPI            uint16      `json:"cpi"`
	ButtonHeld     bool        `json:"button_held"`
	InCooldown     bool        `json:"in_cooldown"`
	LastNavigation uint32      `json:"last_navigation_ms_ago,omitempty"`
}

// Snapshot は現在の状態を返す
func (e *Engine) Snapshot(now Tick) Snapshot {
	prev := e.Observer.Previous()
	s := Snapshot{
		Layers:       prev,
		HighestLayer: prev.Highest(),
		State:        e.Translator.State(),
		CPI:          e.Observer.CPI(),
		ButtonHeld:   e.Observer.Held(),
		InCooldown:   e.cooldowns.Active(now, e.cfg.ExitCooldown),
	}
	if nav := e.Translator.LastNavigation(); nav.Set {
		s.LastNavigation = now.Since(nav.At)
	}
	return s
}
