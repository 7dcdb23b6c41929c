package translator

import (
	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/layer"
)

// Observer はレイヤー変更のたびに呼ばれ、クールダウンの起点・感度・押下ボタンを更新する
type Observer struct {
	cfg       *Config
	host      Host
	cooldowns *Cooldowns
	detector  *layer.TransitionDetector
	held      bool
	heldCode  keycode.Keycode // 実際に押したコード（設定変更後もこれを離す）
	cpi       uint16
}

// NewObserver は新しいオブザーバーを作成する
func NewObserver(cfg *Config, host Host, cooldowns *Cooldowns) *Observer {
	return &Observer{
		cfg:       cfg,
		host:      host,
		cooldowns: cooldowns,
		detector:  layer.NewTransitionDetector(cfg.Layers.Scroll, cfg.Layers.Navigation),
	}
}

// LayerStateSet はレイヤー状態の変更を処理し、状態をそのまま返す
func (o *Observer) LayerStateSet(state layer.State) layer.State {
	now := o.host.Now()

	edges := o.detector.Observe(state)
	if edges[o.cfg.Layers.Scroll] == layer.Falling {
		o.cooldowns.ScrollExit.Mark(now)
	}
	if edges[o.cfg.Layers.Navigation] == layer.Falling {
		o.cooldowns.NavigationExit.Mark(now)
	}

	cpi, ok := o.cfg.LayerCPI[state.Highest()]
	if !ok {
		cpi = o.host.DefaultCPI()
	}
	o.cpi = cpi
	o.host.SetCPI(cpi)

	if state.Cmp(o.cfg.Layers.Navigation) {
		if !o.held {
			o.held = true
			o.heldCode = o.cfg.HeldButton
			o.host.RegisterCode(o.heldCode)
		}
	} else {
		o.Release()
	}

	return state
}

func (o *Observer) rewatch() {
	prev := o.detector.Previous()
	o.detector = layer.NewTransitionDetector(o.cfg.Layers.Scroll, o.cfg.Layers.Navigation)
	o.detector.Observe(prev)
}

// Held はナビゲーション用のボタンを押しっぱなしにしているかを返す
func (o *Observer) Held() bool {
	return o.held
}

// CPI は最後に設定した感度を返す
func (o *Observer) CPI() uint16 {
	return o.cpi
}

// Previous は最後に観測したレイヤー状態を返す
func (o *Observer) Previous() layer.State {
	return o.detector.Previous()
}

// Release は押しっぱなしのボタンを離す（サービス停止時用）
func (o *Observer) Release() {
	if o.held {
		o.held = false
		o.host.UnregisterCode(o.heldCode)
	}
}
