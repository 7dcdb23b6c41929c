package translator

import "github.com/Dexter-KBD/trackball-layers/internal/layer"

// Translator はアクティブなレイヤーに応じて相対移動をスクロール・音量・タブ移動に変換する
type Translator struct {
	cfg       *Config
	host      Host
	cooldowns *Cooldowns
	state     State
	lastNav   Stamp
}

// New は新しいトランスレータを作成する
func New(cfg *Config, host Host, cooldowns *Cooldowns) *Translator {
	return &Translator{
		cfg:       cfg,
		host:      host,
		cooldowns: cooldowns,
	}
}

// Task は1ポーリング周期分のレポートを処理し、ホストに返すレポートを返す
func (t *Translator) Task(r Report, layers layer.State) Report {
	now := t.host.Now()

	switch layers.Highest() {
	case t.cfg.Layers.Scroll:
		return t.scroll(r)
	case t.cfg.Layers.Volume:
		return t.volume(r)
	case t.cfg.Layers.Navigation:
		return t.navigate(r, now)
	default:
		// ベースレイヤーはクールダウン中でもそのまま通す（Cooldowns.Active で参照のみ可能）
		return r
	}
}

func (t *Translator) scroll(r Report) Report {
	t.state.ScrollH += float64(r.X) / t.cfg.ScrollDivisorH
	t.state.ScrollV += float64(r.Y) / t.cfg.ScrollDivisorV

	h := t.cfg.Rounding.ticks(t.state.ScrollH)
	v := t.cfg.Rounding.ticks(t.state.ScrollV)

	for n := 0; h != 0 && n < t.cfg.MaxScrollEventsPerCycle; n++ {
		dir := sign(h)
		t.host.SendMouse(Report{H: int8(dir)})
		t.state.ScrollH -= float64(dir)
		h -= dir
	}

	// 縦方向はナチュラルスクロールに合わせて反転する
	for n := 0; v != 0 && n < t.cfg.MaxScrollEventsPerCycle; n++ {
		dir := sign(v)
		t.host.SendMouse(Report{V: int8(-dir)})
		t.state.ScrollV -= float64(dir)
		v -= dir
	}

	r.X, r.Y = 0, 0
	return r
}

func (t *Translator) volume(r Report) Report {
	t.state.VolumeAccumulator = clamp(t.state.VolumeAccumulator-int(r.Y), -t.cfg.MaxVolumeDelta, t.cfg.MaxVolumeDelta)

	for t.state.VolumeAccumulator >= t.cfg.VolumeDivider {
		t.host.TapCode(t.cfg.VolumeUp)
		t.state.VolumeAccumulator -= t.cfg.VolumeDivider
	}
	for t.state.VolumeAccumulator <= -t.cfg.VolumeDivider {
		t.host.TapCode(t.cfg.VolumeDown)
		t.state.VolumeAccumulator += t.cfg.VolumeDivider
	}

	r.X, r.Y = 0, 0
	return r
}

func (t *Translator) navigate(r Report, now Tick) Report {
	if t.lastNav.Set && now.Since(t.lastNav.At) <= t.cfg.NavigationInterval {
		return r
	}

	switch {
	case int(r.Y) >= t.cfg.NavigationThreshold:
		t.host.TapCombo(t.cfg.NextCombo)
	case int(r.Y) <= -t.cfg.NavigationThreshold:
		t.host.TapCombo(t.cfg.PrevCombo)
	default:
		return r
	}

	t.state.Reset()
	t.lastNav.Mark(now)
	r.Y = 0
	return r
}

// State は現在の蓄積値を返す
func (t *Translator) State() State {
	return t.state
}

// LastNavigation は最後にタブ移動した時刻を返す
func (t *Translator) LastNavigation() Stamp {
	return t.lastNav
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}

// clamp は値を最小値と最大値の間に制限する
func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
