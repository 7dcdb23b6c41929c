package translator

// State はポーリング周期をまたいで保持される蓄積値
type State struct {
	VolumeAccumulator int     `json:"volume_accumulator"`
	ScrollH           float64 `json:"scroll_h"`
	ScrollV           float64 `json:"scroll_v"`
}

// Reset はすべての蓄積値を0に戻す
func (s *State) Reset() {
	*s = State{}
}

// Stamp は一度も記録されていない状態を区別できるティック
type Stamp struct {
	At  Tick
	Set bool
}

// Mark は現在時刻を記録する
func (s *Stamp) Mark(now Tick) {
	s.At = now
	s.Set = true
}

// Within は記録時刻から window ミリ秒未満かどうかを返す
func (s Stamp) Within(now Tick, window uint32) bool {
	return s.Set && now.Since(s.At) < window
}

// Cooldowns はスクロール/ナビゲーションレイヤーを抜けた時刻
// オブザーバーが書き込み、トランスレータと状態表示が参照する
type Cooldowns struct {
	ScrollExit     Stamp
	NavigationExit Stamp
}

// Active はどちらかのレイヤーを抜けてから window ミリ秒以内かどうかを返す
func (c *Cooldowns) Active(now Tick, window uint32) bool {
	return c.ScrollExit.Within(now, window) || c.NavigationExit.Within(now, window)
}
