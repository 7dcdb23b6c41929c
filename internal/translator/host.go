package translator

import "github.com/Dexter-KBD/trackball-layers/internal/keycode"

// Tick はホストが提供するミリ秒単位の単調増加カウンタ
// 32bit で一周するため、差分は符号なしの剰余演算で求める
type Tick uint32

// Since は earlier からの経過ミリ秒を返す
// 一周までは正しく扱えるが、2^32 ms 以上離れた時刻は区別できない
func (t Tick) Since(earlier Tick) uint32 {
	return uint32(t - earlier)
}

// Report はポインティングデバイスの1周期分のレポート
type Report struct {
	Buttons uint8 // bit 0=左, 1=右, 2=中, 3=戻る, 4=進む
	X, Y    int16 // 相対移動量
	V, H    int8  // 縦/横スクロール
}

// Clock は現在のティックを返す
type Clock interface {
	Now() Tick
}

// Host はトランスレータが利用するホスト側の機能
type Host interface {
	Clock
	// DefaultCPI はユーザーが選択している既定の感度を返す
	DefaultCPI() uint16
	// SetCPI はデバイスの感度を設定する
	SetCPI(cpi uint16)
	// RegisterCode はキーを押しっぱなしにする
	RegisterCode(kc keycode.Keycode)
	// UnregisterCode は RegisterCode したキーを離す
	UnregisterCode(kc keycode.Keycode)
	// TapCode はキーを1回押して離す
	TapCode(kc keycode.Keycode)
	// TapCombo は修飾キー付きでキーを1回押して離す
	TapCombo(c keycode.Combo)
	// SendMouse は追加のマウスレポート（スクロールなど）を送る
	SendMouse(r Report)
}
