package firmware

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/Dexter-KBD/trackball-layers/internal/consts"
	"github.com/Dexter-KBD/trackball-layers/internal/features"
	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/keymap"
	"github.com/Dexter-KBD/trackball-layers/internal/layer"
	"github.com/Dexter-KBD/trackball-layers/internal/translator"
)

// DefaultButtonCodes は物理ボタン（evdevコード）とキーマップ上の位置の対応
var DefaultButtonCodes = [keymap.Positions]uint16{
	consts.BtnSide,
	consts.BtnExtra,
	consts.BtnMiddle,
	consts.BtnRight,
	consts.BtnLeft,
	consts.BtnTask,
}

// Options はホスト側の設定
type Options struct {
	NativeCPI   uint16
	DPIOptions  []uint16
	DPIIndex    int
	ButtonCodes [keymap.Positions]uint16
	// キーボードのキーコード -> 押している間有効にするレイヤー
	LayerKeys map[uint16]uint8
	// 0 で無効
	SmoothingFactor float64
	WarmUpCount     int
}

// DefaultOptions はデフォルトのホスト設定を返す
func DefaultOptions() Options {
	return Options{
		NativeCPI:   1200,
		DPIOptions:  []uint16{600, 900, 1200},
		DPIIndex:    0,
		ButtonCodes: DefaultButtonCodes,
		LayerKeys: map[uint16]uint8{
			183: 4, // F13
			184: 2, // F14
		},
		WarmUpCount: 10,
	}
}

// Validate は設定値の整合性を確認する
func (o Options) Validate() error {
	if o.NativeCPI == 0 {
		return fmt.Errorf("native cpi must be positive")
	}
	if len(o.DPIOptions) == 0 {
		return fmt.Errorf("dpi options must not be empty")
	}
	if o.DPIIndex < 0 || o.DPIIndex >= len(o.DPIOptions) {
		return fmt.Errorf("dpi index %d out of range [0, %d)", o.DPIIndex, len(o.DPIOptions))
	}
	for code, l := range o.LayerKeys {
		if l >= layer.MaxLayers {
			return fmt.Errorf("layer key %d: layer %d out of range", code, l)
		}
	}
	return nil
}

// Runtime はトランスレータの Host を仮想ポインター上に実装する
//
// トラックボールのフレームとキーボードの押下状態を受け取り、
// レイヤー状態を管理しながら Engine を1周期ずつ駆動する。
type Runtime struct {
	mu      sync.Mutex
	logger  *slog.Logger
	pointer features.Pointer
	start   time.Time
	now     func() time.Time

	engine *translator.Engine
	keymap keymap.Keymap
	opts   Options
	filter *features.MotionFilter

	layers    layer.State
	toggled   layer.State
	holds     map[uint8]int
	keyLayers layer.State
	pressed   map[int]keycode.Keycode

	buttons uint8
	sent    uint8

	cpi            uint16
	dpiIndex       int
	carryX, carryY float64
}

// Option は Runtime の生成オプション
type Option func(*Runtime)

// WithClock は現在時刻の取得関数を差し替える
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) {
		r.now = now
	}
}

// New は新しいランタイムを作成する
func New(cfg translator.Config, km keymap.Keymap, opts Options, pointer features.Pointer, logger *slog.Logger, options ...Option) (*Runtime, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid runtime options: %w", err)
	}
	r := &Runtime{
		logger:  logger,
		pointer: pointer,
		now:     time.Now,
		keymap:  km,
		opts:    opts,
		holds:   make(map[uint8]int),
		pressed: make(map[int]keycode.Keycode),
	}
	for _, o := range options {
		o(r)
	}
	r.start = r.now()
	r.dpiIndex = opts.DPIIndex
	r.filter = features.NewMotionFilter(opts.SmoothingFactor, opts.WarmUpCount)

	engine, err := translator.NewEngine(cfg, (*host)(r))
	if err != nil {
		return nil, err
	}
	r.engine = engine
	r.layers = layer.State(0).On(cfg.Layers.Base)
	(*host)(r).SetCPI(r.defaultCPI())
	r.logger.Debug("キーマップを読み込みました", "layers", km.Layers())
	return r, nil
}

// HandleFrame はトラックボールの1フレーム分の入力を処理する
func (r *Runtime) HandleFrame(f features.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range f.Buttons {
		r.handleButton(b)
	}
	r.cycle(f.DX, f.DY)
}

// Poll は入力がなくても1周期分の処理を行う（スクロールの残りを出すため）
func (r *Runtime) Poll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycle(0, 0)
}

// SetKeyboardKeys はキーボードで押されているキーからレイヤーキーの状態を更新する
func (r *Runtime) SetKeyboardKeys(pressed []int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next layer.State
	for _, code := range pressed {
		if l, ok := r.opts.LayerKeys[uint16(code)]; ok {
			next = next.On(l)
		}
	}
	if next != r.keyLayers {
		r.keyLayers = next
		r.updateLayers()
	}
}

// Reconfigure は蓄積値を保ったまま設定を差し替える
func (r *Runtime) Reconfigure(cfg translator.Config, km keymap.Keymap, opts Options) error {
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid runtime options: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.engine.SetConfig(cfg); err != nil {
		return err
	}
	r.updateLayers()
	r.keymap = km
	r.logger.Debug("キーマップを更新しました", "layers", km.Layers())
	if opts.SmoothingFactor != r.opts.SmoothingFactor || opts.WarmUpCount != r.opts.WarmUpCount {
		r.filter = features.NewMotionFilter(opts.SmoothingFactor, opts.WarmUpCount)
	}
	// 設定の index が変わった場合だけ、実行中に切り替えた index を上書きする
	if opts.DPIIndex != r.opts.DPIIndex || r.dpiIndex >= len(opts.DPIOptions) {
		r.dpiIndex = opts.DPIIndex
	}
	r.opts = opts
	r.applyCPI()
	return nil
}

// Close は押しっぱなしのキーとボタンをすべて離す
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for pos, kc := range r.pressed {
		delete(r.pressed, pos)
		r.release(kc)
	}
	r.engine.Observer.Release()
	r.buttons = 0
	r.flushButtons()
}

// Status は状態表示用の情報
type Status struct {
	translator.Snapshot
	DPI      uint16 `json:"dpi"`
	DPIIndex int    `json:"dpi_index"`
	Buttons  uint8  `json:"buttons"`
}

// Status は現在の状態を返す
func (r *Runtime) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{
		Snapshot: r.engine.Snapshot(r.tick()),
		DPI:      r.defaultCPI(),
		DPIIndex: r.dpiIndex,
		Buttons:  r.buttons,
	}
	// 起動直後や DPI 変更後はオブザーバーを経由していないので実際の値を使う
	s.CPI = r.cpi
	return s
}

// Layers は現在のレイヤー状態を返す
func (r *Runtime) Layers() layer.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.layers
}

func (r *Runtime) cycle(dx, dy int32) {
	x, y := r.scale(dx, dy)
	if x != 0 || y != 0 {
		x, y = r.filter.Filter(x, y)
	}

	report := translator.Report{
		Buttons: r.buttons,
		X:       clampInt16(x),
		Y:       clampInt16(y),
	}
	out := r.engine.Translator.Task(report, r.layers)

	if out.X != 0 || out.Y != 0 {
		if err := r.pointer.Move(int32(out.X), int32(out.Y)); err != nil {
			r.logger.Warn("ポインター移動の送信に失敗しました", "err", err)
		}
	}
	r.buttons = out.Buttons
	r.flushButtons()
}

// scale は現在の感度に合わせて移動量を変換する（端数は次回に持ち越す）
func (r *Runtime) scale(dx, dy int32) (int32, int32) {
	if r.cpi == r.opts.NativeCPI {
		return dx, dy
	}
	cpi, native := float64(r.cpi), float64(r.opts.NativeCPI)
	fx := float64(dx)*cpi/native + r.carryX
	fy := float64(dy)*cpi/native + r.carryY
	ix, iy := math.Trunc(fx), math.Trunc(fy)
	r.carryX, r.carryY = fx-ix, fy-iy
	return int32(ix), int32(iy)
}

func (r *Runtime) handleButton(b features.ButtonEvent) {
	pos := -1
	for i, code := range r.opts.ButtonCodes {
		if code == b.Code {
			pos = i
			break
		}
	}
	if pos < 0 {
		// キーマップにないボタンはそのまま送る
		if err := r.pointer.Button(b.Code, b.Pressed); err != nil {
			r.logger.Warn("ボタンの送信に失敗しました", "code", b.Code, "err", err)
		}
		return
	}

	if b.Pressed {
		kc := r.keymap.Resolve(r.layers, pos)
		if kc == keycode.DRAG_SCROLL {
			// 離すときに設定が変わっていても同じレイヤーを戻す
			kc = keycode.MO(r.engine.Config().Layers.Scroll)
		}
		r.pressed[pos] = kc
		r.press(kc)
		return
	}
	kc, ok := r.pressed[pos]
	if !ok {
		return
	}
	delete(r.pressed, pos)
	r.release(kc)
}

func (r *Runtime) press(kc keycode.Keycode) {
	if l, ok := kc.MomentaryLayer(); ok {
		r.hold(l)
		return
	}
	if l, ok := kc.ToggleLayer(); ok {
		r.toggled = r.toggled.Toggle(l)
		r.updateLayers()
		return
	}
	switch {
	case kc == keycode.DPI_CONFIG:
		r.cycleDPI()
	case kc.IsMouseButton():
		r.buttons |= kc.ButtonBit()
		r.flushButtons()
	case kc.IsBasic():
		r.sendKey(kc, true)
	}
}

func (r *Runtime) release(kc keycode.Keycode) {
	if l, ok := kc.MomentaryLayer(); ok {
		r.unhold(l)
		return
	}
	switch {
	case kc.IsMouseButton():
		r.buttons &^= kc.ButtonBit()
		r.flushButtons()
	case kc.IsBasic():
		r.sendKey(kc, false)
	}
}

func (r *Runtime) hold(l uint8) {
	r.holds[l]++
	r.updateLayers()
}

func (r *Runtime) unhold(l uint8) {
	if r.holds[l] <= 1 {
		delete(r.holds, l)
	} else {
		r.holds[l]--
	}
	r.updateLayers()
}

// updateLayers はレイヤー状態を再計算し、変化があればオブザーバーに通知する
func (r *Runtime) updateLayers() {
	next := layer.State(0).On(r.engine.Config().Layers.Base) | r.toggled | r.keyLayers
	for l := range r.holds {
		next = next.On(l)
	}
	if next == r.layers {
		return
	}
	r.logger.Debug("レイヤー変更", "from", r.layers.String(), "to", next.String())
	if next.Highest() != r.layers.Highest() {
		// 感度が変わるので平滑化の履歴は捨てる
		r.filter.Reset()
	}
	r.layers = r.engine.Observer.LayerStateSet(next)
}

func (r *Runtime) cycleDPI() {
	r.dpiIndex = (r.dpiIndex + 1) % len(r.opts.DPIOptions)
	r.logger.Info("DPIを変更しました", "dpi", r.defaultCPI(), "index", r.dpiIndex)
	r.applyCPI()
}

// applyCPI は現在のレイヤーに合わせて感度を適用し直す
func (r *Runtime) applyCPI() {
	cpi, ok := r.engine.Config().LayerCPI[r.layers.Highest()]
	if !ok {
		cpi = r.defaultCPI()
	}
	(*host)(r).SetCPI(cpi)
}

func (r *Runtime) defaultCPI() uint16 {
	return r.opts.DPIOptions[r.dpiIndex]
}

func (r *Runtime) tick() translator.Tick {
	return translator.Tick(uint32(r.now().Sub(r.start).Milliseconds()))
}

// flushButtons は前回送信したボタン状態との差分だけを送る
func (r *Runtime) flushButtons() {
	for bit := uint8(0); bit < 5; bit++ {
		mask := uint8(1) << bit
		if (r.buttons^r.sent)&mask == 0 {
			continue
		}
		pressed := r.buttons&mask != 0
		if err := r.pointer.Button(consts.BtnLeft+uint16(bit), pressed); err != nil {
			r.logger.Warn("ボタンの送信に失敗しました", "bit", bit, "err", err)
			continue
		}
		r.sent ^= mask
	}
}

func (r *Runtime) sendKey(kc keycode.Keycode, pressed bool) {
	if err := r.pointer.Key(uint16(kc), pressed); err != nil {
		r.logger.Warn("キーの送信に失敗しました", "key", kc.String(), "err", err)
	}
}

func clampInt16(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
