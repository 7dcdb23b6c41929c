package firmware

import (
	"github.com/Dexter-KBD/trackball-layers/internal/keycode"
	"github.com/Dexter-KBD/trackball-layers/internal/translator"
)

// host は Runtime のロック内から Engine に渡す translator.Host の実装
type host Runtime

func (h *host) rt() *Runtime { return (*Runtime)(h) }

func (h *host) Now() translator.Tick {
	return h.rt().tick()
}

func (h *host) DefaultCPI() uint16 {
	return h.rt().defaultCPI()
}

// SetCPI はトラックボール側の感度を変更できないため、ソフトウェアで倍率を掛ける
func (h *host) SetCPI(cpi uint16) {
	if cpi == h.cpi {
		return
	}
	h.rt().logger.Debug("CPIを変更しました", "cpi", cpi)
	h.cpi = cpi
	h.carryX, h.carryY = 0, 0
}

func (h *host) RegisterCode(kc keycode.Keycode) {
	r := h.rt()
	if kc.IsMouseButton() {
		r.buttons |= kc.ButtonBit()
		r.flushButtons()
		return
	}
	r.sendKey(kc, true)
}

func (h *host) UnregisterCode(kc keycode.Keycode) {
	r := h.rt()
	if kc.IsMouseButton() {
		r.buttons &^= kc.ButtonBit()
		r.flushButtons()
		return
	}
	r.sendKey(kc, false)
}

func (h *host) TapCode(kc keycode.Keycode) {
	h.RegisterCode(kc)
	h.UnregisterCode(kc)
}

func (h *host) TapCombo(c keycode.Combo) {
	mods := c.Mods.Keys()
	for _, m := range mods {
		h.RegisterCode(m)
	}
	h.TapCode(c.Key)
	for i := len(mods) - 1; i >= 0; i-- {
		h.UnregisterCode(mods[i])
	}
}

// SendMouse はスクロールと移動のみ送る（ボタン状態は Runtime が管理する）
func (h *host) SendMouse(r translator.Report) {
	rt := h.rt()
	if r.V != 0 || r.H != 0 {
		if err := rt.pointer.Scroll(int32(r.V), int32(r.H)); err != nil {
			rt.logger.Warn("スクロールの送信に失敗しました", "err", err)
		}
	}
	if r.X != 0 || r.Y != 0 {
		if err := rt.pointer.Move(int32(r.X), int32(r.Y)); err != nil {
			rt.logger.Warn("ポインター移動の送信に失敗しました", "err", err)
		}
	}
}
