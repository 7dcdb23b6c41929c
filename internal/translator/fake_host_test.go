package translator

import "github.com/Dexter-KBD/trackball-layers/internal/keycode"

// fakeHost は呼び出しを記録するテスト用ホスト
type fakeHost struct {
	now        Tick
	defaultCPI uint16
	cpis       []uint16
	registered []keycode.Keycode
	released   []keycode.Keycode
	taps       []keycode.Keycode
	combos     []keycode.Combo
	reports    []Report
	down       map[keycode.Keycode]int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		now:        10_000,
		defaultCPI: 1200,
		down:       map[keycode.Keycode]int{},
	}
}

func (h *fakeHost) Now() Tick { return h.now }
func (h *fakeHost) DefaultCPI() uint16 { return h.defaultCPI }
func (h *fakeHost) SetCPI(cpi uint16) { h.cpis = append(h.cpis, cpi) }
func (h *fakeHost) TapCode(kc keycode.Keycode) { h.taps = append(h.taps, kc) }
func (h *fakeHost) TapCombo(c keycode.Combo) { h.combos = append(h.combos, c) }
func (h *fakeHost) SendMouse(r Report) { h.reports = append(h.reports, r) }

func (h *fakeHost) RegisterCode(kc keycode.Keycode) {
	h.registered = append(h.registered, kc)
	h.down[kc]++
}

func (h *fakeHost) UnregisterCode(kc keycode.Keycode) {
	h.released = append(h.released, kc)
	h.down[kc]--
}

func (h *fakeHost) advance(ms uint32) {
	h.now += Tick(ms)
}

func (h *fakeHost) clear() {
	h.taps = nil
	h.combos = nil
	h.reports = nil
}
