package features

import (
	"fmt"

	evdev "github.com/gvalkov/golang-evdev"

	"github.com/Dexter-KBD/trackball-layers/internal/consts"
)

// ButtonEvent は物理ボタンの押下/解放
type ButtonEvent struct {
	Code    uint16
	Pressed bool
}

// Frame は SYN_REPORT で区切られた1回分の入力
type Frame struct {
	DX, DY  int32
	Buttons []ButtonEvent
}

// Empty は移動もボタン変化もないかどうかを返す
func (f Frame) Empty() bool {
	return f.DX == 0 && f.DY == 0 && len(f.Buttons) == 0
}

// apply はイベントを1つ取り込み、フレームが完成したら true を返す
func (f *Frame) apply(typ, code uint16, value int32) bool {
	switch typ {
	case consts.Rel:
		switch code {
		case consts.RelX:
			f.DX += value
		case consts.RelY:
			f.DY += value
		}
	case consts.Key:
		// 2 はオートリピート
		if value == 0 || value == 1 {
			f.Buttons = append(f.Buttons, ButtonEvent{Code: code, Pressed: value == 1})
		}
	case consts.Syn:
		return code == consts.SynReport
	}
	return false
}

// トラックボールからの入力を扱うインターフェース
type Trackball interface {
	// 次の SYN_REPORT までのイベントをまとめて返す（ブロックする）
	ReadFrame() (Frame, error)
	// トラックボール操作を専有する
	Grab() error
	// トラックボール操作の専有を解除する
	Release() error
	Name() string
	Close() error
}

type evdevTrackball struct {
	dev     *evdev.InputDevice
	grabbed bool
	pending []evdev.InputEvent
}

// 指定されたパスのトラックボールを開く
func OpenTrackball(path string) (Trackball, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open device %s: %w", path, err)
	}
	return &evdevTrackball{dev: dev}, nil
}

func (t *evdevTrackball) ReadFrame() (Frame, error) {
	var f Frame
	for {
		if len(t.pending) == 0 {
			events, err := t.dev.Read()
			if err != nil {
				return f, fmt.Errorf("failed to read events: %w", err)
			}
			t.pending = events
			continue
		}
		ev := t.pending[0]
		t.pending = t.pending[1:]
		if f.apply(ev.Type, ev.Code, ev.Value) {
			return f, nil
		}
	}
}

func (t *evdevTrackball) Grab() error {
	if t.grabbed {
		return nil
	}
	if err := t.dev.Grab(); err != nil {
		return fmt.Errorf("failed to grab device: %w", err)
	}
	t.grabbed = true
	return nil
}

func (t *evdevTrackball) Release() error {
	if !t.grabbed {
		return nil
	}
	if err := t.dev.Release(); err != nil {
		return fmt.Errorf("failed to release device: %w", err)
	}
	t.grabbed = false
	return nil
}

func (t *evdevTrackball) Name() string {
	return t.dev.Name
}

func (t *evdevTrackball) Close() error {
	_ = t.Release()
	return t.dev.File.Close()
}
