package features

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/Dexter-KBD/trackball-layers/internal/consts"
	"github.com/Dexter-KBD/trackball-layers/internal/types"
	"github.com/Dexter-KBD/trackball-layers/internal/utils"
)

// 相対座標の仮想ポインター（キー入力も送れる）
type Pointer interface {
	Move(dx, dy int32) error
	Scroll(v, h int32) error
	Button(code uint16, pressed bool) error
	Key(code uint16, pressed bool) error
	io.Closer
}

type virtualPointer struct {
	deviceFile *os.File
}

// 新しい仮想ポインターデバイスを作成する
func CreatePointer(path string, name []byte) (Pointer, error) {
	deviceFile, err := createDeviceFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not create relative axis input device: %w", err)
	}

	if err := registerDevice(deviceFile, consts.Key); err != nil {
		return nil, fmt.Errorf("キー入力イベント(EV_KEY)の登録に失敗しました: %w", err)
	}
	// マウスボタンと通常キーをすべて登録する
	for code := 1; code <= consts.BtnTask; code++ {
		if code > 0xff && code < consts.BtnLeft {
			continue
		}
		if err := utils.IOCtl(deviceFile, consts.SetKeyBit, uintptr(code)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("キー入力種別の登録に失敗しました %v: %w", code, err)
		}
	}

	if err := registerDevice(deviceFile, consts.Rel); err != nil {
		return nil, fmt.Errorf("相対座標入力イベント(EV_REL)の登録に失敗しました: %w", err)
	}
	for _, code := range []int{consts.RelX, consts.RelY, consts.RelHWheel, consts.RelWheel} {
		if err := utils.IOCtl(deviceFile, consts.SetRelBit, uintptr(code)); err != nil {
			_ = deviceFile.Close()
			return nil, fmt.Errorf("相対座標軸の登録に失敗しました %v: %w", code, err)
		}
	}

	if err := utils.IOCtl(deviceFile, consts.SetPropBit, uintptr(consts.PropPointer)); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("ポインターデバイスプロパティの設定に失敗しました: %w", err)
	}

	userDev := types.UserDev{
		Name: toUinputName(name),
		ID: types.InputID{
			Bustype: consts.BusUsb,
			Vendor:  0x4711,
			Product: 0x0818,
			Version: 1,
		},
	}
	fd, err := createUsbDevice(deviceFile, userDev)
	if err != nil {
		return nil, fmt.Errorf("USBデバイスの作成に失敗しました: %w", err)
	}

	return &virtualPointer{deviceFile: fd}, nil
}

func (vp *virtualPointer) Move(dx, dy int32) error {
	return writeEvents(vp.deviceFile, moveEvents(dx, dy))
}

func (vp *virtualPointer) Scroll(v, h int32) error {
	return writeEvents(vp.deviceFile, scrollEvents(v, h))
}

func (vp *virtualPointer) Button(code uint16, pressed bool) error {
	return writeEvents(vp.deviceFile, keyEvents(code, pressed))
}

func (vp *virtualPointer) Key(code uint16, pressed bool) error {
	return writeEvents(vp.deviceFile, keyEvents(code, pressed))
}

func (vp *virtualPointer) Close() error {
	_ = releaseDevice(vp.deviceFile)
	return vp.deviceFile.Close()
}

func moveEvents(dx, dy int32) []types.Event {
	var events []types.Event
	if dx != 0 {
		events = append(events, types.Event{Type: consts.Rel, Code: consts.RelX, Value: dx})
	}
	if dy != 0 {
		events = append(events, types.Event{Type: consts.Rel, Code: consts.RelY, Value: dy})
	}
	return append(events, types.SynReport())
}

func scrollEvents(v, h int32) []types.Event {
	var events []types.Event
	if v != 0 {
		events = append(events, types.Event{Type: consts.Rel, Code: consts.RelWheel, Value: v})
	}
	if h != 0 {
		events = append(events, types.Event{Type: consts.Rel, Code: consts.RelHWheel, Value: h})
	}
	return append(events, types.SynReport())
}

func keyEvents(code uint16, pressed bool) []types.Event {
	value := int32(0)
	if pressed {
		value = 1
	}
	return []types.Event{
		{Type: consts.Key, Code: code, Value: value},
		types.SynReport(),
	}
}

// デバイスファイルを作成する
func createDeviceFile(path string) (fd *os.File, err error) {
	deviceFile, err := os.OpenFile(path, syscall.O_WRONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	return deviceFile, nil
}

// デバイスを解放する
func releaseDevice(deviceFile *os.File) error {
	return utils.IOCtl(deviceFile, consts.DevDestroy, uintptr(0))
}

// イベント種別を登録する（失敗時はファイルを閉じる）
func registerDevice(deviceFile *os.File, evType uintptr) error {
	err := utils.IOCtl(deviceFile, consts.SetEvBit, evType)
	if err != nil {
		defer deviceFile.Close()
		if relErr := releaseDevice(deviceFile); relErr != nil {
			return fmt.Errorf("デバイスを解放するのに失敗しました: %w", relErr)
		}
		return fmt.Errorf("無効なファイルハンドルがutils.IOCtlから返されました: %w", err)
	}
	return nil
}

// USBデバイスを作成する
func createUsbDevice(deviceFile *os.File, dev types.UserDev) (fd *os.File, err error) {
	if err := binaryWrite(deviceFile, dev); err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイス構造体をデバイスファイルに書き込むのに失敗しました: %w", err)
	}

	err = utils.IOCtl(deviceFile, consts.DevCreate, uintptr(0))
	if err != nil {
		_ = deviceFile.Close()
		return nil, fmt.Errorf("デバイスの作成に失敗しました: %w", err)
	}

	return deviceFile, err
}

// イベントを書き込む
func writeEvents(w io.Writer, events []types.Event) error {
	for _, ev := range events {
		b, err := ev.Bytes()
		if err != nil {
			return fmt.Errorf("イベントをバッファに書き込むのに失敗しました: %w", err)
		}
		if _, err := w.Write(b); err != nil {
			return fmt.Errorf("イベントの書き込みに失敗しました: %w", err)
		}
	}
	return nil
}

func binaryWrite(w io.Writer, v any) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// 名前をuinput用の固定長配列に変換する
func toUinputName(name []byte) (uinputName [consts.MaxNameSize]byte) {
	copy(uinputName[:], name)
	return uinputName
}
