package features

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"github.com/Dexter-KBD/trackball-layers/internal/consts"
	"github.com/Dexter-KBD/trackball-layers/internal/utils"
)

// キーボードの押下状態を取得するインターフェース
type Keyboard interface {
	PressedKeys() ([]int, error)
	Close() error
}

type virtualKeyboard struct {
	*os.File
}

// 監視するデバイスのパスを指定してキーボードを作成する
func CreateKeyboard(path string) (Keyboard, error) {
	// デバイスを読み取り、非ブロッキングモードで開く
	f, err := os.OpenFile(path, syscall.O_RDONLY|syscall.O_NONBLOCK, 0660)
	if err != nil {
		return nil, fmt.Errorf("デバイスファイルを開くのに失敗しました: %w", err)
	}
	return &virtualKeyboard{f}, nil
}

// PressedKeys は現在押されているキーコードを昇順で返す
func (v virtualKeyboard) PressedKeys() ([]int, error) {
	keyBits := make([]byte, consts.KeyMax/8+1)
	if err := utils.IOCtl(v.File, consts.EVIOCGKEY, uintptr(unsafe.Pointer(&keyBits[0]))); err != nil {
		return nil, err
	}
	return pressedFromBits(keyBits), nil
}

func pressedFromBits(keyBits []byte) []int {
	var pressed []int
	for keyCode := 0; keyCode <= consts.KeyMax && keyCode/8 < len(keyBits); keyCode++ {
		if keyBits[keyCode/8]&(1<<(keyCode%8)) != 0 {
			pressed = append(pressed, keyCode)
		}
	}
	return pressed
}
