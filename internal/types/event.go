package types

import (
	"bytes"
	"encoding/binary"
	"syscall"

	"github.com/Dexter-KBD/trackball-layers/internal/consts"
)

// Event は入力イベントを表す構造体
type Event struct {
	Time  syscall.Timeval // イベント発生時刻
	Type  uint16          // イベントタイプ
	Code  uint16          // イベントコード
	Value int32           // イベント値
}

// SynReport は一連のイベントの区切りを返す
func SynReport() Event {
	return Event{Type: consts.Syn, Code: consts.SynReport, Value: 0}
}

// Bytes はuinputに書き込む形式に変換する
func (e Event) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
