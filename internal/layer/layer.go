package layer

import (
	"math/bits"
	"strconv"
	"strings"
)

// MaxLayers はレイヤービットマスクで表現できるレイヤー数
const MaxLayers = 32

// State はアクティブなレイヤーのビットマスク
type State uint32

// Cmp は指定レイヤーがアクティブかどうかを返す
func (s State) Cmp(layer uint8) bool {
	if layer >= MaxLayers {
		return false
	}
	return s&(1<<layer) != 0
}

// Highest は最も優先度の高い（番号の大きい）アクティブレイヤーを返す
// アクティブなレイヤーがない場合は 0
func (s State) Highest() uint8 {
	if s == 0 {
		return 0
	}
	return uint8(bits.Len32(uint32(s)) - 1)
}

// On はレイヤーを有効にした状態を返す
func (s State) On(layer uint8) State {
	if layer >= MaxLayers {
		return s
	}
	return s | 1<<layer
}

// Off はレイヤーを無効にした状態を返す
func (s State) Off(layer uint8) State {
	if layer >= MaxLayers {
		return s
	}
	return s &^ (1 << layer)
}

// Toggle はレイヤーの有効/無効を反転した状態を返す
func (s State) Toggle(layer uint8) State {
	if s.Cmp(layer) {
		return s.Off(layer)
	}
	return s.On(layer)
}

// Layers はアクティブなレイヤー番号を昇順で返す
func (s State) Layers() []uint8 {
	var layers []uint8
	for l := uint8(0); l < MaxLayers; l++ {
		if s.Cmp(l) {
			layers = append(layers, l)
		}
	}
	return layers
}

func (s State) String() string {
	layers := s.Layers()
	if len(layers) == 0 {
		return "[]"
	}
	parts := make([]string, len(layers))
	for i, l := range layers {
		parts[i] = strconv.Itoa(int(l))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
