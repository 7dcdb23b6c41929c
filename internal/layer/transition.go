package layer

// Edge はレイヤーの状態変化を表す
type Edge int

const (
	Unchanged Edge = iota
	Rising         // 無効 -> 有効
	Falling        // 有効 -> 無効
)

// TransitionDetector は監視対象レイヤーの前回状態を保持し、変化を検出する
type TransitionDetector struct {
	watched []uint8
	prev    State
}

// NewTransitionDetector は指定レイヤーを監視する検出器を作成する
func NewTransitionDetector(watched ...uint8) *TransitionDetector {
	return &TransitionDetector{watched: watched}
}

// Observe は新しい状態を記録し、監視レイヤーごとの変化を返す
func (d *TransitionDetector) Observe(next State) map[uint8]Edge {
	edges := make(map[uint8]Edge, len(d.watched))
	for _, l := range d.watched {
		was, is := d.prev.Cmp(l), next.Cmp(l)
		switch {
		case was && !is:
			edges[l] = Falling
		case !was && is:
			edges[l] = Rising
		default:
			edges[l] = Unchanged
		}
	}
	d.prev = next
	return edges
}

// Previous は最後に観測した状態を返す
func (d *TransitionDetector) Previous() State {
	return d.prev
}
